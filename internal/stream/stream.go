// Package stream provides live sequences: subscription-scoped streams of values
// delivered over time, with explicit cancellation.
//
// A Subscription is driven by one producer goroutine. Emission blocks until the
// subscriber receives, so values are never buffered or coalesced here; closing the
// subscription cancels the producer's context and releases its resources.
package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by First when the subscription ends without an event.
var ErrClosed = errors.New("stream: subscription closed")

// Event is one emission on a live sequence: a value or an error.
type Event[T any] struct {
	Value T
	Err   error
}

// Emit delivers one event to the subscriber. It returns false once the subscription
// is closed, after which the producer should return.
type Emit[T any] func(Event[T]) bool

// Producer generates the events of a subscription until ctx is done.
type Producer[T any] func(ctx context.Context, emit Emit[T])

// Subscription is a live sequence of events.
type Subscription[T any] struct {
	events chan Event[T]
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New starts producer in its own goroutine and returns the subscription it feeds.
// The events channel is closed when the producer returns.
func New[T any](ctx context.Context, producer Producer[T]) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		events: make(chan Event[T]),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	emit := func(ev Event[T]) bool {
		select {
		case s.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	go func() {
		defer close(s.done)
		defer close(s.events)
		defer cancel()
		producer(ctx, emit)
	}()
	return s
}

// Events returns the channel events are delivered on.
func (s *Subscription[T]) Events() <-chan Event[T] {
	return s.events
}

// Done is closed once the producer has returned.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Close unsubscribes. It is safe to call more than once and from any goroutine.
func (s *Subscription[T]) Close() {
	s.once.Do(s.cancel)
}

// Map derives a subscription applying fn to every value of src, one output per input.
// Errors from src pass through unchanged; an error from fn is emitted in place of the
// value. Closing the derived subscription closes src.
func Map[T, U any](src *Subscription[T], fn func(T) (U, error)) *Subscription[U] {
	return New(context.Background(), func(ctx context.Context, emit Emit[U]) {
		defer src.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-src.Events():
				if !ok {
					return
				}
				var out Event[U]
				if ev.Err != nil {
					out.Err = ev.Err
				} else {
					out.Value, out.Err = fn(ev.Value)
				}
				if !emit(out) {
					return
				}
			}
		}
	})
}

// First waits for the first event of sub, then closes it.
func First[T any](ctx context.Context, sub *Subscription[T]) (T, error) {
	defer sub.Close()
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case ev, ok := <-sub.Events():
		if !ok {
			return zero, ErrClosed
		}
		return ev.Value, ev.Err
	}
}

// Collect reads n events from sub or stops when ctx is done, without closing sub.
func Collect[T any](ctx context.Context, sub *Subscription[T], n int) ([]Event[T], error) {
	out := make([]Event[T], 0, n)
	for len(out) < n {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return out, nil
			}
			out = append(out, ev)
		}
	}
	return out, nil
}
