package gql

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"confetti/internal/domain"
)

// maxJoinAttempts bounds retries after joining a call its last waiter abandoned.
const maxJoinAttempts = 3

// sharedFetches deduplicates concurrent network fetches of the same operation.
// A shared request runs until its last waiter leaves; one waiter leaving does not
// cancel it for the others.
type sharedFetches struct {
	group singleflight.Group

	mu    sync.Mutex
	calls map[string]*sharedCall
}

type sharedCall struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func newSharedFetches() *sharedFetches {
	return &sharedFetches{calls: make(map[string]*sharedCall)}
}

func (s *sharedFetches) do(ctx context.Context, key string, fn func(context.Context) (*domain.Response, error)) (*domain.Response, error) {
	var err error
	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		call := s.join(ctx, key)
		ch := s.group.DoChan(key, func() (any, error) {
			return fn(call.ctx)
		})
		select {
		case <-ctx.Done():
			s.leave(key, call)
			return nil, ctx.Err()
		case res := <-ch:
			s.leave(key, call)
			err = res.Err
			if err != nil && errors.Is(err, context.Canceled) && ctx.Err() == nil {
				continue
			}
			resp, _ := res.Val.(*domain.Response)
			return resp, err
		}
	}
	return nil, err
}

func (s *sharedFetches) join(ctx context.Context, key string) *sharedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	if call, ok := s.calls[key]; ok {
		call.waiters++
		return call
	}
	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	call := &sharedCall{ctx: callCtx, cancel: cancel, waiters: 1}
	s.calls[key] = call
	return call
}

func (s *sharedFetches) leave(key string, call *sharedCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call.waiters--
	if call.waiters > 0 {
		return
	}
	call.cancel()
	if s.calls[key] == call {
		delete(s.calls, key)
	}
}

func (s *sharedFetches) inflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
