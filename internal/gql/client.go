// Package gql is the GraphQL client the repositories build on: it executes operations
// through a domain.Transport, keeps results in the normalized cache and turns queries
// into live sequences that follow the cache.
package gql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"confetti/internal/cache"
	"confetti/internal/domain"
	"confetti/internal/stream"
)

// Client is safe for concurrent use.
type Client struct {
	transport domain.Transport
	cache     *cache.Normalized
	logger    *slog.Logger
	shared    *sharedFetches
}

// NewClient returns a client executing operations through transport and caching in c.
func NewClient(transport domain.Transport, c *cache.Normalized, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: transport,
		cache:     c,
		logger:    logger,
		shared:    newSharedFetches(),
	}
}

// Cache returns the normalized cache the client writes through.
func (c *Client) Cache() *cache.Normalized {
	return c.cache
}

// Query executes op once. FetchCacheAndNetwork behaves like FetchCacheFirst here,
// since a one-shot answer cannot carry a second value; use Watch for both.
func (c *Client) Query(ctx context.Context, op domain.Operation, policy domain.FetchPolicy) (*domain.Response, error) {
	if op.Mutation {
		return nil, fmt.Errorf("%w: %s is a mutation", domain.ErrInvalidInput, op.Name)
	}
	if policy != domain.FetchNetworkOnly {
		data, _, err := c.cache.Read(ctx, op)
		switch {
		case err == nil:
			return &domain.Response{Data: data, FromCache: true}, nil
		case !errors.Is(err, domain.ErrCacheMiss):
			c.logger.WarnContext(ctx, "cache read failed", "operation", op.Name, "err", err)
		}
		if policy == domain.FetchCacheOnly {
			return nil, domain.ErrCacheMiss
		}
	}
	return c.fetch(ctx, op)
}

// Mutate executes op on the network and merges its result into the cache, so watchers
// of any entity the mutation returns see the change.
func (c *Client) Mutate(ctx context.Context, op domain.Operation) (*domain.Response, error) {
	if !op.Mutation {
		return nil, fmt.Errorf("%w: %s is not a mutation", domain.ErrInvalidInput, op.Name)
	}
	return c.fetchAndStore(ctx, op)
}

// Watch returns a live sequence of responses to op. Under FetchCacheAndNetwork the
// cached value, when complete, is emitted first; the network value follows if it
// differs. The subscription then re-emits whenever the cache changes a record the
// result depends on, and stays open after errors until it is closed.
func (c *Client) Watch(ctx context.Context, op domain.Operation, policy domain.FetchPolicy) *stream.Subscription[*domain.Response] {
	return stream.New(ctx, func(ctx context.Context, emit stream.Emit[*domain.Response]) {
		w := &watch{client: c, op: op, emit: emit, watcher: c.cache.Subscribe()}
		defer w.watcher.Close()
		w.run(ctx, policy)
	})
}

// fetch goes to the network, sharing the request with concurrent fetches of op.
func (c *Client) fetch(ctx context.Context, op domain.Operation) (*domain.Response, error) {
	return c.shared.do(ctx, op.Key(), func(ctx context.Context) (*domain.Response, error) {
		return c.fetchAndStore(ctx, op)
	})
}

// fetchAndStore executes op and writes a successful result to the cache. A response
// carrying errors is returned as a *domain.QueryError and never written.
func (c *Client) fetchAndStore(ctx context.Context, op domain.Operation) (*domain.Response, error) {
	resp, err := c.transport.Execute(ctx, op)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, &domain.QueryError{Operation: op.Name, Errors: resp.Errors}
	}
	if !resp.HasData() {
		return nil, &domain.TransportError{Operation: op.Name, Err: errors.New("response has no data")}
	}
	changed, err := c.cache.Write(ctx, op, resp.Data)
	if err != nil {
		return nil, &domain.TransportError{Operation: op.Name, Err: fmt.Errorf("malformed response data: %w", err)}
	}
	c.logger.DebugContext(ctx, "graphql response cached", "operation", op.Name, "changed_records", len(changed))
	return resp, nil
}

// watch is the state of one Watch subscription.
type watch struct {
	client  *Client
	op      domain.Operation
	emit    stream.Emit[*domain.Response]
	watcher *cache.Watcher

	deps map[string]struct{}
	last any
	// missed is set while the cache has not held the result since the last fetch.
	// A further miss is then not refetched, so a result the cache cannot retain
	// costs one request per invalidation rather than one per notification.
	missed bool
}

func (w *watch) run(ctx context.Context, policy domain.FetchPolicy) {
	hit := false
	if policy != domain.FetchNetworkOnly {
		var ok bool
		if hit, ok = w.readCache(ctx, true); !ok {
			return
		}
	}
	switch {
	case policy == domain.FetchCacheOnly && !hit:
		if !w.emit(stream.Event[*domain.Response]{Err: domain.ErrCacheMiss}) {
			return
		}
	case policy == domain.FetchCacheOnly, policy == domain.FetchCacheFirst && hit:
	default:
		if !w.network(ctx) {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.watcher.C():
			changed := w.watcher.Take()
			if !cache.Intersects(changed, w.deps) {
				continue
			}
			hit, ok := w.readCache(ctx, false)
			if !ok {
				return
			}
			if !hit && policy != domain.FetchCacheOnly && !w.missed {
				if !w.network(ctx) {
					return
				}
			}
		}
	}
}

// readCache emits the cached result if it is complete and new. It reports whether the
// cache held the result and whether the subscription is still open.
func (w *watch) readCache(ctx context.Context, initial bool) (hit bool, open bool) {
	data, deps, err := w.client.cache.Read(ctx, w.op)
	if len(deps) > 0 {
		w.deps = deps
	}
	switch {
	case err == nil:
		w.missed = false
		return true, w.emitData(data, true)
	case errors.Is(err, domain.ErrCacheMiss):
		return false, true
	default:
		w.client.logger.WarnContext(ctx, "cache read failed", "operation", w.op.Name, "initial", initial, "err", err)
		return false, true
	}
}

// network fetches op and emits the result as read back from the cache, or the error.
// When the cache does not retain the result, the fetched data is emitted as is.
func (w *watch) network(ctx context.Context) bool {
	w.missed = true
	resp, err := w.client.fetch(ctx, w.op)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		w.client.logger.DebugContext(ctx, "watch fetch failed", "operation", w.op.Name, "watcher", w.watcher.ID(), "err", err)
		return w.emit(stream.Event[*domain.Response]{Err: err})
	}
	if data, deps, err := w.client.cache.Read(ctx, w.op); err == nil {
		w.deps = deps
		w.missed = false
		return w.emitData(data, false)
	}
	return w.emitData(resp.Data, false)
}

// emitData emits data unless it equals the last emitted value.
func (w *watch) emitData(data json.RawMessage, fromCache bool) bool {
	decoded, err := canonical(data)
	if err == nil && w.last != nil && reflect.DeepEqual(decoded, w.last) {
		return true
	}
	w.last = decoded
	return w.emit(stream.Event[*domain.Response]{Value: &domain.Response{Data: data, FromCache: fromCache}})
}

func canonical(data json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
