// Package app wires the per-conference, per-user object graph: GraphQL transport,
// normalized cache with its persistent tier, and the repositories built on them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"confetti/internal/adapters/graphqlhttp"
	"confetti/internal/cache"
	"confetti/internal/domain"
	"confetti/internal/gql"
	"confetti/internal/repository"
	"confetti/internal/services"
)

// Identity is the caller a repository is opened for. An empty UserID is anonymous.
type Identity struct {
	UserID string
	// Token is forwarded upstream as the bearer token of the user's requests.
	Token string
}

// Options configures a Provider.
type Options struct {
	ServerURL   string
	Store       repository.StoreConfig
	MemoryBytes int
	// Conferences restricts which conferences may be opened. Empty allows any.
	Conferences []string
	// MaxEntries bounds the open graphs. The least recently used one is closed to
	// make room. Zero is unbounded.
	MaxEntries  int
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Provider hands out one repository graph per (conference, user). Graphs are created
// on first use and live until Close, so watchers of the same namespace share a cache.
type Provider struct {
	opts   Options
	logger *slog.Logger

	allowed map[string]struct{}

	mu      sync.Mutex
	entries map[string]*entry
	uses    uint64
	closed  bool
}

type entry struct {
	namespace string
	client    *gql.Client
	store     domain.RecordStore
	sessions  domain.SessionRepository
	bookmarks domain.BookmarkService
	lastUse   uint64

	tokenMu sync.RWMutex
	token   string
}

func (e *entry) setToken(token string) {
	if token == "" {
		return
	}
	e.tokenMu.Lock()
	e.token = token
	e.tokenMu.Unlock()
}

func (e *entry) currentToken(context.Context) (string, error) {
	e.tokenMu.RLock()
	defer e.tokenMu.RUnlock()
	return e.token, nil
}

// NewProvider returns a provider for opts.
func NewProvider(opts Options) *Provider {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MemoryBytes <= 0 {
		opts.MemoryBytes = cache.DefaultMemoryBytes
	}
	p := &Provider{opts: opts, logger: opts.Logger, entries: make(map[string]*entry)}
	if len(opts.Conferences) > 0 {
		p.allowed = make(map[string]struct{}, len(opts.Conferences))
		for _, c := range opts.Conferences {
			p.allowed[c] = struct{}{}
		}
	}
	return p
}

// Sessions returns the session repository of conference as seen by id.
func (p *Provider) Sessions(ctx context.Context, conference string, id Identity) (domain.SessionRepository, error) {
	e, err := p.get(ctx, conference, id)
	if err != nil {
		return nil, err
	}
	return e.sessions, nil
}

// Bookmarks returns the bookmark service of the signed-in user id.
func (p *Provider) Bookmarks(ctx context.Context, conference string, id Identity) (domain.BookmarkService, error) {
	if id.UserID == "" {
		return nil, fmt.Errorf("%w: bookmarks require a signed-in user", domain.ErrUnauthorized)
	}
	e, err := p.get(ctx, conference, id)
	if err != nil {
		return nil, err
	}
	return e.bookmarks, nil
}

// Namespaces returns the namespaces opened so far.
func (p *Provider) Namespaces() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.entries))
	for ns := range p.entries {
		out = append(out, ns)
	}
	return out
}

func (p *Provider) get(ctx context.Context, conference string, id Identity) (*entry, error) {
	if conference == "" {
		return nil, fmt.Errorf("%w: conference is required", domain.ErrInvalidInput)
	}
	if p.allowed != nil {
		if _, ok := p.allowed[conference]; !ok {
			return nil, fmt.Errorf("%w: unknown conference %q", domain.ErrNotFound, conference)
		}
	}
	namespace := cache.Namespace(conference, id.UserID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("provider is closed")
	}
	p.uses++
	if e, ok := p.entries[namespace]; ok {
		e.lastUse = p.uses
		e.setToken(id.Token)
		return e, nil
	}
	if p.opts.MaxEntries > 0 && len(p.entries) >= p.opts.MaxEntries {
		p.evictLocked(ctx)
	}

	store, err := repository.OpenStore(ctx, p.opts.Store, namespace)
	if err != nil {
		return nil, err
	}
	e := &entry{namespace: namespace, store: store, token: id.Token, lastUse: p.uses}
	transport, err := graphqlhttp.NewHTTPTransport(p.opts.HTTPClient, graphqlhttp.Config{
		Endpoint:   p.opts.ServerURL,
		Conference: conference,
		Token:      e.currentToken,
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	logger := p.logger.With("namespace", namespace)
	e.client = gql.NewClient(transport, cache.New(cache.NewMemory(p.opts.MemoryBytes), store, logger), logger)
	e.sessions = services.NewSessionRepository(conference, e.client, logger)
	e.bookmarks = services.NewBookmarkService(e.client, logger)
	p.entries[namespace] = e

	p.logger.InfoContext(ctx, "opened conference cache",
		"namespace", namespace,
		"conference", conference,
		"signed_in", id.UserID != "",
		"store", p.opts.Store.Provider,
	)
	return e, nil
}

// evictLocked closes the least recently used entry. Repositories already handed out
// keep serving from memory but stop persisting.
func (p *Provider) evictLocked(ctx context.Context) {
	var oldest *entry
	for _, e := range p.entries {
		if oldest == nil || e.lastUse < oldest.lastUse {
			oldest = e
		}
	}
	if oldest == nil {
		return
	}
	delete(p.entries, oldest.namespace)
	if oldest.store != nil {
		if err := oldest.store.Close(); err != nil {
			p.logger.WarnContext(ctx, "close evicted cache store", "namespace", oldest.namespace, "err", err)
		}
	}
	p.logger.InfoContext(ctx, "evicted conference cache", "namespace", oldest.namespace, "open", len(p.entries))
}

// Close closes every persistent store. Repositories handed out stop persisting.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var errs []error
	for ns, e := range p.entries {
		if e.store != nil {
			if err := e.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close store %s: %w", ns, err))
			}
		}
	}
	p.entries = make(map[string]*entry)
	return errors.Join(errs...)
}
