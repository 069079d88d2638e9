package cache

import (
	"sync"

	"github.com/google/uuid"
)

// Watcher receives change notifications from a Normalized cache. Notifications that
// arrive before the previous one was taken are coalesced into one pending key set.
type Watcher struct {
	id     uuid.UUID
	cache  *Normalized
	signal chan struct{}

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
}

// Subscribe registers a watcher for every subsequent change.
func (c *Normalized) Subscribe() *Watcher {
	w := &Watcher{
		id:      uuid.New(),
		cache:   c,
		signal:  make(chan struct{}, 1),
		pending: make(map[string]struct{}),
	}
	c.watchMu.Lock()
	c.watchers[w.id] = w
	c.watchMu.Unlock()
	return w
}

// Watchers returns the number of registered watchers.
func (c *Normalized) Watchers() int {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	return len(c.watchers)
}

func (c *Normalized) publish(keys []string) {
	if len(keys) == 0 {
		return
	}
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	for _, w := range c.watchers {
		w.notify(keys)
	}
}

// ID identifies the watcher in logs.
func (w *Watcher) ID() uuid.UUID { return w.id }

// C is signalled whenever changed keys are pending.
func (w *Watcher) C() <-chan struct{} { return w.signal }

// Take returns the pending changed keys and resets them.
func (w *Watcher) Take() map[string]struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	keys := w.pending
	w.pending = make(map[string]struct{})
	return keys
}

// Close unregisters the watcher. Further changes are not recorded.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.cache.watchMu.Lock()
	delete(w.cache.watchers, w.id)
	w.cache.watchMu.Unlock()
}

func (w *Watcher) notify(keys []string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	for _, k := range keys {
		w.pending[k] = struct{}{}
	}
	w.mu.Unlock()
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// Intersects reports whether any key of changed is in deps.
func Intersects(changed, deps map[string]struct{}) bool {
	if len(changed) > len(deps) {
		changed, deps = deps, changed
	}
	for k := range changed {
		if _, ok := deps[k]; ok {
			return true
		}
	}
	return false
}
