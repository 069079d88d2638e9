// Package cache implements the normalized cache: response entities stored once by
// identity, in a bounded memory tier chained in front of an optional persistent tier.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"confetti/internal/domain"
)

// Normalized is safe for concurrent use by any number of watchers and writers.
type Normalized struct {
	memory *Memory
	store  domain.RecordStore
	logger *slog.Logger

	// writeMu serialises merges so change detection sees a stable previous state.
	writeMu sync.Mutex

	watchMu  sync.Mutex
	watchers map[uuid.UUID]*Watcher
}

// New chains memory in front of store. store may be nil for a memory-only cache.
func New(memory *Memory, store domain.RecordStore, logger *slog.Logger) *Normalized {
	if memory == nil {
		memory = NewMemory(DefaultMemoryBytes)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalized{
		memory:   memory,
		store:    store,
		logger:   logger,
		watchers: make(map[uuid.UUID]*Watcher),
	}
}

// Load returns the records found for keys, reading the persistent tier for memory
// misses and promoting what it finds. Persistent failures are logged and count as misses.
func (c *Normalized) Load(ctx context.Context, keys []string) map[string]domain.Record {
	out := make(map[string]domain.Record, len(keys))
	var missing []string
	for _, key := range keys {
		if rec, ok := c.memory.Get(key); ok {
			out[key] = rec
			continue
		}
		missing = append(missing, key)
	}
	if len(missing) == 0 || c.store == nil {
		return out
	}
	found, err := c.store.LoadRecords(ctx, missing)
	if err != nil {
		c.logger.WarnContext(ctx, "persistent cache read failed, treating as miss", "keys", len(missing), "err", err)
		return out
	}
	for key, rec := range found {
		c.memory.Put(rec)
		out[key] = rec
	}
	return out
}

// Merge writes records field by field over what is cached, latest write winning, and
// notifies watchers of every record that changed. It returns the changed keys.
func (c *Normalized) Merge(ctx context.Context, records []domain.Record) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.writeMu.Lock()
	keys := make([]string, 0, len(records))
	for _, rec := range records {
		keys = append(keys, rec.Key)
	}
	existing := c.Load(ctx, keys)

	now := time.Now().UTC()
	var changed []string
	var changedRecords []domain.Record
	for _, rec := range records {
		rec.UpdatedAt = now
		merged, dirty := existing[rec.Key].MergeFields(rec)
		merged.Key = rec.Key
		if _, seen := existing[rec.Key]; seen && !dirty {
			continue
		}
		existing[rec.Key] = merged
		c.memory.Put(merged)
		changed = append(changed, rec.Key)
		changedRecords = append(changedRecords, rec)
	}
	if c.store != nil && len(changedRecords) > 0 {
		if err := c.store.MergeRecords(ctx, changedRecords); err != nil {
			c.logger.WarnContext(ctx, "persistent cache write failed, keeping memory tier only", "records", len(changedRecords), "err", err)
		}
	}
	c.writeMu.Unlock()

	c.publish(changed)
	return changed, nil
}

// Invalidate removes keys from both tiers and notifies watchers.
func (c *Normalized) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	c.writeMu.Lock()
	c.memory.Delete(keys...)
	var err error
	if c.store != nil {
		if err = c.store.DeleteRecords(ctx, keys); err != nil {
			err = fmt.Errorf("invalidate persistent records: %w", err)
		}
	}
	c.writeMu.Unlock()
	c.publish(keys)
	return err
}

// Clear empties both tiers. Watchers are notified of a change to the query root so
// every watch re-reads.
func (c *Normalized) Clear(ctx context.Context) error {
	c.writeMu.Lock()
	c.memory.Clear()
	var err error
	if c.store != nil {
		if err = c.store.Clear(ctx); err != nil {
			err = fmt.Errorf("clear persistent records: %w", err)
		}
	}
	c.writeMu.Unlock()
	c.publish([]string{domain.RootQueryKey})
	return err
}

// Write normalizes the data of a successful response to op and merges it.
func (c *Normalized) Write(ctx context.Context, op domain.Operation, data json.RawMessage) ([]string, error) {
	records, err := Normalize(op, data)
	if err != nil {
		return nil, err
	}
	return c.Merge(ctx, records)
}

// Read rebuilds the data object of op from the cache. It returns domain.ErrCacheMiss
// unless every root field and every record they reference is present. The returned set
// holds the keys the result was built from.
func (c *Normalized) Read(ctx context.Context, op domain.Operation) (json.RawMessage, map[string]struct{}, error) {
	rootKey := domain.RootQueryKey
	if op.Mutation {
		rootKey = domain.RootMutationKey
	}
	deps := map[string]struct{}{rootKey: {}}

	root, ok := c.Load(ctx, []string{rootKey})[rootKey]
	if !ok {
		return nil, deps, domain.ErrCacheMiss
	}

	values := make(map[string]any, len(op.RootFields))
	var pending []string
	for _, field := range op.RootFields {
		raw, ok := root.Fields[RootFieldKey(field, op.Variables)]
		if !ok {
			return nil, deps, domain.ErrCacheMiss
		}
		v, err := decodeField(raw)
		if err != nil {
			return nil, deps, fmt.Errorf("decode cached %s: %w", field, err)
		}
		values[field] = v
		pending = collectRefs(v, pending)
	}

	loaded := make(map[string]map[string]any)
	for len(pending) > 0 {
		var batch []string
		for _, key := range pending {
			if _, done := loaded[key]; done {
				continue
			}
			loaded[key] = nil
			batch = append(batch, key)
		}
		pending = pending[:0]
		if len(batch) == 0 {
			break
		}
		found := c.Load(ctx, batch)
		for _, key := range batch {
			rec, ok := found[key]
			if !ok {
				return nil, deps, domain.ErrCacheMiss
			}
			deps[key] = struct{}{}
			obj := make(map[string]any, len(rec.Fields))
			for name, raw := range rec.Fields {
				v, err := decodeField(raw)
				if err != nil {
					return nil, deps, fmt.Errorf("decode cached %s.%s: %w", key, name, err)
				}
				obj[name] = v
				pending = collectRefs(v, pending)
			}
			loaded[key] = obj
		}
	}

	out := make(map[string]any, len(values))
	for field, v := range values {
		out[field] = resolve(v, loaded, map[string]bool{})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, deps, fmt.Errorf("encode cached data: %w", err)
	}
	return data, deps, nil
}

// resolve replaces references with the records they point to. A reference back to an
// entity already being expanded is left as a reference.
func resolve(v any, loaded map[string]map[string]any, expanding map[string]bool) any {
	if key, ok := refKey(v); ok {
		obj := loaded[key]
		if obj == nil || expanding[key] {
			return v
		}
		expanding[key] = true
		out := make(map[string]any, len(obj))
		for name, field := range obj {
			out[name] = resolve(field, loaded, expanding)
		}
		delete(expanding, key)
		return out
	}
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for name, field := range v {
			out[name] = resolve(field, loaded, expanding)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolve(item, loaded, expanding)
		}
		return out
	default:
		return v
	}
}
