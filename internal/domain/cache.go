package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// RootQueryKey and RootMutationKey are the record keys of the operation roots.
const (
	RootQueryKey    = "QUERY_ROOT"
	RootMutationKey = "MUTATION_ROOT"
)

// Record is one normalized cache entry: the scalar fields of an entity, with nested
// entities replaced by references of the form {"__ref": "<key>"}.
type Record struct {
	Key       string                     `json:"key"`
	Fields    map[string]json.RawMessage `json:"fields"`
	UpdatedAt time.Time                  `json:"-"`
}

// Size approximates the memory footprint of the record in bytes.
func (r Record) Size() int {
	n := len(r.Key)
	for k, v := range r.Fields {
		n += len(k) + len(v)
	}
	return n
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	fields := make(map[string]json.RawMessage, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = append(json.RawMessage(nil), v...)
	}
	return Record{Key: r.Key, Fields: fields, UpdatedAt: r.UpdatedAt}
}

// MergeFields applies incoming's fields over r, field by field, latest write winning.
// It returns the merged record and whether any field changed.
func (r Record) MergeFields(incoming Record) (Record, bool) {
	merged := r.Clone()
	if merged.Fields == nil {
		merged.Fields = make(map[string]json.RawMessage, len(incoming.Fields))
	}
	changed := false
	for k, v := range incoming.Fields {
		if old, ok := merged.Fields[k]; ok && bytes.Equal(old, v) {
			continue
		}
		merged.Fields[k] = append(json.RawMessage(nil), v...)
		changed = true
	}
	if !incoming.UpdatedAt.IsZero() {
		merged.UpdatedAt = incoming.UpdatedAt
	}
	return merged, changed
}

// RecordStore is the persistent tier of the normalized cache.
// Implementations exist per platform (on-device SQLite, server-side Postgres).
type RecordStore interface {
	// LoadRecords returns the records found for keys; absent keys are omitted.
	LoadRecords(ctx context.Context, keys []string) (map[string]Record, error)
	// MergeRecords writes records, merging fields into any stored record with the same key.
	MergeRecords(ctx context.Context, records []Record) error
	DeleteRecords(ctx context.Context, keys []string) error
	Clear(ctx context.Context) error
	Close() error
}
