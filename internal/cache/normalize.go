package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"confetti/internal/domain"
)

const (
	refField      = "__ref"
	typenameField = "__typename"
	idField       = "id"
)

// Identity returns the cache key of an entity, "<__typename>:<id>", or "" when the
// object lacks either field. Objects without identity are stored inline in their parent.
func Identity(obj map[string]any) string {
	typename, ok := obj[typenameField].(string)
	if !ok || typename == "" {
		return ""
	}
	switch id := obj[idField].(type) {
	case string:
		if id == "" {
			return ""
		}
		return typename + ":" + id
	case json.Number:
		return typename + ":" + id.String()
	default:
		return ""
	}
}

// RootFieldKey is the field key a root selection is stored under. Arguments become part
// of the key so the same field queried with different variables is cached separately.
func RootFieldKey(field string, variables map[string]any) string {
	if len(variables) == 0 {
		return field
	}
	names := make([]string, 0, len(variables))
	for k := range variables {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		v, _ := json.Marshal(variables[k])
		parts = append(parts, fmt.Sprintf("%q:%s", k, v))
	}
	return field + "({" + strings.Join(parts, ",") + "})"
}

// Normalize splits the data object of a response into records: one for the operation
// root and one per identifiable entity. An entity that occurs several times in the
// response (a speaker on two sessions) yields a single record.
func Normalize(op domain.Operation, data json.RawMessage) ([]domain.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode response data: %w", err)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: response has no data", domain.ErrInvalidInput)
	}

	rootKey := domain.RootQueryKey
	if op.Mutation {
		rootKey = domain.RootMutationKey
	}
	n := &normalizer{records: make(map[string]domain.Record)}

	rootFields := make(map[string]json.RawMessage, len(root))
	for field, v := range root {
		encoded, err := json.Marshal(n.value(v))
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", field, err)
		}
		rootFields[RootFieldKey(field, op.Variables)] = encoded
	}
	n.add(domain.Record{Key: rootKey, Fields: rootFields})
	if n.err != nil {
		return nil, n.err
	}

	out := make([]domain.Record, 0, len(n.order))
	for _, key := range n.order {
		out = append(out, n.records[key])
	}
	return out, nil
}

type normalizer struct {
	records map[string]domain.Record
	order   []string
	err     error
}

func (n *normalizer) add(rec domain.Record) {
	existing, ok := n.records[rec.Key]
	if !ok {
		n.records[rec.Key] = rec
		n.order = append(n.order, rec.Key)
		return
	}
	merged, _ := existing.MergeFields(rec)
	n.records[rec.Key] = merged
}

// value rewrites v so that identifiable objects are replaced by references.
func (n *normalizer) value(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, field := range v {
			out[k] = n.value(field)
		}
		key := Identity(v)
		if key == "" {
			return out
		}
		fields := make(map[string]json.RawMessage, len(out))
		for k, field := range out {
			encoded, err := json.Marshal(field)
			if err != nil {
				n.err = fmt.Errorf("encode %s.%s: %w", key, k, err)
				continue
			}
			fields[k] = encoded
		}
		n.add(domain.Record{Key: key, Fields: fields})
		return map[string]any{refField: key}
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = n.value(item)
		}
		return out
	default:
		return v
	}
}

// refKey reports whether v is a reference object and returns its key.
func refKey(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) != 1 {
		return "", false
	}
	key, ok := obj[refField].(string)
	return key, ok
}

// collectRefs appends every reference key found in v.
func collectRefs(v any, into []string) []string {
	if key, ok := refKey(v); ok {
		return append(into, key)
	}
	switch v := v.(type) {
	case map[string]any:
		for _, field := range v {
			into = collectRefs(field, into)
		}
	case []any:
		for _, item := range v {
			into = collectRefs(item, into)
		}
	}
	return into
}

func decodeField(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
