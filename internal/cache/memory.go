package cache

import (
	"container/list"
	"sync"

	"confetti/internal/domain"
)

// DefaultMemoryBytes is the default byte budget of the in-memory tier.
const DefaultMemoryBytes = 10_000_000

// Memory is the in-memory tier: records bounded by an approximate byte budget,
// evicted least recently used first. It is rebuilt empty on every process start.
type Memory struct {
	mu       sync.Mutex
	maxBytes int
	size     int
	ll       *list.List
	items    map[string]*list.Element
}

type memoryEntry struct {
	record domain.Record
	size   int
}

// NewMemory returns an empty tier holding at most maxBytes. A non-positive budget
// falls back to DefaultMemoryBytes.
func NewMemory(maxBytes int) *Memory {
	if maxBytes <= 0 {
		maxBytes = DefaultMemoryBytes
	}
	return &Memory{
		maxBytes: maxBytes,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns a copy of the record stored under key and marks it recently used.
func (m *Memory) Get(key string) (domain.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[key]
	if !ok {
		return domain.Record{}, false
	}
	m.ll.MoveToFront(el)
	return el.Value.(*memoryEntry).record.Clone(), true
}

// Put stores rec, replacing any record with the same key, then evicts until the tier
// fits its budget. A record larger than the whole budget is not kept.
func (m *Memory) Put(rec domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	size := rec.Size()
	if el, ok := m.items[rec.Key]; ok {
		m.removeElement(el)
	}
	if size > m.maxBytes {
		return
	}
	el := m.ll.PushFront(&memoryEntry{record: rec.Clone(), size: size})
	m.items[rec.Key] = el
	m.size += size
	for m.size > m.maxBytes {
		oldest := m.ll.Back()
		if oldest == nil {
			break
		}
		m.removeElement(oldest)
	}
}

// Delete removes the records stored under keys.
func (m *Memory) Delete(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		if el, ok := m.items[key]; ok {
			m.removeElement(el)
		}
	}
}

// Clear removes every record.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ll.Init()
	m.items = make(map[string]*list.Element)
	m.size = 0
}

// Len returns the number of records held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}

// Size returns the approximate number of bytes held.
func (m *Memory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

func (m *Memory) removeElement(el *list.Element) {
	entry := m.ll.Remove(el).(*memoryEntry)
	delete(m.items, entry.record.Key)
	m.size -= entry.size
}
