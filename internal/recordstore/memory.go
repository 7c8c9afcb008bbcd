package recordstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	closed bool
	colls  map[Collection]*memCollection
}

type memCollection struct {
	order []string
	rows  map[string]Record
}

// Compile-time check: *Memory satisfies the Store interface.
var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{colls: make(map[Collection]*memCollection)}
}

func (m *Memory) collection(c Collection) *memCollection {
	mc, ok := m.colls[c]
	if !ok {
		mc = &memCollection{rows: make(map[string]Record)}
		m.colls[c] = mc
	}
	return mc
}

// Get returns copies of the matching records in insertion order.
func (m *Memory) Get(_ context.Context, c Collection, f Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, Unavailable("get", errClosed)
	}
	mc, ok := m.colls[c]
	if !ok {
		return nil, nil
	}
	var out []Record
	for _, key := range mc.order {
		r := mc.rows[key]
		if f.Match(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// Upsert replaces the record stored under key, keeping its original position.
func (m *Memory) Upsert(_ context.Context, c Collection, key string, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Unavailable("upsert", errClosed)
	}
	mc := m.collection(c)
	if _, ok := mc.rows[key]; !ok {
		mc.order = append(mc.order, key)
	}
	mc.rows[key] = r.Clone()
	return nil
}

// Append stores r under a fresh key.
func (m *Memory) Append(ctx context.Context, c Collection, r Record) error {
	return m.Upsert(ctx, c, uuid.NewString(), r)
}

// Close makes every later call fail with ErrUnavailable.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
