package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in a map. It is lost on exit.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Get(_ context.Context, key Key) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key.String()]
	if !ok {
		return nil, nil
	}
	e.Verdict = cloneVerdict(e.Verdict)
	return &e, nil
}

func (m *MemoryStore) Upsert(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := e.Key.String()
	e.HitCount = m.entries[k].HitCount + 1
	e.Verdict = cloneVerdict(e.Verdict)
	m.entries[k] = e
	return nil
}

func (m *MemoryStore) Touch(_ context.Context, key Key, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key.String()
	if e, ok := m.entries[k]; ok {
		e.LastAccessedAt = at
		m.entries[k] = e
	}
	return nil
}

func (m *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.entries {
		if e.AnalyzedAt.Before(cutoff) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	for _, e := range m.entries {
		s.Entries++
		if s.Oldest.IsZero() || e.AnalyzedAt.Before(s.Oldest) {
			s.Oldest = e.AnalyzedAt
		}
		if e.AnalyzedAt.After(s.Newest) {
			s.Newest = e.AnalyzedAt
		}
	}
	return s, nil
}

func (m *MemoryStore) Close() error { return nil }
