package store

import (
	"context"
	"sync"

	"github.com/signalsfoundry/study-session-simulator/model"
)

// MemoryResultStore keeps results for the life of the process.
type MemoryResultStore struct {
	mu     sync.RWMutex
	recs   []model.SessionRecord
	nextID int64
}

// NewMemoryResultStore returns an empty store.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{}
}

// SaveSession appends rec and assigns its row id.
func (m *MemoryResultStore) SaveSession(_ context.Context, rec model.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	m.recs = append(m.recs, rec)
	return nil
}

// Latest returns the most recently saved record.
func (m *MemoryResultStore) Latest(ctx context.Context) (model.SessionRecord, error) {
	recs, _ := m.List(ctx, 1)
	if len(recs) == 0 {
		return model.SessionRecord{}, ErrNoResults
	}
	return recs[0], nil
}

// List returns up to limit records, newest first.
func (m *MemoryResultStore) List(_ context.Context, limit int) ([]model.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.recs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.SessionRecord, 0, n)
	for i := len(m.recs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.recs[i])
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryResultStore) Close() error { return nil }

// Open returns a SQLite store for path, or a memory store when path is empty.
func Open(path string) (ResultStore, error) {
	if path == "" {
		return NewMemoryResultStore(), nil
	}
	return NewSQLiteResultStore(path)
}
