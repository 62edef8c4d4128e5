package store

import (
	"context"
	"sync"

	"grid_trader/internal/core"
)

// MemoryStore is an in-memory core.IStateStore for dry runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	snap *core.Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveSnapshot(ctx context.Context, snap *core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *snap
	copied.Levels = append([]core.SnapshotLevel(nil), snap.Levels...)
	s.snap = &copied
	return nil
}

func (s *MemoryStore) LoadSnapshot(ctx context.Context) (*core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, nil
	}
	copied := *s.snap
	copied.Levels = append([]core.SnapshotLevel(nil), s.snap.Levels...)
	return &copied, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
