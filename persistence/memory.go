package persistence

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in-memory implementation of Store.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	snaps  map[string]Snapshot
	mu     sync.RWMutex
	closed bool
}

// NewMemoryStore creates a new in-memory snapshot store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

// Close closes the store
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Save stores a copy of snap.
func (s *MemoryStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	cp := summary(*snap)
	cp.Payload = append(json.RawMessage(nil), snap.Payload...)
	s.snaps[snap.ID] = cp
	return nil
}

// Load returns a copy of the snapshot with the given id.
func (s *MemoryStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	snap, ok := s.snaps[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := summary(snap)
	cp.Payload = append(json.RawMessage(nil), snap.Payload...)
	return &cp, nil
}

// Delete removes a snapshot. Deleting a missing id is not an error.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.snaps, id)
	return nil
}

// List returns all snapshots without payloads, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]Snapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, summary(snap))
	}
	sortNewestFirst(out)
	return out, nil
}
