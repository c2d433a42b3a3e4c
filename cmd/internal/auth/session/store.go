package session

import (
	"context"
	"sync"
	"time"
)

// Store persists session records with a TTL.
//
// Contract:
//   - Get returns ErrSessionNotFound when the ID is unknown, destroyed or expired.
//   - Set replaces the record and resets its TTL.
//   - Destroy is idempotent.
type Store interface {
	Get(ctx context.Context, id string) (Record, error)
	Set(ctx context.Context, rec Record, ttl time.Duration) error
	Destroy(ctx context.Context, id string) error
}

// InMemoryStore is a process-local Store for tests and single-node dev.
type InMemoryStore struct {
	mu   sync.RWMutex
	now  func() time.Time
	recs map[string]memoryEntry
}

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

// NewInMemoryStore constructs an empty InMemoryStore. A nil clock uses time.Now.
func NewInMemoryStore(now func() time.Time) *InMemoryStore {
	if now == nil {
		now = time.Now
	}
	return &InMemoryStore{now: now, recs: make(map[string]memoryEntry)}
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	e, ok := s.recs[id]
	s.mu.RUnlock()

	if !ok {
		return Record{}, ErrSessionNotFound
	}
	if !e.expiresAt.After(s.now()) {
		s.mu.Lock()
		if cur, ok := s.recs[id]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(s.recs, id)
		}
		s.mu.Unlock()
		return Record{}, ErrSessionNotFound
	}
	return e.rec.clone(), nil
}

func (s *InMemoryStore) Set(ctx context.Context, rec Record, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if ttl <= 0 {
		return ErrConfig
	}

	s.mu.Lock()
	s.recs[rec.ID] = memoryEntry{rec: rec.clone(), expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Destroy(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.recs, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored records, expired ones included.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}
