package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Veraticus/shopsort/internal/common"
)

// MemoryStore is a non-durable SessionStore for single-process deployments
// and tests. Expired sessions are swept lazily on writes.
type MemoryStore struct {
	sessions map[string]*Session
	ttl      time.Duration
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store with the default TTL.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithTTL(SessionTTL)
}

// NewMemoryStoreWithTTL creates a store expiring idle sessions after ttl.
func NewMemoryStoreWithTTL(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Get returns a copy of the session, or common.ErrNotFound when the ID is
// unknown or the session has expired.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok || time.Since(session.UpdatedAt) > s.ttl {
		return nil, fmt.Errorf("%w: session %s", common.ErrNotFound, id)
	}
	copied := *session
	return &copied, nil
}

// Save stores the session, refreshing its expiry.
func (s *MemoryStore) Save(_ context.Context, session *Session) error {
	if session.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	now := time.Now()
	copied := *session
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = now
	}
	copied.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	s.sessions[copied.ID] = &copied
	return nil
}

// Delete removes a session. Deleting an unknown ID is not an error.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for id, session := range s.sessions {
		if now.Sub(session.UpdatedAt) > s.ttl {
			delete(s.sessions, id)
		}
	}
}
