package devserver

import (
	"context"
	"sync"
	"time"

	"koursa/client/internal/security"
)

// GrantStore holds confirm-password validation tokens by hash until they are used or expire.
type GrantStore interface {
	// Put records token for userID until expiresAt. Only the hash is kept.
	Put(ctx context.Context, token string, userID int64, expiresAt time.Time)
	// Take consumes token when it belongs to userID and has not expired. A token is usable once.
	Take(ctx context.Context, token string, userID int64) bool
}

type grant struct {
	userID    int64
	expiresAt time.Time
}

// MemoryGrantStore is an in-memory GrantStore.
type MemoryGrantStore struct {
	mu   sync.Mutex
	m    map[string]grant
	nowF func() time.Time
}

// NewMemoryGrantStore returns an empty in-memory grant store.
func NewMemoryGrantStore() *MemoryGrantStore {
	return &MemoryGrantStore{
		m:    make(map[string]grant),
		nowF: time.Now().UTC,
	}
}

// Put records token for userID until expiresAt.
func (s *MemoryGrantStore) Put(ctx context.Context, token string, userID int64, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[security.HashToken(token)] = grant{userID: userID, expiresAt: expiresAt}
}

// Take consumes token. Expired tokens are dropped on lookup.
func (s *MemoryGrantStore) Take(ctx context.Context, token string, userID int64) bool {
	key := security.HashToken(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.m[key]
	if !ok {
		return false
	}
	if !g.expiresAt.After(s.nowF()) {
		delete(s.m, key)
		return false
	}
	if g.userID != userID {
		return false
	}
	delete(s.m, key)
	return true
}

// Len returns the number of tokens held, expired ones included.
func (s *MemoryGrantStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
