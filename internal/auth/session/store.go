package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/smallbiznis/parkvoucher/internal/auth/domain"
	"github.com/smallbiznis/parkvoucher/internal/clock"
)

// MemoryStore indexes sessions by a hash of the raw cookie token.
type MemoryStore struct {
	clock clock.Clock

	mu       sync.Mutex
	sessions map[string]domain.Session
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &MemoryStore{
		clock:    c,
		sessions: make(map[string]domain.Session),
	}
}

func (s *MemoryStore) Create(_ context.Context, session domain.Session) error {
	if strings.TrimSpace(session.ID) == "" {
		return domain.ErrInvalidSession
	}
	s.mu.Lock()
	s.sessions[hashToken(session.ID)] = session
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidSession
	}
	key := hashToken(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[key]
	if !ok {
		return nil, domain.ErrInvalidSession
	}
	if !s.clock.Now().Before(session.ExpiresAt) {
		delete(s.sessions, key)
		return nil, domain.ErrSessionExpired
	}
	return &session, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, hashToken(strings.TrimSpace(id)))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SweepExpired(context.Context) (int, error) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
