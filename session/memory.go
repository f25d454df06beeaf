package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store. Expired records are
// reaped lazily on access. Suitable for tests and single-node deployments;
// the resolver cannot tell it apart from the Redis store.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sliding  bool
	sessions map[string]*memorySession
}

type memorySession struct {
	sess      *Session
	expiresAt time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory session store with the given TTL.
func NewMemoryStore(ttl time.Duration, sliding bool) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sliding:  sliding,
		sessions: make(map[string]*memorySession),
	}
}

func (s *MemoryStore) Save(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.SessionID] = &memorySession{
		sess:      sess.clone(),
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(sessionID, time.Now())
	if !ok {
		return nil, ErrNotFound
	}

	if s.sliding {
		entry.expiresAt = time.Now().Add(s.ttl)
	}

	return entry.sess.clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Touch(ctx context.Context, sessionID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(sessionID, now)
	if !ok {
		return ErrNotFound
	}

	entry.sess.LastAccess = now.Unix()
	return nil
}

func (s *MemoryStore) SetCSRFToken(ctx context.Context, sessionID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(sessionID, time.Now())
	if !ok {
		return ErrNotFound
	}

	entry.sess.CSRFToken = token
	return nil
}

func (s *MemoryStore) DeleteAllForAccount(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sid, entry := range s.sessions {
		if entry.sess.AccountID == accountID {
			delete(s.sessions, sid)
		}
	}
	return nil
}

// live returns the entry when both the store TTL and the record's own
// expiry are still in the future, reaping it otherwise. Callers hold mu.
func (s *MemoryStore) live(sessionID string, now time.Time) (*memorySession, bool) {
	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if now.After(entry.expiresAt) || entry.sess.Expired(now.Unix()) {
		delete(s.sessions, sessionID)
		return nil, false
	}
	return entry, true
}
