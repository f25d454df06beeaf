// Package memstore provides a mutex-guarded in-memory AccountStore.
// It backs tests and single-node deployments; everything is lost on
// restart, so production storefronts plug in their own database-backed
// implementation instead.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	authgate "github.com/channelworks/authgate"
)

// Store keeps accounts in two maps, by id and by normalized email. All
// methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	byID    map[string]*authgate.Account
	byEmail map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:    make(map[string]*authgate.Account),
		byEmail: make(map[string]string),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneAccount(a *authgate.Account) *authgate.Account {
	cp := *a
	return &cp
}

// GetByEmail looks an account up by its normalized email.
func (s *Store) GetByEmail(_ context.Context, email string) (*authgate.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, authgate.ErrAccountNotFound
	}
	return cloneAccount(s.byID[id]), nil
}

// GetByID looks an account up by id.
func (s *Store) GetByID(_ context.Context, id string) (*authgate.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return nil, authgate.ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

// Create inserts a new account. The email uniqueness check and the insert
// happen under one lock, so concurrent registrations for the same address
// cannot both succeed.
func (s *Store) Create(_ context.Context, account *authgate.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(account.Email)
	if _, exists := s.byEmail[key]; exists {
		return authgate.ErrEmailExists
	}

	s.byID[account.ID] = cloneAccount(account)
	s.byEmail[key] = account.ID
	return nil
}

// UpdateCredentialHash replaces the stored credential hash.
func (s *Store) UpdateCredentialHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authgate.ErrAccountNotFound
	}
	account.CredentialHash = hash
	return nil
}

// UpdateStatus moves the account to the given lifecycle state.
func (s *Store) UpdateStatus(_ context.Context, id string, status authgate.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authgate.ErrAccountNotFound
	}
	account.Status = status
	return nil
}

// MarkEmailVerified flags the account's email as verified.
func (s *Store) MarkEmailVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authgate.ErrAccountNotFound
	}
	account.EmailVerified = true
	return nil
}

// RecordFailure increments the failure counter and, when the count reaches
// threshold, arms the lock window in the same step.
func (s *Store) RecordFailure(_ context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return false, authgate.ErrAccountNotFound
	}

	account.FailedAttempts++
	if threshold > 0 && account.FailedAttempts >= threshold {
		account.LockUntil = now.Add(lockFor)
		account.FailedAttempts = 0
		return true, nil
	}
	return false, nil
}

// RecordSuccess clears the failure counter and lock window and stamps
// LastLogin.
func (s *Store) RecordSuccess(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authgate.ErrAccountNotFound
	}
	account.FailedAttempts = 0
	account.LockUntil = time.Time{}
	account.LastLogin = now
	return nil
}

// TouchActivity stamps LastActivity.
func (s *Store) TouchActivity(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authgate.ErrAccountNotFound
	}
	account.LastActivity = now
	return nil
}
