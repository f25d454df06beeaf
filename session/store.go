package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session id has no live record. An expired
// record reports the same way; callers never see dead sessions.
var ErrNotFound = errors.New("session not found")

// ErrUnavailable wraps backend faults, as opposed to missing records.
var ErrUnavailable = errors.New("session store unavailable")

// Store is the capability surface the resolver and service depend on.
// Delete is idempotent. No method spans more than one logical record;
// there are no cross-key transactions.
type Store interface {
	// Save persists the record under its SessionID with the store's TTL.
	Save(ctx context.Context, sess *Session) error

	// Get returns the live record or ErrNotFound. With sliding
	// expiration enabled the backend TTL is renewed on read.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Delete removes the record. Deleting a missing session is a no-op.
	Delete(ctx context.Context, sessionID string) error

	// Touch stamps LastAccess without changing anything else.
	Touch(ctx context.Context, sessionID string, now time.Time) error

	// SetCSRFToken writes the CSRF token into the record.
	SetCSRFToken(ctx context.Context, sessionID, token string) error

	// DeleteAllForAccount removes every session belonging to the account.
	DeleteAllForAccount(ctx context.Context, accountID string) error
}
