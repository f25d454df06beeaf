// Package session persists server-side session records. Records are stored
// as a compact versioned binary blob; Redis is the production backend, with
// an in-memory store for tests and single-node deployments.
package session

// Session is the server-side session record. Timestamps are unix seconds.
// SessionID is carried in the storage key, not in the encoded blob.
type Session struct {
	SessionID  string
	AccountID  string
	Email      string
	Role       string
	CSRFToken  string
	CreatedAt  int64
	LastAccess int64
	ExpiresAt  int64
}

// Expired reports whether the record's absolute expiry has passed.
func (s *Session) Expired(nowUnix int64) bool {
	return nowUnix >= s.ExpiresAt
}

func (s *Session) clone() *Session {
	out := *s
	return &out
}
