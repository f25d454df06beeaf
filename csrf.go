package authgate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/channelworks/authgate/internal"
	"github.com/channelworks/authgate/session"
)

// EnsureCSRFToken returns the session's CSRF token, generating and storing
// one on first use. The token lives as long as the session; callers mirror
// it into a JS-readable cookie for the double-submit check.
func (s *Service) EnsureCSRFToken(ctx context.Context, sessionID string) (string, error) {
	if s == nil || s.sessions == nil {
		return "", ErrServiceNotReady
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if sess.CSRFToken != "" {
		return sess.CSRFToken, nil
	}

	csrfToken, err := internal.NewCSRFToken()
	if err != nil {
		return "", err
	}

	if err := s.sessions.SetCSRFToken(ctx, sessionID, csrfToken); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return csrfToken, nil
}

// VerifyCSRF enforces the double-submit check for one mutating request.
// Only session-mode authentication is subject to it: bearer tokens cannot
// be attached by a browser cross-site, so token requests pass untouched.
func (s *Service) VerifyCSRF(ctx context.Context, auth *AuthContext, provided string) error {
	if s == nil {
		return ErrServiceNotReady
	}
	if !s.cfg.CSRF.Enabled {
		return nil
	}
	if auth == nil || auth.Method != MethodSession {
		return nil
	}

	sess, err := s.sessions.Get(ctx, auth.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if sess.CSRFToken == "" || provided == "" ||
		subtle.ConstantTimeCompare([]byte(sess.CSRFToken), []byte(provided)) != 1 {
		s.metricInc(MetricCSRFRejected)
		s.emitAudit(ctx, auditEventCSRFRejected, false, auth.Account.ID, auth.SessionID, ErrCSRFTokenInvalid, nil)
		return ErrCSRFTokenInvalid
	}

	return nil
}
