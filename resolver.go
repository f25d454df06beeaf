package authgate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/channelworks/authgate/internal"
	"github.com/channelworks/authgate/session"
	"github.com/channelworks/authgate/token"
)

// ResolveInput carries the raw credentials of one request. Either or both
// may be empty.
type ResolveInput struct {
	SessionID   string
	AccessToken string

	// Soft makes an unauthenticated request resolve to a nil-account
	// AuthContext instead of ErrNoAuth, for routes that merely
	// personalize when identity is present.
	Soft bool
}

// resolveOutcome is the explicit result of one pipeline step.
type resolveOutcome struct {
	account   *Account
	method    AuthMethod
	sessionID string
	issuedAt  time.Time
	expiresAt time.Time
}

// Resolve runs the hybrid authentication pipeline: session first, then
// bearer token, then the account gate, then optional session promotion.
// The AuthContext is built fresh per request and must not be cached.
func (s *Service) Resolve(ctx context.Context, input ResolveInput) (*AuthContext, error) {
	if s == nil || s.accounts == nil {
		return nil, ErrServiceNotReady
	}

	now := s.now()
	start := time.Now()
	defer func() {
		s.metrics.Observe(MetricResolveLatency, time.Since(start))
	}()

	outcome, err := s.trySession(ctx, input.SessionID, now)
	if err != nil {
		s.metricInc(MetricResolveRejected)
		return nil, err
	}

	if outcome == nil {
		outcome, err = s.tryToken(ctx, input.AccessToken, now)
		if err != nil {
			s.metricInc(MetricResolveRejected)
			return nil, err
		}
	}

	if outcome == nil {
		if input.Soft {
			return &AuthContext{Method: MethodNone}, nil
		}
		s.metricInc(MetricResolveRejected)
		return nil, ErrNoAuth
	}

	if err := gateAccount(outcome.account, now, s.cfg.EmailVerification.RequireForLogin); err != nil {
		s.metricInc(MetricResolveRejected)
		return nil, err
	}

	s.promote(ctx, outcome, now)
	s.touch(outcome, now)

	switch outcome.method {
	case MethodSession:
		s.metricInc(MetricResolveSession)
	case MethodToken:
		s.metricInc(MetricResolveToken)
	}

	return &AuthContext{
		Account:   outcome.account,
		Method:    outcome.method,
		SessionID: outcome.sessionID,
		IssuedAt:  outcome.issuedAt,
		ExpiresAt: outcome.expiresAt,
	}, nil
}

// trySession resolves the session path. A missing or expired record is not
// an error; it just means the token path gets its chance. A dangling
// session, one whose account no longer exists, is destroyed on sight.
func (s *Service) trySession(ctx context.Context, sessionID string, now time.Time) (*resolveOutcome, error) {
	if sessionID == "" || s.sessions == nil {
		return nil, nil
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	account, err := s.accounts.GetByID(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			if delErr := s.sessions.Delete(ctx, sessionID); delErr != nil {
				log.Print("authgate: failed to destroy dangling session: ", delErr)
			}
			s.metricInc(MetricSessionDestroyed)
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &resolveOutcome{
		account:   account,
		method:    MethodSession,
		sessionID: sessionID,
		issuedAt:  time.Unix(sess.CreatedAt, 0),
		expiresAt: time.Unix(sess.ExpiresAt, 0),
	}, nil
}

// tryToken resolves the bearer path. Unlike the session path, a presented
// but bad token is a hard failure; it never falls through to soft mode.
func (s *Service) tryToken(ctx context.Context, accessToken string, now time.Time) (*resolveOutcome, error) {
	if accessToken == "" {
		return nil, nil
	}

	claims, err := s.tokens.Verify(accessToken, token.TypeAccess, now)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &resolveOutcome{
		account:   account,
		method:    MethodToken,
		sessionID: claims.SessionID,
		issuedAt:  claims.IssuedAt.Time,
		expiresAt: claims.ExpiresAt.Time,
	}, nil
}

// promote opportunistically creates a session for a token-authenticated
// request that has none, so subsequent requests ride the cheaper session
// path. Failure is logged and ignored; promotion is an optimization.
func (s *Service) promote(ctx context.Context, outcome *resolveOutcome, now time.Time) {
	if !s.cfg.Resolver.PromoteTokenSessions || s.sessions == nil {
		return
	}
	if outcome.method != MethodToken || outcome.sessionID != "" {
		return
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		log.Print("authgate: failed to mint promoted session id: ", err)
		return
	}

	sess := &session.Session{
		SessionID:  sid.String(),
		AccountID:  outcome.account.ID,
		Email:      outcome.account.Email,
		Role:       outcome.account.Role,
		CreatedAt:  now.Unix(),
		LastAccess: now.Unix(),
		ExpiresAt:  now.Add(s.cfg.Session.TTL).Unix(),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		log.Print("authgate: failed to promote token session: ", err)
		return
	}

	outcome.sessionID = sess.SessionID
	s.metricInc(MetricSessionPromoted)
	s.emitAudit(ctx, auditEventSessionPromoted, true, outcome.account.ID, sess.SessionID, nil, nil)
}

// touch stamps LastActivity asynchronously. Both writes are best effort;
// a failed touch is logged and never surfaces to the request.
func (s *Service) touch(outcome *resolveOutcome, now time.Time) {
	if !s.cfg.Resolver.TouchActivity {
		return
	}

	accountID := outcome.account.ID
	sessionID := ""
	if outcome.method == MethodSession {
		sessionID = outcome.sessionID
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.accounts.TouchActivity(ctx, accountID, now); err != nil {
			log.Print("authgate: failed to touch account activity: ", err)
		}
		if sessionID != "" {
			if err := s.sessions.Touch(ctx, sessionID, now); err != nil && !errors.Is(err, session.ErrNotFound) {
				log.Print("authgate: failed to touch session: ", err)
			}
		}
	}()
}
