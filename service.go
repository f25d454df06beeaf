package authgate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/channelworks/authgate/internal"
	internalaudit "github.com/channelworks/authgate/internal/audit"
	"github.com/channelworks/authgate/password"
	"github.com/channelworks/authgate/session"
	"github.com/channelworks/authgate/token"
	"github.com/google/uuid"
)

// Service is the credential and session lifecycle engine. Construct it
// with [New]; the zero value is not usable.
type Service struct {
	cfg           Config
	accounts      AccountStore
	sessions      session.Store
	hasher        *password.Hasher
	tokens        *token.Manager
	resets        challengeStore
	verifications challengeStore
	mailer        Mailer
	capability    Capability
	audit         *internalaudit.Dispatcher
	metrics       *Metrics
	clock         func() time.Time
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

func (s *Service) metricInc(id MetricID) {
	s.metrics.Inc(id)
}

// Metrics returns the live metrics instance, never nil.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// Config returns a copy of the active configuration. The HTTP layer reads
// cookie and CSRF settings from it.
func (s *Service) Config() Config {
	return cloneConfig(s.cfg)
}

// Capability exposes the external authorization checker, which may be nil.
func (s *Service) Capability() Capability {
	return s.capability
}

// AuditDropped reports how many audit events the dispatcher shed under
// backpressure.
func (s *Service) AuditDropped() uint64 {
	return s.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters and the
// resolve-latency histogram.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// Close flushes and stops the audit dispatcher. Safe to call once during
// shutdown.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.audit.Close()
}

// Login authenticates an email/password pair, enforcing the account gate
// before the credential is even checked so a locked account answers 423 no
// matter what password was supplied. establishSession controls whether a
// server-side session record is created alongside the token pair.
func (s *Service) Login(ctx context.Context, email, pass string, establishSession bool) (*LoginResult, error) {
	if s == nil || s.accounts == nil {
		return nil, ErrServiceNotReady
	}

	now := s.now()

	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.metricInc(MetricLoginFailure)
			s.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := gateAccount(account, now, s.cfg.EmailVerification.RequireForLogin); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			s.metricInc(MetricLoginLocked)
		} else {
			s.metricInc(MetricLoginFailure)
		}
		s.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", err, nil)
		return nil, err
	}

	ok, err := s.hasher.Verify(pass, account.CredentialHash)
	if err != nil {
		// corrupt stored hash; do not burn an attempt on it
		s.metricInc(MetricLoginFailure)
		s.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		locked, recErr := s.accounts.RecordFailure(ctx, account.ID, s.cfg.Lockout.MaxAttempts, s.cfg.Lockout.LockDuration, now)
		if recErr != nil {
			log.Print("authgate: failed to record login failure: ", recErr)
		}

		failErr := error(ErrInvalidCredentials)
		if locked {
			failErr = &LockedError{Until: now.Add(s.cfg.Lockout.LockDuration)}
			s.metricInc(MetricLoginLocked)
		} else {
			s.metricInc(MetricLoginFailure)
		}
		s.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", failErr, nil)
		return nil, failErr
	}

	if err := s.accounts.RecordSuccess(ctx, account.ID, now); err != nil {
		log.Print("authgate: failed to record login success: ", err)
	}
	account.FailedAttempts = 0
	account.LockUntil = time.Time{}
	account.LastLogin = now

	s.maybeUpgradeHash(ctx, account, pass)

	var sessionID string
	if establishSession {
		sid, err := s.createSession(ctx, account, now)
		if err != nil {
			return nil, err
		}
		sessionID = sid
	}

	pair, err := s.tokens.IssuePair(account.ID, account.Email, account.Role, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	s.metricInc(MetricLoginSuccess)
	s.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, sessionID, nil, nil)

	return &LoginResult{
		Account: account,
		Tokens: TokenPair{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresAt:    pair.ExpiresAt,
		},
		SessionID: sessionID,
	}, nil
}

// Logout destroys the session. Unknown session ids are a no-op; logout
// never fails for being already logged out.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if s == nil || s.sessions == nil {
		return ErrServiceNotReady
	}
	if sessionID == "" {
		return nil
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metricInc(MetricSessionDestroyed)
	s.emitAudit(ctx, auditEventLogoutSession, true, "", sessionID, nil, nil)
	return nil
}

// ChangePassword verifies the current password, rejects reuse, rehashes,
// and invalidates every session for the account so stolen cookies die with
// the old credential.
func (s *Service) ChangePassword(ctx context.Context, accountID, currentPass, newPass string) error {
	if s == nil || s.accounts == nil {
		return ErrServiceNotReady
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := s.hasher.Verify(currentPass, account.CredentialHash)
	if err != nil || !ok {
		s.emitAudit(ctx, auditEventPasswordChange, false, accountID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if newPass == currentPass {
		s.emitAudit(ctx, auditEventPasswordChange, false, accountID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := s.hasher.Hash(newPass)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			s.emitAudit(ctx, auditEventPasswordChange, false, accountID, "", ErrPasswordPolicy, nil)
			return ErrPasswordPolicy
		}
		return err
	}

	if err := s.accounts.UpdateCredentialHash(ctx, accountID, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := s.sessions.DeleteAllForAccount(ctx, accountID); err != nil {
		log.Print("authgate: failed to invalidate sessions after password change: ", err)
	}

	s.metricInc(MetricPasswordChange)
	s.emitAudit(ctx, auditEventPasswordChange, true, accountID, "", nil, nil)
	return nil
}

// maybeUpgradeHash transparently rehashes a legacy or under-parameterized
// credential after a successful login. Persistence is best effort; the
// login outcome never changes because of it.
func (s *Service) maybeUpgradeHash(ctx context.Context, account *Account, pass string) {
	if !s.cfg.Password.UpgradeOnLogin || !s.hasher.NeedsUpgrade(account.CredentialHash) {
		return
	}

	newHash, ok, err := s.hasher.Migrate(pass, account.CredentialHash)
	if err != nil || !ok {
		return
	}

	if err := s.accounts.UpdateCredentialHash(ctx, account.ID, newHash); err != nil {
		log.Print("authgate: failed to persist migrated credential hash: ", err)
		return
	}

	account.CredentialHash = newHash
	s.metricInc(MetricHashMigration)
	s.emitAudit(ctx, auditEventHashMigrated, true, account.ID, "", nil, nil)
}

// createSession mints a session id and persists the record. The CSRF token
// stays empty until the guard first needs one.
func (s *Service) createSession(ctx context.Context, account *Account, now time.Time) (string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}

	sess := &session.Session{
		SessionID:  sid.String(),
		AccountID:  account.ID,
		Email:      account.Email,
		Role:       account.Role,
		CreatedAt:  now.Unix(),
		LastAccess: now.Unix(),
		ExpiresAt:  now.Add(s.cfg.Session.TTL).Unix(),
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metricInc(MetricSessionCreated)
	return sess.SessionID, nil
}

func newAccountID() string {
	return uuid.NewString()
}
