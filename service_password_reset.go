package authgate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/channelworks/authgate/internal"
	"github.com/channelworks/authgate/password"
)

// RequestPasswordReset creates a single-use reset challenge and mails the
// opaque token. It deliberately reports success for unknown emails so the
// endpoint cannot be used to probe which addresses have accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if s == nil || s.accounts == nil {
		return ErrServiceNotReady
	}
	if !s.cfg.PasswordReset.Enabled || s.resets == nil {
		return nil
	}

	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if account.Status == StatusClosed {
		return nil
	}

	challengeToken, err := s.issueChallenge(ctx, s.resets, account.ID, s.cfg.PasswordReset.ResetTTL)
	if err != nil {
		return err
	}

	s.metricInc(MetricPasswordResetRequest)
	s.emitAudit(ctx, auditEventPasswordResetReq, true, account.ID, "", nil, nil)

	if s.mailer != nil {
		if err := s.mailer.SendPasswordReset(ctx, account.Email, challengeToken); err != nil {
			log.Print("authgate: failed to send password reset mail: ", err)
		}
	}
	return nil
}

// ConfirmPasswordReset consumes a reset challenge, installs the new
// credential, clears the lockout state, and destroys every session for the
// account.
func (s *Service) ConfirmPasswordReset(ctx context.Context, challengeToken, newPass string) error {
	if s == nil || s.accounts == nil {
		return ErrServiceNotReady
	}
	if !s.cfg.PasswordReset.Enabled || s.resets == nil {
		return ErrResetInvalid
	}

	record, err := s.consumeChallenge(ctx, s.resets, challengeToken, s.cfg.PasswordReset.MaxAttempts)
	if err != nil {
		mapped := mapChallengeErr(err, ErrResetInvalid, ErrResetAttempts)
		s.emitAudit(ctx, auditEventPasswordResetDone, false, "", "", mapped, nil)
		return mapped
	}

	newHash, err := s.hasher.Hash(newPass)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			return ErrPasswordPolicy
		}
		return err
	}

	if err := s.accounts.UpdateCredentialHash(ctx, record.AccountID, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// a completed reset proves control of the mailbox, so the lockout
	// counters clear along with it
	if err := s.accounts.RecordSuccess(ctx, record.AccountID, s.now()); err != nil {
		log.Print("authgate: failed to clear lockout after password reset: ", err)
	}

	if err := s.sessions.DeleteAllForAccount(ctx, record.AccountID); err != nil {
		log.Print("authgate: failed to invalidate sessions after password reset: ", err)
	}

	s.metricInc(MetricPasswordResetConfirm)
	s.emitAudit(ctx, auditEventPasswordResetDone, true, record.AccountID, "", nil, nil)
	return nil
}

// issueChallenge mints the id+secret token, stores the hashed secret, and
// returns the opaque token for delivery.
func (s *Service) issueChallenge(ctx context.Context, store challengeStore, accountID string, ttl time.Duration) (string, error) {
	challengeID, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	secret, err := internal.NewChallengeSecret()
	if err != nil {
		return "", err
	}

	secretHash := internal.HashChallengeSecret(secret)
	record := &challengeRecord{
		AccountID:  accountID,
		SecretHash: secretHash,
		ExpiresAt:  s.now().Add(ttl).Unix(),
	}

	if err := store.Save(ctx, challengeID.String(), record, ttl); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return internal.EncodeChallengeToken(challengeID.String(), secret)
}

func (s *Service) consumeChallenge(ctx context.Context, store challengeStore, challengeToken string, maxAttempts int) (*challengeRecord, error) {
	challengeID, secret, err := internal.DecodeChallengeToken(challengeToken)
	if err != nil {
		return nil, errChallengeNotFound
	}

	return store.Consume(ctx, challengeID, internal.HashChallengeSecret(secret), maxAttempts)
}

func mapChallengeErr(err, invalid, exceeded error) error {
	switch {
	case errors.Is(err, errChallengeAttempts):
		return exceeded
	case errors.Is(err, errChallengeNotFound), errors.Is(err, errChallengeMismatch):
		return invalid
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
