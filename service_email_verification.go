package authgate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// RequestEmailVerification re-issues a verification challenge for a
// pending account. Like the reset flow it reports success for unknown
// emails.
func (s *Service) RequestEmailVerification(ctx context.Context, email string) error {
	if s == nil || s.accounts == nil {
		return ErrServiceNotReady
	}
	if !s.cfg.EmailVerification.Enabled || s.verifications == nil {
		return nil
	}

	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if account.EmailVerified || account.Status != StatusPending {
		return nil
	}

	return s.sendEmailVerification(ctx, account, s.now())
}

// VerifyEmail consumes a verification challenge and activates the pending
// account.
func (s *Service) VerifyEmail(ctx context.Context, challengeToken string) error {
	if s == nil || s.accounts == nil {
		return ErrServiceNotReady
	}
	if !s.cfg.EmailVerification.Enabled || s.verifications == nil {
		return ErrVerificationInvalid
	}

	record, err := s.consumeChallenge(ctx, s.verifications, challengeToken, s.cfg.EmailVerification.MaxAttempts)
	if err != nil {
		mapped := mapChallengeErr(err, ErrVerificationInvalid, ErrVerificationAttempts)
		s.emitAudit(ctx, auditEventEmailVerifyDone, false, "", "", mapped, nil)
		return mapped
	}

	account, err := s.accounts.GetByID(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrVerificationInvalid
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := s.accounts.MarkEmailVerified(ctx, account.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if account.Status == StatusPending {
		if err := s.accounts.UpdateStatus(ctx, account.ID, StatusActive); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	s.metricInc(MetricEmailVerified)
	s.emitAudit(ctx, auditEventEmailVerifyDone, true, account.ID, "", nil, nil)
	return nil
}

func (s *Service) sendEmailVerification(ctx context.Context, account *Account, now time.Time) error {
	challengeToken, err := s.issueChallenge(ctx, s.verifications, account.ID, s.cfg.EmailVerification.VerificationTTL)
	if err != nil {
		return err
	}

	s.emitAudit(ctx, auditEventEmailVerifyReq, true, account.ID, "", nil, nil)

	if s.mailer != nil {
		if err := s.mailer.SendVerification(ctx, account.Email, challengeToken); err != nil {
			log.Print("authgate: failed to send verification mail: ", err)
		}
	}
	return nil
}
