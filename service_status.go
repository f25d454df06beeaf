package authgate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// SuspendAccount moves an account to suspended and invalidates its
// sessions. Closed accounts cannot be suspended.
func (s *Service) SuspendAccount(ctx context.Context, accountID string) error {
	return s.transition(ctx, accountID, StatusSuspended, func(current AccountStatus) error {
		if current == StatusClosed {
			return ErrAccountClosed
		}
		return nil
	})
}

// ReinstateAccount moves a suspended account back to active.
func (s *Service) ReinstateAccount(ctx context.Context, accountID string) error {
	return s.transition(ctx, accountID, StatusActive, func(current AccountStatus) error {
		if current == StatusClosed {
			return ErrAccountClosed
		}
		return nil
	})
}

// CloseAccount moves an account to the terminal closed state and
// invalidates its sessions. There is no way back.
func (s *Service) CloseAccount(ctx context.Context, accountID string) error {
	return s.transition(ctx, accountID, StatusClosed, nil)
}

func (s *Service) transition(ctx context.Context, accountID string, next AccountStatus, check func(AccountStatus) error) error {
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

	if check != nil {
		if err := check(account.Status); err != nil {
			return err
		}
	}

	if err := s.accounts.UpdateStatus(ctx, accountID, next); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// every administrative transition cuts live sessions, including
	// reinstatement, so stale pre-suspension cookies never resurface
	if err := s.sessions.DeleteAllForAccount(ctx, accountID); err != nil {
		log.Print("authgate: failed to invalidate sessions on status change: ", err)
	}

	s.emitAudit(ctx, auditEventAccountStatusChange, true, accountID, "", nil, func() map[string]string {
		return map[string]string{
			"from": account.Status.String(),
			"to":   next.String(),
		}
	})
	return nil
}

// UnlockAccount clears the lockout window and failure counter without
// touching the account status.
func (s *Service) UnlockAccount(ctx context.Context, accountID string) error {
	if s == nil || s.accounts == nil {
		return ErrServiceNotReady
	}

	if err := s.accounts.RecordSuccess(ctx, accountID, s.now()); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.emitAudit(ctx, auditEventAccountStatusChange, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"action": "unlock"}
	})
	return nil
}

// LockRemaining extracts the remaining lockout wait from a
// [ErrAccountLocked] error, or zero when err carries no deadline. The HTTP
// layer reports it on 423 responses.
func LockRemaining(err error, now time.Time) time.Duration {
	var locked *LockedError
	if errors.As(err, &locked) {
		if d := locked.Until.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
