package authgate

import (
	"fmt"
	"time"
)

// LockedError carries the lockout deadline so callers can report the
// remaining wait. It unwraps to [ErrAccountLocked].
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Unwrap() error {
	return ErrAccountLocked
}

// gateAccount is the pure account state check run on every authentication
// path. The gate order is fixed: lockout wins over every status, then
// suspended, then pending verification, then closed. An out-of-enum status
// fails with the generic ErrUnauthorized.
func gateAccount(account *Account, now time.Time, requireVerified bool) error {
	if account.Locked(now) {
		return &LockedError{Until: account.LockUntil}
	}

	switch account.Status {
	case StatusSuspended:
		return ErrAccountSuspended
	case StatusPending:
		if requireVerified {
			return ErrEmailNotVerified
		}
		return nil
	case StatusClosed:
		return ErrAccountClosed
	case StatusActive:
		return nil
	default:
		return ErrUnauthorized
	}
}
