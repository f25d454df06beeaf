package authgate

import "errors"

var (
	// ErrNoAuth is returned when a request presents no credential where one
	// is required.
	ErrNoAuth = errors.New("no credentials presented")
	// ErrInvalidCredentials covers bad email/password pairs without
	// revealing which half was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotFound is returned when an account lookup misses.
	ErrAccountNotFound = errors.New("account not found")
	// ErrEmailExists is returned when registration collides with an
	// existing email.
	ErrEmailExists = errors.New("email already registered")
	// ErrAccountLocked is returned while a lockout window is active.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountSuspended is returned for administratively suspended accounts.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAccountClosed is returned for closed (terminal) accounts.
	ErrAccountClosed = errors.New("account closed")
	// ErrEmailNotVerified is returned while an account is pending email
	// verification.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrUnauthorized is the generic gate failure for accounts in an
	// unrecognized state.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTokenInvalid covers structural token failures: bad signature,
	// wrong algorithm, wrong type, malformed claims.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired covers temporal token failures, including the
	// absolute issued-at age ceiling.
	ErrTokenExpired = errors.New("token expired")
	// ErrRefreshInvalid is returned when the refresh protocol is handed
	// anything other than a live refresh token.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrSessionNotFound is returned when a session id has no live record.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCSRFTokenInvalid is a CSRF guard failure, deliberately distinct
	// from authentication failures so clients can refresh the token and
	// retry without re-authenticating.
	ErrCSRFTokenInvalid = errors.New("invalid csrf token")
	// ErrPasswordPolicy is returned when a candidate password fails the
	// minimum requirements.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a password change supplies the
	// current password as the new one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrResetInvalid is returned for unknown, expired, or mismatched
	// password reset challenges.
	ErrResetInvalid = errors.New("password reset challenge invalid")
	// ErrResetAttempts is returned once a reset challenge has burned its
	// attempt budget.
	ErrResetAttempts = errors.New("password reset attempts exceeded")
	// ErrVerificationInvalid is returned for unknown, expired, or
	// mismatched email verification challenges.
	ErrVerificationInvalid = errors.New("email verification challenge invalid")
	// ErrVerificationAttempts is returned once a verification challenge has
	// burned its attempt budget.
	ErrVerificationAttempts = errors.New("email verification attempts exceeded")
	// ErrStoreUnavailable wraps backend failures from the session or
	// challenge stores. It is the only error the HTTP layer reports as an
	// internal service fault.
	ErrStoreUnavailable = errors.New("auth backend unavailable")
	// ErrServiceNotReady is returned when a Service method is invoked on a
	// partially constructed instance.
	ErrServiceNotReady = errors.New("service not initialized")
)
