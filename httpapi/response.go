package httpapi

import (
	"errors"
	"net/http"
	"time"

	authgate "github.com/channelworks/authgate"
	"github.com/labstack/echo/v4"
)

// Stable error codes. Clients branch on these, never on messages, so they
// must not change between releases.
const (
	CodeNoAuth               = "NO_AUTH"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeTokenExpired         = "TOKEN_EXPIRED"
	CodeInvalidRefreshToken  = "INVALID_REFRESH_TOKEN"
	CodeAccountLocked        = "ACCOUNT_LOCKED"
	CodeAccountSuspended     = "ACCOUNT_SUSPENDED"
	CodeAccountClosed        = "ACCOUNT_CLOSED"
	CodeEmailNotVerified     = "EMAIL_NOT_VERIFIED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeInvalidCSRFToken     = "INVALID_CSRF_TOKEN"
	CodeEmailExists          = "EMAIL_EXISTS"
	CodeWeakPassword         = "WEAK_PASSWORD"
	CodePasswordReuse        = "PASSWORD_REUSE"
	CodeInvalidResetToken    = "INVALID_RESET_TOKEN"
	CodeResetAttempts        = "RESET_ATTEMPTS_EXCEEDED"
	CodeInvalidVerification  = "INVALID_VERIFICATION_TOKEN"
	CodeVerificationAttempts = "VERIFICATION_ATTEMPTS_EXCEEDED"
	CodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	CodeBadRequest           = "BAD_REQUEST"
	CodeServiceError         = "AUTH_SERVICE_ERROR"
)

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type errorEnvelope struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	Code          string `json:"code"`
	RetryAfterSec int64  `json:"retryAfterSeconds,omitempty"`
}

func (a *API) ok(c echo.Context, status int, data any) error {
	return c.JSON(status, successEnvelope{Success: true, Data: data})
}

// fail maps a service error onto its HTTP status and stable code. Locked
// accounts additionally carry the remaining wait and a Retry-After header.
func (a *API) fail(c echo.Context, err error) error {
	status, code := classify(err)

	envelope := errorEnvelope{
		Success: false,
		Message: publicMessage(code, err),
		Code:    code,
	}

	if code == CodeAccountLocked {
		if remaining := authgate.LockRemaining(err, time.Now()); remaining > 0 {
			seconds := int64(remaining / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			envelope.RetryAfterSec = seconds
			c.Response().Header().Set(echo.HeaderRetryAfter, time.Now().Add(remaining).UTC().Format(http.TimeFormat))
		}
	}

	if status >= http.StatusInternalServerError {
		a.log.Error("auth request failed", "path", c.Path(), "error", err)
	}

	return c.JSON(status, envelope)
}

func (a *API) badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorEnvelope{
		Success: false,
		Message: message,
		Code:    CodeBadRequest,
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, authgate.ErrNoAuth), errors.Is(err, authgate.ErrSessionNotFound):
		return http.StatusUnauthorized, CodeNoAuth
	case errors.Is(err, authgate.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeInvalidCredentials
	case errors.Is(err, authgate.ErrTokenExpired):
		return http.StatusUnauthorized, CodeTokenExpired
	case errors.Is(err, authgate.ErrTokenInvalid):
		return http.StatusUnauthorized, CodeInvalidToken
	case errors.Is(err, authgate.ErrRefreshInvalid):
		return http.StatusUnauthorized, CodeInvalidRefreshToken
	case errors.Is(err, authgate.ErrAccountLocked):
		return http.StatusLocked, CodeAccountLocked
	case errors.Is(err, authgate.ErrAccountSuspended):
		return http.StatusForbidden, CodeAccountSuspended
	case errors.Is(err, authgate.ErrAccountClosed):
		return http.StatusForbidden, CodeAccountClosed
	case errors.Is(err, authgate.ErrEmailNotVerified):
		return http.StatusForbidden, CodeEmailNotVerified
	case errors.Is(err, authgate.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, authgate.ErrCSRFTokenInvalid):
		return http.StatusForbidden, CodeInvalidCSRFToken
	case errors.Is(err, authgate.ErrEmailExists):
		return http.StatusConflict, CodeEmailExists
	case errors.Is(err, authgate.ErrPasswordPolicy):
		return http.StatusBadRequest, CodeWeakPassword
	case errors.Is(err, authgate.ErrPasswordReuse):
		return http.StatusBadRequest, CodePasswordReuse
	case errors.Is(err, authgate.ErrResetInvalid):
		return http.StatusBadRequest, CodeInvalidResetToken
	case errors.Is(err, authgate.ErrResetAttempts):
		return http.StatusTooManyRequests, CodeResetAttempts
	case errors.Is(err, authgate.ErrVerificationInvalid):
		return http.StatusBadRequest, CodeInvalidVerification
	case errors.Is(err, authgate.ErrVerificationAttempts):
		return http.StatusTooManyRequests, CodeVerificationAttempts
	case errors.Is(err, authgate.ErrAccountNotFound):
		return http.StatusNotFound, CodeAccountNotFound
	default:
		return http.StatusInternalServerError, CodeServiceError
	}
}

// publicMessage keeps internal detail out of 5xx bodies; everything else
// surfaces the sentinel's own text.
func publicMessage(code string, err error) string {
	if code == CodeServiceError {
		return "authentication service unavailable"
	}
	return err.Error()
}
