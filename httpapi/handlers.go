package httpapi

import (
	"net/http"
	"time"

	authgate "github.com/channelworks/authgate"
	"github.com/labstack/echo/v4"
)

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type accountView struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Role          string `json:"role"`
	Status        string `json:"status"`
	EmailVerified bool   `json:"emailVerified"`
	CreatedAt     string `json:"createdAt,omitempty"`
	LastLogin     string `json:"lastLogin,omitempty"`
}

type tokenView struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}

type authView struct {
	Account accountView `json:"account"`
	Tokens  *tokenView  `json:"tokens,omitempty"`
}

func viewAccount(a *authgate.Account) accountView {
	v := accountView{
		ID:            a.ID,
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Role:          a.Role,
		Status:        a.Status.String(),
		EmailVerified: a.EmailVerified,
	}
	if !a.CreatedAt.IsZero() {
		v.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !a.LastLogin.IsZero() {
		v.LastLogin = a.LastLogin.UTC().Format(time.RFC3339)
	}
	return v
}

func viewTokens(t authgate.TokenPair) *tokenView {
	if t.AccessToken == "" {
		return nil
	}
	return &tokenView{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func (a *API) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return a.badRequest(c, "malformed request body")
	}
	if req.Email == "" || req.Password == "" {
		return a.badRequest(c, "email and password are required")
	}

	result, err := a.svc.Register(c.Request().Context(), authgate.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		return a.fail(c, err)
	}

	a.setSessionCookies(c, result.SessionID)
	a.setRefreshCookie(c, result.Tokens.RefreshToken)

	return a.ok(c, http.StatusCreated, authView{
		Account: viewAccount(result.Account),
		Tokens:  viewTokens(result.Tokens),
	})
}

func (a *API) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return a.badRequest(c, "malformed request body")
	}
	if req.Email == "" || req.Password == "" {
		return a.badRequest(c, "email and password are required")
	}

	result, err := a.svc.Login(c.Request().Context(), req.Email, req.Password, true)
	if err != nil {
		return a.fail(c, err)
	}

	a.setSessionCookies(c, result.SessionID)
	a.setRefreshCookie(c, result.Tokens.RefreshToken)

	return a.ok(c, http.StatusOK, authView{
		Account: viewAccount(result.Account),
		Tokens:  viewTokens(result.Tokens),
	})
}

// handleRefresh accepts the refresh token from the body or, for browser
// clients, the refresh cookie.
func (a *API) handleRefresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return a.badRequest(c, "malformed request body")
	}

	refreshToken := req.RefreshToken
	if refreshToken == "" && a.cfg.Cookie.RefreshName != "" {
		if cookie, err := c.Cookie(a.cfg.Cookie.RefreshName); err == nil {
			refreshToken = cookie.Value
		}
	}
	if refreshToken == "" {
		return a.fail(c, authgate.ErrRefreshInvalid)
	}

	pair, err := a.svc.Refresh(c.Request().Context(), refreshToken)
	if err != nil {
		return a.fail(c, err)
	}

	a.setRefreshCookie(c, pair.RefreshToken)
	return a.ok(c, http.StatusOK, viewTokens(*pair))
}

func (a *API) handleLogout(c echo.Context) error {
	auth := getAuth(c)
	if auth != nil && auth.SessionID != "" {
		if err := a.svc.Logout(c.Request().Context(), auth.SessionID); err != nil {
			return a.fail(c, err)
		}
	}

	a.clearAuthCookies(c)
	return a.ok(c, http.StatusOK, nil)
}

// handleForgotPassword always reports success so the endpoint cannot be
// used to probe which addresses have accounts.
func (a *API) handleForgotPassword(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return a.badRequest(c, "malformed request body")
	}
	if req.Email == "" {
		return a.badRequest(c, "email is required")
	}

	if err := a.svc.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		a.log.Error("password reset request failed", "error", err)
	}
	return a.ok(c, http.StatusOK, nil)
}

func (a *API) handleResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return a.badRequest(c, "malformed request body")
	}
	if req.Token == "" || req.Password == "" {
		return a.badRequest(c, "token and password are required")
	}

	if err := a.svc.ConfirmPasswordReset(c.Request().Context(), req.Token, req.Password); err != nil {
		return a.fail(c, err)
	}
	return a.ok(c, http.StatusOK, nil)
}

func (a *API) handleVerifyEmail(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return a.badRequest(c, "verification token is required")
	}

	if err := a.svc.VerifyEmail(c.Request().Context(), token); err != nil {
		return a.fail(c, err)
	}
	return a.ok(c, http.StatusOK, nil)
}

// handleResendVerification mirrors forgot-password: unknown and already
// verified emails still answer 200.
func (a *API) handleResendVerification(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return a.badRequest(c, "malformed request body")
	}
	if req.Email == "" {
		return a.badRequest(c, "email is required")
	}

	if err := a.svc.RequestEmailVerification(c.Request().Context(), req.Email); err != nil {
		a.log.Error("verification resend failed", "error", err)
	}
	return a.ok(c, http.StatusOK, nil)
}

func (a *API) handleChangePassword(c echo.Context) error {
	auth := getAuth(c)
	if !auth.Authenticated() {
		return a.fail(c, authgate.ErrNoAuth)
	}

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return a.badRequest(c, "malformed request body")
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return a.badRequest(c, "current and new passwords are required")
	}

	if err := a.svc.ChangePassword(c.Request().Context(), auth.Account.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return a.fail(c, err)
	}

	// every session died with the old credential, this one included
	a.clearAuthCookies(c)
	return a.ok(c, http.StatusOK, nil)
}

func (a *API) handleMe(c echo.Context) error {
	auth := getAuth(c)
	if !auth.Authenticated() {
		return a.fail(c, authgate.ErrNoAuth)
	}
	return a.ok(c, http.StatusOK, viewAccount(auth.Account))
}
