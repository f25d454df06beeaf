// Package httpapi exposes the auth service over REST. It owns cookies,
// JSON envelopes, and the stable error code taxonomy; all semantics live
// in the service itself.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	authgate "github.com/channelworks/authgate"
	"github.com/labstack/echo/v4"
)

// API binds a service instance to an echo router.
type API struct {
	svc *authgate.Service
	cfg authgate.Config
	log *slog.Logger
}

// New builds an API around svc. A nil logger falls back to slog.Default.
func New(svc *authgate.Service, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		svc: svc,
		cfg: svc.Config(),
		log: logger,
	}
}

// Register mounts the auth routes under /auth.
func (a *API) Register(e *echo.Echo) {
	g := e.Group("/auth", a.requestMetadata())

	g.POST("/register", a.handleRegister)
	g.POST("/login", a.handleLogin)
	g.POST("/refresh-token", a.handleRefresh)
	g.POST("/forgot-password", a.handleForgotPassword)
	g.POST("/reset-password", a.handleResetPassword)
	g.GET("/verify-email/:token", a.handleVerifyEmail)
	g.POST("/resend-verification", a.handleResendVerification)

	authed := g.Group("", a.Authenticate(false), a.RequireCSRF())
	authed.POST("/logout", a.handleLogout)
	authed.POST("/change-password", a.handleChangePassword)
	authed.GET("/me", a.handleMe)
}

// requestMetadata stamps the caller's IP and user agent into the request
// context so audit events carry them.
func (a *API) requestMetadata() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := authgate.WithClientIP(req.Context(), c.RealIP())
			ctx = authgate.WithUserAgent(ctx, req.UserAgent())
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// Authenticate resolves the request's session cookie and bearer token into
// an AuthContext. With soft=true an anonymous request passes through with
// no identity attached instead of failing.
func (a *API) Authenticate(soft bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			input := authgate.ResolveInput{
				SessionID:   a.sessionCookie(c),
				AccessToken: bearerToken(c.Request()),
				Soft:        soft,
			}

			auth, err := a.svc.Resolve(c.Request().Context(), input)
			if err != nil {
				return a.fail(c, err)
			}

			// a bearer request without a session cookie may have had a
			// session promoted for it; hand the id back so the next
			// request rides the session path
			if auth.Method == authgate.MethodToken && auth.SessionID != "" && input.SessionID == "" {
				a.setSessionCookies(c, auth.SessionID)
			}

			setAuth(c, auth)
			return next(c)
		}
	}
}

// RequireCSRF enforces the double-submit check on mutating requests. Safe
// methods and token-authenticated requests pass untouched.
func (a *API) RequireCSRF() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			provided := c.Request().Header.Get(a.cfg.CSRF.HeaderName)
			if err := a.svc.VerifyCSRF(c.Request().Context(), getAuth(c), provided); err != nil {
				return a.fail(c, err)
			}
			return next(c)
		}
	}
}

func (a *API) sessionCookie(c echo.Context) string {
	cookie, err := c.Cookie(a.cfg.Cookie.SessionName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get(echo.HeaderAuthorization)
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

const authContextKey = "authgate.auth"

func setAuth(c echo.Context, auth *authgate.AuthContext) {
	c.Set(authContextKey, auth)
}

func getAuth(c echo.Context) *authgate.AuthContext {
	auth, _ := c.Get(authContextKey).(*authgate.AuthContext)
	return auth
}

// setSessionCookies writes the session cookie and, when CSRF is enabled,
// mints the session's CSRF token into its JS-readable mirror cookie.
func (a *API) setSessionCookies(c echo.Context, sessionID string) {
	if sessionID == "" {
		return
	}

	c.SetCookie(&http.Cookie{
		Name:     a.cfg.Cookie.SessionName,
		Value:    sessionID,
		Path:     "/",
		Domain:   a.cfg.Cookie.Domain,
		MaxAge:   int(a.cfg.Session.TTL / time.Second),
		Secure:   a.cfg.Cookie.Secure,
		HttpOnly: true,
		SameSite: a.cfg.Cookie.SameSitePolicy,
	})

	if !a.cfg.CSRF.Enabled {
		return
	}
	csrfToken, err := a.svc.EnsureCSRFToken(c.Request().Context(), sessionID)
	if err != nil {
		a.log.Warn("failed to mint csrf token", "error", err)
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     a.cfg.CSRF.CookieName,
		Value:    csrfToken,
		Path:     "/",
		Domain:   a.cfg.Cookie.Domain,
		MaxAge:   int(a.cfg.Session.TTL / time.Second),
		Secure:   a.cfg.Cookie.Secure,
		HttpOnly: false,
		SameSite: a.cfg.Cookie.SameSitePolicy,
	})
}

func (a *API) setRefreshCookie(c echo.Context, refreshToken string) {
	if refreshToken == "" || a.cfg.Cookie.RefreshName == "" {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     a.cfg.Cookie.RefreshName,
		Value:    refreshToken,
		Path:     "/auth",
		Domain:   a.cfg.Cookie.Domain,
		MaxAge:   int(a.cfg.Token.RefreshTTL / time.Second),
		Secure:   a.cfg.Cookie.Secure,
		HttpOnly: true,
		SameSite: a.cfg.Cookie.SameSitePolicy,
	})
}

func (a *API) clearAuthCookies(c echo.Context) {
	for _, name := range []string{a.cfg.Cookie.SessionName, a.cfg.CSRF.CookieName} {
		if name == "" {
			continue
		}
		c.SetCookie(&http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   a.cfg.Cookie.Domain,
			MaxAge:   -1,
			Secure:   a.cfg.Cookie.Secure,
			SameSite: a.cfg.Cookie.SameSitePolicy,
		})
	}
	if a.cfg.Cookie.RefreshName != "" {
		c.SetCookie(&http.Cookie{
			Name:     a.cfg.Cookie.RefreshName,
			Value:    "",
			Path:     "/auth",
			Domain:   a.cfg.Cookie.Domain,
			MaxAge:   -1,
			Secure:   a.cfg.Cookie.Secure,
			HttpOnly: true,
			SameSite: a.cfg.Cookie.SameSitePolicy,
		})
	}
}
