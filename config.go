package authgate

import (
	"errors"
	"net/http"
	"time"
)

// Config holds every tunable of the service. Configure it during
// initialization and treat it as immutable afterwards.
type Config struct {
	Token             TokenConfig
	Session           SessionConfig
	Password          PasswordConfig
	Lockout           LockoutConfig
	Resolver          ResolverConfig
	CSRF              CSRFConfig
	PasswordReset     PasswordResetConfig
	EmailVerification EmailVerificationConfig
	Account           AccountConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
	Cookie            CookieConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the JWT issuer/verifier.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxTokenAge   time.Duration // absolute iat ceiling, 0 disables; never undercuts RefreshTTL for refresh tokens
	MaxFutureIAT  time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the session store adapter.
type SessionConfig struct {
	RedisPrefix       string
	TTL               time.Duration
	SlidingExpiration bool
	MaxSessionSize    int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id cost parameters for newly minted
// hashes. Verification of stored hashes always uses the parameters embedded
// in the hash itself.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

// LockoutConfig drives the failed-login lockout window. The duration is
// fixed per lockout; there is no progressive back-off.
type LockoutConfig struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// ResolverConfig tunes the hybrid session/token resolver.
type ResolverConfig struct {
	PromoteTokenSessions bool
	TouchActivity        bool
}

// CSRFConfig configures the double-submit guard.
type CSRFConfig struct {
	Enabled    bool
	HeaderName string
	CookieName string
}

// PasswordResetConfig configures the reset challenge store.
type PasswordResetConfig struct {
	Enabled     bool
	ResetTTL    time.Duration
	MaxAttempts int
}

// EmailVerificationConfig configures the verification challenge store.
type EmailVerificationConfig struct {
	Enabled         bool
	VerificationTTL time.Duration
	MaxAttempts     int
	RequireForLogin bool
}

// AccountConfig configures registration behavior.
type AccountConfig struct {
	DefaultRole string
	AutoLogin   bool
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// CookieConfig controls the session, CSRF, and refresh cookies emitted by
// the HTTP layer.
type CookieConfig struct {
	SessionName    string
	RefreshName    string
	Secure         bool
	SameSitePolicy http.SameSite
	Domain         string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration a fresh Builder starts from.
// Adjust what you need and pass it back through WithConfig.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     1 * time.Hour,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "authgate",
			Audience:      "storefront",
			Leeway:        30 * time.Second,
			MaxTokenAge:   24 * time.Hour,
			MaxFutureIAT:  30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:       "ag",
			TTL:               24 * time.Hour,
			SlidingExpiration: true,
			MaxSessionSize:    512,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			MaxAttempts:  5,
			LockDuration: 15 * time.Minute,
		},
		Resolver: ResolverConfig{
			PromoteTokenSessions: true,
			TouchActivity:        true,
		},
		CSRF: CSRFConfig{
			Enabled:    true,
			HeaderName: "x-csrf-token",
			CookieName: "csrf_token",
		},
		PasswordReset: PasswordResetConfig{
			Enabled:     true,
			ResetTTL:    15 * time.Minute,
			MaxAttempts: 5,
		},
		EmailVerification: EmailVerificationConfig{
			Enabled:         true,
			VerificationTTL: 24 * time.Hour,
			MaxAttempts:     5,
			RequireForLogin: true,
		},
		Account: AccountConfig{
			DefaultRole: "customer",
			AutoLogin:   true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Cookie: CookieConfig{
			SessionName:    "session_id",
			RefreshName:    "refresh_token",
			Secure:         true,
			SameSitePolicy: http.SameSiteStrictMode,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for internal consistency. Build calls
// it before wiring anything.
func (c *Config) Validate() error {
	// Token
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.SigningMethod != "hs256" && c.Token.SigningMethod != "ed25519" {
		return errors.New("unsupported Token signing method")
	}
	if c.Token.SigningMethod == "hs256" && len(c.Token.PrivateKey) < 32 {
		return errors.New("hs256 requires PrivateKey of at least 32 bytes")
	}
	if c.Token.SigningMethod == "ed25519" && (len(c.Token.PrivateKey) == 0 || len(c.Token.PublicKey) == 0) {
		return errors.New("ed25519 requires PrivateKey and PublicKey")
	}
	if c.Token.Issuer == "" {
		return errors.New("Token Issuer is required")
	}
	if c.Token.Audience == "" {
		return errors.New("Token Audience is required")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}
	if c.Token.MaxTokenAge < 0 {
		return errors.New("Token MaxTokenAge must be >= 0")
	}
	if c.Token.MaxFutureIAT < 0 {
		return errors.New("Token MaxFutureIAT must be >= 0")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.MaxSessionSize <= 0 {
		return errors.New("Session MaxSessionSize must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}

	// Lockout
	if c.Lockout.MaxAttempts <= 0 {
		return errors.New("Lockout MaxAttempts must be > 0")
	}
	if c.Lockout.LockDuration <= 0 {
		return errors.New("Lockout LockDuration must be > 0")
	}

	// CSRF
	if c.CSRF.Enabled {
		if c.CSRF.HeaderName == "" {
			return errors.New("CSRF HeaderName is required when CSRF is enabled")
		}
		if c.CSRF.CookieName == "" {
			return errors.New("CSRF CookieName is required when CSRF is enabled")
		}
	}

	// Password Reset
	if c.PasswordReset.Enabled {
		if c.PasswordReset.ResetTTL <= 0 {
			return errors.New("PasswordReset ResetTTL must be > 0")
		}
		if c.PasswordReset.MaxAttempts <= 0 {
			return errors.New("PasswordReset MaxAttempts must be > 0")
		}
	}

	// Email Verification
	if c.EmailVerification.Enabled {
		if c.EmailVerification.VerificationTTL <= 0 {
			return errors.New("EmailVerification VerificationTTL must be > 0")
		}
		if c.EmailVerification.MaxAttempts <= 0 {
			return errors.New("EmailVerification MaxAttempts must be > 0")
		}
	}
	if c.EmailVerification.RequireForLogin && !c.EmailVerification.Enabled {
		return errors.New("EmailVerification RequireForLogin requires EmailVerification Enabled")
	}

	// Account
	if c.Account.DefaultRole == "" {
		return errors.New("Account DefaultRole is required")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Cookies
	if c.Cookie.SessionName == "" {
		return errors.New("Cookie SessionName is required")
	}

	return nil
}
