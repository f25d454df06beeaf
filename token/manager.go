// Package token issues and verifies the JWT access/refresh pair. Refresh
// tokens are pure JWTs with no server-side record; rotation happens by
// minting a new pair on every refresh and letting the old refresh token
// age out on its own expiry.
package token

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type discriminates access from refresh tokens via the typ claim.
// Presenting one where the other is expected is a hard verification
// failure, not a fallback.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

var (
	// ErrInvalid covers structural failures: bad signature, wrong
	// algorithm, wrong issuer or audience, wrong token type, missing
	// claims.
	ErrInvalid = errors.New("token invalid")
	// ErrExpired covers temporal failures: past exp, or iat beyond the
	// absolute age ceiling.
	ErrExpired = errors.New("token expired")
)

// SigningMethod selects the JWT algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// Config holds the issuer/verifier parameters.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxTokenAge   time.Duration // absolute iat ceiling, 0 disables; never undercuts RefreshTTL for refresh tokens
	MaxFutureIAT  time.Duration
}

// Claims is the claim set for both token types. Refresh tokens carry only
// the subject and typ; the identity claims stay empty.
type Claims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sid,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Pair is a freshly minted access/refresh pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Manager signs and verifies tokens. Safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxTokenAge < 0 {
		return nil, errors.New("invalid MaxTokenAge configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 30 * time.Second
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("issuer and audience are required")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// IssueAccess mints an access token carrying the account's identity claims
// and, for session-backed logins, the originating session id.
func (m *Manager) IssueAccess(accountID, email, role, sessionID string, now time.Time) (string, time.Time, error) {
	expires := now.Add(m.config.AccessTTL)

	claims := Claims{
		Email:     email,
		Role:      role,
		SessionID: sessionID,
		TokenType: string(TypeAccess),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}

	signed, err := m.sign(claims)
	return signed, expires, err
}

// IssueRefresh mints a refresh token carrying only the subject.
func (m *Manager) IssueRefresh(accountID string, now time.Time) (string, time.Time, error) {
	expires := now.Add(m.config.RefreshTTL)

	claims := Claims{
		TokenType: string(TypeRefresh),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}

	signed, err := m.sign(claims)
	return signed, expires, err
}

// IssuePair mints a matching access/refresh pair. Pair.ExpiresAt is the
// access token expiry, which is what clients schedule refreshes against.
func (m *Manager) IssuePair(accountID, email, role, sessionID string, now time.Time) (Pair, error) {
	access, expires, err := m.IssueAccess(accountID, email, role, sessionID, now)
	if err != nil {
		return Pair{}, err
	}
	refresh, _, err := m.IssueRefresh(accountID, now)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expires,
	}, nil
}

// Verify checks signature, algorithm, issuer, audience, expiry, and the
// typ claim. Expiry failures, including the MaxTokenAge iat ceiling, map
// to [ErrExpired]; everything else maps to [ErrInvalid].
func (m *Manager) Verify(tokenStr string, expected Type, now time.Time) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.TokenType != string(expected) {
		return nil, ErrInvalid
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, ErrInvalid
	}

	iat := claims.IssuedAt.Time
	if iat.After(now.Add(m.config.MaxFutureIAT)) {
		return nil, ErrInvalid
	}
	maxAge := m.config.MaxTokenAge
	if expected == TypeRefresh && maxAge > 0 && maxAge < m.config.RefreshTTL {
		// the ceiling is sized for access tokens and must not cut a
		// refresh token short of its own TTL
		maxAge = m.config.RefreshTTL
	}
	if maxAge > 0 && now.Sub(iat) > maxAge {
		// old enough tokens die regardless of their exp claim
		return nil, ErrExpired
	}

	return claims, nil
}

func (m *Manager) sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(m.method(), claims)

	key, err := m.signKey()
	if err != nil {
		return "", err
	}

	return tok.SignedString(key)
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return parseEdPrivateKey(m.config.PrivateKey)
	default:
		return m.config.PrivateKey, nil
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return parseEdPublicKey(m.config.PublicKey)
	default:
		return m.config.PrivateKey, nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
