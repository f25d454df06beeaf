package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func testConfig() Config {
	return Config{
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    testKey,
		Issuer:        "authgate",
		Audience:      "storefront",
		MaxTokenAge:   24 * time.Hour,
		MaxFutureIAT:  30 * time.Second,
	}
}

func testManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestAccessRoundTrip(t *testing.T) {
	m := testManager(t, nil)
	now := time.Now()

	signed, expires, err := m.IssueAccess("acc-1", "ada@example.com", "customer", "sess-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got, want := expires, now.Add(time.Hour); !got.Equal(want) {
		t.Fatalf("expiry = %v, want %v", got, want)
	}

	claims, err := m.Verify(signed, TypeAccess, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "acc-1" || claims.Email != "ada@example.com" ||
		claims.Role != "customer" || claims.SessionID != "sess-1" {
		t.Fatalf("claims round trip mismatch: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("missing jti")
	}
}

func TestRefreshCarriesOnlySubject(t *testing.T) {
	m := testManager(t, nil)
	now := time.Now()

	signed, _, err := m.IssueRefresh("acc-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(signed, TypeRefresh, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "acc-1" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if claims.Email != "" || claims.Role != "" || claims.SessionID != "" {
		t.Fatalf("refresh token leaked identity claims: %+v", claims)
	}
}

func TestTypeConfusionRejected(t *testing.T) {
	m := testManager(t, nil)
	now := time.Now()

	pair, err := m.IssuePair("acc-1", "ada@example.com", "customer", "", now)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	if _, err := m.Verify(pair.AccessToken, TypeRefresh, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("access-as-refresh error = %v, want ErrInvalid", err)
	}
	if _, err := m.Verify(pair.RefreshToken, TypeAccess, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("refresh-as-access error = %v, want ErrInvalid", err)
	}
}

func TestExpiredToken(t *testing.T) {
	m := testManager(t, nil)
	now := time.Now()

	signed, _, err := m.IssueAccess("acc-1", "", "", "", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := m.Verify(signed, TypeAccess, now.Add(2*time.Hour)); !errors.Is(err, ErrExpired) {
		t.Fatalf("expired error = %v, want ErrExpired", err)
	}
}

func TestMaxTokenAgeCeiling(t *testing.T) {
	m := testManager(t, func(cfg *Config) {
		cfg.AccessTTL = 4 * time.Hour
		cfg.MaxTokenAge = time.Hour
	})
	now := time.Now()

	signed, _, err := m.IssueAccess("acc-1", "", "", "", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// still inside exp, already past the iat ceiling
	if _, err := m.Verify(signed, TypeAccess, now.Add(90*time.Minute)); !errors.Is(err, ErrExpired) {
		t.Fatalf("aged-out error = %v, want ErrExpired", err)
	}

	if _, err := m.Verify(signed, TypeAccess, now.Add(30*time.Minute)); err != nil {
		t.Fatalf("young token rejected: %v", err)
	}
}

func TestMaxTokenAgeNeverUndercutsRefreshTTL(t *testing.T) {
	// MaxTokenAge (24h) is far below RefreshTTL (168h); the refresh token
	// must still live out its full TTL
	m := testManager(t, nil)
	now := time.Now()

	signed, _, err := m.IssueRefresh("acc-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := m.Verify(signed, TypeRefresh, now.Add(25*time.Hour)); err != nil {
		t.Fatalf("refresh token dead after a day: %v", err)
	}
	if _, err := m.Verify(signed, TypeRefresh, now.Add(167*time.Hour)); err != nil {
		t.Fatalf("refresh token dead inside its TTL: %v", err)
	}
	if _, err := m.Verify(signed, TypeRefresh, now.Add(169*time.Hour)); !errors.Is(err, ErrExpired) {
		t.Fatalf("past-TTL error = %v, want ErrExpired", err)
	}

	// the ceiling still binds access tokens
	access, _, err := m.IssueAccess("acc-1", "", "", "", now)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	if _, err := m.Verify(access, TypeAccess, now.Add(25*time.Hour)); !errors.Is(err, ErrExpired) {
		t.Fatalf("aged access token error = %v, want ErrExpired", err)
	}
}

func TestFutureIssuedAtRejected(t *testing.T) {
	m := testManager(t, nil)
	now := time.Now()

	signed, _, err := m.IssueAccess("acc-1", "", "", "", now.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := m.Verify(signed, TypeAccess, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("future-iat error = %v, want ErrInvalid", err)
	}
}

func TestIssuerAndAudiencePinned(t *testing.T) {
	m := testManager(t, nil)
	now := time.Now()

	signed, _, err := m.IssueAccess("acc-1", "", "", "", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	otherIssuer := testManager(t, func(cfg *Config) { cfg.Issuer = "someone-else" })
	if _, err := otherIssuer.Verify(signed, TypeAccess, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("issuer mismatch error = %v, want ErrInvalid", err)
	}

	otherAudience := testManager(t, func(cfg *Config) { cfg.Audience = "warehouse" })
	if _, err := otherAudience.Verify(signed, TypeAccess, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("audience mismatch error = %v, want ErrInvalid", err)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	m := testManager(t, nil)
	now := time.Now()

	signed, _, err := m.IssueAccess("acc-1", "", "", "", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tampered := signed[:len(signed)-2] + "xx"
	if _, err := m.Verify(tampered, TypeAccess, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("tampered error = %v, want ErrInvalid", err)
	}

	otherKey := testManager(t, func(cfg *Config) {
		cfg.PrivateKey = []byte("ffffffffffffffffffffffffffffffff")
	})
	if _, err := otherKey.Verify(signed, TypeAccess, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("wrong-key error = %v, want ErrInvalid", err)
	}
}

func TestEd25519RoundTripAndAlgPinning(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	edManager := testManager(t, func(cfg *Config) {
		cfg.SigningMethod = MethodEd25519
		cfg.PrivateKey = priv
		cfg.PublicKey = pub
	})
	now := time.Now()

	signed, _, err := edManager.IssueAccess("acc-1", "ada@example.com", "customer", "", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := edManager.Verify(signed, TypeAccess, now); err != nil {
		t.Fatalf("ed25519 verify: %v", err)
	}

	// an hs256 verifier must refuse the EdDSA token outright
	hsManager := testManager(t, nil)
	if _, err := hsManager.Verify(signed, TypeAccess, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("cross-algorithm error = %v, want ErrInvalid", err)
	}
}

func TestLeewayToleratesSkew(t *testing.T) {
	m := testManager(t, func(cfg *Config) { cfg.Leeway = 30 * time.Second })
	now := time.Now()

	signed, _, err := m.IssueAccess("acc-1", "", "", "", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := m.Verify(signed, TypeAccess, now.Add(time.Hour+10*time.Second)); err != nil {
		t.Fatalf("within-leeway verify failed: %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []func(*Config){
		func(cfg *Config) { cfg.AccessTTL = 0 },
		func(cfg *Config) { cfg.PrivateKey = []byte("short") },
		func(cfg *Config) { cfg.Issuer = "" },
		func(cfg *Config) { cfg.Audience = "" },
		func(cfg *Config) { cfg.SigningMethod = "rs256" },
		func(cfg *Config) { cfg.Leeway = 5 * time.Minute },
	}
	for i, mutate := range cases {
		cfg := testConfig()
		mutate(&cfg)
		if _, err := NewManager(cfg); err == nil {
			t.Errorf("case %d: invalid config accepted", i)
		}
	}
}
