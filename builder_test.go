package authgate

import (
	"testing"
)

func validTestConfig() Config {
	cfg := defaultConfig()
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func TestBuildRequiresAccountStore(t *testing.T) {
	_, err := New().WithConfig(validTestConfig()).Build()
	if err == nil {
		t.Fatal("build without account store succeeded")
	}
}

func TestBuildValidatesConfig(t *testing.T) {
	mutations := []func(*Config){
		func(cfg *Config) { cfg.Token.PrivateKey = []byte("short") },
		func(cfg *Config) { cfg.Token.Issuer = "" },
		func(cfg *Config) { cfg.Token.SigningMethod = "rs256" },
		func(cfg *Config) { cfg.Session.TTL = 0 },
		func(cfg *Config) { cfg.Password.Memory = 1024 },
		func(cfg *Config) { cfg.Lockout.MaxAttempts = 0 },
		func(cfg *Config) { cfg.CSRF.HeaderName = "" },
		func(cfg *Config) {
			cfg.EmailVerification.Enabled = false
			cfg.EmailVerification.RequireForLogin = true
		},
		func(cfg *Config) { cfg.Account.DefaultRole = "" },
		func(cfg *Config) { cfg.Cookie.SessionName = "" },
	}
	for i, mutate := range mutations {
		cfg := validTestConfig()
		mutate(&cfg)
		if _, err := New().WithConfig(cfg).WithAccountStore(newStubAccounts()).Build(); err == nil {
			t.Errorf("case %d: invalid config built", i)
		}
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	b := New().WithConfig(validTestConfig()).WithAccountStore(newStubAccounts())

	svc, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(svc.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("second build succeeded")
	}
}

func TestBuildFallsBackToMemoryStores(t *testing.T) {
	svc, err := New().
		WithConfig(validTestConfig()).
		WithAccountStore(newStubAccounts()).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(svc.Close)

	if svc.sessions == nil {
		t.Fatal("no session store wired")
	}
	if svc.resets == nil || svc.verifications == nil {
		t.Fatal("challenge stores not wired")
	}
	if _, ok := svc.resets.(*memoryChallengeStore); !ok {
		t.Fatalf("reset store is %T, want memory fallback", svc.resets)
	}
}

func TestConfigReturnsACopy(t *testing.T) {
	f := newTestService(t, nil)

	cfg := f.svc.Config()
	cfg.Token.PrivateKey[0] ^= 0xff
	cfg.Lockout.MaxAttempts = 99

	again := f.svc.Config()
	if again.Token.PrivateKey[0] == cfg.Token.PrivateKey[0] {
		t.Fatal("key mutation leaked into the service")
	}
	if again.Lockout.MaxAttempts == 99 {
		t.Fatal("config mutation leaked into the service")
	}
}

func TestServiceNotReady(t *testing.T) {
	var svc *Service
	if _, err := svc.Login(nil, "a@b.c", "x", false); err != ErrServiceNotReady {
		t.Fatalf("nil service login error = %v", err)
	}
	if _, err := svc.Resolve(nil, ResolveInput{}); err != ErrServiceNotReady {
		t.Fatalf("nil service resolve error = %v", err)
	}
	svc.Close()
}
