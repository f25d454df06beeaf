package authgate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLockoutAtThreshold(t *testing.T) {
	f := newTestService(t, func(cfg *Config) {
		cfg.Lockout.MaxAttempts = 3
		cfg.Lockout.LockDuration = 15 * time.Minute
	})
	f.register(t, "ada@example.com", "correct horse")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.svc.Login(ctx, "ada@example.com", "wrong horse", false); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d error = %v, want ErrInvalidCredentials", i+1, err)
		}
	}

	// the threshold-crossing attempt itself reports the lock
	_, err := f.svc.Login(ctx, "ada@example.com", "wrong horse", false)
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("third attempt error = %v, want ErrAccountLocked", err)
	}

	remaining := LockRemaining(err, f.clock.Now())
	if remaining != 15*time.Minute {
		t.Fatalf("lock remaining = %v, want 15m", remaining)
	}

	if got := f.svc.Metrics().Value(MetricLoginLocked); got != 1 {
		t.Fatalf("locked counter = %d", got)
	}
}

func TestLockedAccountRefusesCorrectPassword(t *testing.T) {
	f := newTestService(t, func(cfg *Config) {
		cfg.Lockout.MaxAttempts = 2
	})
	f.register(t, "ada@example.com", "correct horse")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		f.svc.Login(ctx, "ada@example.com", "wrong horse", false)
	}

	if _, err := f.svc.Login(ctx, "ada@example.com", "correct horse", false); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked login error = %v, want ErrAccountLocked", err)
	}
}

func TestLockExpiresWithTime(t *testing.T) {
	f := newTestService(t, func(cfg *Config) {
		cfg.Lockout.MaxAttempts = 2
		cfg.Lockout.LockDuration = 15 * time.Minute
	})
	f.register(t, "ada@example.com", "correct horse")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		f.svc.Login(ctx, "ada@example.com", "wrong horse", false)
	}
	if _, err := f.svc.Login(ctx, "ada@example.com", "correct horse", false); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked error = %v", err)
	}

	f.clock.Advance(16 * time.Minute)

	if _, err := f.svc.Login(ctx, "ada@example.com", "correct horse", false); err != nil {
		t.Fatalf("post-expiry login: %v", err)
	}
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	f := newTestService(t, func(cfg *Config) {
		cfg.Lockout.MaxAttempts = 3
	})
	f.register(t, "ada@example.com", "correct horse")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		f.svc.Login(ctx, "ada@example.com", "wrong horse", false)
	}
	if _, err := f.svc.Login(ctx, "ada@example.com", "correct horse", false); err != nil {
		t.Fatalf("login: %v", err)
	}

	// the counter started over, so two more failures do not lock
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Login(ctx, "ada@example.com", "wrong horse", false); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d error = %v, want ErrInvalidCredentials", i+1, err)
		}
	}
}

func TestUnlockAccountClearsWindow(t *testing.T) {
	f := newTestService(t, func(cfg *Config) {
		cfg.Lockout.MaxAttempts = 2
	})
	account := f.register(t, "ada@example.com", "correct horse")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		f.svc.Login(ctx, "ada@example.com", "wrong horse", false)
	}
	if _, err := f.svc.Login(ctx, "ada@example.com", "correct horse", false); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked error = %v", err)
	}

	if err := f.svc.UnlockAccount(ctx, account.ID); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := f.svc.Login(ctx, "ada@example.com", "correct horse", false); err != nil {
		t.Fatalf("post-unlock login: %v", err)
	}
}

func TestLockedErrorCarriesDeadline(t *testing.T) {
	until := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	err := error(&LockedError{Until: until})

	if !errors.Is(err, ErrAccountLocked) {
		t.Fatal("LockedError does not unwrap to ErrAccountLocked")
	}

	now := until.Add(-10 * time.Minute)
	if got := LockRemaining(err, now); got != 10*time.Minute {
		t.Fatalf("remaining = %v, want 10m", got)
	}
	if got := LockRemaining(err, until.Add(time.Second)); got != 0 {
		t.Fatalf("past-deadline remaining = %v, want 0", got)
	}
	if got := LockRemaining(ErrInvalidCredentials, now); got != 0 {
		t.Fatalf("plain error remaining = %v, want 0", got)
	}
}
