package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T, cfg RedisConfig) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	return NewRedisStore(client, cfg), mr
}

func redisSession(id, accountID string) *Session {
	now := time.Now().Unix()
	return &Session{
		SessionID:  id,
		AccountID:  accountID,
		Email:      "ada@example.com",
		Role:       "customer",
		CreatedAt:  now,
		LastAccess: now,
		ExpiresAt:  now + 3600,
	}
}

func TestRedisSaveAndGet(t *testing.T) {
	store, _ := newRedisStore(t, RedisConfig{})
	ctx := context.Background()

	if err := store.Save(ctx, redisSession("sid-1", "acc-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SessionID != "sid-1" || got.AccountID != "acc-1" || got.Email != "ada@example.com" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestRedisGetMissing(t *testing.T) {
	store, _ := newRedisStore(t, RedisConfig{})

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing get error = %v, want ErrNotFound", err)
	}
}

func TestRedisDeleteIdempotent(t *testing.T) {
	store, _ := newRedisStore(t, RedisConfig{})
	ctx := context.Background()

	if err := store.Save(ctx, redisSession("sid-1", "acc-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted get error = %v, want ErrNotFound", err)
	}
}

func TestRedisExpiredRecordReaped(t *testing.T) {
	store, _ := newRedisStore(t, RedisConfig{})
	ctx := context.Background()

	sess := redisSession("sid-1", "acc-1")
	sess.ExpiresAt = time.Now().Unix() - 10
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired get error = %v, want ErrNotFound", err)
	}
}

func TestRedisSlidingExpirationRenewsTTL(t *testing.T) {
	store, mr := newRedisStore(t, RedisConfig{TTL: time.Hour, Sliding: true})
	ctx := context.Background()

	if err := store.Save(ctx, redisSession("sid-1", "acc-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	mr.FastForward(30 * time.Minute)
	if _, err := store.Get(ctx, "sid-1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	// without renewal the key would have died here
	mr.FastForward(45 * time.Minute)
	if _, err := store.Get(ctx, "sid-1"); err != nil {
		t.Fatalf("get after renewal window: %v", err)
	}
}

func TestRedisFixedTTLDoesNotSlide(t *testing.T) {
	store, mr := newRedisStore(t, RedisConfig{TTL: time.Hour, Sliding: false})
	ctx := context.Background()

	if err := store.Save(ctx, redisSession("sid-1", "acc-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	mr.FastForward(30 * time.Minute)
	if _, err := store.Get(ctx, "sid-1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	mr.FastForward(45 * time.Minute)
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get past fixed TTL error = %v, want ErrNotFound", err)
	}
}

func TestRedisTouchPreservesTTL(t *testing.T) {
	store, mr := newRedisStore(t, RedisConfig{TTL: time.Hour})
	ctx := context.Background()

	if err := store.Save(ctx, redisSession("sid-1", "acc-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	mr.FastForward(30 * time.Minute)
	now := time.Now()
	if err := store.Touch(ctx, "sid-1", now); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastAccess != now.Unix() {
		t.Fatalf("last access = %d, want %d", got.LastAccess, now.Unix())
	}

	// the rewrite must not have reset the remaining TTL to a full hour
	ttl := mr.TTL(store.key("sid-1"))
	if ttl > 31*time.Minute {
		t.Fatalf("touch reset the TTL: %v remaining", ttl)
	}
}

func TestRedisSetCSRFToken(t *testing.T) {
	store, _ := newRedisStore(t, RedisConfig{})
	ctx := context.Background()

	if err := store.Save(ctx, redisSession("sid-1", "acc-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SetCSRFToken(ctx, "sid-1", "deadbeef"); err != nil {
		t.Fatalf("set csrf: %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CSRFToken != "deadbeef" {
		t.Fatalf("csrf token = %q", got.CSRFToken)
	}

	if err := store.SetCSRFToken(ctx, "missing", "deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing set csrf error = %v, want ErrNotFound", err)
	}
}

func TestRedisDeleteAllForAccount(t *testing.T) {
	store, _ := newRedisStore(t, RedisConfig{})
	ctx := context.Background()

	for _, sid := range []string{"sid-1", "sid-2"} {
		if err := store.Save(ctx, redisSession(sid, "acc-1")); err != nil {
			t.Fatalf("save %s: %v", sid, err)
		}
	}
	if err := store.Save(ctx, redisSession("sid-3", "acc-2")); err != nil {
		t.Fatalf("save sid-3: %v", err)
	}

	if err := store.DeleteAllForAccount(ctx, "acc-1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}

	for _, sid := range []string{"sid-1", "sid-2"} {
		if _, err := store.Get(ctx, sid); !errors.Is(err, ErrNotFound) {
			t.Fatalf("get %s error = %v, want ErrNotFound", sid, err)
		}
	}
	if _, err := store.Get(ctx, "sid-3"); err != nil {
		t.Fatalf("other account's session was purged: %v", err)
	}

	// purging an account with no sessions is a no-op
	if err := store.DeleteAllForAccount(ctx, "acc-3"); err != nil {
		t.Fatalf("empty delete all: %v", err)
	}
}

func TestRedisCorruptBlobTreatedAsDead(t *testing.T) {
	store, mr := newRedisStore(t, RedisConfig{})
	ctx := context.Background()

	mr.Set(store.key("sid-1"), "not a session blob")
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("corrupt get error = %v, want ErrNotFound", err)
	}
	if mr.Exists(store.key("sid-1")) {
		t.Fatal("corrupt blob not dropped")
	}
}
