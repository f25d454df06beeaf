package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Prefix  string
	TTL     time.Duration
	Sliding bool
}

// RedisStore persists sessions in Redis with a per-account index set so
// DeleteAllForAccount stays O(sessions-per-account).
type RedisStore struct {
	redis   redis.UniversalClient
	prefix  string
	ttl     time.Duration
	sliding bool
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a session store backed by the given Redis client.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ag"
	}
	return &RedisStore{
		redis:   client,
		prefix:  prefix,
		ttl:     cfg.TTL,
		sliding: cfg.Sliding,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *RedisStore) accountKey(accountID string) string {
	return s.prefix + ":a:" + accountID
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, s.ttl)
		pipe.SAdd(ctx, s.accountKey(sess.AccountID), sess.SessionID)
		pipe.Expire(ctx, s.accountKey(sess.AccountID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	key := s.key(sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		// corrupt blob, treat as dead and drop it
		_ = s.redis.Del(ctx, key).Err()
		return nil, ErrNotFound
	}
	sess.SessionID = sessionID

	if sess.Expired(time.Now().Unix()) {
		if err := s.removeSession(ctx, sess.AccountID, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	if s.sliding {
		if err := s.redis.Expire(ctx, key, s.ttl).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		// cannot recover the account index entry, drop the blob alone
		if delErr := s.redis.Del(ctx, s.key(sessionID)).Err(); delErr != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, delErr)
		}
		return nil
	}

	return s.removeSession(ctx, sess.AccountID, sessionID)
}

func (s *RedisStore) Touch(ctx context.Context, sessionID string, now time.Time) error {
	return s.update(ctx, sessionID, func(sess *Session) {
		sess.LastAccess = now.Unix()
	})
}

func (s *RedisStore) SetCSRFToken(ctx context.Context, sessionID, token string) error {
	return s.update(ctx, sessionID, func(sess *Session) {
		sess.CSRFToken = token
	})
}

func (s *RedisStore) DeleteAllForAccount(ctx context.Context, accountID string) error {
	accountKey := s.accountKey(accountID)

	sessionIDs, err := s.redis.SMembers(ctx, accountKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sid := range sessionIDs {
			pipe.Del(ctx, s.key(sid))
		}
		pipe.Del(ctx, accountKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// update rewrites the record in place, preserving the backend TTL.
func (s *RedisStore) update(ctx context.Context, sessionID string, mutate func(*Session)) error {
	key := s.key(sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return ErrNotFound
	}
	sess.SessionID = sessionID

	if sess.Expired(time.Now().Unix()) {
		if err := s.removeSession(ctx, sess.AccountID, sessionID); err != nil {
			return err
		}
		return ErrNotFound
	}

	mutate(sess)

	encoded, err := Encode(sess)
	if err != nil {
		return err
	}

	pttl, err := s.redis.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if pttl <= 0 {
		return ErrNotFound
	}

	if err := s.redis.Set(ctx, key, encoded, pttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

func (s *RedisStore) removeSession(ctx context.Context, accountID, sessionID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.SRem(ctx, s.accountKey(accountID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
