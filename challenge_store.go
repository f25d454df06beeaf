package authgate

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeRecordVersionV1 = 1

var (
	errChallengeNotFound    = errors.New("challenge record not found")
	errChallengeMismatch    = errors.New("challenge secret mismatch")
	errChallengeAttempts    = errors.New("challenge attempts exceeded")
	errChallengeUnavailable = errors.New("challenge store unavailable")
)

// challengeRecord backs both password reset and email verification tokens.
// Only the SHA-256 of the secret half of the emailed token is stored.
type challengeRecord struct {
	AccountID  string
	SecretHash [32]byte
	ExpiresAt  int64
	Attempts   uint16
}

// challengeStore is the single-use challenge contract. Consume burns the
// record on match; a mismatch spends one attempt, and exhausting the
// attempt budget destroys the record.
type challengeStore interface {
	Save(ctx context.Context, challengeID string, record *challengeRecord, ttl time.Duration) error
	Consume(ctx context.Context, challengeID string, providedHash [32]byte, maxAttempts int) (*challengeRecord, error)
}

/*
====================================
REDIS CHALLENGE STORE
====================================
*/

type redisChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newRedisChallengeStore(client redis.UniversalClient, prefix string) *redisChallengeStore {
	return &redisChallengeStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *redisChallengeStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

func (s *redisChallengeStore) Save(ctx context.Context, challengeID string, record *challengeRecord, ttl time.Duration) error {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeUnavailable, err)
	}

	return nil
}

// Consume runs a WATCH-guarded compare-and-burn so two concurrent attempts
// against the same challenge cannot both succeed or skip an attempt
// increment.
func (s *redisChallengeStore) Consume(
	ctx context.Context,
	challengeID string,
	providedHash [32]byte,
	maxAttempts int,
) (*challengeRecord, error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		var matched *challengeRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallengeRecord(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				if err := txDelete(ctx, tx, key); err != nil {
					return err
				}
				return errChallengeNotFound
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					if err := txDelete(ctx, tx, key); err != nil {
						return err
					}
					return errChallengeAttempts
				}

				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					if err := txDelete(ctx, tx, key); err != nil {
						return err
					}
					return errChallengeNotFound
				}

				updated, err := encodeChallengeRecord(record)
				if err != nil {
					return err
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeMismatch
			}

			if err := txDelete(ctx, tx, key); err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, errChallengeNotFound
			case errors.Is(err, errChallengeNotFound),
				errors.Is(err, errChallengeMismatch),
				errors.Is(err, errChallengeAttempts):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errChallengeUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, errChallengeNotFound
}

func txDelete(ctx context.Context, tx *redis.Tx, key string) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

/*
====================================
MEMORY CHALLENGE STORE
====================================
*/

type memoryChallengeStore struct {
	mu      sync.Mutex
	records map[string]*challengeRecord
}

func newMemoryChallengeStore() *memoryChallengeStore {
	return &memoryChallengeStore{
		records: make(map[string]*challengeRecord),
	}
}

func (s *memoryChallengeStore) Save(ctx context.Context, challengeID string, record *challengeRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *record
	s.records[challengeID] = &stored
	return nil
}

func (s *memoryChallengeStore) Consume(
	ctx context.Context,
	challengeID string,
	providedHash [32]byte,
	maxAttempts int,
) (*challengeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[challengeID]
	if !ok {
		return nil, errChallengeNotFound
	}

	if time.Now().Unix() > record.ExpiresAt {
		delete(s.records, challengeID)
		return nil, errChallengeNotFound
	}

	if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
		record.Attempts++
		if int(record.Attempts) >= maxAttempts {
			delete(s.records, challengeID)
			return nil, errChallengeAttempts
		}
		return nil, errChallengeMismatch
	}

	delete(s.records, challengeID)
	matched := *record
	return &matched, nil
}

/*
====================================
RECORD CODEC
====================================
*/

func encodeChallengeRecord(record *challengeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 {
		return nil, errors.New("challenge record account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*challengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &challengeRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var accountIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &accountIDLen); err != nil {
		return nil, err
	}

	accountID := make([]byte, accountIDLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, err
	}
	record.AccountID = string(accountID)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
