package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is the lifetime of an issued code.
	DefaultTTL = 10 * time.Minute

	defaultPrefix   = "otp"
	maxWatchRetries = 3
)

var (
	// ErrMissing is returned when no live code exists for the key.
	ErrMissing = errors.New("otp missing or expired")
	// ErrMismatch is returned when the candidate does not match. The stored code is kept.
	ErrMismatch = errors.New("otp mismatch")
	// ErrUnavailable wraps Redis failures.
	ErrUnavailable = errors.New("otp store unavailable")
)

// Store keeps at most one hashed code per identity key in Redis. Codes
// expire through the Redis key TTL.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	hasher Hasher
}

// NewStore returns a Store using SHA256 when hasher is nil.
func NewStore(redisClient redis.UniversalClient, prefix string, hasher Hasher) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if hasher == nil {
		hasher = SHA256{}
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		hasher: hasher,
	}
}

// Hasher returns the function used to hash codes for this store.
func (s *Store) Hasher() Hasher {
	return s.hasher
}

func (s *Store) key(identity string) string {
	return s.prefix + ":" + strings.ToLower(strings.TrimSpace(identity))
}

// Issue stores codeHash for identity, replacing any live code.
func (s *Store) Issue(ctx context.Context, identity, codeHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("otp ttl must be positive")
	}
	if err := s.redis.Set(ctx, s.key(identity), codeHash, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// CheckAndConsume hashes candidate and compares it in constant time
// with the stored hash. On a match the record is deleted and the TTL it
// had left is returned. The read, compare and delete run inside a WATCH
// transaction so two concurrent matches cannot both succeed.
func (s *Store) CheckAndConsume(ctx context.Context, identity, candidate string) (time.Duration, error) {
	key := s.key(identity)
	candidateHash := s.hasher.Hash(candidate)

	var remaining time.Duration
	consume := func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrMissing
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		ttl, err := tx.PTTL(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if ttl <= 0 && ttl != -1 {
			return ErrMissing
		}

		if subtle.ConstantTimeCompare([]byte(stored), []byte(candidateHash)) != 1 {
			return ErrMismatch
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err != nil {
			return err
		}
		remaining = ttl
		return nil
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.redis.Watch(ctx, consume, key)
		switch {
		case err == nil:
			return remaining, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrMissing), errors.Is(err, ErrMismatch), errors.Is(err, ErrUnavailable):
			return 0, err
		default:
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	// Lost every race: another caller consumed or replaced the code.
	return 0, ErrMissing
}

// Restore puts a consumed code back for its remaining lifetime unless a
// newer code has been issued in the meantime.
func (s *Store) Restore(ctx context.Context, identity, codeHash string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	ok, err := s.redis.SetNX(ctx, s.key(identity), codeHash, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// Delete removes any live code for identity.
func (s *Store) Delete(ctx context.Context, identity string) error {
	if err := s.redis.Del(ctx, s.key(identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
