// Package redisstore implements the refresh token store on Redis. Records are
// keyed by the SHA-256 of the token value and expire with the token; a
// per-user index set supports logout-everywhere and compromise remediation.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notablehq/sessionkit/refresh"
)

const defaultPrefix = "rt"

// Store is a Redis-backed [refresh.Store].
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Store. An empty prefix falls back to "rt".
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{redis: client, prefix: prefix}
}

// Create persists the record with a TTL matching its expiry and indexes it
// under the owning user.
func (s *Store) Create(ctx context.Context, rec refresh.Record) error {
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return errors.New("redisstore: record already expired")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	hash := refresh.HashValue(rec.TokenValue)
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.tokenKey(hash), data, ttl)
	pipe.SAdd(ctx, s.userKey(rec.UserID), hash)
	// The index outlives no token: refresh its TTL to the newest expiry.
	pipe.Expire(ctx, s.userKey(rec.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	return nil
}

// FindByValue looks up the literal token value. A missing record is the
// caller's reuse signal and is reported as [refresh.ErrNotFound].
func (s *Store) FindByValue(ctx context.Context, tokenValue string) (*refresh.Record, error) {
	data, err := s.redis.Get(ctx, s.tokenKey(refresh.HashValue(tokenValue))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, refresh.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	var rec refresh.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	rec.TokenValue = tokenValue

	return &rec, nil
}

// DeleteByValue removes the record. The DEL reply count decides the outcome,
// so two concurrent deletes of one value resolve to exactly one true.
func (s *Store) DeleteByValue(ctx context.Context, tokenValue string) (bool, error) {
	hash := refresh.HashValue(tokenValue)
	key := s.tokenKey(hash)

	// Read the owner first so the index entry can be dropped; the DEL below
	// remains the single atomic decision point.
	var userID string
	if data, err := s.redis.Get(ctx, key).Bytes(); err == nil {
		var rec refresh.Record
		if json.Unmarshal(data, &rec) == nil {
			userID = rec.UserID
		}
	}

	deleted, err := s.redis.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	if deleted == 0 {
		return false, nil
	}

	if userID != "" {
		_ = s.redis.SRem(ctx, s.userKey(userID), hash).Err()
	}

	return true, nil
}

// DeleteAllByUser removes every live token for the user. Used for
// logout-everywhere and as the compromise response on reuse detection.
func (s *Store) DeleteAllByUser(ctx context.Context, userID string) error {
	hashes, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, s.tokenKey(h))
	}
	keys = append(keys, s.userKey(userID))

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	return nil
}

func (s *Store) tokenKey(hash string) string {
	return s.prefix + ":v:" + hash
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}
