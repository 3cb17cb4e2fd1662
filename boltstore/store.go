// Package boltstore implements the refresh token store on bbolt for
// single-node deployments with no Redis or Postgres at hand. bbolt's
// single-writer transactions give DeleteByValue its exactly-one-winner
// guarantee for free.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/notablehq/sessionkit/refresh"
)

var (
	bucketTokens = []byte("refresh_tokens")
	bucketUsers  = []byte("user_index")
)

type storedRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store is a bbolt-backed [refresh.Store].
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file and its buckets.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open: %v", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketTokens); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketUsers)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltstore: init buckets: %v", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create persists the record and indexes it under the owning user.
func (s *Store) Create(ctx context.Context, rec refresh.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(storedRecord{
		ID:        rec.ID,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	})
	if err != nil {
		return err
	}

	hash := []byte(refresh.HashValue(rec.TokenValue))
	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketTokens).Put(hash, data); err != nil {
			return err
		}
		userBucket, err := tx.Bucket(bucketUsers).CreateBucketIfNotExists([]byte(rec.UserID))
		if err != nil {
			return err
		}
		return userBucket.Put(hash, nil)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	return nil
}

// FindByValue looks up the literal token value; records past their expiry are
// treated as absent even before a sweep removes them.
func (s *Store) FindByValue(ctx context.Context, tokenValue string) (*refresh.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var stored *storedRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTokens).Get([]byte(refresh.HashValue(tokenValue)))
		if data == nil {
			return nil
		}
		var rec storedRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		stored = &rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}
	if stored == nil || time.Now().After(stored.ExpiresAt) {
		return nil, refresh.ErrNotFound
	}

	return &refresh.Record{
		ID:         stored.ID,
		UserID:     stored.UserID,
		TokenValue: tokenValue,
		CreatedAt:  stored.CreatedAt,
		ExpiresAt:  stored.ExpiresAt,
	}, nil
}

// DeleteByValue removes the record inside one write transaction; the
// found-then-deleted check cannot interleave with another writer.
func (s *Store) DeleteByValue(ctx context.Context, tokenValue string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	hash := []byte(refresh.HashValue(tokenValue))
	deleted := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		tokens := tx.Bucket(bucketTokens)
		data := tokens.Get(hash)
		if data == nil {
			return nil
		}

		var rec storedRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if err := tokens.Delete(hash); err != nil {
			return err
		}
		if userBucket := tx.Bucket(bucketUsers).Bucket([]byte(rec.UserID)); userBucket != nil {
			if err := userBucket.Delete(hash); err != nil {
				return err
			}
		}

		deleted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	return deleted, nil
}

// DeleteAllByUser removes every token for the user along with its index.
func (s *Store) DeleteAllByUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		userBucket := users.Bucket([]byte(userID))
		if userBucket == nil {
			return nil
		}

		tokens := tx.Bucket(bucketTokens)
		cursor := userBucket.Cursor()
		for hash, _ := cursor.First(); hash != nil; hash, _ = cursor.Next() {
			if err := tokens.Delete(hash); err != nil {
				return err
			}
		}

		return users.DeleteBucket([]byte(userID))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	return nil
}

// Sweep removes expired records and empty user indexes, returning the number
// of tokens dropped.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	removed := 0
	now := time.Now()

	err := s.db.Update(func(tx *bolt.Tx) error {
		tokens := tx.Bucket(bucketTokens)
		users := tx.Bucket(bucketUsers)

		type expired struct {
			hash   []byte
			userID string
		}
		var victims []expired

		cursor := tokens.Cursor()
		for hash, data := cursor.First(); hash != nil; hash, data = cursor.Next() {
			var rec storedRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				continue
			}
			if now.After(rec.ExpiresAt) {
				victims = append(victims, expired{hash: append([]byte(nil), hash...), userID: rec.UserID})
			}
		}

		for _, v := range victims {
			if err := tokens.Delete(v.hash); err != nil {
				return err
			}
			if userBucket := users.Bucket([]byte(v.userID)); userBucket != nil {
				if err := userBucket.Delete(v.hash); err != nil {
					return err
				}
			}
			removed++
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
	}

	return removed, nil
}
