package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/notablehq/sessionkit/refresh"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, ""), mr
}

func testRecord(userID, value string) refresh.Record {
	return refresh.Record{
		ID:         uuid.NewString(),
		UserID:     userID,
		TokenValue: value,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}

func TestCreateFindRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("u1", "token-value-1")
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.FindByValue(ctx, "token-value-1")
	if err != nil {
		t.Fatalf("FindByValue failed: %v", err)
	}
	if got.ID != rec.ID || got.UserID != "u1" || got.TokenValue != "token-value-1" {
		t.Fatalf("record mismatch: %+v", got)
	}
}

func TestFindMissingIsNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.FindByValue(context.Background(), "never-stored")
	if !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRejectsExpiredRecord(t *testing.T) {
	store, _ := newTestStore(t)

	rec := testRecord("u1", "v")
	rec.ExpiresAt = time.Now().Add(-time.Minute)
	if err := store.Create(context.Background(), rec); err == nil {
		t.Fatal("expected error for already-expired record")
	}
}

func TestDeleteByValueSingleWinner(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRecord("u1", "v1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	deleted, err := store.DeleteByValue(ctx, "v1")
	if err != nil {
		t.Fatalf("DeleteByValue failed: %v", err)
	}
	if !deleted {
		t.Fatal("first delete must report true")
	}

	deleted, err = store.DeleteByValue(ctx, "v1")
	if err != nil {
		t.Fatalf("second DeleteByValue failed: %v", err)
	}
	if deleted {
		t.Fatal("second delete must report false")
	}

	if _, err := store.FindByValue(ctx, "v1"); !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteAllByUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, v := range []string{"d1", "d2", "d3"} {
		if err := store.Create(ctx, testRecord("u1", v)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if err := store.Create(ctx, testRecord("u2", "other")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.DeleteAllByUser(ctx, "u1"); err != nil {
		t.Fatalf("DeleteAllByUser failed: %v", err)
	}

	for _, v := range []string{"d1", "d2", "d3"} {
		if _, err := store.FindByValue(ctx, v); !errors.Is(err, refresh.ErrNotFound) {
			t.Fatalf("token %q survived DeleteAllByUser", v)
		}
	}

	// Other users are untouched.
	if _, err := store.FindByValue(ctx, "other"); err != nil {
		t.Fatalf("unrelated user's token was deleted: %v", err)
	}
}

func TestDeleteAllByUserIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.DeleteAllByUser(context.Background(), "nobody"); err != nil {
		t.Fatalf("DeleteAllByUser on empty user failed: %v", err)
	}
}

func TestRecordExpiresWithTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("u1", "short")
	rec.ExpiresAt = time.Now().Add(time.Minute)
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.FindByValue(ctx, "short"); !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("expected expiry-driven cleanup, got %v", err)
	}
}
