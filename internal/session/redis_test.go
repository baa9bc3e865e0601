package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLookup(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	token := "test-token"

	if err := store.Save(ctx, token, 123); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	userID, err := store.Lookup(ctx, token)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if userID != 123 {
		t.Errorf("expected user 123, got %d", userID)
	}
}

func TestLookupExpired(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://"+s.Addr(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "expiring", 42); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s.FastForward(20 * time.Millisecond)

	_, err = store.Lookup(ctx, "expiring")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired session, got %v", err)
	}
}

func TestLookupNonExistent(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	_, err := store.Lookup(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLookupRefreshesTTL(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://"+s.Addr(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "sliding", 7); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Each lookup pushes the expiry out.
	s.FastForward(60 * time.Millisecond)
	if _, err := store.Lookup(ctx, "sliding"); err != nil {
		t.Fatalf("Lookup after 60ms failed: %v", err)
	}

	s.FastForward(60 * time.Millisecond)
	if _, err := store.Lookup(ctx, "sliding"); err != nil {
		t.Errorf("expected session alive after refreshed TTL, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "revoke-me", 9); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Revoke(ctx, "revoke-me"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err := store.Lookup(ctx, "revoke-me"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after revoke, got %v", err)
	}

	// Revoking again is a no-op.
	if err := store.Revoke(ctx, "revoke-me"); err != nil {
		t.Errorf("Revoke of unknown token failed: %v", err)
	}
}

func TestSessionIsolation(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "token-1", 1); err != nil {
		t.Fatalf("Save 1 failed: %v", err)
	}
	if err := store.Save(ctx, "token-2", 2); err != nil {
		t.Fatalf("Save 2 failed: %v", err)
	}

	if err := store.Revoke(ctx, "token-1"); err != nil {
		t.Fatalf("Revoke token-1 failed: %v", err)
	}

	if _, err := store.Lookup(ctx, "token-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected token-1 gone, got %v", err)
	}

	userID, err := store.Lookup(ctx, "token-2")
	if err != nil {
		t.Fatalf("Lookup token-2 failed: %v", err)
	}
	if userID != 2 {
		t.Errorf("expected user 2, got %d", userID)
	}
}
