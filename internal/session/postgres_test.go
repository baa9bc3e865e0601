package session

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeBackend struct {
	mu       sync.Mutex
	sessions map[string]struct {
		userID    int64
		expiresAt time.Time
	}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{sessions: make(map[string]struct {
		userID    int64
		expiresAt time.Time
	})}
}

func (f *fakeBackend) SaveSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[token] = struct {
		userID    int64
		expiresAt time.Time
	}{userID, expiresAt}
	return nil
}

func (f *fakeBackend) LookupSession(ctx context.Context, token string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.sessions[token]
	if !ok || time.Now().After(entry.expiresAt) {
		return 0, sql.ErrNoRows
	}
	return entry.userID, nil
}

func (f *fakeBackend) DeleteSession(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, token)
	return nil
}

func TestPGStoreSaveLookupRevoke(t *testing.T) {
	ctx := context.Background()
	pg := NewPGStore(newFakeBackend(), time.Hour)

	if err := pg.Save(ctx, "sess_abc", 7); err != nil {
		t.Fatalf("save: %v", err)
	}
	userID, err := pg.Lookup(ctx, "sess_abc")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if userID != 7 {
		t.Fatalf("userID = %d, want 7", userID)
	}

	if err := pg.Revoke(ctx, "sess_abc"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := pg.Lookup(ctx, "sess_abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("lookup after revoke: %v, want ErrNotFound", err)
	}
}

func TestPGStoreUnknownToken(t *testing.T) {
	pg := NewPGStore(newFakeBackend(), time.Hour)
	if _, err := pg.Lookup(context.Background(), "sess_nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("lookup: %v, want ErrNotFound", err)
	}
}

func TestPGStoreSlidingExpiry(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	pg := NewPGStore(backend, time.Hour)

	if err := pg.Save(ctx, "sess_slide", 3); err != nil {
		t.Fatalf("save: %v", err)
	}
	before := backend.sessions["sess_slide"].expiresAt

	time.Sleep(10 * time.Millisecond)
	if _, err := pg.Lookup(ctx, "sess_slide"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	after := backend.sessions["sess_slide"].expiresAt
	if !after.After(before) {
		t.Fatalf("expiry not extended: before=%v after=%v", before, after)
	}
}
