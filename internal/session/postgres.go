package session

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresBackend is the slice of the database store the session layer
// needs. *store.PostgresStore satisfies it.
type PostgresBackend interface {
	SaveSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	LookupSession(ctx context.Context, token string) (int64, error)
	DeleteSession(ctx context.Context, token string) error
}

// PGStore keeps sessions in the user_sessions table. It is the
// fallback when no Redis URL is configured and behaves like
// RedisStore, including the sliding expiry on lookup.
type PGStore struct {
	backend PostgresBackend
	ttl     time.Duration
}

func NewPGStore(backend PostgresBackend, ttl time.Duration) *PGStore {
	return &PGStore{backend: backend, ttl: ttl}
}

func (s *PGStore) Save(ctx context.Context, token string, userID int64) error {
	return s.backend.SaveSession(ctx, token, userID, time.Now().Add(s.ttl))
}

func (s *PGStore) Lookup(ctx context.Context, token string) (int64, error) {
	userID, err := s.backend.LookupSession(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	// Sliding expiry: an active session stays alive.
	_ = s.backend.SaveSession(ctx, token, userID, time.Now().Add(s.ttl))
	return userID, nil
}

func (s *PGStore) Revoke(ctx context.Context, token string) error {
	return s.backend.DeleteSession(ctx, token)
}
