package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, email, name, passwordHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, name, password_hash, COALESCE(profile_image, ''), is_email_verified, last_active_at, created_at
	`, email, name, passwordHash).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.ProfileImage,
		&user.IsEmailVerified,
		&user.LastActiveAt,
		&user.CreatedAt,
	)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, COALESCE(profile_image, ''), is_email_verified, last_active_at, created_at
		FROM users
		WHERE email=$1
	`, email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, COALESCE(profile_image, ''), is_email_verified, last_active_at, created_at
		FROM users
		WHERE id=$1
	`, userID))
}

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.ProfileImage,
		&user.IsEmailVerified,
		&user.LastActiveAt,
		&user.CreatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) MarkUserVerified(ctx context.Context, email string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_email_verified=TRUE WHERE email=$1`, email)
	if err != nil {
		return fmt.Errorf("mark user verified: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark user verified rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserName(ctx context.Context, userID int64, name string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET name=$2 WHERE id=$1`, userID, name)
	if err != nil {
		return fmt.Errorf("update user name: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserProfileImage(ctx context.Context, userID int64, imageURL string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET profile_image=$2 WHERE id=$1`, userID, imageURL)
	if err != nil {
		return fmt.Errorf("update profile image: %w", err)
	}
	return nil
}

func (s *PostgresStore) TouchUserActivity(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_active_at=NOW() WHERE id=$1`, userID)
	if err != nil {
		return fmt.Errorf("touch user activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveEmailVerification(ctx context.Context, email, code string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_verifications (email, code, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET code=EXCLUDED.code, expires_at=EXCLUDED.expires_at
	`, email, code, expiresAt)
	if err != nil {
		return fmt.Errorf("save email verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEmailVerification(ctx context.Context, email string) (EmailVerification, error) {
	var item EmailVerification
	err := s.db.QueryRowContext(ctx, `
		SELECT email, code, expires_at FROM email_verifications WHERE email=$1
	`, email).Scan(&item.Email, &item.Code, &item.ExpiresAt)
	if err != nil {
		return EmailVerification{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteEmailVerification(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM email_verifications WHERE email=$1`, email)
	if err != nil {
		return fmt.Errorf("delete email verification: %w", err)
	}
	return nil
}

// Session storage on Postgres. The Redis store in internal/session implements
// the same interface and is preferred when configured.

func (s *PostgresStore) SaveSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupSession(ctx context.Context, token string) (int64, error) {
	var userID int64
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, expires_at FROM user_sessions WHERE token=$1
	`, token).Scan(&userID, &expiresAt)
	if err != nil {
		return 0, err
	}
	if time.Now().After(expiresAt) {
		// Lazy cleanup of expired rows.
		_, _ = s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE token=$1`, token)
		return 0, sql.ErrNoRows
	}
	return userID, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertActivity(ctx context.Context, entry ActivityLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (user_id, workspace_id, action_type, content)
		VALUES ($1, $2, $3, $4)
	`, entry.UserID, entry.WorkspaceID, entry.ActionType, entry.Content)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, workspaceID int64, limit int) ([]ActivityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, workspace_id, action_type, content, created_at
		FROM activity_logs
		WHERE workspace_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	items := make([]ActivityLog, 0)
	for rows.Next() {
		var item ActivityLog
		if err := rows.Scan(&item.ID, &item.UserID, &item.WorkspaceID, &item.ActionType, &item.Content, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return items, nil
}

// IsNotFound reports whether err is the storage-level not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
