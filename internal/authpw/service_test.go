package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"teamhub/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users  map[int64]store.User
	byMail map[string]int64
	codes  map[string]store.EmailVerification
	nextID int64
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:  make(map[int64]store.User),
		byMail: make(map[string]int64),
		codes:  make(map[string]store.EmailVerification),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if id, ok := m.byMail[email]; ok {
		return m.users[id], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id int64) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) CreateUser(ctx context.Context, email, name, passwordHash string) (store.User, error) {
	m.nextID++
	user := store.User{
		ID:           m.nextID,
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	m.users[user.ID] = user
	m.byMail[email] = user.ID
	return user, nil
}

func (m *mockUserStore) MarkUserVerified(ctx context.Context, email string) error {
	id, ok := m.byMail[email]
	if !ok {
		return errors.New("user not found")
	}
	user := m.users[id]
	user.IsEmailVerified = true
	m.users[id] = user
	return nil
}

func (m *mockUserStore) SaveEmailVerification(ctx context.Context, email, code string, expiresAt time.Time) error {
	m.codes[email] = store.EmailVerification{Email: email, Code: code, ExpiresAt: expiresAt}
	return nil
}

func (m *mockUserStore) GetEmailVerification(ctx context.Context, email string) (store.EmailVerification, error) {
	if v, ok := m.codes[email]; ok {
		return v, nil
	}
	return store.EmailVerification{}, errors.New("not found")
}

func (m *mockUserStore) DeleteEmailVerification(ctx context.Context, email string) error {
	delete(m.codes, email)
	return nil
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	t.Run("successful sign up", func(t *testing.T) {
		resp, err := svc.SignUp(ctx, SignUpRequest{
			Email:    "test@example.com",
			Password: "password123",
			Name:     "Test User",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.UserID == 0 {
			t.Error("expected UserID to be set")
		}
		if len(resp.VerificationCode) != 6 {
			t.Errorf("expected 6-digit code, got %q", resp.VerificationCode)
		}
		if !resp.RequiresEmailVerify {
			t.Error("expected RequiresEmailVerify to be true")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:    "test@example.com",
			Password: "password123",
			Name:     "Test User 2",
		})
		if err == nil {
			t.Error("expected error for duplicate email")
		}
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:    "test2@example.com",
			Password: "short",
			Name:     "Test User",
		})
		if err == nil {
			t.Error("expected error for short password")
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{})
		if err == nil {
			t.Error("expected error for missing fields")
		}
	})

	t.Run("email is normalized", func(t *testing.T) {
		resp, err := svc.SignUp(ctx, SignUpRequest{
			Email:    "  MiXeD@Example.COM ",
			Password: "password123",
			Name:     "Mixed Case",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		user, err := mockStore.GetUserByID(ctx, resp.UserID)
		if err != nil {
			t.Fatalf("GetUserByID failed: %v", err)
		}
		if user.Email != "mixed@example.com" {
			t.Errorf("expected normalized email, got %q", user.Email)
		}
	})
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	t.Run("wrong code", func(t *testing.T) {
		if err := svc.VerifyEmail(ctx, "test@example.com", "000000"); err == nil {
			t.Error("expected error for wrong code")
		}
	})

	t.Run("valid code", func(t *testing.T) {
		if err := svc.VerifyEmail(ctx, "test@example.com", resp.VerificationCode); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		user, _ := mockStore.GetUserByID(ctx, resp.UserID)
		if !user.IsEmailVerified {
			t.Error("expected user to be verified")
		}
	})

	t.Run("code consumed after use", func(t *testing.T) {
		if err := svc.VerifyEmail(ctx, "test@example.com", resp.VerificationCode); err == nil {
			t.Error("expected error reusing consumed code")
		}
	})

	t.Run("expired code", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:    "late@example.com",
			Password: "password123",
			Name:     "Late User",
		})
		if err != nil {
			t.Fatalf("SignUp failed: %v", err)
		}
		v := mockStore.codes["late@example.com"]
		v.ExpiresAt = time.Now().Add(-time.Minute)
		mockStore.codes["late@example.com"] = v

		if err := svc.VerifyEmail(ctx, "late@example.com", v.Code); err == nil {
			t.Error("expected error for expired code")
		}
	})
}

func TestResendCode(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	code, err := svc.ResendCode(ctx, "test@example.com")
	if err != nil {
		t.Fatalf("ResendCode failed: %v", err)
	}
	if len(code) != 6 {
		t.Errorf("expected 6-digit code, got %q", code)
	}

	// Old code is superseded.
	if code != resp.VerificationCode {
		if err := svc.VerifyEmail(ctx, "test@example.com", resp.VerificationCode); err == nil {
			t.Error("expected superseded code to be rejected")
		}
	}
	if err := svc.VerifyEmail(ctx, "test@example.com", code); err != nil {
		t.Fatalf("VerifyEmail with fresh code failed: %v", err)
	}

	if _, err := svc.ResendCode(ctx, "test@example.com"); err == nil {
		t.Error("expected error resending to verified account")
	}
	if _, err := svc.ResendCode(ctx, "unknown@example.com"); err == nil {
		t.Error("expected error for unknown email")
	}
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	t.Run("unverified email", func(t *testing.T) {
		signInResp, err := svc.SignIn(ctx, SignInRequest{
			Email:    "test@example.com",
			Password: "password123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !signInResp.RequiresVerify {
			t.Error("expected RequiresVerify for unverified user")
		}
	})

	if err := svc.VerifyEmail(ctx, "test@example.com", resp.VerificationCode); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	t.Run("successful sign in", func(t *testing.T) {
		signInResp, err := svc.SignIn(ctx, SignInRequest{
			Email:    "test@example.com",
			Password: "password123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if signInResp.User.Email != "test@example.com" {
			t.Errorf("expected email test@example.com, got %s", signInResp.User.Email)
		}
		if signInResp.RequiresVerify {
			t.Error("expected RequiresVerify to be false for verified user")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{
			Email:    "test@example.com",
			Password: "wrongpassword",
		})
		if err == nil {
			t.Error("expected error for wrong password")
		}
	})

	t.Run("non-existent user", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{
			Email:    "nonexistent@example.com",
			Password: "password123",
		})
		if err == nil {
			t.Error("expected error for non-existent user")
		}
	})
}
