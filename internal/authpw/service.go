// Package authpw provides email/password authentication with
// code-based email verification.
package authpw

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"teamhub/api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// Verification codes stay valid for a day.
const codeTTL = 24 * time.Hour

// ErrEmailTaken is returned by SignUp when the address is registered.
var ErrEmailTaken = errors.New("email already registered")

// Service provides email/password authentication
type Service struct {
	store UserStore
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id int64) (store.User, error)
	CreateUser(ctx context.Context, email, name, passwordHash string) (store.User, error)
	MarkUserVerified(ctx context.Context, email string) error
	SaveEmailVerification(ctx context.Context, email, code string, expiresAt time.Time) error
	GetEmailVerification(ctx context.Context, email string) (store.EmailVerification, error)
	DeleteEmailVerification(ctx context.Context, email string) error
}

// NewService creates a new auth service
func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email    string
	Password string
	Name     string
}

// SignUpResponse contains sign-up result
type SignUpResponse struct {
	UserID              int64
	VerificationCode    string
	RequiresEmailVerify bool
}

// SignUp creates a new user account and issues a verification code the
// caller is expected to deliver by email.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return nil, errors.New("email, password, and name are required")
	}
	if len(req.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	// Check if email already exists
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, email, req.Name, string(hash))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("generate verification code: %w", err)
	}
	if err := s.store.SaveEmailVerification(ctx, email, code, time.Now().Add(codeTTL)); err != nil {
		return nil, fmt.Errorf("save verification code: %w", err)
	}

	return &SignUpResponse{
		UserID:              user.ID,
		VerificationCode:    code,
		RequiresEmailVerify: true,
	}, nil
}

// ResendCode issues a fresh verification code for an unverified account.
func (s *Service) ResendCode(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", errors.New("email not registered")
	}
	if user.IsEmailVerified {
		return "", errors.New("email already verified")
	}

	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	if err := s.store.SaveEmailVerification(ctx, email, code, time.Now().Add(codeTTL)); err != nil {
		return "", fmt.Errorf("save verification code: %w", err)
	}
	return code, nil
}

// VerifyEmail checks a verification code and marks the account verified.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) error {
	if email == "" || code == "" {
		return errors.New("email and code are required")
	}
	email = strings.ToLower(strings.TrimSpace(email))

	stored, err := s.store.GetEmailVerification(ctx, email)
	if err != nil {
		return errors.New("invalid or expired verification code")
	}
	if stored.Code != code || time.Now().After(stored.ExpiresAt) {
		return errors.New("invalid or expired verification code")
	}

	if err := s.store.MarkUserVerified(ctx, email); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	// Best effort; an orphaned code expires on its own.
	_ = s.store.DeleteEmailVerification(ctx, email)
	return nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignInResponse contains sign-in result
type SignInResponse struct {
	User           store.User
	RequiresVerify bool
}

// SignIn authenticates a user
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, errors.New("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid email or password")
	}

	if !user.IsEmailVerified {
		return &SignInResponse{User: user, RequiresVerify: true}, nil
	}

	return &SignInResponse{User: user}, nil
}

// generateCode returns a 6-digit numeric verification code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
