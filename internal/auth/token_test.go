package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParseInvite(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueInvite(secret, InviteClaims{
		WorkspaceID: 42,
		Role:        "member",
		InviterID:   1,
		Email:       "avery@example.com",
		Exp:         time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueInvite() error = %v", err)
	}
	claims, err := ParseInvite(secret, issued)
	if err != nil {
		t.Fatalf("ParseInvite() error = %v", err)
	}
	if claims.WorkspaceID != 42 || claims.Role != "member" || claims.Email != "avery@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseInviteRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueInvite(secret, InviteClaims{
		WorkspaceID: 42,
		Role:        "member",
		InviterID:   1,
		Exp:         time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueInvite() error = %v", err)
	}
	_, err = ParseInvite(secret, issued)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseInviteRejectsTamperedSignature(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueInvite(secret, InviteClaims{
		WorkspaceID: 42,
		Role:        "admin",
		InviterID:   1,
		Exp:         time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueInvite() error = %v", err)
	}
	_, err = ParseInvite([]byte("other-secret"), issued)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestParseInviteRejectsGarbage(t *testing.T) {
	for _, token := range []string{"", "abc", "a.b.c", "!!!.???"} {
		if _, err := ParseInvite([]byte("secret"), token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ParseInvite(%q) = %v, want ErrInvalidToken", token, err)
		}
	}
}
