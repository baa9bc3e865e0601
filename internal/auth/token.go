// Package auth implements signed workspace invite tokens.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// InviteClaims describe a pending invitation into a workspace.
type InviteClaims struct {
	WorkspaceID int64  `json:"wid"`
	Role        string `json:"role"`
	InviterID   int64  `json:"inv"`
	Email       string `json:"email"`
	Exp         int64  `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

func IssueInvite(secret []byte, claims InviteClaims) (string, error) {
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	signature := sign(secret, payload)
	return payload + "." + signature, nil
}

func ParseInvite(secret []byte, token string) (InviteClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return InviteClaims{}, ErrInvalidToken
	}
	payload := parts[0]
	signature := parts[1]

	expected := sign(secret, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return InviteClaims{}, ErrInvalidToken
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return InviteClaims{}, ErrInvalidToken
	}

	var claims InviteClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return InviteClaims{}, ErrInvalidToken
	}
	if claims.WorkspaceID == 0 || claims.Role == "" || claims.Exp == 0 {
		return InviteClaims{}, ErrInvalidToken
	}
	if time.Now().Unix() >= claims.Exp {
		return InviteClaims{}, ErrExpiredToken
	}
	return claims, nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}
