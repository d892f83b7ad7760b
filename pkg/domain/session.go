package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session represents an authenticated admin session. A session row is
// created on login, consulted on every admin-token verification, and
// deleted on logout or expiry.
type Session struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Role       string
	TokenHash  string
	IP         string
	UserAgent  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt *time.Time
}

// IsValid reports whether the session is still usable at the given time.
func (s *Session) IsValid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// TokenPair represents the access and refresh token pair returned on login.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}
