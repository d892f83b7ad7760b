package domain

import "errors"

// Authentication errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrIssuerNotAllowed   = errors.New("token issuer not allowed")
)

// Signed-request errors
var (
	ErrMissingSignature = errors.New("missing signature or timestamp")
	ErrRequestExpired   = errors.New("request expired")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Authorization and throttling errors
var (
	ErrForbidden   = errors.New("insufficient role")
	ErrRateLimited = errors.New("rate limit exceeded")
)
