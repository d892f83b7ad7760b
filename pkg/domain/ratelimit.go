package domain

import "time"

// RateLimitDecision reports the outcome of a rate-limit check for one
// request. Limit/Remaining/ResetAt are populated on every counted request
// so callers can surface X-RateLimit headers; RetryAfter is set only when
// the request is denied.
type RateLimitDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}
