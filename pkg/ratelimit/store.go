// Package ratelimit bounds request rates per caller key and escalates
// blocking for sustained abuse. Counting is backed by a pluggable Store so
// a single-process deployment can use in-memory counters while a
// multi-instance deployment shares counters through Redis.
package ratelimit

import (
	"context"
	"time"
)

// Store is the counter backend behind the lockout engine. Implementations
// must make every operation atomic with respect to concurrent callers
// sharing the same key.
type Store interface {
	// Increment bumps the fixed-window counter for key, starting a new
	// window when the previous one has elapsed. It returns the count
	// including this call and the time the window resets.
	Increment(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)

	// Block denies the key outright until now+d.
	Block(ctx context.Context, key string, d time.Duration) error

	// IsBlocked reports whether the key is currently blocked and until
	// when. An elapsed block is treated as cleared.
	IsBlocked(ctx context.Context, key string) (blocked bool, until time.Time, err error)

	// Reset clears the counter and any block for the key. Called after a
	// successful login so legitimate users are not punished for earlier
	// typos.
	Reset(ctx context.Context, key string) error

	// Cleanup purges stale entries. Stores with native expiry may make
	// this a no-op.
	Cleanup(ctx context.Context) error
}
