package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/admin-gate/pkg/domain"
)

// Endpoint classes with distinct window policies.
const (
	ClassLogin   = "login"
	ClassRefresh = "refresh"
	ClassGeneral = "general"
)

// Class describes the window policy for one endpoint class. When
// Progressive is set, exceeding the ceiling escalates to a hard block of
// min(excess, BlockCap) * BlockUnit.
type Class struct {
	Limit       int
	Window      time.Duration
	Progressive bool
	BlockUnit   time.Duration
	BlockCap    int
}

// DefaultClasses returns the built-in window policies: a small ceiling
// with progressive lockout for login, a mid-sized window for refresh, and
// a short permissive window for general authenticated traffic.
func DefaultClasses() map[string]Class {
	return map[string]Class{
		ClassLogin: {
			Limit:       5,
			Window:      15 * time.Minute,
			Progressive: true,
			BlockUnit:   5 * time.Minute,
			BlockCap:    10,
		},
		ClassRefresh: {
			Limit:  10,
			Window: 5 * time.Minute,
		},
		ClassGeneral: {
			Limit:  30,
			Window: time.Minute,
		},
	}
}

// Engine layers progressive lockout on top of a Store.
type Engine struct {
	store   Store
	classes map[string]Class
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates a lockout engine. Nil classes falls back to
// DefaultClasses.
func NewEngine(store Store, classes map[string]Class, logger *slog.Logger) *Engine {
	if classes == nil {
		classes = DefaultClasses()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		classes: classes,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the wall clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Allow counts one request against key under the given class and decides
// whether it may proceed. Concurrent calls for the same key are each
// counted exactly once; ordering between them is unspecified.
func (e *Engine) Allow(ctx context.Context, key, class string) (domain.RateLimitDecision, error) {
	cls, ok := e.classes[class]
	if !ok {
		return domain.RateLimitDecision{}, fmt.Errorf("unknown rate limit class %q", class)
	}

	blocked, until, err := e.store.IsBlocked(ctx, key)
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	if blocked {
		return domain.RateLimitDecision{
			Allowed:    false,
			Limit:      cls.Limit,
			Remaining:  0,
			ResetAt:    until,
			RetryAfter: until.Sub(e.now()),
		}, nil
	}

	count, resetAt, err := e.store.Increment(ctx, key, cls.Window)
	if err != nil {
		return domain.RateLimitDecision{}, err
	}

	if count > cls.Limit {
		decision := domain.RateLimitDecision{
			Allowed:   false,
			Limit:     cls.Limit,
			Remaining: 0,
			ResetAt:   resetAt,
		}

		if cls.Progressive {
			blockFor := BlockDuration(count-cls.Limit, cls.BlockUnit, cls.BlockCap)
			if err := e.store.Block(ctx, key, blockFor); err != nil {
				return domain.RateLimitDecision{}, err
			}
			decision.ResetAt = e.now().Add(blockFor)
			decision.RetryAfter = blockFor
			e.logger.Warn("progressive lockout engaged",
				"key", key,
				"class", class,
				"count", count,
				"blocked_for", blockFor,
			)
		} else {
			decision.RetryAfter = resetAt.Sub(e.now())
		}
		return decision, nil
	}

	return domain.RateLimitDecision{
		Allowed:   true,
		Limit:     cls.Limit,
		Remaining: cls.Limit - count,
		ResetAt:   resetAt,
	}, nil
}

// Reset clears counters and blocks for a key, typically after a
// successful login.
func (e *Engine) Reset(ctx context.Context, key string) error {
	return e.store.Reset(ctx, key)
}

// BlockDuration computes the progressive block length for a given excess
// attempt count: excess units of blocking, capped at cap units.
func BlockDuration(excess int, unit time.Duration, cap int) time.Duration {
	if excess < 1 {
		excess = 1
	}
	if cap > 0 && excess > cap {
		excess = cap
	}
	return time.Duration(excess) * unit
}
