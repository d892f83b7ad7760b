package ratelimit

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testEngine(classes map[string]Class, clock *mutableClock) *Engine {
	store := NewLocalStore().WithClock(clock.Now)
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return NewEngine(store, classes, logger).WithClock(clock.Now)
}

func TestEngineWindowCeiling(t *testing.T) {
	ctx := context.Background()
	clock := newMutableClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	classes := map[string]Class{
		ClassGeneral: {Limit: 5, Window: 60000 * time.Millisecond},
	}
	engine := testEngine(classes, clock)

	for i := 1; i <= 5; i++ {
		d, err := engine.Allow(ctx, "ip:1.2.3.4", ClassGeneral)
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("call %d: Allowed = false, want true", i)
		}
		if d.Remaining != 5-i {
			t.Fatalf("call %d: Remaining = %d, want %d", i, d.Remaining, 5-i)
		}
	}

	// 6th call within the window is denied.
	d, err := engine.Allow(ctx, "ip:1.2.3.4", ClassGeneral)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if d.Allowed {
		t.Fatal("6th call within window: Allowed = true, want false")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("denied decision RetryAfter = %v, want > 0", d.RetryAfter)
	}

	// After the window resets the count restarts at 1.
	clock.Advance(61 * time.Second)
	d, err = engine.Allow(ctx, "ip:1.2.3.4", ClassGeneral)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if !d.Allowed {
		t.Fatal("call after window reset: Allowed = false, want true")
	}
	if d.Remaining != 4 {
		t.Fatalf("call after window reset: Remaining = %d, want 4", d.Remaining)
	}
}

func TestEngineProgressiveLockout(t *testing.T) {
	ctx := context.Background()
	clock := newMutableClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	classes := map[string]Class{
		ClassLogin: {
			Limit:       2,
			Window:      15 * time.Minute,
			Progressive: true,
			BlockUnit:   5 * time.Minute,
			BlockCap:    10,
		},
	}
	engine := testEngine(classes, clock)

	for i := 0; i < 2; i++ {
		if d, _ := engine.Allow(ctx, "ip:9.9.9.9", ClassLogin); !d.Allowed {
			t.Fatalf("call %d within ceiling denied", i+1)
		}
	}

	// First excess attempt: blocked for one unit.
	d, err := engine.Allow(ctx, "ip:9.9.9.9", ClassLogin)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if d.Allowed {
		t.Fatal("excess attempt allowed")
	}
	if d.RetryAfter != 5*time.Minute {
		t.Fatalf("first excess block = %v, want 5m", d.RetryAfter)
	}

	// While blocked, further calls are denied without consuming the window.
	d, err = engine.Allow(ctx, "ip:9.9.9.9", ClassLogin)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if d.Allowed {
		t.Fatal("call during block allowed")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > 5*time.Minute {
		t.Fatalf("RetryAfter during block = %v, want (0, 5m]", d.RetryAfter)
	}
}

func TestEngineResetAfterLogin(t *testing.T) {
	ctx := context.Background()
	clock := newMutableClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	classes := map[string]Class{
		ClassLogin: {Limit: 5, Window: 15 * time.Minute, Progressive: true, BlockUnit: 5 * time.Minute, BlockCap: 10},
	}
	engine := testEngine(classes, clock)

	for i := 0; i < 4; i++ {
		engine.Allow(ctx, "ip:1.1.1.1", ClassLogin)
	}
	if err := engine.Reset(ctx, "ip:1.1.1.1"); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}

	d, err := engine.Allow(ctx, "ip:1.1.1.1", ClassLogin)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if d.Remaining != 4 {
		t.Fatalf("Remaining after reset = %d, want 4", d.Remaining)
	}
}

func TestEngineUnknownClass(t *testing.T) {
	clock := newMutableClock(time.Now())
	engine := testEngine(map[string]Class{}, clock)
	if _, err := engine.Allow(context.Background(), "k", "nope"); err == nil {
		t.Fatal("Allow() with unknown class: error = nil, want non-nil")
	}
}

func TestBlockDurationMonotoneAndCapped(t *testing.T) {
	unit := 5 * time.Minute
	prev := time.Duration(0)
	for excess := 1; excess <= 12; excess++ {
		d := BlockDuration(excess, unit, 10)
		if d < prev {
			t.Fatalf("BlockDuration(%d) = %v < previous %v, want non-decreasing", excess, d, prev)
		}
		prev = d
	}
	if got, want := BlockDuration(12, unit, 10), 50*time.Minute; got != want {
		t.Fatalf("BlockDuration(12) = %v, want cap %v", got, want)
	}
	if got, want := BlockDuration(0, unit, 10), 5*time.Minute; got != want {
		t.Fatalf("BlockDuration(0) = %v, want floor %v", got, want)
	}
}
