package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// mutableClock lets tests advance time manually.
type mutableClock struct {
	mu sync.Mutex
	t  time.Time
}

func newMutableClock(start time.Time) *mutableClock {
	return &mutableClock{t: start}
}

func (c *mutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *mutableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestLocalStoreIncrementWindow(t *testing.T) {
	ctx := context.Background()
	clock := newMutableClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := NewLocalStore().WithClock(clock.Now)

	for i := 1; i <= 3; i++ {
		count, _, err := store.Increment(ctx, "ip:1.2.3.4", time.Minute)
		if err != nil {
			t.Fatalf("Increment() error: %v", err)
		}
		if count != i {
			t.Fatalf("Increment() count = %d, want %d", count, i)
		}
	}

	// A different key counts independently.
	count, _, err := store.Increment(ctx, "ip:5.6.7.8", time.Minute)
	if err != nil {
		t.Fatalf("Increment() error: %v", err)
	}
	if count != 1 {
		t.Fatalf("Increment() other key count = %d, want 1", count)
	}

	// After the window elapses the count restarts at 1.
	clock.Advance(61 * time.Second)
	count, _, err = store.Increment(ctx, "ip:1.2.3.4", time.Minute)
	if err != nil {
		t.Fatalf("Increment() error: %v", err)
	}
	if count != 1 {
		t.Fatalf("Increment() after window = %d, want 1", count)
	}
}

func TestLocalStoreBlockExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newMutableClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := NewLocalStore().WithClock(clock.Now)

	if err := store.Block(ctx, "ip:1.2.3.4", 10*time.Minute); err != nil {
		t.Fatalf("Block() error: %v", err)
	}

	blocked, until, err := store.IsBlocked(ctx, "ip:1.2.3.4")
	if err != nil {
		t.Fatalf("IsBlocked() error: %v", err)
	}
	if !blocked {
		t.Fatal("IsBlocked() = false immediately after Block()")
	}
	if want := clock.Now().Add(10 * time.Minute); !until.Equal(want) {
		t.Fatalf("IsBlocked() until = %v, want %v", until, want)
	}

	clock.Advance(10*time.Minute + time.Second)
	blocked, _, err = store.IsBlocked(ctx, "ip:1.2.3.4")
	if err != nil {
		t.Fatalf("IsBlocked() error: %v", err)
	}
	if blocked {
		t.Fatal("IsBlocked() = true after block expired")
	}
}

func TestLocalStoreReset(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore()

	store.Increment(ctx, "k", time.Minute)
	store.Increment(ctx, "k", time.Minute)
	store.Block(ctx, "k", time.Hour)

	if err := store.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}

	blocked, _, _ := store.IsBlocked(ctx, "k")
	if blocked {
		t.Fatal("IsBlocked() = true after Reset()")
	}
	count, _, _ := store.Increment(ctx, "k", time.Minute)
	if count != 1 {
		t.Fatalf("Increment() after Reset() = %d, want 1", count)
	}
}

func TestLocalStoreCleanup(t *testing.T) {
	ctx := context.Background()
	clock := newMutableClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := NewLocalStore().WithClock(clock.Now)

	store.Increment(ctx, "stale", time.Minute)
	store.Block(ctx, "blocked", time.Hour)

	clock.Advance(2 * time.Minute)
	if err := store.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup() error: %v", err)
	}

	store.mu.Lock()
	_, staleKept := store.entries["stale"]
	_, blockedKept := store.entries["blocked"]
	store.mu.Unlock()

	if staleKept {
		t.Error("Cleanup() kept an expired, unblocked entry")
	}
	if !blockedKept {
		t.Error("Cleanup() removed an entry still under a block")
	}
}

// Concurrent increments on the same key must each land exactly once.
func TestLocalStoreConcurrentIncrement(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore()

	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				if _, _, err := store.Increment(ctx, "shared", time.Hour); err != nil {
					t.Errorf("Increment() error: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	count, _, err := store.Increment(ctx, "shared", time.Hour)
	if err != nil {
		t.Fatalf("Increment() error: %v", err)
	}
	if want := goroutines*perGoroutine + 1; count != want {
		t.Fatalf("final count = %d, want %d (lost or doubled updates)", count, want)
	}
}
