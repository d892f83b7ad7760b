package ratelimit

import (
	"context"
	"sync"
	"time"
)

// cleanupEvery controls how often LocalStore sweeps stale entries: once
// per this many increments, instead of on a background timer.
const cleanupEvery = 128

type localEntry struct {
	count        int
	resetAt      time.Time
	blockedUntil time.Time
}

// LocalStore is an in-process Store backed by a mutex-guarded map. It is
// correct only for a single instance: each process counts independently,
// so a multi-instance deployment should use RedisStore instead.
type LocalStore struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	ops     int
	now     func() time.Time
}

// NewLocalStore creates an empty local store.
func NewLocalStore() *LocalStore {
	return &LocalStore{
		entries: make(map[string]*localEntry),
		now:     time.Now,
	}
}

// WithClock overrides the wall clock, for tests.
func (s *LocalStore) WithClock(now func() time.Time) *LocalStore {
	s.now = now
	return s
}

// Increment implements Store.
func (s *LocalStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.maybeCleanupLocked(now)

	e, ok := s.entries[key]
	if !ok || !now.Before(e.resetAt) {
		if e == nil {
			e = &localEntry{}
			s.entries[key] = e
		}
		e.count = 0
		e.resetAt = now.Add(window)
	}
	e.count++
	return e.count, e.resetAt, nil
}

// Block implements Store.
func (s *LocalStore) Block(_ context.Context, key string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &localEntry{}
		s.entries[key] = e
	}
	e.blockedUntil = s.now().Add(d)
	return nil
}

// IsBlocked implements Store.
func (s *LocalStore) IsBlocked(_ context.Context, key string) (bool, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false, time.Time{}, nil
	}
	now := s.now()
	if e.blockedUntil.IsZero() || !now.Before(e.blockedUntil) {
		e.blockedUntil = time.Time{}
		return false, time.Time{}, nil
	}
	return true, e.blockedUntil, nil
}

// Reset implements Store.
func (s *LocalStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Cleanup implements Store.
func (s *LocalStore) Cleanup(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(s.now())
	return nil
}

// maybeCleanupLocked runs a sweep on a small fraction of increments so
// stale keys do not accumulate without a dedicated timer.
func (s *LocalStore) maybeCleanupLocked(now time.Time) {
	s.ops++
	if s.ops%cleanupEvery != 0 {
		return
	}
	s.cleanupLocked(now)
}

func (s *LocalStore) cleanupLocked(now time.Time) {
	for key, e := range s.entries {
		expired := !now.Before(e.resetAt)
		unblocked := e.blockedUntil.IsZero() || !now.Before(e.blockedUntil)
		if expired && unblocked {
			delete(s.entries, key)
		}
	}
}
