// Package detect tracks recent access attempts against the obfuscated
// admin surface and raises heuristic alerts for suspicious callers: IPs
// accumulating invalid attempts and bot-like User-Agent strings. Alerts
// are advisory; they never make access-control decisions.
package detect

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tendant/admin-gate/pkg/domain"
)

const (
	// DefaultRingSize bounds the attempt buffer; oldest entries are
	// overwritten first.
	DefaultRingSize = 1024

	// DefaultThreshold is the number of invalid attempts within the
	// trailing window before an IP is flagged.
	DefaultThreshold = 5

	// DefaultWindow is the trailing window for tallying invalid attempts.
	DefaultWindow = 5 * time.Minute
)

// botPatterns are lowercase substrings matched against User-Agent
// strings. Common crawlers, CLI HTTP clients, and scanner tooling.
var botPatterns = []string{
	"googlebot",
	"bingbot",
	"crawler",
	"spider",
	"scraper",
	"curl",
	"wget",
	"python",
	"go-http-client",
	"scanner",
	"automated",
	"test",
	"bot",
}

// Config holds detector tuning.
type Config struct {
	RingSize  int
	Threshold int
	Window    time.Duration
	Logger    *slog.Logger
}

// Detector owns the attempt ring buffer and the suspicious-IP set. All
// methods are safe for concurrent use.
type Detector struct {
	mu         sync.Mutex
	attempts   []domain.AccessAttempt
	next       int
	filled     bool
	suspicious map[string]bool
	flaggedBot map[string]bool

	threshold int
	window    time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a detector. Zero config fields fall back to defaults.
func New(cfg Config) *Detector {
	if cfg.RingSize <= 0 {
		cfg.RingSize = DefaultRingSize
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Detector{
		attempts:   make([]domain.AccessAttempt, cfg.RingSize),
		suspicious: make(map[string]bool),
		flaggedBot: make(map[string]bool),
		threshold:  cfg.Threshold,
		window:     cfg.Window,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// WithClock overrides the wall clock, for tests.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Record adds one attempt to the ring and runs the heuristics: invalid
// attempts are tallied per IP within the trailing window, and bot-like
// User-Agents raise a one-time alert per IP.
func (d *Detector) Record(a domain.AccessAttempt) {
	if a.At.IsZero() {
		a.At = d.now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.attempts[d.next] = a
	d.next++
	if d.next == len(d.attempts) {
		d.next = 0
		d.filled = true
	}

	if IsBotUserAgent(a.UserAgent) && !d.flaggedBot[a.IP] {
		d.flaggedBot[a.IP] = true
		d.logger.Warn("security alert: bot-like user agent",
			"ip", a.IP,
			"user_agent", a.UserAgent,
			"path", a.Path,
		)
	}

	if a.Valid || d.suspicious[a.IP] {
		return
	}

	if d.invalidCountLocked(a.IP) >= d.threshold {
		d.suspicious[a.IP] = true
		d.logger.Warn("security alert: repeated invalid access attempts",
			"ip", a.IP,
			"threshold", d.threshold,
			"window", d.window,
		)
	}
}

// IsSuspicious reports whether the IP has been flagged.
func (d *Detector) IsSuspicious(ip string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suspicious[ip]
}

func (d *Detector) invalidCountLocked(ip string) int {
	cutoff := d.now().Add(-d.window)
	n := len(d.attempts)
	if !d.filled {
		n = d.next
	}

	count := 0
	for i := 0; i < n; i++ {
		a := d.attempts[i]
		if !a.Valid && a.IP == ip && a.At.After(cutoff) {
			count++
		}
	}
	return count
}

// IsBotUserAgent classifies a User-Agent string against known bot and
// tooling patterns. An empty User-Agent counts as bot-like.
func IsBotUserAgent(ua string) bool {
	if ua == "" {
		return true
	}
	lower := strings.ToLower(ua)
	for _, p := range botPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
