package domain

import "time"

// AccessAttempt records a single pass through the path-obfuscation gate.
// Attempts live in a bounded in-memory ring and feed the suspicious-access
// detector; they are not an audit log.
type AccessAttempt struct {
	IP        string
	UserAgent string
	Path      string
	At        time.Time
	Valid     bool
}
