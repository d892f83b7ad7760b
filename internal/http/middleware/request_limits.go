package middleware

import (
	"net/http"
)

// DefaultMaxBodySize bounds request bodies. Admin API payloads are
// small; anything larger is hostile or broken.
const DefaultMaxBodySize = 1 << 20 // 1 MiB

// RequestSizeLimit creates middleware that limits the maximum request
// body size.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
