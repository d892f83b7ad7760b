// Package guard implements the request-authentication pipeline placed in
// front of the admin API: an ordered list of stages with a uniform
// outcome, short-circuiting on the first rejection. The pipeline runs
// after the path-obfuscation gate and before the business handler.
package guard

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tendant/admin-gate/internal/httputil"
	"github.com/tendant/admin-gate/pkg/auth"
	"github.com/tendant/admin-gate/pkg/domain"
)

// Header names the pipeline reads.
const (
	HeaderSignature   = "X-Signature"
	HeaderTimestamp   = "X-Timestamp"
	HeaderRouteSecret = "X-Admin-Route"
)

// RequestContext is the immutable per-request view the stages consume,
// assembled once from the incoming request.
type RequestContext struct {
	Method          string
	Path            string
	IP              string
	UserAgent       string
	BearerToken     string
	Signature       string
	TimestampMillis int64
	HasTimestamp    bool
	Body            []byte
}

// Result accumulates what the stages learn about the caller.
type Result struct {
	Claims    *auth.AccessTokenClaims
	AppIssuer string
	Decision  *domain.RateLimitDecision
}

// NewRequestContext assembles the request context. For signed requests
// the body is read up front (and restored on the request) so the
// signature can cover it.
func NewRequestContext(r *http.Request) *RequestContext {
	rc := &RequestContext{
		Method:    r.Method,
		Path:      r.URL.Path,
		IP:        ClientIP(r),
		UserAgent: r.UserAgent(),
		Signature: r.Header.Get(HeaderSignature),
	}

	if raw := r.Header.Get("Authorization"); raw != "" {
		parts := strings.SplitN(raw, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			rc.BearerToken = parts[1]
		}
	}
	// Browser clients carry the access token in a cookie instead of the
	// Authorization header.
	if rc.BearerToken == "" {
		if token, ok := httputil.GetAccessTokenFromCookie(r); ok {
			rc.BearerToken = token
		}
	}

	if raw := r.Header.Get(HeaderTimestamp); raw != "" {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			rc.TimestampMillis = ts
			rc.HasTimestamp = true
		}
	}

	if rc.Signature != "" && r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err == nil {
			rc.Body = body
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
	}

	return rc
}

// ClientIP extracts the client IP using the defined header precedence:
// the platform's connecting-IP header, then the first forwarded-for hop,
// then real-IP, then the socket address, else "unknown".
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, found := strings.Cut(forwarded, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if r.RemoteAddr != "" {
		addr := r.RemoteAddr
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}
	return "unknown"
}
