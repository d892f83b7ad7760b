package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tendant/admin-gate/internal/httputil"
	"github.com/tendant/admin-gate/pkg/auth"
	"github.com/tendant/admin-gate/pkg/domain"
	"github.com/tendant/admin-gate/pkg/ratelimit"
	"github.com/tendant/admin-gate/pkg/signature"
)

type contextKey string

const (
	// ClaimsKey is the request-context key for verified admin claims.
	ClaimsKey contextKey = "claims"
	// AppIssuerKey is the request-context key for a verified app caller.
	AppIssuerKey contextKey = "app_issuer"
)

// Stage is one step of the pipeline. Stages read the immutable request
// context and accumulate what they learn into the result.
type Stage func(ctx context.Context, rc *RequestContext, res *Result) Outcome

// RouteOptions configures the pipeline for one route group.
type RouteOptions struct {
	// Roles required of admin callers; the super role always passes.
	Roles []string
	// RateClass selects the window policy; empty disables the
	// rate-limit stage for the group.
	RateClass string
	// AllowApp admits app-to-app tokens (which carry no role).
	AllowApp bool
	// RequireSignature demands a signed request instead of a bearer
	// token (machine-to-machine routes).
	RequireSignature bool
	// Anonymous skips the credential stage. Used for login and refresh,
	// which authenticate inside their handlers but still need the
	// rate-limit stage in front.
	Anonymous bool
}

// Authenticator orchestrates the authentication stages and exposes the
// single middleware entry point the route layer consumes.
type Authenticator struct {
	tokens   *auth.TokenService
	protocol *signature.Protocol
	engine   *ratelimit.Engine
	logger   *slog.Logger
	bypass   bool
}

// Config wires the authenticator's collaborators.
type Config struct {
	Tokens   *auth.TokenService
	Protocol *signature.Protocol
	Engine   *ratelimit.Engine
	Logger   *slog.Logger
	// Bypass skips the signature and rate-limit stages for local
	// operation. config.Load refuses to produce a bypassing config in
	// production, so this cannot be reached there.
	Bypass bool
}

// NewAuthenticator creates the pipeline orchestrator.
func NewAuthenticator(cfg Config) *Authenticator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Authenticator{
		tokens:   cfg.Tokens,
		protocol: cfg.Protocol,
		engine:   cfg.Engine,
		logger:   cfg.Logger,
		bypass:   cfg.Bypass,
	}
}

// Stages builds the ordered stage list for a route group:
// credential check, rate limit, role check.
func (a *Authenticator) Stages(opts RouteOptions) []Stage {
	stages := []Stage{}
	switch {
	case opts.Anonymous:
		// credentials checked by the handler itself
	case opts.RequireSignature:
		if !a.bypass {
			stages = append(stages, a.signatureStage())
		}
	default:
		stages = append(stages, a.tokenStage(opts.AllowApp))
	}
	if opts.RateClass != "" && !a.bypass {
		stages = append(stages, a.rateLimitStage(opts.RateClass))
	}
	if len(opts.Roles) > 0 {
		stages = append(stages, a.roleStage(opts.Roles))
	}
	return stages
}

// Run executes the stages in order, stopping at the first rejection.
func (a *Authenticator) Run(ctx context.Context, rc *RequestContext, stages []Stage) (*Result, Outcome) {
	res := &Result{}
	for _, stage := range stages {
		if out := stage(ctx, rc, res); out.Rejected() {
			return res, out
		}
	}
	return res, Continue()
}

// Middleware adapts the pipeline to chi. On success the verified caller
// identity is placed on the request context; on rejection the stage's
// status and code are written and nothing further runs.
func (a *Authenticator) Middleware(opts RouteOptions) func(http.Handler) http.Handler {
	stages := a.Stages(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := NewRequestContext(r)
			res, out := a.Run(r.Context(), rc, stages)

			if res.Decision != nil {
				writeRateLimitHeaders(w, res.Decision)
			}
			if out.Rejected() {
				a.reject(w, res, out)
				return
			}

			ctx := r.Context()
			if res.Claims != nil {
				ctx = context.WithValue(ctx, ClaimsKey, res.Claims)
			}
			if res.AppIssuer != "" {
				ctx = context.WithValue(ctx, AppIssuerKey, res.AppIssuer)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// signatureStage authenticates machine-to-machine calls via the HMAC
// protocol. Missing protocol configuration means signing is disabled
// (development only) and the stage degrades to pass-through.
func (a *Authenticator) signatureStage() Stage {
	return func(_ context.Context, rc *RequestContext, _ *Result) Outcome {
		if a.protocol == nil {
			return Continue()
		}
		if rc.Signature == "" || !rc.HasTimestamp {
			return Reject(http.StatusUnauthorized, httputil.CodeMissingCredentials)
		}
		err := a.protocol.Verify(rc.Method, rc.Path, rc.TimestampMillis, rc.Body, rc.Signature)
		switch {
		case err == nil:
			return Continue()
		case errors.Is(err, domain.ErrRequestExpired):
			return Reject(http.StatusUnauthorized, httputil.CodeTokenExpired)
		default:
			return Reject(http.StatusUnauthorized, httputil.CodeInvalidSignature)
		}
	}
}

// tokenStage authenticates session-bound admin tokens, falling back to
// the stateless app-to-app class when the issuer is not the gateway's
// own and the route admits applications.
func (a *Authenticator) tokenStage(allowApp bool) Stage {
	return func(ctx context.Context, rc *RequestContext, res *Result) Outcome {
		if rc.BearerToken == "" {
			return Reject(http.StatusUnauthorized, httputil.CodeMissingCredentials)
		}

		claims, err := a.tokens.VerifyAccessToken(ctx, rc.BearerToken)
		if err == nil {
			res.Claims = claims
			return Continue()
		}

		if errors.Is(err, domain.ErrIssuerNotAllowed) && allowApp {
			appClaims, appErr := a.tokens.VerifyAppToken(rc.BearerToken)
			if appErr == nil {
				res.AppIssuer = appClaims.Issuer
				return Continue()
			}
			err = appErr
		}

		switch {
		case errors.Is(err, domain.ErrTokenExpired):
			return Reject(http.StatusUnauthorized, httputil.CodeTokenExpired)
		default:
			// Session-gone, unknown-issuer and malformed tokens are all
			// reported identically to avoid oracle leaks.
			return Reject(http.StatusUnauthorized, httputil.CodeInvalidToken)
		}
	}
}

// rateLimitStage counts the request against the caller's composite key
// and denies once blocked or over the ceiling.
func (a *Authenticator) rateLimitStage(class string) Stage {
	return func(ctx context.Context, rc *RequestContext, res *Result) Outcome {
		key := RateKey(rc, res, class)
		decision, err := a.engine.Allow(ctx, key, class)
		if err != nil {
			a.logger.Error("rate limit check failed", "key", key, "error", err)
			// A broken counter store must not take the API down.
			return Continue()
		}
		res.Decision = &decision
		if !decision.Allowed {
			return Reject(http.StatusTooManyRequests, "rate_limited")
		}
		return Continue()
	}
}

// roleStage gates already-authenticated callers on the route's required
// role set.
func (a *Authenticator) roleStage(roles []string) Stage {
	return func(_ context.Context, _ *RequestContext, res *Result) Outcome {
		if res.Claims == nil {
			if res.AppIssuer != "" {
				return Reject(http.StatusForbidden, "application tokens cannot satisfy role requirements")
			}
			return Reject(http.StatusUnauthorized, httputil.CodeMissingCredentials)
		}
		if err := auth.RequireRole(res.Claims.Role, roles...); err != nil {
			return Reject(http.StatusForbidden, err.Error())
		}
		return Continue()
	}
}

// RateKey builds the composite rate-limit key: route class, caller IP,
// and the authenticated subject when known.
func RateKey(rc *RequestContext, res *Result, class string) string {
	key := AnonRateKey(class, rc.IP)
	if res.Claims != nil {
		key += ":sub:" + res.Claims.Subject
	}
	return key
}

// AnonRateKey is the rate-limit key for a caller known only by IP.
// Handlers that reset counters after a successful login use the same key
// the pipeline counted under.
func AnonRateKey(class, ip string) string {
	return fmt.Sprintf("%s:ip:%s", class, ip)
}

func (a *Authenticator) reject(w http.ResponseWriter, res *Result, out Outcome) {
	if out.Status == http.StatusTooManyRequests && res.Decision != nil {
		retryAfter := int(res.Decision.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		httputil.JSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":       "rate limit exceeded",
			"retry_after": retryAfter,
		})
		return
	}
	httputil.Error(w, out.Status, out.Code)
}

func writeRateLimitHeaders(w http.ResponseWriter, d *domain.RateLimitDecision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// GetClaims extracts verified admin claims from the request context.
func GetClaims(ctx context.Context) (*auth.AccessTokenClaims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.AccessTokenClaims)
	return claims, ok
}

// GetAppIssuer extracts the verified app caller from the request context.
func GetAppIssuer(ctx context.Context) (string, bool) {
	issuer, ok := ctx.Value(AppIssuerKey).(string)
	return issuer, ok
}
