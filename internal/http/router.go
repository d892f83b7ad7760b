package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/admin-gate/internal/guard"
	"github.com/tendant/admin-gate/internal/http/features/admin"
	"github.com/tendant/admin-gate/internal/http/features/session"
	"github.com/tendant/admin-gate/internal/http/middleware"
	"github.com/tendant/admin-gate/internal/httputil"
	"github.com/tendant/admin-gate/pkg/auth"
	"github.com/tendant/admin-gate/pkg/domain"
	"github.com/tendant/admin-gate/pkg/ratelimit"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger       *slog.Logger
	Gate         *guard.PathGate
	Auth         *guard.Authenticator
	Users        session.UserStore
	Sessions     admin.SessionDirectory
	Tokens       *auth.TokenService
	Engine       *ratelimit.Engine
	CookieConfig httputil.CookieConfig

	// MaxBodySize bounds request bodies; zero selects the default.
	MaxBodySize int64

	// RateLimitDisabled turns off the coarse per-IP flood limiter. The
	// pipeline's per-endpoint stages are controlled separately through
	// the authenticator's bypass.
	RateLimitDisabled bool
}

// NewRouter creates the HTTP router with all routes registered. The path
// gate runs ahead of routing so secret-prefixed paths are rewritten to
// their canonical form before chi matches them.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RequestSizeLimit(cfg.MaxBodySize))
	r.Use(cfg.Gate.Middleware())

	if cfg.RateLimitDisabled {
		r.Use(middleware.NoRateLimit())
	} else {
		r.Use(middleware.RateLimit(middleware.RateLimitConfig{
			Requests: 100,
			Window:   time.Minute,
			Logger:   cfg.Logger,
		}))
	}

	// Unknown routes answer exactly like the gate's rejections.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	sessionHandler := session.NewHandler(cfg.Logger, cfg.Users, cfg.Tokens, cfg.Engine, cfg.CookieConfig)
	adminHandler := admin.NewHandler(cfg.Logger, cfg.Sessions, cfg.Tokens, cfg.Gate)

	// Login and refresh authenticate inside their handlers; the pipeline
	// still counts them so credential stuffing locks out early.
	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware(guard.RouteOptions{
			Anonymous: true,
			RateClass: ratelimit.ClassLogin,
		}))
		r.Post("/api/admin/auth/login", sessionHandler.Login)
	})
	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware(guard.RouteOptions{
			Anonymous: true,
			RateClass: ratelimit.ClassRefresh,
		}))
		r.Post("/api/admin/auth/refresh", sessionHandler.Refresh)
	})
	r.Post("/api/admin/auth/logout", sessionHandler.Logout)

	// Admin-only routes.
	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware(guard.RouteOptions{
			RateClass: ratelimit.ClassGeneral,
		}))
		r.Get("/api/admin/me", adminHandler.Me)
		r.Get("/api/admin/sessions", adminHandler.ListSessions)
	})

	// Session revocation is the one destructive surface; super only.
	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware(guard.RouteOptions{
			RateClass: ratelimit.ClassGeneral,
			Roles:     []string{domain.RoleSuper},
		}))
		r.Delete("/api/admin/sessions/{id}", adminHandler.RevokeSession)
		r.Get("/api/admin/route-secret", adminHandler.RouteSecret)
	})

	// Status admits trusted application callers alongside admins.
	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware(guard.RouteOptions{
			RateClass: ratelimit.ClassGeneral,
			AllowApp:  true,
		}))
		r.Get("/api/admin/status", adminHandler.Status)
	})

	// Machine-to-machine maintenance, authenticated by HMAC signature.
	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware(guard.RouteOptions{
			RequireSignature: true,
			RateClass:        ratelimit.ClassGeneral,
		}))
		r.Post("/api/admin/maintenance/purge-sessions", adminHandler.PurgeSessions)
	})

	return r
}
