package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/admin-gate/internal/guard"
	"github.com/tendant/admin-gate/internal/httputil"
	"github.com/tendant/admin-gate/pkg/auth"
	"github.com/tendant/admin-gate/pkg/domain"
	"github.com/tendant/admin-gate/pkg/ratelimit"
)

// UserStore looks up admin users for credential checks.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Handler handles login, refresh and logout.
type Handler struct {
	logger       *slog.Logger
	users        UserStore
	tokens       *auth.TokenService
	engine       *ratelimit.Engine
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a session handler.
func NewHandler(logger *slog.Logger, users UserStore, tokens *auth.TokenService, engine *ratelimit.Engine, cookieConfig httputil.CookieConfig) *Handler {
	return &Handler{
		logger:       logger,
		users:        users,
		tokens:       tokens,
		engine:       engine,
		cookieConfig: cookieConfig,
	}
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest represents a token refresh request (for API clients;
// browser clients carry the token in a cookie).
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest represents a logout request.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse represents a token response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Login authenticates an admin by email and password and issues a
// session.
// POST /api/admin/auth/login
//
// The rate-limit stage runs in front of this handler and has already
// counted the attempt; a successful login resets that counter so honest
// retries after typos do not accumulate toward a lockout.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	ip := guard.ClientIP(r)

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// Same response as a wrong password so accounts cannot be
			// enumerated.
			httputil.Error(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.logger.Error("login user lookup failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "login failed")
		return
	}

	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		h.logger.Warn("login failed", "email", req.Email, "ip", ip)
		httputil.Error(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	if err := h.engine.Reset(r.Context(), guard.AnonRateKey(ratelimit.ClassLogin, ip)); err != nil {
		h.logger.Error("login counter reset failed", "ip", ip, "error", err)
	}

	tokens, err := h.tokens.IssueSession(r.Context(), user.ID, user.Role, auth.IssueSessionOpts{
		IP:        ip,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logger.Error("session issue failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "login failed")
		return
	}

	h.logger.Info("admin login", "user_id", user.ID, "role", user.Role, "ip", ip)
	h.writeTokenResponse(w, tokens)
}

// Refresh exchanges a refresh token for a new access token.
// POST /api/admin/auth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := h.refreshTokenFrom(r)
	if refreshToken == "" {
		httputil.Error(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	tokens, err := h.tokens.Refresh(r.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSessionExpired) {
			httputil.ClearAuthCookies(w, h.cookieConfig)
			httputil.Error(w, http.StatusUnauthorized, "invalid or expired refresh token")
			return
		}
		h.logger.Error("refresh failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	h.writeTokenResponse(w, tokens)
}

// Logout deletes the session bound to a refresh token. Deleting the
// session also invalidates its outstanding access tokens.
// POST /api/admin/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if refreshToken := h.refreshTokenFrom(r); refreshToken != "" {
		// Ignore errors so a logout never reveals whether the token was
		// live.
		_ = h.tokens.Logout(r.Context(), refreshToken)
	}

	httputil.ClearAuthCookies(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}

// refreshTokenFrom reads the refresh token from the request body when
// one is supplied, falling back to the auth cookie.
func (h *Handler) refreshTokenFrom(r *http.Request) string {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	token, _ := httputil.GetRefreshTokenFromCookie(r)
	return token
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, tokens *domain.TokenPair) {
	httputil.SetAuthCookies(
		w,
		tokens.AccessToken,
		tokens.RefreshToken,
		h.tokens.AccessTokenTTL(),
		h.tokens.RefreshTokenTTL(),
		h.cookieConfig,
	)

	httputil.JSON(w, http.StatusOK, TokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
		ExpiresIn:    tokens.ExpiresIn,
	})
}
