package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/admin-gate/internal/guard"
	"github.com/tendant/admin-gate/internal/httputil"
	"github.com/tendant/admin-gate/pkg/auth"
	"github.com/tendant/admin-gate/pkg/domain"
)

// SessionDirectory reads and maintains the session table.
type SessionDirectory interface {
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// Handler handles the protected admin endpoints behind the pipeline.
type Handler struct {
	logger   *slog.Logger
	sessions SessionDirectory
	tokens   *auth.TokenService
	gate     *guard.PathGate
}

// NewHandler creates an admin handler.
func NewHandler(logger *slog.Logger, sessions SessionDirectory, tokens *auth.TokenService, gate *guard.PathGate) *Handler {
	return &Handler{
		logger:   logger,
		sessions: sessions,
		tokens:   tokens,
		gate:     gate,
	}
}

// MeResponse describes the verified caller.
type MeResponse struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
}

// SessionResponse is one session row as exposed to its owner.
type SessionResponse struct {
	ID         string     `json:"id"`
	IP         string     `json:"ip"`
	UserAgent  string     `json:"user_agent"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Me returns the verified caller's identity.
// GET /api/admin/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := guard.GetClaims(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	httputil.JSON(w, http.StatusOK, MeResponse{
		UserID:    claims.Subject,
		Role:      claims.Role,
		SessionID: claims.ID,
	})
}

// Status reports gateway liveness to authenticated callers, including
// trusted applications.
// GET /api/admin/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	caller := "admin"
	if issuer, ok := guard.GetAppIssuer(r.Context()); ok {
		caller = "app:" + issuer
	}
	httputil.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"caller": caller,
	})
}

// ListSessions lists the caller's own sessions.
// GET /api/admin/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := guard.GetClaims(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sessions, err := h.sessions.ListByUserID(r.Context(), userID)
	if err != nil {
		h.logger.Error("session list failed", "user_id", userID, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionResponse{
			ID:         s.ID.String(),
			IP:         s.IP,
			UserAgent:  s.UserAgent,
			CreatedAt:  s.CreatedAt,
			ExpiresAt:  s.ExpiresAt,
			LastUsedAt: s.LastUsedAt,
		})
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
}

// RevokeSession deletes a session by id, killing its tokens. Restricted
// to the super role at the route level.
// DELETE /api/admin/sessions/{id}
func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid session id")
		return
	}

	if err := h.tokens.LogoutSession(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			httputil.NotFound(w)
			return
		}
		h.logger.Error("session revoke failed", "session_id", id, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to revoke session")
		return
	}

	h.logger.Info("session revoked", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// RouteSecretResponse describes the path gate state to an operator.
type RouteSecretResponse struct {
	Enabled            bool   `json:"enabled"`
	Current            string `json:"current,omitempty"`
	Next               string `json:"next,omitempty"`
	RotationInProgress bool   `json:"rotation_in_progress"`
}

// RouteSecret shows the active obfuscation secret and any pending
// rotation, so an operator can confirm a rotation took effect. Restricted
// to the super role at the route level.
// GET /api/admin/route-secret
func (h *Handler) RouteSecret(w http.ResponseWriter, r *http.Request) {
	current, next := h.gate.Secrets()
	httputil.JSON(w, http.StatusOK, RouteSecretResponse{
		Enabled:            h.gate.Enabled(),
		Current:            current,
		Next:               next,
		RotationInProgress: next != "",
	})
}

// PurgeSessions deletes expired session rows. A machine-to-machine
// maintenance call, authenticated by request signature rather than a
// bearer token.
// POST /api/admin/maintenance/purge-sessions
func (h *Handler) PurgeSessions(w http.ResponseWriter, r *http.Request) {
	purged, err := h.sessions.DeleteExpired(r.Context())
	if err != nil {
		h.logger.Error("session purge failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to purge sessions")
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]int64{"purged": purged})
}
