package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/tendant/admin-gate/pkg/domain"
)

// SessionsRepository handles session persistence.
type SessionsRepository struct {
	db *sql.DB
}

// NewSessionsRepository creates a new sessions repository.
func NewSessionsRepository(db *sql.DB) *SessionsRepository {
	return &SessionsRepository{db: db}
}

// Create creates a new session.
func (r *SessionsRepository) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, role, token_hash, ip, user_agent, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.Role, session.TokenHash,
		session.IP, session.UserAgent, session.CreatedAt, session.ExpiresAt,
	)
	return err
}

// GetByID retrieves a session by ID.
func (r *SessionsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT id, user_id, role, token_hash, ip, user_agent, created_at, expires_at, last_used_at
		FROM sessions
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByTokenHash retrieves a session by refresh-token hash.
func (r *SessionsRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	query := `
		SELECT id, user_id, role, token_hash, ip, user_agent, created_at, expires_at, last_used_at
		FROM sessions
		WHERE token_hash = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, tokenHash))
}

// Delete removes a session. Deletion is what invalidates the session's
// access tokens, so it is a hard delete rather than a revoked flag.
func (r *SessionsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteByTokenHash removes a session by refresh-token hash.
func (r *SessionsRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// TouchLastUsed stamps the session's last-used time.
func (r *SessionsRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET last_used_at = NOW() WHERE id = $1`, id)
	return err
}

// DeleteExpired purges sessions past their expiry.
func (r *SessionsRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByUserID retrieves all unexpired sessions for a user, newest first.
func (r *SessionsRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error) {
	query := `
		SELECT id, user_id, role, token_hash, ip, user_agent, created_at, expires_at, last_used_at
		FROM sessions
		WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		session := &domain.Session{}
		err := rows.Scan(
			&session.ID, &session.UserID, &session.Role, &session.TokenHash,
			&session.IP, &session.UserAgent, &session.CreatedAt,
			&session.ExpiresAt, &session.LastUsedAt,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *SessionsRepository) scanOne(row *sql.Row) (*domain.Session, error) {
	session := &domain.Session{}
	err := row.Scan(
		&session.ID, &session.UserID, &session.Role, &session.TokenHash,
		&session.IP, &session.UserAgent, &session.CreatedAt,
		&session.ExpiresAt, &session.LastUsedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}
