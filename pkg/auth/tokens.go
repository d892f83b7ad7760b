package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/admin-gate/pkg/domain"
)

const (
	refreshTokenLen = 32

	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultAppTokenTTL     = time.Hour

	// DefaultClockSkew tolerates minor clock drift between issuer and
	// verifier when checking issued-at claims.
	DefaultClockSkew = 2 * time.Minute
)

// SessionStore persists admin sessions. Access tokens for admin callers
// stay bound to a session row through its id; deleting the row revokes
// them immediately.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// TokenConfig holds token service configuration.
type TokenConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AppTokenTTL     time.Duration
	JWTSecret       []byte
	Issuer          string
	// AllowedAppIssuers lists the trusted services whose app-to-app
	// tokens are accepted.
	AllowedAppIssuers []string
	ClockSkew         time.Duration
}

// TokenService issues and verifies the gateway's token classes: session-
// bound admin access tokens, opaque refresh tokens, and stateless
// app-to-app tokens.
type TokenService struct {
	config   TokenConfig
	sessions SessionStore
	now      func() time.Time
}

// NewTokenService creates a token service.
func NewTokenService(config TokenConfig, sessions SessionStore) *TokenService {
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if config.AppTokenTTL == 0 {
		config.AppTokenTTL = DefaultAppTokenTTL
	}
	if config.ClockSkew == 0 {
		config.ClockSkew = DefaultClockSkew
	}
	return &TokenService{
		config:   config,
		sessions: sessions,
		now:      time.Now,
	}
}

// WithClock overrides the wall clock, for tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// AccessTokenTTL returns the access token TTL.
func (s *TokenService) AccessTokenTTL() time.Duration {
	return s.config.AccessTokenTTL
}

// RefreshTokenTTL returns the refresh token TTL.
func (s *TokenService) RefreshTokenTTL() time.Duration {
	return s.config.RefreshTokenTTL
}

// IssueSessionOpts holds client metadata recorded on the session row.
type IssueSessionOpts struct {
	IP        string
	UserAgent string
}

// AccessTokenClaims represents the claims in an admin access token. The
// token ID (jti) carries the bound session id.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// IssueSession creates a session and returns an access/refresh token pair.
// The refresh token is opaque and stored hashed; the access token is a
// signed JWT bound to the session through its jti claim.
func (s *TokenService) IssueSession(ctx context.Context, userID uuid.UUID, role string, opts IssueSessionOpts) (*domain.TokenPair, error) {
	now := s.now()

	refreshToken, err := GenerateToken(refreshTokenLen)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New()
	session := &domain.Session{
		ID:        sessionID,
		UserID:    userID,
		Role:      role,
		TokenHash: HashToken(refreshToken),
		IP:        opts.IP,
		UserAgent: opts.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.RefreshTokenTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	accessToken, expiresAt, err := s.mintAccessToken(userID, sessionID, role, now)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.config.AccessTokenTTL.Seconds()),
		ExpiresAt:    expiresAt,
	}, nil
}

// VerifyAccessToken verifies an admin access token cryptographically and
// then confirms its bound session still exists and is unexpired.
func (s *TokenService) VerifyAccessToken(ctx context.Context, tokenString string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if err := s.checkIssuedAt(claims.IssuedAt); err != nil {
		return nil, err
	}
	if claims.Issuer != s.config.Issuer {
		return nil, domain.ErrIssuerNotAllowed
	}

	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	if !session.IsValid(s.now()) {
		return nil, domain.ErrSessionExpired
	}

	// Best-effort; the token is already accepted.
	_ = s.sessions.TouchLastUsed(ctx, session.ID)

	return claims, nil
}

// IssueAppToken mints a stateless token for a trusted application caller.
// App tokens carry only issuer, expiry and a unique id; they are not
// session-bound and survive unrelated session deletions.
func (s *TokenService) IssueAppToken(issuer string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.config.AppTokenTTL
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.config.JWTSecret)
}

// VerifyAppToken verifies an app-to-app token: signature, expiry,
// plausible issued-at, and issuer allow-list. No storage round trip.
func (s *TokenService) VerifyAppToken(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if err := s.checkIssuedAt(claims.IssuedAt); err != nil {
		return nil, err
	}
	for _, allowed := range s.config.AllowedAppIssuers {
		if claims.Issuer == allowed {
			return claims, nil
		}
	}
	return nil, domain.ErrIssuerNotAllowed
}

// Refresh verifies a refresh token and mints a new access token for its
// session without re-authenticating credentials. The session's absolute
// lifetime is not extended.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	session, err := s.sessions.GetByTokenHash(ctx, HashToken(refreshToken))
	if err != nil {
		return nil, err
	}
	if !session.IsValid(s.now()) {
		return nil, domain.ErrSessionExpired
	}

	_ = s.sessions.TouchLastUsed(ctx, session.ID)

	accessToken, expiresAt, err := s.mintAccessToken(session.UserID, session.ID, session.Role, s.now())
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.config.AccessTokenTTL.Seconds()),
		ExpiresAt:    expiresAt,
	}, nil
}

// Logout deletes the session bound to a refresh token. The next admin
// access-token verification for that session fails.
func (s *TokenService) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.DeleteByTokenHash(ctx, HashToken(refreshToken))
}

// LogoutSession deletes a session by id.
func (s *TokenService) LogoutSession(ctx context.Context, sessionID uuid.UUID) error {
	return s.sessions.Delete(ctx, sessionID)
}

func (s *TokenService) mintAccessToken(userID, sessionID uuid.UUID, role string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.config.AccessTokenTTL)
	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        sessionID.String(),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.config.JWTSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *TokenService) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.config.JWTSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.ErrTokenExpired
		}
		return domain.ErrInvalidToken
	}
	if !token.Valid {
		return domain.ErrInvalidToken
	}
	return nil
}

// checkIssuedAt rejects tokens whose issued-at lies implausibly in the
// future, beyond the configured clock-skew tolerance.
func (s *TokenService) checkIssuedAt(iat *jwt.NumericDate) error {
	if iat == nil {
		return nil
	}
	if iat.Time.After(s.now().Add(s.config.ClockSkew)) {
		return domain.ErrInvalidToken
	}
	return nil
}
