package httputil

import (
	"net/http"
	"time"
)

// CookieConfig holds cookie configuration.
type CookieConfig struct {
	Domain   string
	Path     string
	Secure   bool // Set to true in production (HTTPS)
	SameSite http.SameSite
}

// DefaultCookieConfig returns default cookie configuration.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Path:     "/",
		Secure:   false, // Set to true in production
		SameSite: http.SameSiteLaxMode,
	}
}

// SetAuthCookies sets HttpOnly cookies for access and refresh tokens.
func SetAuthCookies(w http.ResponseWriter, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   int(accessTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   int(refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
}

// ClearAuthCookies clears auth cookies.
func ClearAuthCookies(w http.ResponseWriter, cfg CookieConfig) {
	for _, name := range []string{"access_token", "refresh_token"} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     cfg.Path,
			Domain:   cfg.Domain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   cfg.Secure,
			SameSite: cfg.SameSite,
		})
	}
}

// GetAccessTokenFromCookie extracts the access token from the cookie.
func GetAccessTokenFromCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie("access_token")
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}

// GetRefreshTokenFromCookie extracts the refresh token from the cookie.
func GetRefreshTokenFromCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie("refresh_token")
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}
