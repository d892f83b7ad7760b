package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort = %d, want 8080", cfg.ServerPort)
	}
	if cfg.Environment != EnvDevelopment {
		t.Errorf("Environment = %q, want %q", cfg.Environment, EnvDevelopment)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 15m", cfg.AccessTokenTTL)
	}
	if cfg.SignatureMaxAge != 5*time.Minute {
		t.Errorf("SignatureMaxAge = %v, want 5m", cfg.SignatureMaxAge)
	}
	if cfg.LoginLimit != 5 || cfg.LoginWindow != 15*time.Minute {
		t.Errorf("login limits = %d/%v, want 5/15m", cfg.LoginLimit, cfg.LoginWindow)
	}
	if cfg.HasRedis() {
		t.Error("HasRedis() = true with no REDIS_ADDR")
	}
	if cfg.IsProduction() {
		t.Error("IsProduction() = true by default")
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil without JWT_SECRET")
	}
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil in production without ROUTE_SECRET")
	}

	t.Setenv("ROUTE_SECRET", "s1")
	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil in production without HMAC_SECRET")
	}

	t.Setenv("HMAC_SECRET", "hmac")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false with APP_ENV=production")
	}
}

func TestLoadRejectsBypassInProduction(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("ROUTE_SECRET", "s1")
	t.Setenv("HMAC_SECRET", "hmac")
	t.Setenv("AUTH_BYPASS", "true")

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil with AUTH_BYPASS in production")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SIGNATURE_MAX_AGE", "90s")
	t.Setenv("ALLOWED_APP_ISSUERS", "batch-runner, sync-worker")
	t.Setenv("ROUTE_SECRET", "current")
	t.Setenv("ROUTE_SECRET_NEXT", "next")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ServerPort != 9090 {
		t.Errorf("ServerPort = %d, want 9090", cfg.ServerPort)
	}
	if !cfg.HasRedis() {
		t.Error("HasRedis() = false with REDIS_ADDR set")
	}
	if cfg.SignatureMaxAge != 90*time.Second {
		t.Errorf("SignatureMaxAge = %v, want 90s", cfg.SignatureMaxAge)
	}
	if len(cfg.AllowedAppIssuers) != 2 || cfg.AllowedAppIssuers[1] != "sync-worker" {
		t.Errorf("AllowedAppIssuers = %v, want [batch-runner sync-worker]", cfg.AllowedAppIssuers)
	}
	if cfg.RouteSecret != "current" || cfg.RouteSecretNext != "next" {
		t.Errorf("route secrets = %q/%q", cfg.RouteSecret, cfg.RouteSecretNext)
	}
}
