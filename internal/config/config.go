package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment names. Anything other than EnvProduction is treated as a
// development-grade deployment.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int

	// Environment ("development" or "production")
	Environment string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (optional; empty addr selects the in-process rate-limit store)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JWTSecret         string
	JWTIssuer         string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	AppTokenTTL       time.Duration
	AllowedAppIssuers []string

	// Request signing
	HMACSecret      string
	SignatureMaxAge time.Duration

	// Path obfuscation: the current secret route segment and the next one
	// during a rotation.
	RouteSecret     string
	RouteSecretNext string

	// Rate limiting
	LoginLimit        int
	LoginWindow       time.Duration
	RefreshLimit      int
	RefreshWindow     time.Duration
	GeneralLimit      int
	GeneralWindow     time.Duration
	LockoutBlockUnit  time.Duration
	LockoutBlockCap   int
	RateLimitDisabled bool

	// AuthBypass skips the path gate, signature check, and rate limiting
	// for local operation. Refused outright in production.
	AuthBypass bool

	// CORS
	AllowedOrigins []string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr:  getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort:  getEnvInt("SERVER_PORT", 8080),
		Environment: getEnv("APP_ENV", EnvDevelopment),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "admin_gate"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		JWTIssuer:         getEnv("JWT_ISSUER", "admin-gate"),
		AccessTokenTTL:    getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:   getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		AppTokenTTL:       getEnvDuration("APP_TOKEN_TTL", time.Hour),
		AllowedAppIssuers: getEnvList("ALLOWED_APP_ISSUERS", nil),

		HMACSecret:      getEnv("HMAC_SECRET", ""),
		SignatureMaxAge: getEnvDuration("SIGNATURE_MAX_AGE", 5*time.Minute),

		RouteSecret:     getEnv("ROUTE_SECRET", ""),
		RouteSecretNext: getEnv("ROUTE_SECRET_NEXT", ""),

		LoginLimit:        getEnvInt("RATE_LIMIT_LOGIN", 5),
		LoginWindow:       getEnvDuration("RATE_LIMIT_LOGIN_WINDOW", 15*time.Minute),
		RefreshLimit:      getEnvInt("RATE_LIMIT_REFRESH", 10),
		RefreshWindow:     getEnvDuration("RATE_LIMIT_REFRESH_WINDOW", 5*time.Minute),
		GeneralLimit:      getEnvInt("RATE_LIMIT_GENERAL", 30),
		GeneralWindow:     getEnvDuration("RATE_LIMIT_GENERAL_WINDOW", time.Minute),
		LockoutBlockUnit:  getEnvDuration("LOCKOUT_BLOCK_UNIT", 5*time.Minute),
		LockoutBlockCap:   getEnvInt("LOCKOUT_BLOCK_CAP", 10),
		RateLimitDisabled: getEnvBool("RATE_LIMIT_DISABLED", false),

		AuthBypass: getEnvBool("AUTH_BYPASS", false),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", nil),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	// An unset route or HMAC secret is an explicit development-only
	// pass-through, never a silent production fallback.
	if cfg.IsProduction() {
		if cfg.RouteSecret == "" {
			return nil, fmt.Errorf("ROUTE_SECRET is required in production")
		}
		if cfg.HMACSecret == "" {
			return nil, fmt.Errorf("HMAC_SECRET is required in production")
		}
		if cfg.AuthBypass {
			return nil, fmt.Errorf("AUTH_BYPASS must not be set in production")
		}
	}

	return cfg, nil
}

// IsProduction reports whether the deployment is flagged production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// HasRedis reports whether a Redis-backed rate-limit store is configured.
func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
