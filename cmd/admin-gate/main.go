package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/admin-gate/internal/config"
	"github.com/tendant/admin-gate/internal/guard"
	httpserver "github.com/tendant/admin-gate/internal/http"
	"github.com/tendant/admin-gate/internal/httputil"
	"github.com/tendant/admin-gate/pkg/auth"
	"github.com/tendant/admin-gate/pkg/detect"
	"github.com/tendant/admin-gate/pkg/ratelimit"
	"github.com/tendant/admin-gate/pkg/repository"
	"github.com/tendant/admin-gate/pkg/signature"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Connect to database
	db, err := repository.NewDB(repository.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("connected to database")

	// Initialize repositories
	usersRepo := repository.NewUsersRepository(db)
	sessionsRepo := repository.NewSessionsRepository(db)

	// Rate-limit store: Redis when configured, else in-process
	var store ratelimit.Store
	if cfg.HasRedis() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		store = ratelimit.NewRedisStore(client, "admin-gate")
		logger.Info("rate limiting backed by redis", "addr", cfg.RedisAddr)
	} else {
		store = ratelimit.NewLocalStore()
		logger.Info("rate limiting backed by in-process store")
	}

	engine := ratelimit.NewEngine(store, map[string]ratelimit.Class{
		ratelimit.ClassLogin: {
			Limit:       cfg.LoginLimit,
			Window:      cfg.LoginWindow,
			Progressive: true,
			BlockUnit:   cfg.LockoutBlockUnit,
			BlockCap:    cfg.LockoutBlockCap,
		},
		ratelimit.ClassRefresh: {
			Limit:  cfg.RefreshLimit,
			Window: cfg.RefreshWindow,
		},
		ratelimit.ClassGeneral: {
			Limit:  cfg.GeneralLimit,
			Window: cfg.GeneralWindow,
		},
	}, logger)

	// Initialize services
	tokens := auth.NewTokenService(auth.TokenConfig{
		AccessTokenTTL:    cfg.AccessTokenTTL,
		RefreshTokenTTL:   cfg.RefreshTokenTTL,
		AppTokenTTL:       cfg.AppTokenTTL,
		JWTSecret:         []byte(cfg.JWTSecret),
		Issuer:            cfg.JWTIssuer,
		AllowedAppIssuers: cfg.AllowedAppIssuers,
	}, sessionsRepo)

	var protocol *signature.Protocol
	if cfg.HMACSecret != "" {
		protocol = signature.New([]byte(cfg.HMACSecret), cfg.SignatureMaxAge)
	} else {
		logger.Warn("HMAC_SECRET not set, request signing disabled")
	}

	detector := detect.New(detect.Config{Logger: logger})

	routeSecret, routeSecretNext := cfg.RouteSecret, cfg.RouteSecretNext
	if cfg.AuthBypass {
		// Bypass covers the gate too; an unconfigured gate passes
		// everything through.
		routeSecret, routeSecretNext = "", ""
	}
	gate := guard.NewPathGate(routeSecret, routeSecretNext, detector, logger)
	if !gate.Enabled() {
		logger.Warn("path gate disabled")
	}

	authenticator := guard.NewAuthenticator(guard.Config{
		Tokens:   tokens,
		Protocol: protocol,
		Engine:   engine,
		Logger:   logger,
		Bypass:   cfg.AuthBypass,
	})
	if cfg.AuthBypass {
		logger.Warn("AUTH_BYPASS set, signature and rate-limit stages disabled")
	}

	cookieConfig := httputil.DefaultCookieConfig()
	cookieConfig.Secure = cfg.IsProduction()

	// Create router
	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:            logger,
		Gate:              gate,
		Auth:              authenticator,
		Users:             usersRepo,
		Sessions:          sessionsRepo,
		Tokens:            tokens,
		Engine:            engine,
		CookieConfig:      cookieConfig,
		RateLimitDisabled: cfg.RateLimitDisabled || cfg.AuthBypass,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "addr", addr, "env", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
