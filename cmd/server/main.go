package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/SoftwareDev-01/6.vybe/internal/api"
	"github.com/SoftwareDev-01/6.vybe/internal/config"
	"github.com/SoftwareDev-01/6.vybe/internal/crypto"
	"github.com/SoftwareDev-01/6.vybe/internal/gateway"
	"github.com/SoftwareDev-01/6.vybe/internal/media"
	"github.com/SoftwareDev-01/6.vybe/internal/presence"
	"github.com/SoftwareDev-01/6.vybe/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Message store: PostgreSQL in production, SQLite fallback otherwise
	var dataStore store.DataStore
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pgStore.Close()
		logger.Info().Msg("connected to PostgreSQL")
		dataStore = pgStore
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		defer sqliteStore.Close()
		logger.Info().Msg("using SQLite store")
		dataStore = sqliteStore
	}

	// Redis (rate limiting + peer cache); optional in development
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Media store collaborator
	var uploader media.Uploader = media.Disabled{}
	if cfg.CloudinaryURL != "" {
		cld, err := media.NewCloudinary(cfg.CloudinaryURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("cloudinary init failed")
		}
		uploader = cld
		logger.Info().Msg("media uploads enabled")
	}

	// Identity token verify key
	if cfg.TokenPublicKey == "" {
		logger.Fatal().Msg("TOKEN_PUBLIC_KEY is required (generate one with cmd/genkey)")
	}
	tokenPub, err := crypto.ParsePublicKey(cfg.TokenPublicKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid TOKEN_PUBLIC_KEY")
	}

	// Presence registry + realtime gateway
	registry := presence.NewRegistry()
	gw := gateway.New(dataStore, registry, logger)

	// Create router
	router := api.NewRouter(logger, dataStore, redisStore, gw, uploader, tokenPub, cfg.RateLimitWhitelist)

	// Create server
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket connections are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting vybe messaging server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
