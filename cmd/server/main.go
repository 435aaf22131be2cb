package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitflow/fitflow-backend/internal/api"
	"github.com/fitflow/fitflow-backend/internal/auth"
	"github.com/fitflow/fitflow-backend/internal/config"
	"github.com/fitflow/fitflow-backend/internal/core"
	"github.com/fitflow/fitflow-backend/internal/gateway"
	"github.com/fitflow/fitflow-backend/internal/logging"
	"github.com/fitflow/fitflow-backend/internal/store"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal().Err(err).Str("dsn", cfg.DatabaseURL).Msg("Failed to initialize database")
	}
	defer dbStore.Close()

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, time.Duration(cfg.JWTTTLHours)*time.Hour)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token manager")
	}

	var google auth.GoogleVerifier
	if cfg.GoogleClientID != "" {
		google = auth.NewIDTokenVerifier(cfg.GoogleClientID)
	} else {
		logging.Warn().Msg("GOOGLE_CLIENT_ID is not set, Google sign-in is disabled")
	}
	if cfg.InternalAPIKey == "" {
		logging.Warn().Msg("INTERNAL_API_KEY is not set, AI routes will answer with a configuration error")
	}

	accounts := core.NewAccountService(dbStore, tokens, google)
	aiClient := gateway.NewClient(cfg.AIServiceURL, cfg.InternalAPIKey, gateway.Options{})

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(accounts, aiClient)
	router := api.NewRouter(apiHandler, api.RouterConfig{CORSAllowedOrigins: cfg.CORSAllowedOrigins})

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // recommendations wait up to 30s on the AI service
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", serverAddr).Str("ai_service", cfg.AIServiceURL).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Str("addr", serverAddr).Msg("Could not listen")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("Server forced to shutdown")
	}
	logging.Info().Msg("Server exiting gracefully")
}
