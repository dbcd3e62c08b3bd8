package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/triplehelix/helix/internal/api"
	"github.com/triplehelix/helix/internal/auth"
	"github.com/triplehelix/helix/internal/config"
	"github.com/triplehelix/helix/internal/core"
	"github.com/triplehelix/helix/internal/logging"
	"github.com/triplehelix/helix/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	dbStore, err := store.NewSQLiteStore(cfg.DBPath, cfg.TrialDays)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	defer dbStore.Close()

	// The firebase verifier is only built when that mode is active; the
	// gate reports a configuration error if it is missing at request time.
	var verifier auth.TokenVerifier
	if cfg.EffectiveAuthMode() == config.ModeFirebase {
		v, err := auth.NewFirebaseVerifier(context.Background(), cfg)
		if err != nil {
			logger.WithError(err).Fatal("failed to initialize firebase verifier")
		}
		verifier = v
	}
	gate := auth.NewGate(cfg, verifier, dbStore)

	service := core.NewService(cfg, logger, dbStore)
	if err := service.WarmProvider(); err != nil {
		// Non-fatal: the first real request retries construction.
		logger.WithError(err).Warn("provider client construction failed at startup")
	}

	handler := api.NewAPIHandler(cfg, logger, gate, service)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second, // completion calls can be slow
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":      addr,
			"auth_mode": cfg.EffectiveAuthMode(),
			"model":     cfg.Model,
			"dry_run":   cfg.DryRun,
		}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatalf("could not listen on %s", addr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("server forced to shutdown")
	}
	logger.Info("server exited gracefully")
}
