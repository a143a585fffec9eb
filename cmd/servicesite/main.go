// Package main is the entry point for the service-site server.
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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/brightline-electric/servicesite/api"
	"github.com/brightline-electric/servicesite/internal/auth"
	"github.com/brightline-electric/servicesite/internal/catalog"
	"github.com/brightline-electric/servicesite/internal/config"
	"github.com/brightline-electric/servicesite/internal/events"
	"github.com/brightline-electric/servicesite/internal/imagestore"
	"github.com/brightline-electric/servicesite/internal/metrics"
	"github.com/brightline-electric/servicesite/internal/server"
	"github.com/brightline-electric/servicesite/internal/store"
	"github.com/brightline-electric/servicesite/internal/telemetry"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.DevMode {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "servicesite").Str("version", version).Logger()
	}

	logger := log.With().Str("component", "main").Logger()
	logger.Info().Str("version", version).Str("commit", commit).Str("build_date", buildDate).Msg("starting servicesite")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "servicesite",
		ServiceVersion: version,
		TracesEnabled:  cfg.TracesEnabled,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize OpenTelemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := shutdownTelemetry(shutdownCtx); shutdownErr != nil {
			logger.Error().Err(shutdownErr).Msg("failed to shut down OpenTelemetry")
		}
	}()

	st := store.NewJSONFileStore(cfg.DataFile)
	if cfg.InitCatalog {
		created, initErr := st.Init(ctx)
		if initErr != nil {
			logger.Fatal().Err(initErr).Str("path", cfg.DataFile).Msg("failed to initialize catalog document")
		}
		if created {
			logger.Info().Str("path", cfg.DataFile).Msg("created empty catalog document")
		}
	}
	if pingErr := st.Ping(ctx); pingErr != nil {
		logger.Warn().Err(pingErr).Str("path", cfg.DataFile).Msg("catalog document is not readable; requests will fail until it is")
	}

	images, err := imagestore.NewFSStore(cfg.ImagesDir, cfg.ImagesURLPrefix, cfg.MaxImageBytes)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.ImagesDir).Msg("failed to prepare images directory")
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		natsPublisher, natsErr := events.NewNATSPublisher(events.NATSConfig{
			URL:           cfg.NATSURL,
			Name:          "servicesite",
			SubjectPrefix: cfg.NATSSubjectPrefix,
		})
		if natsErr != nil {
			logger.Fatal().Err(natsErr).Msg("failed to connect to NATS")
		}
		publisher = natsPublisher
		logger.Info().Str("url", cfg.NATSURL).Str("prefix", cfg.NATSSubjectPrefix).Msg("publishing catalog events")
	}
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close event publisher")
		}
	}()

	var rec *metrics.Recorder
	if cfg.MetricsEnabled {
		rec = metrics.NewRecorder()
	}

	authn, err := auth.NewAuthenticator(auth.Config{
		Password:     cfg.AdminPassword,
		PasswordHash: cfg.AdminPasswordHash,
		SessionTTL:   cfg.SessionTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure admin authentication")
	}

	manager := catalog.NewManager(st, images,
		catalog.WithPublisher(publisher),
		catalog.WithMetrics(rec),
		catalog.WithLogger(log.With().Str("component", "catalog").Logger()),
	)
	query := catalog.NewQuery(st, rec)

	srv := server.New(server.Deps{
		Store:   st,
		Manager: manager,
		Query:   query,
		Auth:    authn,
	}, cfg, version, commit, buildDate,
		server.WithOpenAPISpec(api.OpenAPISpec),
		server.WithMetrics(rec),
		server.WithLogger(log.With().Str("component", "http").Logger()),
	)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case serveErr := <-errCh:
		logger.Error().Err(serveErr).Msg("HTTP server error")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("HTTP server shutdown error")
	}
	logger.Info().Msg("server stopped gracefully")
}
