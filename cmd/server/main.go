// Command server runs the creator-discount agent HTTP service.
//
// Startup order: environment (.env optional), configuration, logging, OTel
// tracing, ledger database, campaign registry, classifier client, router,
// then the HTTP server with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-discount-agent/internal/campaign"
	"github.com/tbourn/go-discount-agent/internal/classifier"
	"github.com/tbourn/go-discount-agent/internal/config"
	httpapi "github.com/tbourn/go-discount-agent/internal/http"
	"github.com/tbourn/go-discount-agent/internal/observability"
	"github.com/tbourn/go-discount-agent/internal/repo"
	"github.com/tbourn/go-discount-agent/internal/services"
	"github.com/tbourn/go-discount-agent/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("dsn", cfg.DBPath).Msg("ledger open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("ledger migration failed")
	}

	campaigns, err := campaign.NewStore(cfg.CampaignPath, cfg.TemplatesPath)
	if err != nil {
		log.Fatal().Err(err).
			Str("campaign", cfg.CampaignPath).
			Str("templates", cfg.TemplatesPath).
			Msg("campaign load failed")
	}
	log.Info().
		Int("creators", len(campaigns.Current().Handles())).
		Msg("campaign loaded")

	// The classifier tier is active only when an endpoint is configured; the
	// campaign flags gate its use per message.
	var cls services.CreatorClassifier
	if cfg.Classifier.BaseURL != "" {
		cls = classifier.New(classifier.Config{
			APIKey:            cfg.Classifier.APIKey,
			BaseURL:           cfg.Classifier.BaseURL,
			Model:             cfg.Classifier.Model,
			MaxAttempts:       cfg.Classifier.MaxAttempts,
			TotalBudget:       cfg.Classifier.TotalBudget,
			PerAttemptTimeout: cfg.Classifier.AttemptTimeout,
		})
	} else {
		log.Warn().Msg("classifier endpoint not configured, fallback tier disabled")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, campaigns, cls, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("server stopped")
}
