package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vbonduro/bloom/internal/auth"
	"github.com/vbonduro/bloom/internal/config"
	"github.com/vbonduro/bloom/internal/db"
	"github.com/vbonduro/bloom/internal/metrics"
	"github.com/vbonduro/bloom/internal/notify"
	"github.com/vbonduro/bloom/internal/photostore/local"
	"github.com/vbonduro/bloom/internal/repository"
	"github.com/vbonduro/bloom/internal/service"
	"github.com/vbonduro/bloom/internal/store"
	"github.com/vbonduro/bloom/internal/vision"
	claudevision "github.com/vbonduro/bloom/internal/vision/claude"
	geminivision "github.com/vbonduro/bloom/internal/vision/gemini"
	ollamavision "github.com/vbonduro/bloom/internal/vision/ollama"
)

// app holds the wired application shared by all commands.
type app struct {
	database *sqlx.DB
	registry *prometheus.Registry
	auth     *auth.LocalGateway
	journal  *service.JournalService
	capture  *service.CaptureService
	logger   *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a := &app{database: database, logger: logger}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.NewBloomMetrics(a.registry)
	if err != nil {
		a.close()
		return nil, err
	}

	photos, err := local.NewLocalPhotoStore(cfg.PhotoPath)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize photo store: %w", err)
	}

	identifier, err := newIdentifier(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	authOpts := auth.Options{
		JWTSecret:   cfg.JWTSecret,
		SessionTTL:  cfg.SessionTTL,
		SessionFile: cfg.SessionFile,
		ResetTTL:    cfg.ResetTokenTTL,
	}
	if cfg.FederatedEnabled() {
		authOpts.Federated, err = auth.NewFederatedVerifier(auth.FederatedConfig{
			Issuer:   cfg.FederatedIssuer,
			Audience: cfg.FederatedAudience,
			Key:      cfg.FederatedSecret,
		})
		if err != nil {
			a.close()
			return nil, err
		}
	}

	repo := repository.NewDiscoveryRepository(store.NewDiscoveryStore(database), logger)
	a.auth = auth.NewLocalGateway(store.NewUserStore(database), notifier, authOpts, logger)
	a.journal = service.NewJournalService(repo, photos, identifier, m, logger)
	a.capture = service.NewCaptureService(photos, identifier, repo, a.auth, m, logger)

	a.auth.OnAccountDelete(func(ctx context.Context, userID string) error {
		_, err := a.journal.DeleteAllForUser(ctx, userID)
		return err
	})

	if u, err := a.auth.Restore(ctx); err != nil {
		logger.Warn("failed to restore session", "error", err)
	} else if u != nil {
		logger.Info("session restored", "user_id", u.ID)
	}

	return a, nil
}

func (a *app) close() {
	if err := a.database.Close(); err != nil {
		a.logger.Error("failed to close database", "error", err)
	}
}

// newIdentifier builds the configured vision backend behind the rate limiter.
func newIdentifier(cfg *config.Config, logger *slog.Logger) (*vision.RateLimited, error) {
	var backend vision.Identifier
	switch cfg.VisionBackend {
	case "claude":
		logger.Info("using Claude vision backend", "model", cfg.ClaudeModel)
		backend = claudevision.NewClaudeIdentifier(cfg.ClaudeAPIKey, cfg.ClaudeModel)
	case "gemini":
		logger.Info("using Gemini vision backend", "model", cfg.GeminiModel)
		backend = geminivision.NewGeminiIdentifier(cfg.GeminiAPIKey, cfg.GeminiModel)
	case "ollama":
		logger.Info("using Ollama vision backend", "model", cfg.OllamaModel)
		backend = ollamavision.NewOllamaIdentifier(cfg.OllamaHost, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("unknown vision backend %q", cfg.VisionBackend)
	}
	return vision.NewRateLimited(backend, cfg.VisionRateLimit), nil
}

func newNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, error) {
	if len(cfg.NotifyURLs) == 0 {
		logger.Info("no notification URLs configured, notifications are logged only")
		return notify.NewLogNotifier(logger), nil
	}
	return notify.NewShoutrrrNotifier(cfg.NotifyURLs, cfg.NotifyTimeout)
}
