package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellbreust/mockwise/internal/config"
	"github.com/mitchellbreust/mockwise/internal/credential"
	"github.com/mitchellbreust/mockwise/internal/httpapi"
	"github.com/mitchellbreust/mockwise/internal/observability"
	"github.com/mitchellbreust/mockwise/internal/session"
	"github.com/mitchellbreust/mockwise/internal/transcribe"
)

type TranscribeInfo struct {
	Provider string
	Detail   string
}

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Store      session.Store
	Broker     *credential.Broker
	Metrics    *observability.Metrics
	Transcribe TranscribeInfo

	// Cleanup releases the session store (and its database pool, if any).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := session.NewStore(ctx, cfg.DatabaseURL, cfg.SessionTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("session store init failed: %w", err)
	}

	setup, err := transcribe.Resolve(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	broker := credential.NewBroker(store, credential.Config{
		APIKey:  cfg.OpenAIAPIKey,
		AI:      cfg.AI,
		Timeout: cfg.UpstreamTimeout,
	}, metrics)

	api := httpapi.New(cfg, store, broker, setup.Provider, metrics)

	cleanup := func() error {
		var errs []string
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Store:   store,
		Broker:  broker,
		Metrics: metrics,
		Transcribe: TranscribeInfo{
			Provider: setup.Provider.Name(),
			Detail:   setup.Detail,
		},
		Cleanup: cleanup,
	}, nil
}

// StartBackground launches the token janitor. It stops when ctx is done.
func (r *BuildResult) StartBackground(ctx context.Context) {
	session.StartJanitor(ctx, r.Store, r.Config.SessionJanitorInterval, func(n int) {
		r.Metrics.SessionEvents.WithLabelValues("expired").Add(float64(n))
		if pending, err := r.Store.PendingCount(ctx); err == nil {
			r.Metrics.PendingSessions.Set(float64(pending))
		}
	})
}
