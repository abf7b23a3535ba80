// Command scenariod implements the resload residual-load scenario service.
//
// scenariod runs one continuous refresh loop per configured ensemble model
// that:
//  1. Watches the renewable forecast store for new model runs
//  2. Fetches wind/solar percentiles and ensemble members from PostgreSQL
//  3. Fetches the matching demand forecast from the authenticated curve API
//  4. Computes percentile-crossed and ensemble residual-load scenarios
//  5. Caches the scenario sets for consumers, bounded per model
//
// The service serves an HTTP API on port 8084 (configurable) providing:
//   - GET /scenarios/latest?model=<code> - Latest scenario set for a model
//   - GET /scenarios?model=<code>&issue=<t> - Scenario set for one run
//   - GET /scenarios/export?model=<code> - CSV download
//   - GET /issues?model=<code> - Retained issue times
//   - GET /delta?model=<code> - Change between the two latest runs
//   - GET /availability - Stored renewable data range per location
//   - GET /status - Refresh loop state per model
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// Usage:
//
//	scenariod \
//	  -models=eceps,gfsens \
//	  -locations=de \
//	  -demand-url=https://api.example.com/v2 \
//	  -storage=redis -redis-addr=redis:6379 \
//	  -interval=30m
//
// Environment variables:
//
//	PG_DSN               - PostgreSQL DSN for the forecast store (required)
//	DEMAND_TOKEN_URL     - OAuth2 token endpoint (required)
//	DEMAND_CLIENT_ID     - OAuth2 client id (required)
//	DEMAND_CLIENT_SECRET - OAuth2 client secret (required)
//	MODELS               - Ensemble model codes (default: all known)
//	LOCATIONS            - Forecast locations, summed (default: de)
//	STORAGE              - Cache backend: memory or redis (default: memory)
//	RETENTION            - Runs retained per model (default: 4)
//	INTERVAL             - Refresh check interval (default: 30m)
//	TARGETS              - Percentile targets (default: P10,P25,P50,P75,P90)
//	EXPORT_DIR           - CSV export directory (default: disabled)
//	LOG_LEVEL            - Logging level: debug, info, warn, error
//	LOG_FORMAT           - Logging format: text, json
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridpulse/resload/cmd/scenariod/config"
	"github.com/gridpulse/resload/cmd/scenariod/logger"
	"github.com/gridpulse/resload/cmd/scenariod/metrics"
	"github.com/gridpulse/resload/cmd/scenariod/router"
	"github.com/gridpulse/resload/pkg/forecast"
	"github.com/gridpulse/resload/pkg/httpx"
	"github.com/gridpulse/resload/pkg/scenario"
	"github.com/gridpulse/resload/pkg/sources"
	"github.com/gridpulse/resload/pkg/store"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	logger.Info("starting resload scenariod",
		"version", version,
		"models", cfg.Models,
		"locations", cfg.Locations,
		"storage", cfg.Storage,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("failed to open postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	renewables, err := sources.NewRenewableClient(pool, cfg.ForecastTable, cfg.Locations, logger)
	if err != nil {
		logger.Error("failed to build renewable client", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	tokens, err := sources.NewClientCredentials(cfg.DemandTokenURL, cfg.DemandClientID, cfg.DemandClientSecret, httpClient, logger)
	if err != nil {
		logger.Error("failed to build token provider", "error", err)
		os.Exit(1)
	}
	demand, err := sources.NewDemandClient(cfg.DemandBaseURL, cfg.DemandCurve, tokens, httpClient, logger)
	if err != nil {
		logger.Error("failed to build demand client", "error", err)
		os.Exit(1)
	}

	st, err := newStore(cfg, logger)
	if err != nil {
		logger.Error("failed to build scenario store", "error", err)
		os.Exit(1)
	}
	if closer, ok := st.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Error("failed to close store", "error", err)
			}
		}()
	}

	crossings, err := cfg.Crossings()
	if err != nil {
		logger.Error("failed to resolve crossing targets", "error", err)
		os.Exit(1)
	}
	engine := scenario.NewEngine(logger)
	engine.MinOverlapHours = cfg.MinOverlapHours
	engine.Crossings = crossings

	refreshers := make([]*Refresher, 0, len(cfg.Models))
	for _, code := range cfg.Models {
		model, err := forecast.ModelByCode(code)
		if err != nil {
			logger.Error("unknown model", "model", code, "error", err)
			os.Exit(1)
		}
		r := NewRefresher(model, renewables, demand, engine, st,
			cfg.Attempts, cfg.ExportDir, logger, metrics.New(model.Code))
		refreshers = append(refreshers, r)
		go func() {
			if err := r.Run(ctx, cfg.Interval); err != nil && err != context.Canceled {
				logger.Error("refresh loop failed", "model", model.Code, "error", err)
			}
		}()
	}

	staleAfter := 2 * cfg.Interval // Scenario set is stale if older than 2x the interval
	mux := router.SetupRoutes(router.Deps{
		Store:        st,
		StaleAfter:   staleAfter,
		Availability: renewables.Availability,
		Statuses:     statuses(refreshers),
		Delta:        deltas(refreshers),
		Ready:        pool.Ping,
		Logger:       logger,
	})
	handler := httpx.RecoveryMiddleware(logger)(httpx.LoggingMiddleware(logger)(mux))
	httpServer := httpx.NewServer(cfg.Listen, handler, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	cancel()

	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// newStore builds the configured scenario cache backend.
func newStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Storage == "redis" {
		logger.Info("using redis scenario store", "addr", cfg.RedisAddr, "retention", cfg.Retention)
		return store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Retention)
	}
	logger.Info("using in-memory scenario store", "retention", cfg.Retention)
	return store.NewMemoryStore(cfg.Retention), nil
}

// statuses exposes the refresh loop states to the router.
func statuses(refreshers []*Refresher) func() map[string]router.Status {
	return func() map[string]router.Status {
		out := make(map[string]router.Status, len(refreshers))
		for _, r := range refreshers {
			state, err := r.Status()
			s := router.Status{State: string(state)}
			if err != nil {
				s.Error = err.Error()
			}
			out[r.Model().Code] = s
		}
		return out
	}
}

// deltas exposes per-model issue deltas to the router.
func deltas(refreshers []*Refresher) func(string) (scenario.IssueDelta, bool) {
	return func(model string) (scenario.IssueDelta, bool) {
		for _, r := range refreshers {
			if r.Model().Code == model {
				return r.Delta()
			}
		}
		return scenario.IssueDelta{}, false
	}
}
