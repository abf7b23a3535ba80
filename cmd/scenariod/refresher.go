// Package main implements the scenariod refresh loop.
//
// This file contains the Refresher type, one per configured ensemble model,
// which drives the pipeline:
//
//	check issue times → fetch renewables + demand → compute scenarios → store
//
// Each Refresher runs continuously via Run(), executing Tick() at regular
// intervals. A tick is a no-op when the newest stored issue time already
// matches the upstream; otherwise it fetches both forecasts, computes the
// scenario set and atomically replaces the cached entry. A failed tick
// leaves the previous entry untouched.
//
// The loop is instrumented with Prometheus metrics tracking fetch and
// compute durations, refresh outcomes and errors.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gridpulse/resload/cmd/scenariod/metrics"
	"github.com/gridpulse/resload/pkg/export"
	"github.com/gridpulse/resload/pkg/forecast"
	"github.com/gridpulse/resload/pkg/scenario"
	"github.com/gridpulse/resload/pkg/sources"
	"github.com/gridpulse/resload/pkg/store"
)

// State is the refresh loop phase, exposed via the status endpoint.
type State string

const (
	StateIdle      State = "idle"
	StateChecking  State = "checking"
	StateFetching  State = "fetching"
	StateComputing State = "computing"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// Refresher keeps one model's scenario set current.
type Refresher struct {
	model      forecast.Model
	renewables sources.RenewableSource
	demand     sources.DemandSource
	engine     *scenario.Engine
	store      store.Store
	attempts   int
	exportDir  string
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu            sync.Mutex
	state         State
	lastErr       error
	lastRenewable *forecast.Renewable
	lastDelta     *scenario.IssueDelta
}

// NewRefresher creates a Refresher for one model.
func NewRefresher(
	model forecast.Model,
	renewables sources.RenewableSource,
	demand sources.DemandSource,
	engine *scenario.Engine,
	st store.Store,
	attempts int,
	exportDir string,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if attempts < 1 {
		attempts = sources.DefaultAttempts
	}
	return &Refresher{
		model:      model,
		renewables: renewables,
		demand:     demand,
		engine:     engine,
		store:      st,
		attempts:   attempts,
		exportDir:  exportDir,
		logger:     logger.With("model", model.Code),
		metrics:    m,
		state:      StateIdle,
	}
}

// Run executes the refresh loop at regular intervals.
// Blocks until context is canceled.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) error {
	r.logger.Info("starting refresh loop", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := r.Tick(ctx); err != nil {
		r.logger.Error("initial refresh tick failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("refresh loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.logger.Error("refresh tick failed", "error", err)
			}
		}
	}
}

// Tick performs one refresh cycle.
// Exported for testing purposes.
func (r *Refresher) Tick(ctx context.Context) error {
	start := time.Now()

	newest, upToDate, err := r.check(ctx)
	if err != nil {
		return r.fail("check", err)
	}
	if upToDate {
		r.setState(StateIdle, nil)
		if r.metrics != nil {
			r.metrics.RecordRefresh("noop")
		}
		r.logger.Debug("scenario set already current", "issue", newest.Format(time.RFC3339))
		return nil
	}

	ren, dem, err := r.fetch(ctx, newest)
	if err != nil {
		return r.fail("fetch", err)
	}

	scenarios, computeDuration, err := r.compute(ren, dem)
	if err != nil {
		return r.fail("compute", err)
	}

	// A canceled tick must not replace the stored entry with anything.
	if ctx.Err() != nil {
		return r.fail("store", ctx.Err())
	}

	entry := store.Entry{
		Model:      r.model.Code,
		Issue:      newest,
		Scenarios:  scenarios,
		ComputedAt: time.Now(),
	}
	if err := r.store.Put(ctx, entry); err != nil {
		return r.fail("store", err)
	}

	r.finish(ren, scenarios)

	if r.exportDir != "" {
		if path, err := export.WriteFile(r.exportDir, r.model.Code, newest, scenarios); err != nil {
			// Export is best-effort; the stored entry is already live.
			r.logger.Warn("csv export failed", "error", err)
			if r.metrics != nil {
				r.metrics.RecordError("export", "write_failed")
			}
		} else {
			r.logger.Debug("exported scenario set", "path", path)
		}
	}

	r.logger.Info("refresh tick complete",
		"issue", newest.Format(time.RFC3339),
		"scenarios", len(scenarios),
		"compute_ms", computeDuration.Milliseconds(),
		"total_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// check determines whether a newer forecast run exists upstream.
func (r *Refresher) check(ctx context.Context) (time.Time, bool, error) {
	r.setState(StateChecking, nil)

	issues, err := r.renewables.ListIssueTimes(ctx, r.model)
	if err != nil {
		return time.Time{}, false, err
	}
	newest := issues[0]

	latest, ok, err := r.store.GetLatest(ctx, r.model.Code)
	if err != nil {
		return time.Time{}, false, err
	}
	if ok && !latest.Issue.Before(newest) {
		return newest, true, nil
	}
	return newest, false, nil
}

// fetch retrieves both forecasts for the new issue time, with retries on
// transient upstream failures.
func (r *Refresher) fetch(ctx context.Context, issue time.Time) (forecast.Renewable, forecast.Demand, error) {
	r.setState(StateFetching, nil)

	fetchStart := time.Now()
	ren, err := sources.FetchRenewable(ctx, r.renewables, r.model, issue, uint64(r.attempts))
	if err != nil {
		return forecast.Renewable{}, forecast.Demand{}, fmt.Errorf("renewables: %w", err)
	}
	if r.metrics != nil {
		r.metrics.RecordFetch("renewables", time.Since(fetchStart).Seconds())
	}

	horizon := r.model.HorizonDays
	if horizon > sources.MaxHorizonDays {
		horizon = sources.MaxHorizonDays
	}

	fetchStart = time.Now()
	dem, err := sources.FetchDemand(ctx, r.demand, issue, horizon, uint64(r.attempts))
	if err != nil {
		return forecast.Renewable{}, forecast.Demand{}, fmt.Errorf("demand: %w", err)
	}
	if r.metrics != nil {
		r.metrics.RecordFetch("demand", time.Since(fetchStart).Seconds())
	}

	return ren, dem, nil
}

// compute derives the scenario set.
func (r *Refresher) compute(ren forecast.Renewable, dem forecast.Demand) ([]scenario.Residual, time.Duration, error) {
	r.setState(StateComputing, nil)

	start := time.Now()
	scenarios, err := r.engine.Compute(ren, dem)
	duration := time.Since(start)
	if err != nil {
		return nil, duration, err
	}
	if r.metrics != nil {
		r.metrics.RecordCompute(duration.Seconds())
	}
	return scenarios, duration, nil
}

// finish records the successful refresh: state, metrics and the issue delta
// against the previous run.
func (r *Refresher) finish(ren forecast.Renewable, scenarios []scenario.Residual) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastRenewable != nil {
		if delta, err := scenario.ComputeDelta(*r.lastRenewable, ren); err != nil {
			r.logger.Debug("issue delta unavailable", "error", err)
			r.lastDelta = nil
		} else {
			r.lastDelta = &delta
		}
	}
	r.lastRenewable = &ren
	r.state = StateDone
	r.lastErr = nil

	if r.metrics != nil {
		r.metrics.RecordRefresh("success")
		r.metrics.SetScenarioAge(0)
		r.metrics.SetScenarioCount(len(scenarios))
	}
}

// fail records a failed tick and returns the wrapped error.
func (r *Refresher) fail(component string, err error) error {
	r.setState(StateFailed, err)
	if r.metrics != nil {
		r.metrics.RecordRefresh("failure")
		r.metrics.RecordError(component, reason(err))
	}
	return fmt.Errorf("%s: %w", component, err)
}

func (r *Refresher) setState(s State, err error) {
	r.mu.Lock()
	r.state = s
	r.lastErr = err
	r.mu.Unlock()
}

// Status returns the current state and the error of the last failed tick.
func (r *Refresher) Status() (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.lastErr
}

// Delta returns the residual-load change between the two most recent runs,
// when both have been seen by this process.
func (r *Refresher) Delta() (scenario.IssueDelta, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastDelta == nil {
		return scenario.IssueDelta{}, false
	}
	return *r.lastDelta, true
}

// Model returns the model this refresher serves.
func (r *Refresher) Model() forecast.Model {
	return r.model
}

// reason maps an error to a stable metric label.
func reason(err error) string {
	switch {
	case errors.Is(err, forecast.ErrValidation):
		return "validation"
	case errors.Is(err, forecast.ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, forecast.ErrDataIntegrity):
		return "data_integrity"
	case errors.Is(err, forecast.ErrAuth):
		return "auth"
	case errors.Is(err, forecast.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, forecast.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, forecast.ErrInsufficientOverlap):
		return "insufficient_overlap"
	default:
		return "internal"
	}
}
