// Package router configures HTTP routes for scenariod's read API.
//
// scenariod exposes an HTTP server (port 8084 by default) serving the
// computed residual-load scenario sets, health checks and Prometheus
// metrics. This package sets up the routes for that server.
//
// Routes configured:
//   - GET /scenarios/latest?model=<code> - Latest scenario set for a model
//   - GET /scenarios?model=<code>&issue=<RFC3339> - Scenario set for one run
//   - GET /scenarios/export?model=<code>[&issue=<RFC3339>] - CSV download
//   - GET /issues?model=<code> - Retained issue times, most recent first
//   - GET /delta?model=<code> - Residual change between the two latest runs
//   - GET /availability - Stored renewable data range per location
//   - GET /status - Refresh loop state per model
//   - GET /healthz - Health check endpoint (503 when the readiness probe fails)
//   - GET /metrics - Prometheus metrics endpoint
//
// Scenario sets older than the stale threshold include an X-Resload-Stale
// header so consumers can distinguish a fresh answer from a lingering one.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridpulse/resload/pkg/export"
	"github.com/gridpulse/resload/pkg/forecast"
	"github.com/gridpulse/resload/pkg/httpx"
	"github.com/gridpulse/resload/pkg/scenario"
	"github.com/gridpulse/resload/pkg/sources"
	"github.com/gridpulse/resload/pkg/store"
)

// Status is one model's refresh loop state as reported by /status.
type Status struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// Deps carries everything the handlers need. Availability, Statuses and
// Delta may be nil; their endpoints then report 404. Ready may be nil; the
// health check then reports 200 unconditionally.
type Deps struct {
	Store        store.Store
	StaleAfter   time.Duration
	Availability func(ctx context.Context) ([]sources.Availability, error)
	Statuses     func() map[string]Status
	Delta        func(model string) (scenario.IssueDelta, bool)
	Ready        func(ctx context.Context) error
	Logger       *slog.Logger
}

// SetupRoutes configures the scenariod HTTP endpoints.
func SetupRoutes(deps Deps) *http.ServeMux {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	if deps.Ready != nil {
		mux.Handle("/healthz", httpx.HealthHandlerWithCheck(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.Ready(ctx)
		}))
	} else {
		mux.Handle("/healthz", httpx.HealthHandler())
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/scenarios/latest", handleLatest(deps))
	mux.HandleFunc("/scenarios/export", handleExport(deps))
	mux.HandleFunc("/scenarios", handleScenarios(deps))
	mux.HandleFunc("/issues", handleIssues(deps))
	mux.HandleFunc("/delta", handleDelta(deps))
	mux.HandleFunc("/availability", handleAvailability(deps))
	mux.HandleFunc("/status", handleStatus(deps))
	return mux
}

// modelParam validates the model query parameter against the registry.
func modelParam(r *http.Request) (forecast.Model, error) {
	code := r.URL.Query().Get("model")
	if code == "" {
		return forecast.Model{}, fmt.Errorf("%w: model parameter required", forecast.ErrValidation)
	}
	return forecast.ModelByCode(code)
}

// lookup retrieves either the latest entry or the one named by the optional
// issue parameter.
func lookup(ctx context.Context, st store.Store, model string, rawIssue string) (store.Entry, error) {
	if rawIssue == "" {
		entry, ok, err := st.GetLatest(ctx, model)
		if err != nil {
			return store.Entry{}, err
		}
		if !ok {
			return store.Entry{}, fmt.Errorf("%w: no scenario set for model %q", forecast.ErrDataUnavailable, model)
		}
		return entry, nil
	}

	issue, err := time.Parse(time.RFC3339, rawIssue)
	if err != nil {
		return store.Entry{}, fmt.Errorf("%w: invalid issue %q, want RFC3339", forecast.ErrValidation, rawIssue)
	}
	entry, ok, err := st.Get(ctx, model, issue)
	if err != nil {
		return store.Entry{}, err
	}
	if !ok {
		return store.Entry{}, fmt.Errorf("%w: no scenario set for model %q at %s",
			forecast.ErrDataUnavailable, model, issue.Format(time.RFC3339))
	}
	return entry, nil
}

// handleLatest returns a handler for GET /scenarios/latest?model=<code>.
func handleLatest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		model, err := modelParam(r)
		if err != nil {
			httpx.WriteForecastError(w, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		entry, err := lookup(ctx, deps.Store, model.Code, "")
		if err != nil {
			deps.Logger.Error("latest lookup failed", "model", model.Code, "error", err)
			httpx.WriteForecastError(w, err)
			return
		}

		if deps.StaleAfter > 0 && entry.Age(time.Now()) > deps.StaleAfter {
			w.Header().Set("X-Resload-Stale", "true")
		}
		if err := httpx.WriteJSON(w, http.StatusOK, entry); err != nil {
			deps.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleScenarios returns a handler for GET /scenarios?model=<code>&issue=<t>.
func handleScenarios(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		model, err := modelParam(r)
		if err != nil {
			httpx.WriteForecastError(w, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		entry, err := lookup(ctx, deps.Store, model.Code, r.URL.Query().Get("issue"))
		if err != nil {
			httpx.WriteForecastError(w, err)
			return
		}
		if err := httpx.WriteJSON(w, http.StatusOK, entry); err != nil {
			deps.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleIssues returns a handler for GET /issues?model=<code>.
func handleIssues(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		model, err := modelParam(r)
		if err != nil {
			httpx.WriteForecastError(w, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		issues, err := deps.Store.IssueTimes(ctx, model.Code)
		if err != nil {
			deps.Logger.Error("issue listing failed", "model", model.Code, "error", err)
			httpx.WriteForecastError(w, err)
			return
		}

		resp := map[string]any{"model": model.Code, "issues": issues}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			deps.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleExport returns a handler for GET /scenarios/export, streaming the
// scenario set as CSV.
func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		model, err := modelParam(r)
		if err != nil {
			httpx.WriteForecastError(w, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		entry, err := lookup(ctx, deps.Store, model.Code, r.URL.Query().Get("issue"))
		if err != nil {
			httpx.WriteForecastError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", export.FileName(entry.Model, entry.Issue)))
		if err := export.WriteCSV(w, entry.Scenarios); err != nil {
			deps.Logger.Error("csv export failed", "model", model.Code, "error", err)
		}
	}
}

// handleDelta returns a handler for GET /delta?model=<code>.
func handleDelta(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		model, err := modelParam(r)
		if err != nil {
			httpx.WriteForecastError(w, err)
			return
		}
		if deps.Delta == nil {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "delta tracking disabled")
			return
		}

		delta, ok := deps.Delta(model.Code)
		if !ok {
			httpx.WriteErrorMessage(w, http.StatusNotFound,
				fmt.Sprintf("no delta for model %q yet, need two refreshed runs", model.Code))
			return
		}
		if err := httpx.WriteJSON(w, http.StatusOK, delta); err != nil {
			deps.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleAvailability returns a handler for GET /availability.
func handleAvailability(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Availability == nil {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "availability check disabled")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		avail, err := deps.Availability(ctx)
		if err != nil {
			deps.Logger.Error("availability check failed", "error", err)
			httpx.WriteForecastError(w, err)
			return
		}
		if err := httpx.WriteJSON(w, http.StatusOK, avail); err != nil {
			deps.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleStatus returns a handler for GET /status.
func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Statuses == nil {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "status reporting disabled")
			return
		}
		if err := httpx.WriteJSON(w, http.StatusOK, deps.Statuses()); err != nil {
			deps.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}
