// Package sources provides the resload data source connectors that retrieve
// forecasts from upstream systems and normalize them into the shared
// forecast types.
//
// Two sources exist, with deliberately different shapes:
//   - RenewableClient — reads pre-computed wind/solar percentiles and
//     ensemble members from a relational store (PostgreSQL via pgx)
//   - DemandClient   — fetches demand forecasts from an authenticated
//     HTTP API with transparent OAuth2 token refresh
//
// Sources are read-only: they pull raw rows or JSON, shape them into
// forecast.Renewable / forecast.Demand, validate the data invariants, and
// leave all scenario logic to the engine.
package sources

import (
	"context"
	"time"

	"github.com/gridpulse/resload/pkg/forecast"
)

// RenewableSource queries stored wind/solar forecast percentiles and
// ensemble members for a given model and issue time.
type RenewableSource interface {
	// ListIssueTimes returns the available forecast runs for a model, most
	// recent first. Returns forecast.ErrDataUnavailable when the store has
	// no rows for the model.
	ListIssueTimes(ctx context.Context, model forecast.Model) ([]time.Time, error)

	// Fetch retrieves one complete forecast run. The issue time must exist
	// in the store (forecast.ErrDataUnavailable otherwise); invariant
	// violations in the fetched rows are forecast.ErrDataIntegrity.
	Fetch(ctx context.Context, model forecast.Model, issue time.Time) (forecast.Renewable, error)
}

// DemandSource fetches demand forecast percentiles for a given horizon.
type DemandSource interface {
	// Fetch retrieves the demand forecast issued at (or nearest before)
	// issue, covering horizonDays. A horizon beyond the provider maximum is
	// rejected with forecast.ErrValidation before any network call.
	Fetch(ctx context.Context, issue time.Time, horizonDays int) (forecast.Demand, error)
}

// Availability summarizes the stored data range for one location, used by
// readiness checks.
type Availability struct {
	Location string    `json:"location"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Rows     int64     `json:"rows"`
}
