package forecast

import (
	"fmt"
	"time"
)

// EnsembleMember is one simulation run of an ensemble model.
// Index runs from 0 to Model.Members-1.
type EnsembleMember struct {
	Index  int
	Series HourlySeries
}

// Renewable carries one model run's wind and solar forecasts: pre-computed
// percentile sets plus the individual ensemble members. Immutable once
// fetched.
type Renewable struct {
	Model Model
	Issue time.Time

	WindPercentiles  PercentileSet
	SolarPercentiles PercentileSet
	WindMembers      []EnsembleMember
	SolarMembers     []EnsembleMember
}

// Validate checks the invariants the scenario engine relies on: valid
// percentile sets, matching wind/solar member counts, and contiguous member
// indices. Violations are ErrDataIntegrity.
func (r Renewable) Validate() error {
	if err := r.WindPercentiles.Validate(); err != nil {
		return fmt.Errorf("wind percentiles: %w", err)
	}
	if err := r.SolarPercentiles.Validate(); err != nil {
		return fmt.Errorf("solar percentiles: %w", err)
	}
	if len(r.WindMembers) != len(r.SolarMembers) {
		return fmt.Errorf("%w: wind has %d members, solar has %d",
			ErrDataIntegrity, len(r.WindMembers), len(r.SolarMembers))
	}
	if len(r.WindMembers) != r.Model.Members {
		return fmt.Errorf("%w: model %s expects %d members, got %d",
			ErrDataIntegrity, r.Model.Code, r.Model.Members, len(r.WindMembers))
	}
	for i := range r.WindMembers {
		if r.WindMembers[i].Index != i || r.SolarMembers[i].Index != i {
			return fmt.Errorf("%w: member indices are not contiguous at position %d", ErrDataIntegrity, i)
		}
	}
	return nil
}

// Demand carries one demand forecast run. Demand has no per-member ensemble
// on the provider side, so only the percentile set is present; ensemble
// scenarios reuse Percentiles.Reference().
type Demand struct {
	Issue       time.Time
	Percentiles PercentileSet
}

// Validate checks the demand percentile set invariants.
func (d Demand) Validate() error {
	if err := d.Percentiles.Validate(); err != nil {
		return fmt.Errorf("demand percentiles: %w", err)
	}
	return nil
}
