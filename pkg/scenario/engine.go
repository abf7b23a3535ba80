// Package scenario computes residual-load scenarios from one renewable
// forecast and one demand forecast.
//
// Residual load at hour h is always demand[h] − wind[h] − solar[h]; no
// averaging or smoothing is applied. Two scenario families are produced:
//
//   - Percentile-crossed scenarios pair a demand percentile with the
//     complementary (100−p) renewable percentile. The crossing is the
//     defining rule of the system: renewable shortfall and demand peaks are
//     independent risk factors, so the worst residual-load case combines
//     high demand with LOW renewables, not high with high.
//   - Ensemble scenarios compute one residual series per renewable ensemble
//     member against the deterministic demand reference, plus per-hour
//     summary statistics across members.
//
// Compute is a pure function of its inputs: identical forecasts yield
// identical scenario sequences, in a stable order, every time.
package scenario

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gridpulse/resload/pkg/forecast"
)

// Kind classifies a residual scenario row.
type Kind string

const (
	KindPercentile Kind = "percentile"
	KindEnsemble   Kind = "ensemble"
	KindSummary    Kind = "summary"
)

// Residual is one computed residual-load scenario series. Derived, never
// persisted beyond the result store; fully recomputable from its inputs.
type Residual struct {
	Model  string                `json:"model"`
	Issue  time.Time             `json:"issue"`
	Kind   Kind                  `json:"kind"`
	Label  string                `json:"label"`
	Series forecast.HourlySeries `json:"series"`
}

// Crossing pairs a demand percentile with a renewable percentile for one
// residual-load target.
type Crossing struct {
	Target     string
	Demand     forecast.PercentileLabel
	Renewables forecast.PercentileLabel
}

// Validate enforces the inversion rule: demand percentile p pairs with
// renewable percentile 100−p (median pairs with median). Same-percentile
// pairings under-state tail risk and are rejected outright.
func (c Crossing) Validate() error {
	if c.Demand == forecast.Median && c.Renewables == forecast.Median {
		return nil
	}
	dr, dok := c.Demand.Rank()
	rr, rok := c.Renewables.Rank()
	if !dok || !rok {
		return fmt.Errorf("%w: crossing %s uses non-rankable labels %q/%q",
			forecast.ErrValidation, c.Target, c.Demand, c.Renewables)
	}
	if dr+rr != 100 {
		return fmt.Errorf("%w: crossing %s pairs demand %s with renewables %s, want complement",
			forecast.ErrValidation, c.Target, c.Demand, c.Renewables)
	}
	return nil
}

// DefaultCrossings is the standard P90/P50/P10 crossing set, worst case
// first.
var DefaultCrossings = []Crossing{
	{Target: "P90", Demand: forecast.P90, Renewables: forecast.P10},
	{Target: "P50", Demand: forecast.Median, Renewables: forecast.Median},
	{Target: "P10", Demand: forecast.P10, Renewables: forecast.P90},
}

// summaryStats lists the per-hour cross-member statistics appended after the
// ensemble members, in output order.
var summaryStats = []string{"ens_mean", "ens_std", "ens_min", "ens_max", "ens_P10", "ens_P50", "ens_P90"}

// Engine computes residual-load scenarios. Engines are stateless and safe
// for concurrent use.
type Engine struct {
	// MinOverlapHours is the minimum length of the common wind/solar/demand
	// timeline. Shorter intersections fail with ErrInsufficientOverlap.
	MinOverlapHours int

	// Crossings defines the percentile targets, in output order.
	Crossings []Crossing

	logger *slog.Logger
}

// NewEngine creates an engine with the default crossing set and a 24h
// minimum overlap.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		MinOverlapHours: 24,
		Crossings:       DefaultCrossings,
		logger:          logger,
	}
}

// Compute derives the full residual scenario sequence for one
// (model, issue time) pair. Output order is deterministic: percentile
// scenarios in crossing order, then ensemble members by ascending index,
// then summary rows.
//
// Any invariant violation in the inputs aborts the whole computation;
// partial scenario sets are never returned.
func (e *Engine) Compute(ren forecast.Renewable, dem forecast.Demand) ([]Residual, error) {
	if err := ren.Validate(); err != nil {
		return nil, err
	}
	if err := dem.Validate(); err != nil {
		return nil, err
	}
	for _, c := range e.Crossings {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	demRef, err := dem.Percentiles.Reference()
	if err != nil {
		return nil, err
	}

	start, end, err := e.intersection(ren, dem)
	if err != nil {
		return nil, err
	}
	hours := int(end.Sub(start) / time.Hour)

	e.logger.Debug("aligned forecast timelines",
		"model", ren.Model.Code,
		"issue", ren.Issue.Format(time.RFC3339),
		"start", start.Format(time.RFC3339),
		"end", end.Format(time.RFC3339),
		"hours", hours,
	)

	out := make([]Residual, 0, len(e.Crossings)+len(ren.WindMembers)+len(summaryStats))

	for _, c := range e.Crossings {
		series, err := e.crossedSeries(ren, dem, c, start, end)
		if err != nil {
			return nil, err
		}
		out = append(out, Residual{
			Model: ren.Model.Code, Issue: ren.Issue,
			Kind: KindPercentile, Label: c.Target, Series: series,
		})
	}

	ref, ok := demRef.Slice(start, end)
	if !ok {
		return nil, fmt.Errorf("%w: demand reference does not cover the intersection", forecast.ErrDataIntegrity)
	}

	members := make([][]float64, 0, len(ren.WindMembers))
	for i := range ren.WindMembers {
		wind, okW := ren.WindMembers[i].Series.Slice(start, end)
		solar, okS := ren.SolarMembers[i].Series.Slice(start, end)
		if !okW || !okS {
			return nil, fmt.Errorf("%w: member %d missing hours inside the intersection", forecast.ErrDataIntegrity, i)
		}
		values := make([]float64, hours)
		for h := 0; h < hours; h++ {
			values[h] = ref.Values[h] - wind.Values[h] - solar.Values[h]
		}
		members = append(members, values)
		out = append(out, Residual{
			Model: ren.Model.Code, Issue: ren.Issue,
			Kind:   KindEnsemble,
			Label:  fmt.Sprintf("ens_%02d", i),
			Series: forecast.HourlySeries{Start: start, Values: values},
		})
	}

	for _, stat := range summaryStats {
		values := make([]float64, hours)
		sample := make([]float64, len(members))
		for h := 0; h < hours; h++ {
			for m := range members {
				sample[m] = members[m][h]
			}
			values[h] = summarize(stat, sample)
		}
		out = append(out, Residual{
			Model: ren.Model.Code, Issue: ren.Issue,
			Kind: KindSummary, Label: stat,
			Series: forecast.HourlySeries{Start: start, Values: values},
		})
	}

	return out, nil
}

// intersection computes the common hourly window of every wind, solar and
// demand series involved in the computation.
func (e *Engine) intersection(ren forecast.Renewable, dem forecast.Demand) (time.Time, time.Time, error) {
	series := make([]forecast.HourlySeries, 0, 3+len(ren.WindMembers)*2)
	for _, ps := range []forecast.PercentileSet{ren.WindPercentiles, ren.SolarPercentiles, dem.Percentiles} {
		// Sets share one timeline internally (validated), any series works.
		for _, s := range ps {
			series = append(series, s)
			break
		}
	}
	for i := range ren.WindMembers {
		series = append(series, ren.WindMembers[i].Series, ren.SolarMembers[i].Series)
	}

	start, end, ok := forecast.Intersect(series...)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: timelines do not overlap", forecast.ErrInsufficientOverlap)
	}
	if hours := int(end.Sub(start) / time.Hour); hours < e.MinOverlapHours {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %dh overlap, need %dh",
			forecast.ErrInsufficientOverlap, hours, e.MinOverlapHours)
	}
	return start, end, nil
}

// crossedSeries computes one percentile-crossed residual series over
// [start, end).
func (e *Engine) crossedSeries(ren forecast.Renewable, dem forecast.Demand, c Crossing, start, end time.Time) (forecast.HourlySeries, error) {
	demand, ok := dem.Percentiles[c.Demand]
	if !ok {
		return forecast.HourlySeries{}, fmt.Errorf("%w: demand set is missing label %q", forecast.ErrDataIntegrity, c.Demand)
	}
	wind, ok := ren.WindPercentiles[c.Renewables]
	if !ok {
		return forecast.HourlySeries{}, fmt.Errorf("%w: wind set is missing label %q", forecast.ErrDataIntegrity, c.Renewables)
	}
	solar, ok := ren.SolarPercentiles[c.Renewables]
	if !ok {
		return forecast.HourlySeries{}, fmt.Errorf("%w: solar set is missing label %q", forecast.ErrDataIntegrity, c.Renewables)
	}

	d, okD := demand.Slice(start, end)
	w, okW := wind.Slice(start, end)
	s, okS := solar.Slice(start, end)
	if !okD || !okW || !okS {
		return forecast.HourlySeries{}, fmt.Errorf("%w: series missing hours inside the intersection", forecast.ErrDataIntegrity)
	}

	values := make([]float64, d.Len())
	for h := range values {
		values[h] = d.Values[h] - w.Values[h] - s.Values[h]
	}
	return forecast.HourlySeries{Start: start, Values: values}, nil
}

// summarize computes one cross-member statistic for a single hour.
func summarize(stat string, sample []float64) float64 {
	if len(sample) == 0 {
		return 0
	}
	switch stat {
	case "ens_mean":
		return mean(sample)
	case "ens_std":
		m := mean(sample)
		var sum float64
		for _, v := range sample {
			d := v - m
			sum += d * d
		}
		return math.Sqrt(sum / float64(len(sample)))
	case "ens_min":
		min := sample[0]
		for _, v := range sample[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case "ens_max":
		max := sample[0]
		for _, v := range sample[1:] {
			if v > max {
				max = v
			}
		}
		return max
	case "ens_P10":
		return forecast.Quantile(sample, 10)
	case "ens_P50":
		return forecast.Quantile(sample, 50)
	case "ens_P90":
		return forecast.Quantile(sample, 90)
	}
	return 0
}

func mean(sample []float64) float64 {
	var sum float64
	for _, v := range sample {
		sum += v
	}
	return sum / float64(len(sample))
}
