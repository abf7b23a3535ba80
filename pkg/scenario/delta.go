package scenario

import (
	"fmt"
	"time"

	"github.com/gridpulse/resload/pkg/forecast"
)

// IssueDelta captures how the residual-load outlook changed between two
// forecast runs of the same model, compared at the same valid times.
type IssueDelta struct {
	Model    string    `json:"model"`
	OldIssue time.Time `json:"oldIssue"`
	NewIssue time.Time `json:"newIssue"`

	// Wind and Solar hold the change in the per-hour ensemble mean
	// (new − old). Residual is −(Wind + Solar): more renewables forecast
	// means less residual load.
	Wind     forecast.HourlySeries `json:"wind"`
	Solar    forecast.HourlySeries `json:"solar"`
	Residual forecast.HourlySeries `json:"residual"`
}

// ComputeDelta compares two renewable forecast runs over their common
// timeline. Both runs must come from the same model.
func ComputeDelta(old, latest forecast.Renewable) (IssueDelta, error) {
	if old.Model.Code != latest.Model.Code {
		return IssueDelta{}, fmt.Errorf("%w: cannot compare runs of %s and %s",
			forecast.ErrValidation, old.Model.Code, latest.Model.Code)
	}
	if err := old.Validate(); err != nil {
		return IssueDelta{}, err
	}
	if err := latest.Validate(); err != nil {
		return IssueDelta{}, err
	}

	oldWind := memberMean(old.WindMembers)
	oldSolar := memberMean(old.SolarMembers)
	newWind := memberMean(latest.WindMembers)
	newSolar := memberMean(latest.SolarMembers)

	start, end, ok := forecast.Intersect(oldWind, oldSolar, newWind, newSolar)
	if !ok {
		return IssueDelta{}, fmt.Errorf("%w: runs share no valid times", forecast.ErrInsufficientOverlap)
	}

	wind := diff(newWind, oldWind, start, end)
	solar := diff(newSolar, oldSolar, start, end)

	residual := make([]float64, len(wind.Values))
	for h := range residual {
		residual[h] = -(wind.Values[h] + solar.Values[h])
	}

	return IssueDelta{
		Model:    latest.Model.Code,
		OldIssue: old.Issue,
		NewIssue: latest.Issue,
		Wind:     wind,
		Solar:    solar,
		Residual: forecast.HourlySeries{Start: start, Values: residual},
	}, nil
}

// memberMean collapses ensemble members into their per-hour mean on the
// members' common timeline.
func memberMean(members []forecast.EnsembleMember) forecast.HourlySeries {
	series := make([]forecast.HourlySeries, len(members))
	for i, m := range members {
		series[i] = m.Series
	}
	start, end, ok := forecast.Intersect(series...)
	if !ok {
		return forecast.HourlySeries{}
	}

	hours := int(end.Sub(start) / time.Hour)
	values := make([]float64, hours)
	for h := 0; h < hours; h++ {
		t := start.Add(time.Duration(h) * time.Hour)
		var sum float64
		for _, s := range series {
			v, _ := s.At(t)
			sum += v
		}
		values[h] = sum / float64(len(series))
	}
	return forecast.HourlySeries{Start: start, Values: values}
}

func diff(a, b forecast.HourlySeries, start, end time.Time) forecast.HourlySeries {
	as, _ := a.Slice(start, end)
	bs, _ := b.Slice(start, end)
	values := make([]float64, as.Len())
	for h := range values {
		values[h] = as.Values[h] - bs.Values[h]
	}
	return forecast.HourlySeries{Start: start, Values: values}
}
