package forecast

import (
	"fmt"
	"sort"
	"time"
)

// Point is a single (UTC hour, value) observation.
type Point struct {
	Time  time.Time
	Value float64
}

// HourlySeries is a gap-free hourly sequence of values starting at Start.
// The i-th value is valid for the hour [Start+i*1h, Start+(i+1)*1h).
// Construct it with NewHourlySeries so the no-gaps invariant holds.
type HourlySeries struct {
	Start  time.Time `json:"start"`
	Values []float64 `json:"values"`
}

// NewHourlySeries builds an HourlySeries from unordered points. Points are
// sorted by time; timestamps are normalized to UTC and truncated to the hour.
// Returns ErrDataIntegrity when the sequence has a gap or a duplicate hour,
// and ErrDataUnavailable when points is empty.
func NewHourlySeries(points []Point) (HourlySeries, error) {
	if len(points) == 0 {
		return HourlySeries{}, fmt.Errorf("%w: empty series", ErrDataUnavailable)
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	for i := range sorted {
		sorted[i].Time = sorted[i].Time.UTC().Truncate(time.Hour)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	values := make([]float64, 0, len(sorted))
	values = append(values, sorted[0].Value)
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].Time.Sub(sorted[i-1].Time)
		switch {
		case gap == 0:
			return HourlySeries{}, fmt.Errorf("%w: duplicate hour %s", ErrDataIntegrity, sorted[i].Time.Format(time.RFC3339))
		case gap != time.Hour:
			return HourlySeries{}, fmt.Errorf("%w: gap of %s after %s", ErrDataIntegrity, gap, sorted[i-1].Time.Format(time.RFC3339))
		}
		values = append(values, sorted[i].Value)
	}

	return HourlySeries{Start: sorted[0].Time, Values: values}, nil
}

// Len returns the number of hours in the series.
func (s HourlySeries) Len() int { return len(s.Values) }

// End returns the exclusive end of the series.
func (s HourlySeries) End() time.Time {
	return s.Start.Add(time.Duration(len(s.Values)) * time.Hour)
}

// Hour returns the timestamp of the i-th value.
func (s HourlySeries) Hour(i int) time.Time {
	return s.Start.Add(time.Duration(i) * time.Hour)
}

// At returns the value valid at t, or false when t is outside the series.
func (s HourlySeries) At(t time.Time) (float64, bool) {
	t = t.UTC().Truncate(time.Hour)
	if t.Before(s.Start) || !t.Before(s.End()) {
		return 0, false
	}
	return s.Values[int(t.Sub(s.Start)/time.Hour)], true
}

// Slice returns the sub-series covering [from, to). Returns false when the
// requested window is not fully contained in the series.
func (s HourlySeries) Slice(from, to time.Time) (HourlySeries, bool) {
	from = from.UTC().Truncate(time.Hour)
	to = to.UTC().Truncate(time.Hour)
	if from.Before(s.Start) || to.After(s.End()) || !from.Before(to) {
		return HourlySeries{}, false
	}
	lo := int(from.Sub(s.Start) / time.Hour)
	hi := int(to.Sub(s.Start) / time.Hour)
	out := make([]float64, hi-lo)
	copy(out, s.Values[lo:hi])
	return HourlySeries{Start: from, Values: out}, true
}

// Covers reports whether the series spans every hour of [from, to).
func (s HourlySeries) Covers(from, to time.Time) bool {
	from = from.UTC().Truncate(time.Hour)
	to = to.UTC().Truncate(time.Hour)
	return !from.Before(s.Start) && !to.After(s.End())
}

// Intersect returns the common [start, end) window of all series, where end
// is exclusive. Returns false when the intersection is empty.
func Intersect(series ...HourlySeries) (time.Time, time.Time, bool) {
	if len(series) == 0 {
		return time.Time{}, time.Time{}, false
	}
	start := series[0].Start
	end := series[0].End()
	for _, s := range series[1:] {
		if s.Start.After(start) {
			start = s.Start
		}
		if s.End().Before(end) {
			end = s.End()
		}
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
