package forecast

import "fmt"

// PercentileLabel identifies one series inside a PercentileSet. The set of
// labels is closed: numeric percentiles match the pre-computed members the
// upstream store publishes, plus the three special members.
type PercentileLabel string

const (
	P0      PercentileLabel = "0%"
	P10     PercentileLabel = "10%"
	P25     PercentileLabel = "25%"
	P40     PercentileLabel = "40%"
	P60     PercentileLabel = "60%"
	P75     PercentileLabel = "75%"
	P90     PercentileLabel = "90%"
	P100    PercentileLabel = "100%"
	Control PercentileLabel = "control"
	Mean    PercentileLabel = "mean"
	Median  PercentileLabel = "median"
)

// PercentileLabels lists the numeric labels in ascending rank order.
var PercentileLabels = []PercentileLabel{P0, P10, P25, P40, P60, P75, P90, P100}

// SpecialLabels lists the non-percentile members.
var SpecialLabels = []PercentileLabel{Control, Mean, Median}

var percentileRank = map[PercentileLabel]int{
	P0: 0, P10: 10, P25: 25, P40: 40, P60: 60, P75: 75, P90: 90, P100: 100,
}

// ParsePercentileLabel validates a raw member string against the closed
// label set. Returns ErrValidation for anything else.
func ParsePercentileLabel(s string) (PercentileLabel, error) {
	l := PercentileLabel(s)
	if _, ok := percentileRank[l]; ok {
		return l, nil
	}
	for _, sp := range SpecialLabels {
		if l == sp {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: unknown percentile label %q", ErrValidation, s)
}

// Rank returns the numeric rank of a percentile label (0..100) and whether
// the label is numeric. Special labels have no rank.
func (l PercentileLabel) Rank() (int, bool) {
	r, ok := percentileRank[l]
	return r, ok
}

// Complement returns the 100-p label for a numeric percentile. The mapping
// is exact because the label set is symmetric around 50.
func (l PercentileLabel) Complement() (PercentileLabel, bool) {
	r, ok := percentileRank[l]
	if !ok {
		if l == Median {
			return Median, true
		}
		return "", false
	}
	for lab, rank := range percentileRank {
		if rank == 100-r {
			return lab, true
		}
	}
	return "", false
}

// PercentileSet maps percentile labels to hourly series sharing one timeline.
type PercentileSet map[PercentileLabel]HourlySeries

// Validate checks the two PercentileSet invariants: every series spans the
// same timeline, and values at increasing numeric percentiles are
// non-decreasing at every hour. Violations are ErrDataIntegrity, never
// silently tolerated.
func (ps PercentileSet) Validate() error {
	if len(ps) == 0 {
		return fmt.Errorf("%w: empty percentile set", ErrDataUnavailable)
	}

	var ref HourlySeries
	var refLabel PercentileLabel
	first := true
	for label, s := range ps {
		if first {
			ref, refLabel, first = s, label, false
			continue
		}
		if !s.Start.Equal(ref.Start) || s.Len() != ref.Len() {
			return fmt.Errorf("%w: series %q and %q span different timelines", ErrDataIntegrity, refLabel, label)
		}
	}

	for i := 1; i < len(PercentileLabels); i++ {
		lo, okLo := ps[PercentileLabels[i-1]]
		hi, okHi := ps[PercentileLabels[i]]
		if !okLo || !okHi {
			continue
		}
		for h := range lo.Values {
			if lo.Values[h] > hi.Values[h] {
				return fmt.Errorf("%w: %s > %s at %s (%.3f > %.3f)",
					ErrDataIntegrity, PercentileLabels[i-1], PercentileLabels[i],
					lo.Hour(h).Format("2006-01-02T15:04Z"), lo.Values[h], hi.Values[h])
			}
		}
	}

	return nil
}

// Reference returns the deterministic demand reference series used by
// ensemble scenarios: median when present, mean as fallback.
func (ps PercentileSet) Reference() (HourlySeries, error) {
	if s, ok := ps[Median]; ok {
		return s, nil
	}
	if s, ok := ps[Mean]; ok {
		return s, nil
	}
	return HourlySeries{}, fmt.Errorf("%w: percentile set has neither median nor mean", ErrDataIntegrity)
}
