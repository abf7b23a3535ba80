package scenario

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gridpulse/resload/pkg/forecast"
)

// ParseTarget parses a residual-load percentile target from p-notation.
//
// Examples:
//   - "P90" → 90
//   - "p50" → 50
//   - "P10" → 10
//
// Returns an error if the format is invalid or the value is out of [0, 100].
func ParseTarget(s string) (int, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(strings.ToLower(s), "p") {
		return 0, fmt.Errorf("%w: target %q must use p-notation (e.g. P90)", forecast.ErrValidation, s)
	}

	rank, err := strconv.Atoi(s[1:])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid target %q", forecast.ErrValidation, s)
	}
	if rank < 0 || rank > 100 {
		return 0, fmt.Errorf("%w: target %v out of range [0, 100]", forecast.ErrValidation, rank)
	}
	return rank, nil
}

// FormatTarget formats a percentile rank as p-notation for display.
func FormatTarget(rank int) string {
	return fmt.Sprintf("P%d", rank)
}

// CrossingForTarget builds the crossed percentile pair for one residual-load
// target: demand at rank p paired with renewables at rank 100-p. The target
// must correspond to a label the upstream store actually publishes; P50 maps
// to the median special member on both sides.
func CrossingForTarget(rank int) (Crossing, error) {
	if rank == 50 {
		return Crossing{
			Target:     FormatTarget(rank),
			Demand:     forecast.Median,
			Renewables: forecast.Median,
		}, nil
	}

	var demand forecast.PercentileLabel
	found := false
	for _, l := range forecast.PercentileLabels {
		if r, ok := l.Rank(); ok && r == rank {
			demand, found = l, true
			break
		}
	}
	if !found {
		return Crossing{}, fmt.Errorf("%w: no stored percentile member for target %s", forecast.ErrValidation, FormatTarget(rank))
	}

	renewables, ok := demand.Complement()
	if !ok {
		return Crossing{}, fmt.Errorf("%w: no complement for target %s", forecast.ErrValidation, FormatTarget(rank))
	}

	return Crossing{Target: FormatTarget(rank), Demand: demand, Renewables: renewables}, nil
}

// CrossingsForTargets builds crossings for a list of p-notation targets,
// preserving order.
func CrossingsForTargets(targets []string) ([]Crossing, error) {
	crossings := make([]Crossing, 0, len(targets))
	for _, t := range targets {
		rank, err := ParseTarget(t)
		if err != nil {
			return nil, err
		}
		c, err := CrossingForTarget(rank)
		if err != nil {
			return nil, err
		}
		crossings = append(crossings, c)
	}
	return crossings, nil
}
