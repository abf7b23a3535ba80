package forecast

import "sort"

// Quantile computes the p-th percentile (p in [0,100]) of a sample using
// linear interpolation between order statistics. Every component that needs
// "percentile of a sample" must go through this function so cross-scenario
// comparisons stay valid.
//
// The input is not modified. Returns 0 for an empty sample.
func Quantile(sample []float64, p float64) float64 {
	if len(sample) == 0 {
		return 0
	}
	if len(sample) == 1 {
		return sample[0]
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}

	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)

	h := p / 100 * float64(len(sorted)-1)
	lo := int(h)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
