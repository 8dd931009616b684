package decay

import "slices"

// TierEpsilon is subtracted from each cutoff weight so that a value sitting
// exactly on a cutoff lands in the better tier despite rounding.
const TierEpsilon = 1e-4

// Tiers classifies reachability values into quality tiers derived from a
// decay function and ascending cutoff costs. Tier 0 is best; Len() is the
// unserved tier.
type Tiers struct {
	thresholds []float64
}

// NewTiers derives tier thresholds weight(c_i) - TierEpsilon for each cutoff.
// Cutoffs are sorted ascending first.
func NewTiers(f Func, cutoffs []float64) Tiers {
	sorted := slices.Clone(cutoffs)
	slices.Sort(sorted)

	thresholds := make([]float64, len(sorted))
	for i, c := range sorted {
		thresholds[i] = f.Weight(c) - TierEpsilon
	}
	return Tiers{thresholds: thresholds}
}

// Thresholds returns a copy of the derived thresholds.
func (t Tiers) Thresholds() []float64 {
	return slices.Clone(t.thresholds)
}

// Len is the number of cutoffs, which is also the index of the worst tier.
func (t Tiers) Len() int {
	return len(t.thresholds)
}

// Classify returns the smallest tier j with value >= threshold_j, or Len()
// when the value is below every threshold. noData values always map to Len().
func (t Tiers) Classify(value, noData float64) int {
	if value == noData {
		return len(t.thresholds)
	}
	for j, th := range t.thresholds {
		if value >= th {
			return j
		}
	}
	return len(t.thresholds)
}
