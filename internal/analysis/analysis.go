// Package analysis derives decision-support statistics from a session's
// cached multi-criteria result. Every function is read-only.
package analysis

import (
	"slices"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/decay"
	"github.com/sells-group/access-cli/internal/session"
)

// QualityLabels are the fixed quality-tier labels, best first.
var QualityLabels = []string{"very good", "good", "sufficient", "deficient", "insufficient"}

// populationKey is a pseudo-entry some clients store next to the results.
const populationKey = "population"

// Histogram is a labeled bar series of summed population weight.
type Histogram struct {
	Labels []string `json:"labels"`
	Data   []int64  `json:"data"`
	XTitle string   `json:"x_title"`
	YTitle string   `json:"y_title"`
}

// Scatter is a point series of population weight against composite score.
type Scatter struct {
	X      []int64   `json:"x"`
	Y      []float64 `json:"y"`
	XTitle string    `json:"x_title"`
	YTitle string    `json:"y_title"`
}

func ready(st session.State) error {
	if !st.Ready() {
		return eris.Wrap(access.ErrUnknownReference, "analysis: session has no computed result")
	}
	if len(st.Population.Weights) != len(st.Result.Composite()) {
		return eris.Wrapf(access.ErrInvalidParameters, "analysis: %d population weights for %d cells",
			len(st.Population.Weights), len(st.Result.Composite()))
	}
	return nil
}

// CoverageCount groups cells by how many infrastructures serve them and sums
// population per group. Labels run from the infrastructure count down to "0".
func CoverageCount(st session.State) (*Histogram, error) {
	if err := ready(st); err != nil {
		return nil, err
	}
	weights := st.Population.Weights

	amount := make([]int, len(weights))
	infraCount := 0
	for name, values := range st.Result.Access {
		if name == access.MultiCriteria || name == populationKey {
			continue
		}
		if len(values) != len(weights) {
			return nil, eris.Wrapf(access.ErrInvalidParameters, "analysis: %q has %d values for %d cells",
				name, len(values), len(weights))
		}
		infraCount++
		for i := range weights {
			if values[i] != access.NoData {
				amount[i]++
			}
		}
	}

	sums := make([]int64, infraCount+1)
	for i, w := range weights {
		sums[amount[i]] += int64(w)
	}

	h := &Histogram{
		XTitle: "Number of infrastructure types",
		YTitle: "Population",
	}
	for k := infraCount; k >= 0; k-- {
		h.Labels = append(h.Labels, strconv.Itoa(k))
		h.Data = append(h.Data, sums[k])
	}
	return h, nil
}

// QualityTiers classifies every cell of one infrastructure into a quality
// tier using its cutoffs and decay function, and sums population per tier.
// Tiers beyond the last label are folded into "insufficient".
func QualityTiers(st session.State, name string) (*Histogram, error) {
	if err := ready(st); err != nil {
		return nil, err
	}
	values, ok := st.Result.Access[name]
	infra, defined := st.Infrastructures[name]
	if !ok || !defined || name == access.MultiCriteria {
		return nil, access.UnknownInfrastructure(name)
	}

	f, err := decay.New(infra.Decay)
	if err != nil {
		return nil, eris.Wrapf(access.ErrInvalidParameters, "analysis: infrastructure %q: %v", name, err)
	}
	tiers := decay.NewTiers(f, infra.Cutoffs)
	if len(values) != len(st.Population.Weights) {
		return nil, eris.Wrapf(access.ErrInvalidParameters, "analysis: %q has %d values for %d cells",
			name, len(values), len(st.Population.Weights))
	}

	last := len(QualityLabels) - 1
	data := make([]int64, len(QualityLabels))
	for i, w := range st.Population.Weights {
		tier := min(tiers.Classify(values[i], access.NoData), last)
		data[tier] += int64(w)
	}

	return &Histogram{
		Labels: slices.Clone(QualityLabels),
		Data:   data,
		XTitle: "Quality of supply",
		YTitle: "Population",
	}, nil
}

// ServedCounts groups cells by the number of facilities that served them and
// sums population per group. Only observed counts appear, ascending.
func ServedCounts(st session.State, name string) (*Histogram, error) {
	if err := ready(st); err != nil {
		return nil, err
	}
	counts, ok := st.Result.Counts[name]
	if !ok {
		return nil, access.UnknownInfrastructure(name)
	}
	if len(counts) != len(st.Population.Weights) {
		return nil, eris.Wrapf(access.ErrInvalidParameters, "analysis: %d counts for %d cells",
			len(counts), len(st.Population.Weights))
	}

	sums := make(map[int]int64)
	for i, w := range st.Population.Weights {
		sums[counts[i]] += int64(w)
	}
	keys := make([]int, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	h := &Histogram{
		XTitle: "Number of facilities",
		YTitle: "Population",
	}
	for _, k := range keys {
		h.Labels = append(h.Labels, strconv.Itoa(k))
		h.Data = append(h.Data, sums[k])
	}
	return h, nil
}

// Hotspot pairs each cell's population with its composite score, skipping
// cells without a composite.
func Hotspot(st session.State) (*Scatter, error) {
	if err := ready(st); err != nil {
		return nil, err
	}
	composite := st.Result.Composite()

	sc := &Scatter{
		X:      []int64{},
		Y:      []float64{},
		XTitle: "Population of the cell",
		YTitle: "Supply of the cell",
	}
	for i, w := range st.Population.Weights {
		if composite[i] == access.NoData {
			continue
		}
		sc.X = append(sc.X, int64(w))
		sc.Y = append(sc.Y, composite[i])
	}
	return sc, nil
}
