package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/decay"
	"github.com/sells-group/access-cli/internal/session"
)

const nd = access.NoData

func population(weights ...int) access.Population {
	pop := access.Population{Weights: weights}
	for i := range weights {
		pop.Locations = append(pop.Locations, access.Point{Lon: float64(i), Lat: 0})
	}
	return pop
}

func linearInfra(cutoffs ...float64) access.Infrastructure {
	return access.Infrastructure{
		Weight:  1,
		Decay:   decay.Params{Kind: decay.Linear, MaxRange: 1000},
		Cutoffs: cutoffs,
	}
}

func coverageState() session.State {
	return session.State{
		Population: population(10, 20, 30, 40),
		Infrastructures: map[string]access.Infrastructure{
			"school":   linearInfra(300, 600, 900),
			"doctor":   linearInfra(300),
			"pharmacy": linearInfra(),
		},
		Result: &access.Result{
			Access: map[string][]float64{
				"school":            {nd, 0.5, 0.5, 0.5},
				"doctor":            {nd, nd, 0.2, 0.9},
				"pharmacy":          {nd, nd, nd, 0.1},
				access.MultiCriteria: {nd, 0.5, 0.7, 1.5},
			},
			Counts: map[string][]int{
				"school":   {0, 2, 2, 5},
				"doctor":   {0, 0, 1, 1},
				"pharmacy": {0, 0, 0, 1},
			},
		},
	}
}

func TestCoverageCount(t *testing.T) {
	h, err := CoverageCount(coverageState())
	require.NoError(t, err)

	assert.Equal(t, []string{"3", "2", "1", "0"}, h.Labels)
	assert.Equal(t, []int64{40, 30, 20, 10}, h.Data)
	assert.NotEmpty(t, h.XTitle)
}

func TestCoverageCount_ZeroFillsAbsentGroups(t *testing.T) {
	st := coverageState()
	st.Result.Access["pharmacy"] = []float64{nd, nd, nd, nd}
	st.Result.Access["doctor"] = []float64{nd, nd, nd, nd}

	h, err := CoverageCount(st)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2", "1", "0"}, h.Labels)
	assert.Equal(t, []int64{0, 0, 90, 10}, h.Data)
}

func TestCoverageCount_IgnoresPopulationPseudoEntry(t *testing.T) {
	st := coverageState()
	st.Result.Access["population"] = []float64{10, 20, 30, 40}

	h, err := CoverageCount(st)
	require.NoError(t, err)
	assert.Len(t, h.Labels, 4)
}

func TestQualityTiers(t *testing.T) {
	f, err := decay.New(decay.Params{Kind: decay.Linear, MaxRange: 1000})
	require.NoError(t, err)

	st := session.State{
		Population: population(1, 2, 4, 8, 16),
		Infrastructures: map[string]access.Infrastructure{
			"school": linearInfra(300, 600, 900),
		},
		Result: &access.Result{
			Access: map[string][]float64{
				"school":             {0.9, f.Weight(600) - decay.TierEpsilon, 0.15, 0.05, nd},
				access.MultiCriteria: {0.9, 0.4, 0.15, 0.05, nd},
			},
		},
	}

	h, err := QualityTiers(st, "school")
	require.NoError(t, err)
	assert.Equal(t, QualityLabels, h.Labels)
	// tier 0: 1, tier 1: 2 (on the boundary), tier 2: 4, tier 3: 8 + 16, tier 4 unused
	assert.Equal(t, []int64{1, 2, 4, 24, 0}, h.Data)
}

func TestQualityTiers_ManyCutoffsFoldIntoLastLabel(t *testing.T) {
	st := session.State{
		Population: population(1, 2),
		Infrastructures: map[string]access.Infrastructure{
			"school": linearInfra(100, 200, 300, 400, 500, 600),
		},
		Result: &access.Result{
			Access: map[string][]float64{
				"school":             {0.45, nd},
				access.MultiCriteria: {0.45, nd},
			},
		},
	}

	h, err := QualityTiers(st, "school")
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0, 0, 0, 3}, h.Data)
}

func TestQualityTiers_UnknownInfrastructure(t *testing.T) {
	_, err := QualityTiers(coverageState(), "library")
	require.Error(t, err)
	assert.ErrorIs(t, err, access.ErrUnknownReference)

	_, err = QualityTiers(coverageState(), access.MultiCriteria)
	assert.ErrorIs(t, err, access.ErrUnknownReference)
}

func TestServedCounts(t *testing.T) {
	h, err := ServedCounts(coverageState(), "school")
	require.NoError(t, err)

	assert.Equal(t, []string{"0", "2", "5"}, h.Labels)
	assert.Equal(t, []int64{10, 50, 40}, h.Data)
}

func TestServedCounts_Unknown(t *testing.T) {
	_, err := ServedCounts(coverageState(), "library")
	assert.ErrorIs(t, err, access.ErrUnknownReference)
}

func TestHotspot(t *testing.T) {
	sc, err := Hotspot(coverageState())
	require.NoError(t, err)

	assert.Equal(t, []int64{20, 30, 40}, sc.X)
	assert.Equal(t, []float64{0.5, 0.7, 1.5}, sc.Y)
}

func TestStatistics_RequireResult(t *testing.T) {
	empty := session.State{}

	_, err := CoverageCount(empty)
	assert.ErrorIs(t, err, access.ErrUnknownReference)
	_, err = QualityTiers(empty, "school")
	assert.ErrorIs(t, err, access.ErrUnknownReference)
	_, err = ServedCounts(empty, "school")
	assert.ErrorIs(t, err, access.ErrUnknownReference)
	_, err = Hotspot(empty)
	assert.ErrorIs(t, err, access.ErrUnknownReference)
}

func TestStatistics_DoNotMutateState(t *testing.T) {
	st := coverageState()
	before := st.Result.Clone()

	_, err := CoverageCount(st)
	require.NoError(t, err)
	_, err = QualityTiers(st, "school")
	require.NoError(t, err)
	_, err = ServedCounts(st, "school")
	require.NoError(t, err)
	_, err = Hotspot(st)
	require.NoError(t, err)

	assert.Equal(t, before, st.Result)
}
