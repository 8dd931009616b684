package scenario

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/access/mocks"
	"github.com/sells-group/access-cli/internal/analysis"
	"github.com/sells-group/access-cli/internal/decay"
	"github.com/sells-group/access-cli/internal/session"
)

// facilityCountProvider serves the first len(Facilities) cells with a fixed
// score, so scenarios with more facilities cover more cells.
type facilityCountProvider struct{}

func (facilityCountProvider) Reachability(_ context.Context, req access.ReachabilityRequest) (*access.Reachability, error) {
	n := req.Population.Len()
	out := &access.Reachability{Values: make([]float64, n), Counts: make([]int, n)}
	for i := range n {
		if i < len(req.Facilities) {
			out.Values[i] = 0.5
			out.Counts[i] = len(req.Facilities)
		}
	}
	return out, nil
}

func testPop() access.Population {
	return access.Population{
		Locations: []access.Point{{Lon: 9, Lat: 48}, {Lon: 9.1, Lat: 48}, {Lon: 9.2, Lat: 48}},
		Weights:   []int{100, 200, 300},
	}
}

func schools(facilities ...access.Point) map[string]access.Infrastructure {
	return map[string]access.Infrastructure{
		"school": {
			Weight:          1,
			Decay:           decay.Params{Kind: decay.Linear, MaxRange: 900},
			Cutoffs:         []float64{300, 600},
			Facilities:      facilities,
			FacilityWeights: make([]float64, len(facilities)),
		},
	}
}

func newEngine(t *testing.T, solver access.SetCoverageSolver) (*Engine, *session.Store, string) {
	t.Helper()
	store := session.NewStore()
	id := store.NewSession("alice")
	return NewEngine(store, access.NewAggregator(facilityCountProvider{}), solver), store, id
}

func TestBaseline_StoresState(t *testing.T) {
	engine, store, id := newEngine(t, nil)

	res, err := engine.Baseline(context.Background(), "alice", id, testPop(), schools(access.Point{Lon: 9, Lat: 48}), access.ModeDriving)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, access.NoData, access.NoData}, res.Composite())

	sess, err := store.Get("alice", id)
	require.NoError(t, err)
	st := sess.Snapshot()
	require.True(t, st.Ready())
	assert.Equal(t, res, st.Result)
	assert.Equal(t, access.ModeDriving, st.TravelMode)
	assert.Contains(t, st.Infrastructures, "school")
}

func TestBaseline_CopiesPopulation(t *testing.T) {
	engine, store, id := newEngine(t, nil)
	pop := testPop()

	_, err := engine.Baseline(context.Background(), "alice", id, pop, schools(access.Point{Lon: 9, Lat: 48}), access.ModeDriving)
	require.NoError(t, err)

	pop.Weights[0] = 999
	pop.Locations[0] = access.Point{Lon: 1, Lat: 1}

	sess, err := store.Get("alice", id)
	require.NoError(t, err)
	assert.Equal(t, testPop(), sess.Snapshot().Population)
}

func TestBaseline_UnknownSession(t *testing.T) {
	engine, _, _ := newEngine(t, nil)
	_, err := engine.Baseline(context.Background(), "bob", "nope", testPop(), schools(), access.ModeDriving)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestBaseline_FailureKeepsPreviousState(t *testing.T) {
	store := session.NewStore()
	id := store.NewSession("alice")

	ok := NewEngine(store, access.NewAggregator(facilityCountProvider{}), nil)
	_, err := ok.Baseline(context.Background(), "alice", id, testPop(), schools(access.Point{Lon: 9, Lat: 48}), access.ModeDriving)
	require.NoError(t, err)

	provider := mocks.NewMockProvider(t)
	provider.On("Reachability", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	failing := NewEngine(store, access.NewAggregator(provider), nil)

	_, err = failing.Baseline(context.Background(), "alice", id, testPop(), schools(access.Point{Lon: 1, Lat: 1}), access.ModeDriving)
	require.Error(t, err)
	assert.ErrorIs(t, err, access.ErrCollaborator)

	sess, err := store.Get("alice", id)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, access.NoData, access.NoData}, sess.Snapshot().Result.Composite())
}

func TestScenario_DoesNotTouchBaseline(t *testing.T) {
	engine, store, id := newEngine(t, nil)
	ctx := context.Background()

	_, err := engine.Baseline(ctx, "alice", id, testPop(), schools(access.Point{Lon: 9, Lat: 48}), access.ModeDriving)
	require.NoError(t, err)

	sess, err := store.Get("alice", id)
	require.NoError(t, err)
	before, err := analysis.CoverageCount(sess.Snapshot())
	require.NoError(t, err)
	baseline := sess.Snapshot().Result.Clone()

	res, pop, err := engine.Scenario(ctx, "alice", id, schools(
		access.Point{Lon: 9, Lat: 48}, access.Point{Lon: 9.1, Lat: 48}, access.Point{Lon: 9.2, Lat: 48},
	), access.ModeDriving)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, res.Composite())
	assert.Equal(t, testPop(), pop)

	st := sess.Snapshot()
	assert.Equal(t, baseline, st.Result)
	after, err := analysis.CoverageCount(st)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Len(t, st.Infrastructures["school"].Facilities, 1)
}

func TestScenario_DropsFacilityWeights(t *testing.T) {
	store := session.NewStore()
	id := store.NewSession("alice")
	sess, err := store.Get("alice", id)
	require.NoError(t, err)
	sess.Set(session.State{Population: testPop()})

	provider := mocks.NewMockProvider(t)
	provider.On("Reachability", mock.Anything, mock.MatchedBy(func(r access.ReachabilityRequest) bool {
		return r.FacilityWeights == nil && len(r.Facilities) == 1
	})).Return(&access.Reachability{Values: []float64{1, 1, 1}}, nil)

	engine := NewEngine(store, access.NewAggregator(provider), nil)
	_, _, err = engine.Scenario(context.Background(), "alice", id, schools(access.Point{Lon: 9, Lat: 48}), access.ModeWalking)
	require.NoError(t, err)
}

func TestScenario_RequiresPopulation(t *testing.T) {
	engine, _, id := newEngine(t, nil)
	_, _, err := engine.Scenario(context.Background(), "alice", id, schools(), access.ModeDriving)
	assert.ErrorIs(t, err, access.ErrUnknownReference)
}

func TestOptimize(t *testing.T) {
	solver := mocks.NewMockSetCoverageSolver(t)
	solver.On("SetCoverage", mock.Anything, mock.MatchedBy(func(r access.CoverageRequest) bool {
		return r.MaxRange == 600 && r.Target == 0.8 && r.Population.Len() == 3
	})).Return([]bool{true, true, false}, nil)
	solver.On("SetCoverage", mock.Anything, mock.MatchedBy(func(r access.CoverageRequest) bool {
		return r.MaxRange == 900
	})).Return([]bool{true, true, true}, nil)

	engine, _, id := newEngine(t, solver)
	_, err := engine.Baseline(context.Background(), "alice", id, testPop(), schools(access.Point{Lon: 9, Lat: 48}), access.ModeDriving)
	require.NoError(t, err)

	out, err := engine.Optimize(context.Background(), "alice", id, map[string]Target{
		"school": {MaxRange: 600, CoverageTarget: 0.8, Candidates: []access.Point{{Lon: 9, Lat: 48}}},
		"doctor": {MaxRange: 900, CoverageTarget: 1},
	}, access.ModeDriving)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, out["school"])
	assert.Equal(t, []bool{true, true, true}, out["doctor"])
}

func TestOptimize_Errors(t *testing.T) {
	ctx := context.Background()

	engine, _, id := newEngine(t, nil)
	_, err := engine.Optimize(ctx, "alice", id, map[string]Target{"a": {MaxRange: 1, CoverageTarget: 1}}, access.ModeDriving)
	assert.ErrorIs(t, err, access.ErrInvalidParameters)

	solver := mocks.NewMockSetCoverageSolver(t)
	engine, _, id = newEngine(t, solver)
	_, err = engine.Optimize(ctx, "alice", id, map[string]Target{"a": {MaxRange: 0, CoverageTarget: 1}}, access.ModeDriving)
	assert.ErrorIs(t, err, access.ErrInvalidParameters)
	_, err = engine.Optimize(ctx, "alice", id, map[string]Target{"a": {MaxRange: 10, CoverageTarget: 1.5}}, access.ModeDriving)
	assert.ErrorIs(t, err, access.ErrInvalidParameters)
	_, err = engine.Optimize(ctx, "alice", "missing", map[string]Target{"a": {MaxRange: 10, CoverageTarget: 1}}, access.ModeDriving)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestOptimize_SolverFailure(t *testing.T) {
	solver := mocks.NewMockSetCoverageSolver(t)
	solver.On("SetCoverage", mock.Anything, mock.Anything).Return(nil, errors.New("solver down"))

	engine, _, id := newEngine(t, solver)
	_, err := engine.Baseline(context.Background(), "alice", id, testPop(), schools(access.Point{Lon: 9, Lat: 48}), access.ModeDriving)
	require.NoError(t, err)

	_, err = engine.Optimize(context.Background(), "alice", id, map[string]Target{
		"school": {MaxRange: 600, CoverageTarget: 0.5},
	}, access.ModeDriving)
	require.Error(t, err)
	assert.ErrorIs(t, err, access.ErrCollaborator)
}
