// Package scenario runs baseline, what-if, and set-coverage computations
// against a user's session.
package scenario

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/session"
)

// Target describes one infrastructure's set-coverage optimization.
type Target struct {
	MaxRange       float64        `json:"max_range" validate:"gt=0"`
	CoverageTarget float64        `json:"coverage_target" validate:"gte=0,lte=1"`
	Candidates     []access.Point `json:"facility_locations"`
}

// Engine coordinates the aggregator, solver and session store.
type Engine struct {
	store      *session.Store
	aggregator *access.Aggregator
	solver     access.SetCoverageSolver
}

// NewEngine creates an Engine. solver may be nil when optimization is not
// offered.
func NewEngine(store *session.Store, aggregator *access.Aggregator, solver access.SetCoverageSolver) *Engine {
	return &Engine{
		store:      store,
		aggregator: aggregator,
		solver:     solver,
	}
}

// Baseline aggregates pop and infras and replaces the session's cached state.
// The session is left untouched when aggregation fails.
func (e *Engine) Baseline(ctx context.Context, user, sessionID string, pop access.Population, infras map[string]access.Infrastructure, travelMode string) (*access.Result, error) {
	sess, err := e.store.Get(user, sessionID)
	if err != nil {
		return nil, err
	}

	res, err := e.aggregator.Aggregate(ctx, pop, infras, travelMode)
	if err != nil {
		return nil, eris.Wrap(err, "scenario: baseline")
	}

	sess.Set(session.State{
		Population:      pop.Clone(),
		Infrastructures: access.CloneInfrastructures(infras),
		Result:          res.Clone(),
		TravelMode:      travelMode,
	})
	if err := sess.Commit(); err != nil {
		return nil, eris.Wrap(err, "scenario: commit session")
	}
	return res, nil
}

// Scenario recomputes the composite for alternate facility locations over the
// session's cached population and returns that population alongside the
// result; a baseline committed while the scenario runs does not affect
// either. The baseline stored in the session is not modified.
func (e *Engine) Scenario(ctx context.Context, user, sessionID string, infras map[string]access.Infrastructure, travelMode string) (*access.Result, access.Population, error) {
	st, err := e.population(user, sessionID)
	if err != nil {
		return nil, access.Population{}, err
	}

	alt := access.CloneInfrastructures(infras)
	for name, infra := range alt {
		// Facilities come straight from the request without capacities.
		infra.FacilityWeights = nil
		alt[name] = infra
	}

	res, err := e.aggregator.Aggregate(ctx, st.Population, alt, travelMode)
	if err != nil {
		return nil, access.Population{}, eris.Wrap(err, "scenario: what-if")
	}
	return res, st.Population, nil
}

// Optimize runs the set-coverage solver for every target independently and
// returns, per infrastructure, which population cells end up covered.
func (e *Engine) Optimize(ctx context.Context, user, sessionID string, targets map[string]Target, travelMode string) (map[string][]bool, error) {
	if e.solver == nil {
		return nil, eris.Wrap(access.ErrInvalidParameters, "scenario: optimization is not available")
	}
	if len(targets) == 0 {
		return nil, eris.Wrap(access.ErrInvalidParameters, "scenario: no optimization targets")
	}
	for name, t := range targets {
		if t.MaxRange <= 0 {
			return nil, eris.Wrapf(access.ErrInvalidParameters, "scenario: %q needs a positive max_range", name)
		}
		if t.CoverageTarget < 0 || t.CoverageTarget > 1 {
			return nil, eris.Wrapf(access.ErrInvalidParameters, "scenario: %q coverage target must be within [0,1]", name)
		}
	}

	st, err := e.population(user, sessionID)
	if err != nil {
		return nil, err
	}
	n := st.Population.Len()

	type outcome struct {
		name    string
		covered []bool
	}
	results := make(chan outcome, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for name, t := range targets {
		g.Go(func() error {
			covered, err := e.solver.SetCoverage(gctx, access.CoverageRequest{
				Population: st.Population,
				Candidates: t.Candidates,
				MaxRange:   t.MaxRange,
				Target:     t.CoverageTarget,
				TravelMode: travelMode,
			})
			if err != nil {
				return access.NewCollaboratorError(name, err)
			}
			if len(covered) != n {
				return access.NewCollaboratorError(name, eris.Errorf("solver returned %d flags for %d cells", len(covered), n))
			}
			results <- outcome{name: name, covered: covered}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	out := make(map[string][]bool, len(targets))
	for r := range results {
		out[r.name] = r.covered
	}

	zap.L().Info("scenario: optimization complete",
		zap.String("session", sessionID),
		zap.Int("infrastructures", len(out)),
	)
	return out, nil
}

func (e *Engine) population(user, sessionID string) (session.State, error) {
	sess, err := e.store.Get(user, sessionID)
	if err != nil {
		return session.State{}, err
	}
	st := sess.Snapshot()
	if st.Population.Len() == 0 {
		return session.State{}, eris.Wrap(access.ErrUnknownReference, "scenario: session has no population yet")
	}
	return st, nil
}
