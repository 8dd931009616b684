package access

import (
	"context"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/access-cli/internal/decay"
)

// Config controls aggregation policy.
type Config struct {
	// NormalizeWeights divides each infrastructure weight by the sum of all
	// weights before combining. The default combines raw
	// weights; historical deployments disagreed on this and it stays
	// switchable until product owners settle it.
	NormalizeWeights bool
}

// Observer receives aggregation telemetry.
type Observer interface {
	ObserveAggregate(infrastructures int, d time.Duration, err error)
	ObserveProviderCall(infrastructure string, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveAggregate(int, time.Duration, error) {}
func (nopObserver) ObserveProviderCall(string, time.Duration, error) {}

// Aggregator fans out reachability calls per infrastructure and folds the
// results into a weighted composite.
type Aggregator struct {
	provider Provider
	cfg      Config
	observer Observer
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithConfig sets the aggregation policy.
func WithConfig(cfg Config) Option {
	return func(a *Aggregator) {
		a.cfg = cfg
	}
}

// WithObserver sets the telemetry sink.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) {
		if o != nil {
			a.observer = o
		}
	}
}

// NewAggregator creates an Aggregator backed by provider.
func NewAggregator(provider Provider, opts ...Option) *Aggregator {
	a := &Aggregator{
		provider: provider,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the aggregation policy in effect.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// Aggregate computes reachability for every infrastructure concurrently and
// combines them into the MultiCriteria entry. Cells where an infrastructure
// reports a value <= 0 are rewritten to NoData for that infrastructure; a
// composite <= 0 is rewritten to NoData. Any provider failure fails the whole
// call and cancels the remaining provider calls.
func (a *Aggregator) Aggregate(ctx context.Context, pop Population, infras map[string]Infrastructure, travelMode string) (*Result, error) {
	start := time.Now()
	res, err := a.aggregate(ctx, pop, infras, travelMode)
	a.observer.ObserveAggregate(len(infras), time.Since(start), err)
	return res, err
}

func (a *Aggregator) aggregate(ctx context.Context, pop Population, infras map[string]Infrastructure, travelMode string) (*Result, error) {
	if err := pop.Validate(); err != nil {
		return nil, err
	}
	if len(infras) == 0 {
		return nil, eris.Wrap(ErrInvalidParameters, "access: no infrastructures")
	}

	// Fixed iteration order keeps floating point folding deterministic.
	names := make([]string, 0, len(infras))
	for name := range infras {
		names = append(names, name)
	}
	slices.Sort(names)

	var weightSum float64
	for _, name := range names {
		infra := infras[name]
		if name == MultiCriteria {
			return nil, eris.Wrapf(ErrInvalidParameters, "access: %q is a reserved name", name)
		}
		if infra.Weight <= 0 {
			return nil, eris.Wrapf(ErrInvalidParameters, "access: infrastructure %q has non-positive weight", name)
		}
		if _, err := decay.New(infra.Decay); err != nil {
			return nil, eris.Wrapf(ErrInvalidParameters, "access: infrastructure %q: %v", name, err)
		}
		weightSum += infra.Weight
	}

	n := pop.Len()
	reach := make([]*Reachability, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		infra := infras[name]
		g.Go(func() error {
			callStart := time.Now()
			r, err := a.provider.Reachability(gctx, ReachabilityRequest{
				Population:      pop,
				Facilities:      infra.Facilities,
				FacilityWeights: infra.FacilityWeights,
				Decay:           infra.Decay,
				TravelMode:      travelMode,
			})
			a.observer.ObserveProviderCall(name, time.Since(callStart), err)
			if err != nil {
				return NewCollaboratorError(name, err)
			}
			if r == nil {
				return NewCollaboratorError(name, eris.New("provider returned no result"))
			}
			if len(r.Values) != n {
				return NewCollaboratorError(name, eris.Errorf("provider returned %d values for %d cells", len(r.Values), n))
			}
			if len(r.Counts) != 0 && len(r.Counts) != n {
				return NewCollaboratorError(name, eris.Errorf("provider returned %d counts for %d cells", len(r.Counts), n))
			}
			zap.L().Debug("access: reachability computed",
				zap.String("infrastructure", name),
				zap.Int("facilities", len(infra.Facilities)),
				zap.Duration("elapsed", time.Since(callStart)),
			)
			reach[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Access: make(map[string][]float64, len(names)+1),
		Counts: make(map[string][]int, len(names)),
	}
	composite := make([]float64, n)

	for i, name := range names {
		weight := infras[name].Weight
		if a.cfg.NormalizeWeights {
			weight /= weightSum
		}

		values := slices.Clone(reach[i].Values)
		for j, v := range values {
			if v <= 0 {
				values[j] = NoData
				continue
			}
			composite[j] += weight * v
		}
		res.Access[name] = values

		counts := slices.Clone(reach[i].Counts)
		if counts == nil {
			counts = make([]int, n)
		}
		res.Counts[name] = counts
	}

	for j, v := range composite {
		if v <= 0 {
			composite[j] = NoData
		}
	}
	res.Access[MultiCriteria] = composite

	zap.L().Info("access: aggregation complete",
		zap.Int("cells", n),
		zap.Int("infrastructures", len(names)),
		zap.String("travel_mode", travelMode),
		zap.Bool("normalized", a.cfg.NormalizeWeights),
	)

	return res, nil
}
