// Package crowfly is an in-process reachability provider that approximates
// travel cost by great-circle distance over a per-mode travel speed. It backs
// local development and offline analysis where no routing engine is running.
package crowfly

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/decay"
)

const earthRadiusMeters = 6371008.8

// DefaultSpeeds are travel speeds in metres per second per travel mode.
var DefaultSpeeds = map[string]float64{
	access.ModeDriving: 13.9,
	access.ModeWalking: 1.39,
	access.ModeCycling: 4.17,
}

// checkEvery is how many cells are processed between cancellation checks.
const checkEvery = 256

// Provider implements access.Provider and access.SetCoverageSolver. Costs are
// travel seconds.
type Provider struct {
	speeds map[string]float64
}

// New creates a Provider. A nil or empty speeds map uses DefaultSpeeds.
func New(speeds map[string]float64) *Provider {
	if len(speeds) == 0 {
		speeds = DefaultSpeeds
	}
	return &Provider{speeds: speeds}
}

// Modes returns the configured travel speeds.
func (p *Provider) Modes() map[string]float64 {
	return p.speeds
}

func (p *Provider) speed(mode string) (float64, error) {
	v, ok := p.speeds[mode]
	if !ok || v <= 0 {
		return 0, eris.Wrapf(access.ErrInvalidParameters, "crowfly: unknown travel mode %q", mode)
	}
	return v, nil
}

// Reachability scores each cell with the decay weight of its cheapest
// facility and counts the facilities within the decay's maximum range.
func (p *Provider) Reachability(ctx context.Context, req access.ReachabilityRequest) (*access.Reachability, error) {
	speed, err := p.speed(req.TravelMode)
	if err != nil {
		return nil, err
	}
	f, err := decay.New(req.Decay)
	if err != nil {
		return nil, eris.Wrapf(access.ErrInvalidParameters, "crowfly: %v", err)
	}
	maxRange := f.MaxRange()

	facilities := coords(req.Facilities)
	n := req.Population.Len()
	out := &access.Reachability{
		Values: make([]float64, n),
		Counts: make([]int, n),
	}

	for i, loc := range req.Population.Locations {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		origin := loc.Coord()
		best := math.Inf(1)
		count := 0
		for _, fac := range facilities {
			cost := Haversine(origin, fac) / speed
			if cost < best {
				best = cost
			}
			if cost <= maxRange {
				count++
			}
		}
		if count > 0 {
			out.Values[i] = f.Weight(best)
		}
		out.Counts[i] = count
	}
	return out, nil
}

// SetCoverage greedily opens the candidate that covers the most uncovered
// population weight until the target share is reached or no candidate adds
// coverage.
func (p *Provider) SetCoverage(ctx context.Context, req access.CoverageRequest) ([]bool, error) {
	speed, err := p.speed(req.TravelMode)
	if err != nil {
		return nil, err
	}
	if req.MaxRange <= 0 {
		return nil, eris.Wrap(access.ErrInvalidParameters, "crowfly: max range must be positive")
	}

	n := req.Population.Len()
	candidates := coords(req.Candidates)

	// reach[j] lists the cells candidate j covers.
	reach := make([][]int, len(candidates))
	for j, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, loc := range req.Population.Locations {
			if Haversine(loc.Coord(), c)/speed <= req.MaxRange {
				reach[j] = append(reach[j], i)
			}
		}
	}

	var total int64
	for _, w := range req.Population.Weights {
		total += int64(w)
	}
	goal := req.Target * float64(total)

	covered := make([]bool, n)
	opened := make([]bool, len(candidates))
	var coveredWeight int64

	for float64(coveredWeight) < goal {
		bestJ, bestGain := -1, int64(0)
		for j, cells := range reach {
			if opened[j] {
				continue
			}
			var gain int64
			for _, i := range cells {
				if !covered[i] {
					gain += int64(req.Population.Weights[i])
				}
			}
			if gain > bestGain {
				bestJ, bestGain = j, gain
			}
		}
		if bestJ < 0 {
			break
		}
		opened[bestJ] = true
		for _, i := range reach[bestJ] {
			covered[i] = true
		}
		coveredWeight += bestGain
	}
	return covered, nil
}

// Haversine returns the great-circle distance in metres between two
// lon/lat coordinates.
func Haversine(a, b geom.Coord) float64 {
	lat1 := a.Y() * math.Pi / 180
	lat2 := b.Y() * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.X() - a.X()) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

func coords(points []access.Point) []geom.Coord {
	out := make([]geom.Coord, len(points))
	for i, p := range points {
		out[i] = p.Coord()
	}
	return out
}
