package access

import (
	"context"

	"github.com/sells-group/access-cli/internal/decay"
)

// Default travel modes understood by the bundled providers.
const (
	ModeDriving = "driving-car"
	ModeWalking = "walking-foot"
	ModeCycling = "cycling-regular"
)

// ReachabilityRequest is the input of one per-infrastructure provider call.
type ReachabilityRequest struct {
	Population      Population
	Facilities      []Point
	FacilityWeights []float64
	Decay           decay.Params
	TravelMode      string
}

// Reachability is a provider's answer, aligned with the request population.
type Reachability struct {
	// Values are non-negative reachability scores; values <= 0 mean the
	// cell is not served.
	Values []float64
	// Counts are the number of facilities that served each cell.
	Counts []int
}

// Provider computes reachability for one infrastructure. Implementations may
// route in-process or call a remote accessibility service.
type Provider interface {
	Reachability(ctx context.Context, req ReachabilityRequest) (*Reachability, error)
}

// CoverageRequest is the input of a set-coverage optimization.
type CoverageRequest struct {
	Population Population
	Candidates []Point
	MaxRange   float64
	// Target is the share of population weight (0..1) to cover.
	Target     float64
	TravelMode string
}

// SetCoverageSolver selects candidate facilities to reach a coverage target
// and reports which population cells end up covered.
type SetCoverageSolver interface {
	SetCoverage(ctx context.Context, req CoverageRequest) ([]bool, error)
}
