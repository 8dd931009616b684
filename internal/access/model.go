// Package access combines per-infrastructure reachability into a weighted
// multi-criteria accessibility score.
package access

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/access-cli/internal/decay"
)

// NoData marks a population cell that could not be served or assessed.
const NoData = -9999.0

// MultiCriteria is the result key holding the weighted composite score.
const MultiCriteria = "multiCriteria"

// Point is a WGS84 coordinate. It encodes as a [lon, lat] JSON pair.
type Point struct {
	Lon float64
	Lat float64
}

// Coord returns the point as a go-geom XY coordinate.
func (p Point) Coord() geom.Coord {
	return geom.Coord{p.Lon, p.Lat}
}

// PointFromGeom converts a go-geom point.
func PointFromGeom(g *geom.Point) Point {
	return Point{Lon: g.X(), Lat: g.Y()}
}

// MarshalJSON implements json.Marshaler.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lon, p.Lat})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Point) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return eris.Wrap(err, "access: decode point")
	}
	if len(pair) != 2 {
		return eris.Errorf("access: point needs 2 coordinates, got %d", len(pair))
	}
	p.Lon, p.Lat = pair[0], pair[1]
	return nil
}

// UnmarshalYAML decodes a [lon, lat] sequence.
func (p *Point) UnmarshalYAML(unmarshal func(any) error) error {
	var pair []float64
	if err := unmarshal(&pair); err != nil {
		return eris.Wrap(err, "access: decode point")
	}
	if len(pair) != 2 {
		return eris.Errorf("access: point needs 2 coordinates, got %d", len(pair))
	}
	p.Lon, p.Lat = pair[0], pair[1]
	return nil
}

// Population is the ordered set of population cells. Locations and Weights
// are aligned index for index.
type Population struct {
	Locations []Point `json:"locations" yaml:"locations"`
	Weights   []int   `json:"weights" yaml:"weights"`
}

// Len returns the number of cells.
func (p Population) Len() int {
	return len(p.Locations)
}

// Clone returns a copy that shares no slices with p.
func (p Population) Clone() Population {
	return Population{
		Locations: slices.Clone(p.Locations),
		Weights:   slices.Clone(p.Weights),
	}
}

// Validate checks that the population is non-empty and aligned.
func (p Population) Validate() error {
	if len(p.Locations) == 0 {
		return eris.Wrap(ErrInvalidParameters, "access: population is empty")
	}
	if len(p.Weights) != len(p.Locations) {
		return eris.Wrapf(ErrInvalidParameters, "access: population has %d locations but %d weights",
			len(p.Locations), len(p.Weights))
	}
	for i, w := range p.Weights {
		if w < 0 {
			return eris.Wrapf(ErrInvalidParameters, "access: population weight %d is negative", i)
		}
	}
	return nil
}

// Infrastructure is one named criterion of a multi-criteria request.
type Infrastructure struct {
	// Weight is the relative importance of the criterion.
	Weight float64 `json:"infrastructure_weight" yaml:"weight"`

	Decay decay.Params `json:"distance_decay" yaml:"decay"`

	// Cutoffs are travel costs used only for quality-tier classification.
	Cutoffs []float64 `json:"cutoff_points" yaml:"cutoffs"`

	Facilities      []Point   `json:"facility_locations" yaml:"facilities"`
	FacilityWeights []float64 `json:"facility_weights,omitempty" yaml:"facility_weights,omitempty"`
}

// Result holds per-infrastructure accessibility arrays plus the composite
// under MultiCriteria, and the per-infrastructure served-facility counts.
// Every array is aligned with the request's population.
type Result struct {
	Access map[string][]float64 `json:"access"`
	Counts map[string][]int     `json:"counts"`
}

// Composite returns the weighted multi-criteria array.
func (r *Result) Composite() []float64 {
	return r.Access[MultiCriteria]
}

// Infrastructures returns the sorted infrastructure names, excluding the
// composite entry.
func (r *Result) Infrastructures() []string {
	names := make([]string, 0, len(r.Access))
	for name := range r.Access {
		if name == MultiCriteria {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Clone returns a deep copy.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := &Result{
		Access: make(map[string][]float64, len(r.Access)),
		Counts: make(map[string][]int, len(r.Counts)),
	}
	for k, v := range r.Access {
		out.Access[k] = slices.Clone(v)
	}
	for k, v := range r.Counts {
		out.Counts[k] = slices.Clone(v)
	}
	return out
}

// CloneInfrastructures deep-copies an infrastructure map.
func CloneInfrastructures(in map[string]Infrastructure) map[string]Infrastructure {
	out := maps.Clone(in)
	for k, v := range out {
		v.Cutoffs = slices.Clone(v.Cutoffs)
		v.Facilities = slices.Clone(v.Facilities)
		v.FacilityWeights = slices.Clone(v.FacilityWeights)
		v.Decay.Ranges = slices.Clone(v.Decay.Ranges)
		v.Decay.Factors = slices.Clone(v.Decay.Factors)
		v.Decay.Coefficients = slices.Clone(v.Decay.Coefficients)
		out[k] = v
	}
	return out
}
