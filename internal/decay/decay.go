// Package decay implements the distance-decay function family used to weight
// travel costs during aggregation and to derive quality tiers.
package decay

import (
	"math"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// Kind names a decay function variant.
type Kind string

// Supported decay kinds.
const (
	Binary          Kind = "binary"
	Linear          Kind = "linear"
	Exponential     Kind = "exponential"
	Gaussian        Kind = "gaussian"
	InversePower    Kind = "inverse-power"
	KernelDensity   Kind = "kernel-density"
	Polynomial      Kind = "polynomial"
	Hybrid          Kind = "hybrid"
	PiecewiseLinear Kind = "piecewise-linear"
)

// KernelBandwidth is the fixed bandwidth of the kernel-density decay.
const KernelBandwidth = 0.75

// ErrInvalid is returned when decay parameters cannot construct a Func.
var ErrInvalid = eris.New("invalid decay parameters")

// Func maps a travel cost to a weight in [0,1].
type Func interface {
	// Weight returns the decayed weight for cost. It is non-increasing in
	// cost and 0 beyond MaxRange.
	Weight(cost float64) float64

	// MaxRange is the largest cost with a weight greater than 0.
	MaxRange() float64
}

// Params selects one decay kind and its numeric parameters. Which fields are
// required depends on Kind.
type Params struct {
	Kind         Kind      `json:"decay_type" yaml:"decay_type" validate:"required,oneof=binary linear exponential gaussian inverse-power kernel-density polynomial polynom hybrid piecewise-linear"`
	MaxRange     float64   `json:"max_range,omitempty" yaml:"max_range,omitempty" validate:"gte=0"`
	Ranges       []float64 `json:"ranges,omitempty" yaml:"ranges,omitempty" validate:"omitempty,dive,gt=0"`
	Factors      []float64 `json:"range_factors,omitempty" yaml:"range_factors,omitempty"`
	Coefficients []float64 `json:"coefficients,omitempty" yaml:"coefficients,omitempty"`
}

var validate = validator.New()

// New constructs the Func described by p. Any missing or inconsistent field
// yields an error wrapping ErrInvalid and a nil Func.
func New(p Params) (Func, error) {
	if err := validate.Struct(p); err != nil {
		return nil, eris.Wrapf(ErrInvalid, "decay: %v", err)
	}

	switch p.Kind {
	case Binary, Linear, Exponential, Gaussian, InversePower, KernelDensity:
		if p.MaxRange <= 0 {
			return nil, eris.Wrapf(ErrInvalid, "decay: %s requires a positive max_range", p.Kind)
		}
		return &thresholdFunc{kind: p.Kind, max: p.MaxRange}, nil

	case Polynomial, "polynom":
		if p.MaxRange <= 0 {
			return nil, eris.Wrap(ErrInvalid, "decay: polynomial requires a positive max_range")
		}
		coeffs := p.Coefficients
		if len(coeffs) == 0 {
			// Older clients send the coefficients as range_factors.
			coeffs = p.Factors
		}
		if len(coeffs) == 0 {
			return nil, eris.Wrap(ErrInvalid, "decay: polynomial requires coefficients")
		}
		return &polynomialFunc{max: p.MaxRange, coeffs: slices.Clone(coeffs)}, nil

	case Hybrid, PiecewiseLinear:
		if len(p.Ranges) == 0 {
			return nil, eris.Wrapf(ErrInvalid, "decay: %s requires ranges", p.Kind)
		}
		if len(p.Factors) != len(p.Ranges) {
			return nil, eris.Wrapf(ErrInvalid, "decay: %s has %d ranges but %d factors", p.Kind, len(p.Ranges), len(p.Factors))
		}
		for i := 1; i < len(p.Ranges); i++ {
			if p.Ranges[i] <= p.Ranges[i-1] {
				return nil, eris.Wrapf(ErrInvalid, "decay: %s ranges must be strictly ascending", p.Kind)
			}
		}
		return &rangeFunc{
			interpolate: p.Kind == Hybrid,
			ranges:      slices.Clone(p.Ranges),
			factors:     slices.Clone(p.Factors),
		}, nil
	}

	return nil, eris.Wrapf(ErrInvalid, "decay: unknown kind %q", p.Kind)
}

// MaxRangeHint returns the maximum effective range described by p without
// constructing a Func. It returns 0 when p carries neither field.
func (p Params) MaxRangeHint() float64 {
	if p.MaxRange > 0 {
		return p.MaxRange
	}
	if n := len(p.Ranges); n > 0 {
		return p.Ranges[n-1]
	}
	return 0
}

// thresholdFunc covers the kinds parameterized only by a maximum range.
type thresholdFunc struct {
	kind Kind
	max  float64
}

func (f *thresholdFunc) MaxRange() float64 { return f.max }

func (f *thresholdFunc) Weight(cost float64) float64 {
	if cost < 0 {
		cost = 0
	}
	if cost > f.max {
		return 0
	}
	x := cost / f.max

	var w float64
	switch f.kind {
	case Binary:
		w = 1
	case Linear:
		w = 1 - x
	case Exponential:
		w = math.Exp(-3 * x)
	case Gaussian:
		// sigma = max/3, so the tail at max is ~0.011
		w = math.Exp(-4.5 * x * x)
	case InversePower:
		w = 1 / (1 + 9*x*x)
	case KernelDensity:
		u := x / KernelBandwidth
		w = math.Exp(-0.5 * u * u)
	}
	return clamp(w)
}

// polynomialFunc evaluates sum(c_k * x^k) over the normalized cost x in [0,1].
type polynomialFunc struct {
	max    float64
	coeffs []float64
}

func (f *polynomialFunc) MaxRange() float64 { return f.max }

func (f *polynomialFunc) Weight(cost float64) float64 {
	if cost < 0 {
		cost = 0
	}
	if cost > f.max {
		return 0
	}
	x := cost / f.max

	// Horner
	var w float64
	for i := len(f.coeffs) - 1; i >= 0; i-- {
		w = w*x + f.coeffs[i]
	}
	return clamp(w)
}

// rangeFunc implements hybrid (interpolating) and piecewise-linear (stepped)
// decay over ascending (range, factor) points.
type rangeFunc struct {
	interpolate bool
	ranges      []float64
	factors     []float64
}

func (f *rangeFunc) MaxRange() float64 { return f.ranges[len(f.ranges)-1] }

func (f *rangeFunc) Weight(cost float64) float64 {
	if cost < 0 {
		cost = 0
	}
	// smallest boundary >= cost
	i, _ := slices.BinarySearch(f.ranges, cost)
	if i == len(f.ranges) {
		return 0
	}
	if !f.interpolate {
		return clamp(f.factors[i])
	}
	if i == 0 {
		if cost == f.ranges[0] {
			return clamp(f.factors[0])
		}
		return 1
	}
	lo, hi := f.ranges[i-1], f.ranges[i]
	t := (cost - lo) / (hi - lo)
	return clamp(f.factors[i-1] + t*(f.factors[i]-f.factors[i-1]))
}

func clamp(w float64) float64 {
	switch {
	case math.IsNaN(w), w < 0:
		return 0
	case w > 1:
		return 1
	}
	return w
}
