package decay

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allKinds() []Params {
	return []Params{
		{Kind: Binary, MaxRange: 900},
		{Kind: Linear, MaxRange: 900},
		{Kind: Exponential, MaxRange: 900},
		{Kind: Gaussian, MaxRange: 900},
		{Kind: InversePower, MaxRange: 900},
		{Kind: KernelDensity, MaxRange: 900},
		{Kind: Polynomial, MaxRange: 900, Coefficients: []float64{1, -0.5, -0.5}},
		{Kind: Hybrid, Ranges: []float64{300, 600, 900}, Factors: []float64{1, 0.6, 0.2}},
		{Kind: PiecewiseLinear, Ranges: []float64{300, 600, 900}, Factors: []float64{1, 0.6, 0.2}},
	}
}

func TestNew_MonotoneAndZeroBeyondRange(t *testing.T) {
	for _, p := range allKinds() {
		t.Run(string(p.Kind), func(t *testing.T) {
			f, err := New(p)
			require.NoError(t, err)
			assert.Equal(t, 900.0, f.MaxRange())

			prev := f.Weight(0)
			assert.LessOrEqual(t, prev, 1.0)
			for cost := 0.0; cost <= 1200; cost += 7 {
				w := f.Weight(cost)
				assert.GreaterOrEqual(t, w, 0.0)
				assert.LessOrEqual(t, w, 1.0)
				assert.LessOrEqual(t, w, prev, "weight increased at cost %v", cost)
				prev = w
			}
			assert.Zero(t, f.Weight(f.MaxRange()+1))
			assert.Zero(t, f.Weight(5000))
		})
	}
}

func TestHybrid_KnownValues(t *testing.T) {
	f, err := New(Params{Kind: Hybrid, Ranges: []float64{100, 200}, Factors: []float64{1.0, 0.5}})
	require.NoError(t, err)

	assert.Equal(t, 1.0, f.Weight(0))
	assert.Equal(t, 1.0, f.Weight(100))
	assert.InDelta(t, 0.75, f.Weight(150), 1e-12)
	assert.Equal(t, 0.5, f.Weight(200))
	assert.Equal(t, 0.0, f.Weight(250))
}

func TestPiecewiseLinear_Steps(t *testing.T) {
	f, err := New(Params{Kind: PiecewiseLinear, Ranges: []float64{100, 200}, Factors: []float64{0.8, 0.5}})
	require.NoError(t, err)

	assert.Equal(t, 0.8, f.Weight(0))
	assert.Equal(t, 0.8, f.Weight(100))
	assert.Equal(t, 0.5, f.Weight(101))
	assert.Equal(t, 0.5, f.Weight(200))
	assert.Equal(t, 0.0, f.Weight(201))
}

func TestThresholdKinds_Endpoints(t *testing.T) {
	lin, err := New(Params{Kind: Linear, MaxRange: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1.0, lin.Weight(0))
	assert.InDelta(t, 0.4, lin.Weight(600), 1e-12)

	bin, err := New(Params{Kind: Binary, MaxRange: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1.0, bin.Weight(1000))
	assert.Equal(t, 0.0, bin.Weight(1000.5))
}

func TestPolynomial_LegacyFactors(t *testing.T) {
	f, err := New(Params{Kind: "polynom", MaxRange: 100, Factors: []float64{1, -1}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, f.Weight(50), 1e-12)
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		p    Params
	}{
		{"missing kind", Params{MaxRange: 100}},
		{"unknown kind", Params{Kind: "cubic", MaxRange: 100}},
		{"zero max range", Params{Kind: Linear}},
		{"negative max range", Params{Kind: Gaussian, MaxRange: -5}},
		{"polynomial without coefficients", Params{Kind: Polynomial, MaxRange: 100}},
		{"polynomial without range", Params{Kind: Polynomial, Coefficients: []float64{1}}},
		{"hybrid without ranges", Params{Kind: Hybrid}},
		{"hybrid length mismatch", Params{Kind: Hybrid, Ranges: []float64{100, 200}, Factors: []float64{1}}},
		{"piecewise descending", Params{Kind: PiecewiseLinear, Ranges: []float64{200, 100}, Factors: []float64{1, 0.5}}},
		{"piecewise non-positive range", Params{Kind: PiecewiseLinear, Ranges: []float64{0, 100}, Factors: []float64{1, 0.5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.p)
			require.Error(t, err)
			assert.Nil(t, f)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestParams_MaxRangeHint(t *testing.T) {
	assert.Equal(t, 500.0, Params{Kind: Linear, MaxRange: 500}.MaxRangeHint())
	assert.Equal(t, 900.0, Params{Kind: Hybrid, Ranges: []float64{300, 900}}.MaxRangeHint())
	assert.Zero(t, Params{Kind: Hybrid}.MaxRangeHint())
}
