package fusion

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region weighted-mean

func TestWeightedMean_Example(t *testing.T) {
	got, err := WeightedMean([]Source{
		{Fitness: 2, Prediction: []float64{1.0, 0.0}},
		{Fitness: 1, Prediction: []float64{0.0, 1.0}},
	})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2.0 / 3, 1.0 / 3}, got, 1e-12)
}

func TestWeightedMean_DoesNotClamp(t *testing.T) {
	got, err := WeightedMean([]Source{
		{Fitness: 1, Prediction: []float64{-0.5, 2.5}},
		{Fitness: 1, Prediction: []float64{-0.5, 1.5}},
	})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-0.5, 2.0}, got, 1e-12)
}

func TestWeightedMean_DegenerateFitness(t *testing.T) {
	_, err := WeightedMean([]Source{
		{Fitness: 0, Prediction: []float64{1}},
		{Fitness: 0, Prediction: []float64{0}},
	})
	assert.ErrorIs(t, err, ErrDegenerateFitness)

	_, err = WeightedMean([]Source{
		{Fitness: math.NaN(), Prediction: []float64{1}},
	})
	assert.ErrorIs(t, err, ErrDegenerateFitness)
}

func TestWeightedMean_BadInput(t *testing.T) {
	_, err := WeightedMean(nil)
	assert.ErrorIs(t, err, ErrEmptySources)

	_, err = WeightedMean([]Source{
		{Fitness: 1, Prediction: []float64{1, 2}},
		{Fitness: 1, Prediction: []float64{1}},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

// #endregion weighted-mean

// #region fuse

func TestFuse_SingleSourceConsistencyIsMaxPrediction(t *testing.T) {
	got, err := Fuse([]Source{{Fitness: 0.42, Prediction: []float64{0.1, 0.6, 0.3}}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.1, 0.6, 0.3}, got.Intersection, 1e-12)
	assert.InDeltaSlice(t, []float64{0.1, 0.6, 0.3}, got.Union, 1e-12)
	assert.InDelta(t, 0.6, got.Consistency, 1e-12)
}

func TestFuse_EqualFitnessIsPlainMinMax(t *testing.T) {
	got, err := Fuse([]Source{
		{Fitness: 0.5, Prediction: []float64{0.9, 0.2, -1}},
		{Fitness: 0.5, Prediction: []float64{0.4, 0.8, 0.5}},
		{Fitness: 0.5, Prediction: []float64{0.7, 1.3, 0.6}},
	})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.4, 0.2, 0}, got.Intersection, 1e-12)
	assert.InDeltaSlice(t, []float64{0.9, 1, 0.6}, got.Union, 1e-12)
	assert.InDelta(t, 0.4, got.Consistency, 1e-12)
}

func TestFuse_AlphaCuts(t *testing.T) {
	// alpha = 1 for the fittest source and 0 for the weakest.
	got, err := Fuse([]Source{
		{Fitness: 1, Prediction: []float64{0.2, 0.9}},
		{Fitness: 0, Prediction: []float64{0.0, 0.0}},
		{Fitness: 0.5, Prediction: []float64{0.8, 0.1}},
	})
	require.NoError(t, err)

	// weakest source: intersection contribution 1, union contribution 0.
	// middle source (alpha 0.5): intersection min(p,.5)+.5, union .5-min(1-p,.5).
	assert.InDeltaSlice(t, []float64{0.2, 0.6}, got.Intersection, 1e-12)
	assert.InDeltaSlice(t, []float64{0.3, 0.9}, got.Union, 1e-12)
	assert.InDelta(t, 0.6, got.Consistency, 1e-12)
}

func TestFuse_DisagreementCollapsesConsistency(t *testing.T) {
	got, err := Fuse([]Source{
		{Fitness: 1, Prediction: []float64{1, 0}},
		{Fitness: 1, Prediction: []float64{0, 1}},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got.Consistency, 1e-12)
	assert.InDeltaSlice(t, []float64{1, 1}, got.Union, 1e-12)
}

func TestFuse_BoundsProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 500; trial++ {
		dims := 1 + rng.Intn(6)
		sources := make([]Source, 1+rng.Intn(12))
		for i := range sources {
			p := make([]float64, dims)
			for j := range p {
				p[j] = rng.Float64()*3 - 1 // exercises the clamp
			}
			sources[i] = Source{Fitness: rng.Float64() * 10, Prediction: p}
		}

		got, err := Fuse(sources)
		require.NoError(t, err)
		for j := 0; j < dims; j++ {
			assert.GreaterOrEqual(t, got.Intersection[j], 0.0)
			assert.LessOrEqual(t, got.Intersection[j], 1.0)
			assert.GreaterOrEqual(t, got.Union[j], 0.0)
			assert.LessOrEqual(t, got.Union[j], 1.0)
		}
		assert.GreaterOrEqual(t, got.Consistency, 0.0)
		assert.LessOrEqual(t, got.Consistency, 1.0)
	}
}

func TestFuse_DoesNotMutateInputs(t *testing.T) {
	p := []float64{-0.3, 1.7}
	_, err := Fuse([]Source{{Fitness: 1, Prediction: p}})
	require.NoError(t, err)
	assert.Equal(t, []float64{-0.3, 1.7}, p)
}

func TestFuse_BadInput(t *testing.T) {
	_, err := Fuse(nil)
	assert.ErrorIs(t, err, ErrEmptySources)

	_, err = Fuse([]Source{{Fitness: 1, Prediction: nil}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

// #endregion fuse

func TestClamp(t *testing.T) {
	in := []float64{-2, 0, 0.25, 1, 3}
	assert.Equal(t, []float64{0, 0, 0.25, 1, 1}, Clamp(in))
	assert.Equal(t, []float64{-2, 0, 0.25, 1, 3}, in)
}
