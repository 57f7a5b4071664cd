// Package fusion combines the predictions of the classifiers in a match set.
//
// Two combinations are provided. WeightedMean is the fitness-weighted average
// of the raw predictions. Fuse treats each prediction, clamped to [0,1], as a
// possibility distribution and combines them with fitness-derived alpha-cuts
// into a conjunctive (intersection) and a disjunctive (union) estimate plus a
// consistency index.
//
// Inputs are clamped before fuzzy fusion and outputs are not: min/max
// composition over [0,1] inputs stays in [0,1]. The weighted mean is never
// clamped.
package fusion

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// #region errors

var (
	// ErrEmptySources is returned when there is nothing to combine.
	ErrEmptySources = errors.New("fusion: no sources")
	// ErrDegenerateFitness is returned when the fitness sum is zero or NaN.
	ErrDegenerateFitness = errors.New("fusion: degenerate fitness sum")
	// ErrDimensionMismatch is returned when predictions differ in length.
	ErrDimensionMismatch = errors.New("fusion: prediction dimension mismatch")
)

// #endregion errors

// #region types

// Source is one classifier's contribution.
type Source struct {
	Fitness    float64
	Prediction []float64
}

// Fused is the result of fuzzy fusion. It is always computed as a whole.
type Fused struct {
	Intersection []float64
	Union        []float64
	// Consistency is the maximum of Intersection. Low values mean the
	// sources disagree and the union is the safer estimate.
	Consistency float64
}

// #endregion types

// #region weighted-mean

// WeightedMean returns sum(f_i * p_i[j]) / sum(f_i) for every output j.
// A zero or NaN fitness sum yields ErrDegenerateFitness rather than a
// silently coerced vector.
func WeightedMean(sources []Source) ([]float64, error) {
	n, err := dimension(sources)
	if err != nil {
		return nil, err
	}

	mean := make([]float64, n)
	var fitnessSum float64
	for _, src := range sources {
		fitnessSum += src.Fitness
		floats.AddScaled(mean, src.Fitness, src.Prediction)
	}
	if fitnessSum == 0 || math.IsNaN(fitnessSum) {
		return nil, fmt.Errorf("%w: %v over %d sources", ErrDegenerateFitness, fitnessSum, len(sources))
	}
	floats.Scale(1/fitnessSum, mean)
	return mean, nil
}

// #endregion weighted-mean

// #region fuse

// Fuse computes the alpha-cut intersection and union of all sources.
//
//	alpha_i        = 1 if all fitnesses are equal, else (f_i - min) / (max - min)
//	intersection_i = min(p_i, alpha_i) + 1 - alpha_i
//	union_i        = alpha_i - min(1 - p_i, alpha_i)
//
// The aggregate intersection is the elementwise minimum over sources, the
// aggregate union the elementwise maximum.
func Fuse(sources []Source) (Fused, error) {
	n, err := dimension(sources)
	if err != nil {
		return Fused{}, err
	}
	if n == 0 {
		return Fused{}, fmt.Errorf("%w: zero-length predictions", ErrDimensionMismatch)
	}

	fitness := make([]float64, len(sources))
	for i, src := range sources {
		fitness[i] = src.Fitness
	}
	minFitness := floats.Min(fitness)
	maxFitness := floats.Max(fitness)

	intersection := make([]float64, n)
	union := make([]float64, n)
	for j := range intersection {
		intersection[j] = math.Inf(1)
		union[j] = math.Inf(-1)
	}

	p := make([]float64, n)
	for _, src := range sources {
		alpha := 1.0
		if maxFitness != minFitness {
			alpha = (src.Fitness - minFitness) / (maxFitness - minFitness)
		}
		clampInto(p, src.Prediction)
		for j, v := range p {
			intersection[j] = math.Min(intersection[j], math.Min(v, alpha)+1-alpha)
			union[j] = math.Max(union[j], alpha-math.Min(1-v, alpha))
		}
	}

	return Fused{
		Intersection: intersection,
		Union:        union,
		Consistency:  floats.Max(intersection),
	}, nil
}

// #endregion fuse

// #region helpers

// Clamp returns a copy of v with every element limited to [0,1].
func Clamp(v []float64) []float64 {
	out := make([]float64, len(v))
	clampInto(out, v)
	return out
}

func clampInto(dst, src []float64) {
	for i, x := range src {
		dst[i] = math.Max(0, math.Min(1, x))
	}
}

// dimension checks that all sources agree on the prediction length.
func dimension(sources []Source) (int, error) {
	if len(sources) == 0 {
		return 0, ErrEmptySources
	}
	n := len(sources[0].Prediction)
	for i, src := range sources[1:] {
		if len(src.Prediction) != n {
			return 0, fmt.Errorf("%w: source %d has %d outputs, want %d",
				ErrDimensionMismatch, i+1, len(src.Prediction), n)
		}
	}
	return n, nil
}

// #endregion helpers
