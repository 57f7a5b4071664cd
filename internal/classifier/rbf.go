// Package classifier provides a receptive-field classifier with a constant
// possibility prediction, and the covering factory that creates it.
package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/prbf/go-engine/internal/lcs"
)

// #region rbf
// RBF is a classifier whose condition is an axis-aligned Gaussian receptive
// field. Matching methods are safe for concurrent readers; updates are not.
type RBF struct {
	id         string
	center     []float64
	spread     []float64
	prediction []float64
	predError  float64
	fitness    float64
	accuracy   float64
	experience int
	numerosity int
	setSize    float64
	timestamp  int

	params Params
}

// New creates a classifier with the given receptive field and initial
// prediction. The slices are copied.
func New(params Params, center, spread, prediction []float64, iteration int) (*RBF, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if len(center) == 0 || len(center) != len(spread) {
		return nil, fmt.Errorf("classifier: center has %d dims, spread %d", len(center), len(spread))
	}
	for i, s := range spread {
		if !(s > 0) {
			return nil, fmt.Errorf("classifier: spread[%d] must be positive, got %v", i, s)
		}
	}
	return &RBF{
		id:         uuid.New().String(),
		center:     slices.Clone(center),
		spread:     slices.Clone(spread),
		prediction: slices.Clone(prediction),
		fitness:    1,
		accuracy:   1,
		numerosity: 1,
		setSize:    1,
		timestamp:  iteration,
		params:     params,
	}, nil
}

// ID returns the classifier's unique identifier.
func (c *RBF) ID() string { return c.id }

// Activity returns exp(-sum(((x_i-c_i)/s_i)^2)) over the input dimensions.
func (c *RBF) Activity(s lcs.State) float64 {
	x := s.Input()
	var d float64
	for i, ci := range c.center {
		if i >= len(x) {
			break
		}
		z := (x[i] - ci) / c.spread[i]
		d += z * z
	}
	return math.Exp(-d)
}

// DoesMatch reports whether the activity reaches the match threshold.
func (c *RBF) DoesMatch(s lcs.State) bool {
	return c.Activity(s) >= c.params.MatchThreshold
}

// Predict returns a copy of the constant prediction.
func (c *RBF) Predict(lcs.State) []float64 { return slices.Clone(c.prediction) }

func (c *RBF) Fitness() float64   { return c.fitness }
func (c *RBF) Accuracy() float64  { return c.accuracy }
func (c *RBF) Numerosity() int    { return c.numerosity }
func (c *RBF) Experience() int    { return c.experience }
func (c *RBF) PredError() float64 { return c.predError }
func (c *RBF) SetSize() float64   { return c.setSize }

// SetNumerosity is used by the population for deletion and compaction.
func (c *RBF) SetNumerosity(n int) { c.numerosity = n }

// #endregion rbf

// #region update
// Update1 updates experience, prediction error and prediction towards the
// target of s. While experience is below 1/beta a running average replaces
// the fixed learning rate.
func (c *RBF) Update1(s lcs.State) {
	c.experience++
	rate := c.params.Beta
	if float64(c.experience) < 1/c.params.Beta {
		rate = 1 / float64(c.experience)
	}

	target := s.Output()
	n := min(len(target), len(c.prediction))
	var absErr float64
	for i := 0; i < n; i++ {
		absErr += math.Abs(target[i] - c.prediction[i])
	}
	if n > 0 {
		absErr /= float64(n)
	}
	c.predError += rate * (absErr - c.predError)

	for i := 0; i < n; i++ {
		c.prediction[i] += rate * (target[i] - c.prediction[i])
	}

	c.accuracy = 1
	if c.predError >= c.params.Epsilon0 {
		c.accuracy = c.params.Alpha * math.Pow(c.predError/c.params.Epsilon0, -c.params.Nu)
	}
}

// Update2 updates the match set size estimate and moves fitness towards
// the classifier's share of the match set accuracy.
func (c *RBF) Update2(accuracySum float64, numerositySum int) {
	rate := c.params.Beta
	if float64(c.experience) < 1/c.params.Beta && c.experience > 0 {
		rate = 1 / float64(c.experience)
	}
	c.setSize += rate * (float64(numerositySum) - c.setSize)

	if accuracySum > 0 {
		rel := c.accuracy * float64(c.numerosity) / accuracySum
		c.fitness += c.params.Beta * (rel - c.fitness)
	}
}

// #endregion update

// #region subsumption
// Subsumes reports whether c is accurate and experienced enough to absorb
// other: other's center lies inside c's receptive field.
func (c *RBF) Subsumes(other lcs.Classifier) bool {
	o, ok := other.(*RBF)
	if !ok || o == c {
		return false
	}
	if c.experience == 0 || c.predError >= c.params.Epsilon0 {
		return false
	}
	return c.Activity(lcs.NewState(o.center, nil)) >= c.params.MatchThreshold
}

// #endregion subsumption

// #region snapshot
// Snapshot returns the persisted form of c.
func (c *RBF) Snapshot() Snapshot {
	return Snapshot{
		ID:         c.id,
		Center:     slices.Clone(c.center),
		Spread:     slices.Clone(c.spread),
		Prediction: slices.Clone(c.prediction),
		PredError:  c.predError,
		Fitness:    c.fitness,
		Accuracy:   c.accuracy,
		Experience: c.experience,
		Numerosity: c.numerosity,
		SetSize:    c.setSize,
		Timestamp:  c.timestamp,
	}
}

// MarshalJSON encodes the snapshot of c.
func (c *RBF) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Snapshot())
}

// FromSnapshot rebuilds a classifier.
func FromSnapshot(params Params, snap Snapshot) (*RBF, error) {
	c, err := New(params, snap.Center, snap.Spread, snap.Prediction, snap.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", snap.ID, err)
	}
	if snap.Numerosity < 1 {
		return nil, fmt.Errorf("restore %s: numerosity %d", snap.ID, snap.Numerosity)
	}
	if snap.ID != "" {
		c.id = snap.ID
	}
	c.predError = snap.PredError
	c.fitness = snap.Fitness
	c.accuracy = snap.Accuracy
	c.experience = snap.Experience
	c.numerosity = snap.Numerosity
	c.setSize = snap.SetSize
	return c, nil
}

// #endregion snapshot
