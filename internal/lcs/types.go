// Package lcs defines the observation type and the collaborator contracts the
// matching engine consumes. Classifier internals, population management and
// evolutionary operators live behind these interfaces.
package lcs

// #region state

// State is one observation: an input vector and the target output vector.
// It is created once per iteration and never mutated afterwards.
type State struct {
	input  []float64
	output []float64
}

// NewState copies x and y into an immutable State.
func NewState(x, y []float64) State {
	in := make([]float64, len(x))
	copy(in, x)
	out := make([]float64, len(y))
	copy(out, y)
	return State{input: in, output: out}
}

// Input returns the input vector. Callers must not modify it.
func (s State) Input() []float64 { return s.input }

// Output returns the target vector. Callers must not modify it.
func (s State) Output() []float64 { return s.output }

// #endregion state

// #region classifier

// Classifier is a rule with a matching condition and a prediction model.
type Classifier interface {
	DoesMatch(s State) bool
	// Activity is the graded match degree used by closest classifier matching.
	Activity(s State) float64
	Predict(s State) []float64
	Fitness() float64
	Accuracy() float64
	Numerosity() int
	// Update1 updates experience, prediction and prediction error.
	Update1(s State)
	// Update2 updates the set-size estimate and fitness. accuracySum is the
	// numerosity-weighted accuracy sum over the match set.
	Update2(accuracySum float64, numerositySum int)
}

// #endregion classifier

// #region population

// Population is the ordered, mutable classifier array. It must not be
// mutated while a matching round is in flight.
type Population interface {
	// Elements returns the current classifier slice. The engine reads it
	// during a round and never retains it across rounds.
	Elements() []Classifier
	Add(cl Classifier)
	// DeleteWorst removes n micro-classifiers.
	DeleteWorst(n int)
	MaxSize() int
}

// Compactor is implemented by populations that support greedy compaction.
type Compactor interface {
	Compact()
}

// #endregion population

// #region evolution

// Coverer creates a classifier that matches s.
type Coverer interface {
	Cover(s State, iteration int) Classifier
}

// Evolver runs the evolutionary operators on the current match set.
type Evolver interface {
	Evolve(pop Population, matchSet []Classifier, s State, iteration int)
}

// #endregion evolution
