package eval

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// #region eval-harness
// EvalHarness accumulates per-instance results of one pass over a dataset.
// Errors and accuracy are averaged over every instance, matched or not.
type EvalHarness struct {
	config EvalConfig

	weightedErr []float64
	piErr       []float64
	instances   int
	correct     int
	noMatch     int
}

// NewEvalHarness creates a harness for predictions of outputSize values.
func NewEvalHarness(config EvalConfig, outputSize int) *EvalHarness {
	return &EvalHarness{
		config:      config,
		weightedErr: make([]float64, outputSize),
		piErr:       make([]float64, outputSize),
	}
}

// NoMatch records an instance no classifier matched.
func (h *EvalHarness) NoMatch() {
	h.instances++
	h.noMatch++
}

// Observe records one matched instance. weighted is clamped to [0,1] before
// it is compared with target; fused is compared as is.
func (h *EvalHarness) Observe(weighted, fused, target []float64, crisp, label int) error {
	if len(weighted) != len(h.weightedErr) || len(fused) != len(h.piErr) || len(target) != len(h.piErr) {
		return fmt.Errorf("eval: want %d outputs, got weighted=%d fused=%d target=%d",
			len(h.piErr), len(weighted), len(fused), len(target))
	}
	h.instances++
	if crisp == label {
		h.correct++
	}
	for i, t := range target {
		w := math.Min(1, math.Max(0, weighted[i]))
		h.weightedErr[i] += math.Abs(w - t)
		h.piErr[i] += math.Abs(fused[i] - t)
	}
	return nil
}

// Run summarises the pass.
func (h *EvalHarness) Run() EvalResult {
	res := EvalResult{
		Instances: h.instances,
		Correct:   h.correct,
		NoMatch:   h.noMatch,
	}
	if h.instances > 0 {
		n := float64(h.instances)
		res.Accuracy = float64(h.correct) / n
		res.WeightedError = floats.Sum(h.weightedErr) / n
		res.PiError = floats.Sum(h.piErr) / n
	}

	passed := true
	var failReasons []string

	accPass := res.Accuracy >= h.config.MinAccuracy
	res.Metrics = append(res.Metrics, EvalMetric{Name: "accuracy", Value: res.Accuracy, Pass: accPass})
	if !accPass {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("accuracy %.4f below %.4f", res.Accuracy, h.config.MinAccuracy))
	}

	piPass := h.config.MaxPiError <= 0 || res.PiError <= h.config.MaxPiError
	res.Metrics = append(res.Metrics, EvalMetric{Name: "pi_error", Value: res.PiError, Pass: piPass})
	if !piPass {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("pi error %.4f exceeds %.4f", res.PiError, h.config.MaxPiError))
	}

	// Informational only.
	res.Metrics = append(res.Metrics, EvalMetric{Name: "weighted_error", Value: res.WeightedError, Pass: true})

	var noMatchRate float64
	if h.instances > 0 {
		noMatchRate = float64(h.noMatch) / float64(h.instances)
	}
	nmPass := noMatchRate <= h.config.MaxNoMatchRate
	res.Metrics = append(res.Metrics, EvalMetric{Name: "no_match_rate", Value: noMatchRate, Pass: nmPass})
	if !nmPass {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("no-match rate %.4f exceeds %.4f", noMatchRate, h.config.MaxNoMatchRate))
	}

	res.Passed = passed
	res.Reason = "all checks passed"
	if !passed {
		res.Reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			res.Reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}
	return res
}

// #endregion eval-harness
