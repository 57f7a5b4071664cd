package gate

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/prbf/go-engine/internal/fusion"
)

// #region gate
// Gate picks the fused estimate to act on and derives a crisp decision.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Evaluate prefers the conjunctive fusion. When the consistency index falls
// below the threshold the sources disagree and the disjunctive fusion is
// used instead.
func (g *Gate) Evaluate(f fusion.Fused) GateDecision {
	d := GateDecision{
		Mode:        ModeIntersection,
		Prediction:  f.Intersection,
		Consistency: f.Consistency,
		Reason:      fmt.Sprintf("consistent sources: idx=%.4f", f.Consistency),
	}
	if f.Consistency < g.config.ConsistencyThreshold {
		d.Mode = ModeUnion
		d.Prediction = f.Union
		d.Reason = fmt.Sprintf("inconsistent sources: idx=%.4f below %.4f",
			f.Consistency, g.config.ConsistencyThreshold)
	}
	d.Crisp = Crisp(d.Prediction)
	return d
}

// #endregion gate

// #region helpers
// Crisp returns the index of the first maximum of p, or -1 for an empty p.
func Crisp(p []float64) int {
	if len(p) == 0 {
		return -1
	}
	return floats.MaxIdx(p)
}

// #endregion helpers
