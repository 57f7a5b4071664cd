package gate

// #region mode
// Mode names the fused estimate a decision was taken from.
type Mode string

const (
	ModeIntersection Mode = "intersection"
	ModeUnion        Mode = "union"
)

// #endregion mode

// #region gate-config
// GateConfig holds thresholds for gate decisions.
type GateConfig struct {
	// ConsistencyThreshold: below it the sources are treated as
	// inconsistent and the union is used instead of the intersection.
	ConsistencyThreshold float64
}

// DefaultGateConfig returns the threshold used by the reference experiments.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		ConsistencyThreshold: 0.1,
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Mode        Mode
	Prediction  []float64
	Crisp       int // index of the largest possibility, -1 if none
	Consistency float64
	Reason      string
}

// Inconsistent reports whether the gate fell back to the union.
func (d GateDecision) Inconsistent() bool {
	return d.Mode == ModeUnion
}

// #endregion gate-decision
