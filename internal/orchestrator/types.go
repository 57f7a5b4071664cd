package orchestrator

// #region imports
import (
	"log/slog"
	"time"

	"github.com/danielpatrickdp/prbf/go-engine/internal/fusion"
	"github.com/danielpatrickdp/prbf/go-engine/internal/gate"
	"github.com/danielpatrickdp/prbf/go-engine/internal/lcs"
	"github.com/danielpatrickdp/prbf/go-engine/internal/store"
)

// #endregion

// #region pass

// Pass names an evaluation pass.
type Pass string

const (
	PassTrain Pass = "train"
	PassTest  Pass = "test"
)

// #endregion

// #region recorder

// Recorder persists what a run produces. *store.Store implements it.
type Recorder interface {
	RecordCalibration(rec store.CalibrationRecord) error
	RecordPredictions(recs []store.PredictionRecord) error
	RecordEvaluation(rec store.EvaluationRecord) error
	SavePopulation(snap store.PopulationSnapshot) (int64, error)
}

// #endregion

// #region deps

// Deps are the optional collaborators of a Runner.
type Deps struct {
	// Recorder and RunID enable persistence. Both or neither.
	Recorder Recorder
	RunID    string
	// Evolver runs the evolutionary operators during training.
	Evolver lcs.Evolver
	Logger  *slog.Logger
}

// #endregion

// #region results

// TrainResult summarises a training loop.
type TrainResult struct {
	Iterations int
	Covered    int
	// MeanError is the mean absolute error of the weighted prediction over
	// every iteration that produced one.
	MeanError         float64
	Macro             int
	Micro             int
	CompactionStarted bool
	Duration          time.Duration
}

// Prediction is the engine's answer for one input.
type Prediction struct {
	Weighted []float64
	Fused    fusion.Fused
	Decision gate.GateDecision
	Matched  int
}

// #endregion
