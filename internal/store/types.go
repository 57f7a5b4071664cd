package store

import "time"

// #region run
// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunFailed   RunStatus = "failed"
)

// Run is one training session.
type Run struct {
	ID         string
	Status     RunStatus
	ConfigJSON string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// #endregion run

// #region records
// CalibrationRecord is one threading calibration decision.
type CalibrationRecord struct {
	RunID          string
	Outcome        string
	PopulationSize int
	Serial         time.Duration
	Parallel       time.Duration
	Threshold      int
	CreatedAt      time.Time
}

// PredictionRecord is the outcome of one evaluated instance.
type PredictionRecord struct {
	RunID       string
	Pass        string // "train" | "test"
	Instance    int
	Matched     bool
	Label       int
	Crisp       int
	Mode        string
	Consistency float64
	CreatedAt   time.Time
}

// EvaluationRecord is the summary of one evaluation pass.
type EvaluationRecord struct {
	RunID         string
	Pass          string
	Instances     int
	Correct       int
	NoMatch       int
	Accuracy      float64
	WeightedError float64
	PiError       float64
	Passed        bool
	Reason        string
	CreatedAt     time.Time
}

// PopulationSnapshot is a persisted population.
type PopulationSnapshot struct {
	ID        int64
	RunID     string
	Iteration int
	Macro     int
	Micro     int
	Data      []byte
	CreatedAt time.Time
}

// RunSummary aggregates what a run recorded.
type RunSummary struct {
	Run               Run
	Evaluations       []EvaluationRecord
	CalibrationEvents int
	LastCalibration   *CalibrationRecord
	Predictions       int
	Snapshots         int
}

// #endregion records
