package matching

import (
	"math"
	"time"
)

// #region phase

// CalibrationPhase is the state of the serial/parallel threshold calibration.
type CalibrationPhase string

const (
	PhaseMeasuringSerial   CalibrationPhase = "measuring_serial"
	PhaseMeasuringParallel CalibrationPhase = "measuring_parallel"
	PhaseConverged         CalibrationPhase = "converged"
	// PhaseFixed means adaptation is off: a fixed threshold was configured,
	// parallel matching is unavailable, or the engine was shut down.
	PhaseFixed CalibrationPhase = "fixed"
)

// #endregion phase

// #region plan

// Plan is the matching strategy chosen for one round.
type Plan int

const (
	PlanSerial Plan = iota
	PlanParallel
	// PlanProbeSerial is a serial round whose duration becomes the baseline.
	PlanProbeSerial
	// PlanProbeParallel is a parallel round compared against the baseline.
	PlanProbeParallel
)

func (p Plan) parallel() bool {
	return p == PlanParallel || p == PlanProbeParallel
}

func (p Plan) probe() bool {
	return p == PlanProbeSerial || p == PlanProbeParallel
}

// #endregion plan

// #region event

// CalibrationOutcome names a calibration decision.
type CalibrationOutcome string

const (
	OutcomeSerialBaseline CalibrationOutcome = "serial_baseline"
	OutcomeRaiseThreshold CalibrationOutcome = "raise_threshold"
	OutcomeConverged      CalibrationOutcome = "converged"
)

// CalibrationEvent records one calibration decision.
type CalibrationEvent struct {
	Outcome        CalibrationOutcome
	PopulationSize int
	Serial         time.Duration
	Parallel       time.Duration
	Threshold      int
}

// #endregion event

// #region calibrator

// Calibrator decides between serial and parallel matching and adapts the
// population-size threshold online. Matching rounds double as timing
// probes: the probe round is the real round for that iteration.
//
// It holds no clock; callers pass measured durations to Observe.
type Calibrator struct {
	accuracy      int
	threshold     int
	lastCheckSize int
	phase         CalibrationPhase
	serial        time.Duration
}

// NewCalibrator builds the calibration state. fixedThreshold < 0 requests
// adaptation. Without parallel matching the threshold is unreachable.
func NewCalibrator(maxPopulationSize, fixedThreshold int, parallel bool) *Calibrator {
	c := &Calibrator{accuracy: max(1, maxPopulationSize/25)}
	switch {
	case !parallel:
		c.threshold = math.MaxInt
		c.phase = PhaseFixed
	case fixedThreshold < 0:
		c.threshold = c.accuracy
		c.phase = PhaseMeasuringSerial
	default:
		c.threshold = fixedThreshold
		c.phase = PhaseFixed
	}
	return c
}

// Phase returns the current calibration phase.
func (c *Calibrator) Phase() CalibrationPhase { return c.phase }

// Threshold returns the population size at which parallel matching starts.
func (c *Calibrator) Threshold() int { return c.threshold }

// Accuracy returns the checkpoint increment.
func (c *Calibrator) Accuracy() int { return c.accuracy }

// Plan picks the strategy for a round over popSize classifiers.
func (c *Calibrator) Plan(popSize int) Plan {
	adapting := c.phase == PhaseMeasuringSerial || c.phase == PhaseMeasuringParallel
	if adapting && popSize-c.lastCheckSize >= c.accuracy {
		if c.phase == PhaseMeasuringSerial {
			return PlanProbeSerial
		}
		return PlanProbeParallel
	}
	if popSize < c.threshold {
		return PlanSerial
	}
	return PlanParallel
}

// Observe feeds back the duration of a completed probe round. It reports
// whether a calibration decision was made.
func (c *Calibrator) Observe(plan Plan, popSize int, elapsed time.Duration) (CalibrationEvent, bool) {
	switch {
	case plan == PlanProbeSerial && c.phase == PhaseMeasuringSerial:
		c.serial = elapsed
		c.phase = PhaseMeasuringParallel
		return CalibrationEvent{
			Outcome:        OutcomeSerialBaseline,
			PopulationSize: popSize,
			Serial:         elapsed,
			Threshold:      c.threshold,
		}, true

	case plan == PlanProbeParallel && c.phase == PhaseMeasuringParallel:
		ev := CalibrationEvent{
			PopulationSize: popSize,
			Serial:         c.serial,
			Parallel:       elapsed,
		}
		if c.serial < elapsed {
			c.threshold = popSize + c.accuracy
			c.lastCheckSize = popSize
			c.serial = 0
			c.phase = PhaseMeasuringSerial
			ev.Outcome = OutcomeRaiseThreshold
		} else {
			c.threshold = popSize
			c.phase = PhaseConverged
			ev.Outcome = OutcomeConverged
		}
		ev.Threshold = c.threshold
		return ev, true
	}
	return CalibrationEvent{}, false
}

// Disable switches to serial-only matching for good.
func (c *Calibrator) Disable() {
	c.threshold = math.MaxInt
	c.phase = PhaseFixed
	c.serial = 0
}

// #endregion calibrator
