// Package matching selects the classifiers of a population that are relevant
// to the current state and exposes their combined predictions.
//
// A MatchSet chooses one of three strategies per round: serial matching,
// parallel matching on a persistent worker pool, or closest classifier
// matching (top-K by activity, numerosity weighted). When adaptive threading
// is enabled, the population-size threshold between serial and parallel is
// calibrated online from real matching rounds.
//
// A MatchSet is not safe for concurrent use. The population must not be
// mutated while Match is running.
package matching

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/danielpatrickdp/prbf/go-engine/internal/fusion"
	"github.com/danielpatrickdp/prbf/go-engine/internal/lcs"
)

// #region errors

var (
	// ErrEmptyMatchSet is returned by the prediction accessors when nothing
	// matched. Callers are expected to cover instead.
	ErrEmptyMatchSet = errors.New("matching: empty match set")
	// ErrNoCoverer is returned when coverage is needed but no Coverer is set.
	ErrNoCoverer = errors.New("matching: no coverer configured")
)

// #endregion errors

// #region options

// Options configures a MatchSet.
type Options struct {
	// ClosestMatching enables closest classifier matching from the start.
	ClosestMatching bool
	// ClosestK is the number of numerosity slots filled by closest matching.
	ClosestK int
	// Multithreading requests parallel matching when more than one
	// participant is available.
	Multithreading bool
	// ThreadingThreshold is the population size at which parallel matching
	// starts. A negative value enables online calibration.
	ThreadingThreshold int
	// MaxPopulationSize bounds the population in micro-classifiers.
	MaxPopulationSize int
	// Workers is the number of parallel participants including the caller.
	// Zero means runtime.GOMAXPROCS(0).
	Workers int

	Coverer lcs.Coverer
	Logger  *slog.Logger
	// OnCalibration, if set, receives every calibration decision.
	OnCalibration func(CalibrationEvent)
}

func (o Options) validate() error {
	if o.ClosestK < 1 {
		return fmt.Errorf("closest k must be positive, got %d", o.ClosestK)
	}
	if o.MaxPopulationSize < 1 {
		return fmt.Errorf("max population size must be positive, got %d", o.MaxPopulationSize)
	}
	if o.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", o.Workers)
	}
	return nil
}

// #endregion options

// #region match-set

// MatchSet holds the classifiers that matched the current state.
type MatchSet struct {
	closest       bool
	k             int
	coverer       lcs.Coverer
	logger        *slog.Logger
	onCalibration func(CalibrationEvent)

	calibrator *Calibrator
	engine     *ParallelEngine

	state    lcs.State
	elements []lcs.Classifier
	fused    fusion.Fused
}

// NewMatchSet validates opts and, if parallel matching is requested and
// more than one participant is available, starts the worker pool. Callers
// must call Shutdown when done.
func NewMatchSet(opts Options) (*MatchSet, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("match set config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &MatchSet{
		closest:       opts.ClosestMatching,
		k:             opts.ClosestK,
		coverer:       opts.Coverer,
		logger:        logger.With("component", "matching"),
		onCalibration: opts.OnCalibration,
	}

	n := opts.Workers
	if n == 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if opts.Multithreading && n > 1 {
		engine, err := NewParallelEngine(n)
		if err != nil {
			return nil, err
		}
		m.engine = engine
	}
	m.calibrator = NewCalibrator(opts.MaxPopulationSize, opts.ThreadingThreshold, m.engine != nil)

	m.logger.Debug("match set ready",
		"parallel", m.engine != nil,
		"participants", n,
		"threshold", m.calibrator.Threshold(),
		"phase", m.calibrator.Phase(),
	)
	return m, nil
}

// SetClosestMatching toggles closest classifier matching, typically when
// compaction starts.
func (m *MatchSet) SetClosestMatching(on bool) {
	m.closest = on
}

// ClosestMatching reports whether closest classifier matching is active.
func (m *MatchSet) ClosestMatching() bool { return m.closest }

// Parallel reports whether the worker pool is alive.
func (m *MatchSet) Parallel() bool { return m.engine != nil }

// Calibration returns the current calibration phase and threshold.
func (m *MatchSet) Calibration() (CalibrationPhase, int) {
	return m.calibrator.Phase(), m.calibrator.Threshold()
}

// Size returns the number of classifiers in the match set.
func (m *MatchSet) Size() int { return len(m.elements) }

// Elements returns the match set. The slice is reused by the next Match.
func (m *MatchSet) Elements() []lcs.Classifier { return m.elements }

// State returns the state bound by the last Match.
func (m *MatchSet) State() lcs.State { return m.state }

// #endregion match-set

// #region match

// Match rebuilds the match set for s. A failed parallel round returns an
// error and leaves the match set empty; the worker pool is then shut down
// and later rounds run serially.
func (m *MatchSet) Match(s lcs.State, pop lcs.Population) error {
	clear(m.elements)
	m.elements = m.elements[:0]
	m.state = s
	elements := pop.Elements()

	if m.closest {
		start := time.Now()
		m.elements = closestMatch(s, elements, m.k, m.elements)
		m.observe(strategyClosest, time.Since(start))
		return nil
	}

	plan := m.calibrator.Plan(len(elements))
	if plan.parallel() && m.engine == nil {
		plan = PlanSerial
	}

	start := time.Now()
	if plan.parallel() {
		if err := m.parallelMatch(s, elements); err != nil {
			return err
		}
	} else {
		m.serialMatch(s, elements)
	}
	elapsed := time.Since(start)

	strategy := strategySerial
	if plan.parallel() {
		strategy = strategyParallel
	}
	m.observe(strategy, elapsed)

	if plan.probe() {
		if ev, ok := m.calibrator.Observe(plan, len(elements), elapsed); ok {
			m.calibrated(ev)
		}
	}
	return nil
}

func (m *MatchSet) serialMatch(s lcs.State, elements []lcs.Classifier) {
	for _, cl := range elements {
		if cl.DoesMatch(s) {
			m.elements = append(m.elements, cl)
		}
	}
}

func (m *MatchSet) parallelMatch(s lcs.State, elements []lcs.Classifier) error {
	matched, err := m.engine.Match(s, elements, m.elements)
	if err != nil {
		matchRoundFailures.Inc()
		m.logger.Error("parallel matching failed, falling back to serial", "error", err)
		m.Shutdown()
		return fmt.Errorf("parallel matching: %w", err)
	}
	m.elements = matched
	return nil
}

func (m *MatchSet) observe(strategy string, elapsed time.Duration) {
	matchRounds.WithLabelValues(strategy).Inc()
	matchRoundDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	matchSetSize.Observe(float64(len(m.elements)))
}

func (m *MatchSet) calibrated(ev CalibrationEvent) {
	calibrationDecisions.WithLabelValues(string(ev.Outcome)).Inc()
	switch ev.Outcome {
	case OutcomeConverged:
		m.logger.Info("parallel matching enabled above threshold",
			"threshold", ev.Threshold,
			"serial", ev.Serial,
			"parallel", ev.Parallel,
		)
	default:
		m.logger.Debug("threading calibration",
			"outcome", ev.Outcome,
			"population_size", ev.PopulationSize,
			"threshold", ev.Threshold,
		)
	}
	if m.onCalibration != nil {
		m.onCalibration(ev)
	}
}

// #endregion match

// #region coverage

// EnsureCoverage adds a covering classifier to the match set and the
// population if nothing matched, deleting from the population first when
// it would exceed its maximum size. It reports whether covering happened.
func (m *MatchSet) EnsureCoverage(pop lcs.Population, iteration int) (bool, error) {
	if len(m.elements) > 0 {
		return false, nil
	}
	if m.coverer == nil {
		return false, ErrNoCoverer
	}
	cl := m.coverer.Cover(m.state, iteration)
	m.elements = append(m.elements, cl)

	numerositySum := 0
	for _, e := range pop.Elements() {
		numerositySum += e.Numerosity()
	}
	if toDelete := numerositySum + cl.Numerosity() - pop.MaxSize(); toDelete > 0 {
		pop.DeleteWorst(toDelete)
	}
	pop.Add(cl)
	return true, nil
}

// #endregion coverage

// #region update

// UpdateClassifiers runs the two-phase statistics update. The second phase
// needs the numerosity-weighted accuracy sum of the first.
func (m *MatchSet) UpdateClassifiers() {
	var accuracySum float64
	numerositySum := 0
	for _, cl := range m.elements {
		cl.Update1(m.state)
		accuracySum += cl.Accuracy() * float64(cl.Numerosity())
		numerositySum += cl.Numerosity()
	}
	for _, cl := range m.elements {
		cl.Update2(accuracySum, numerositySum)
	}
}

// #endregion update

// #region predictions

func (m *MatchSet) sources() []fusion.Source {
	sources := make([]fusion.Source, len(m.elements))
	for i, cl := range m.elements {
		sources[i] = fusion.Source{Fitness: cl.Fitness(), Prediction: cl.Predict(m.state)}
	}
	return sources
}

// WeightedPrediction returns the fitness-weighted mean prediction.
func (m *MatchSet) WeightedPrediction() ([]float64, error) {
	if len(m.elements) == 0 {
		return nil, ErrEmptyMatchSet
	}
	return fusion.WeightedMean(m.sources())
}

// CalculateFusedPrediction recomputes the intersection and union fusion and
// the consistency index. On error the previous result is discarded.
func (m *MatchSet) CalculateFusedPrediction() error {
	m.fused = fusion.Fused{}
	if len(m.elements) == 0 {
		return ErrEmptyMatchSet
	}
	fused, err := fusion.Fuse(m.sources())
	if err != nil {
		return err
	}
	m.fused = fused
	return nil
}

// IntersectPrediction returns the conjunctive fusion of the last
// CalculateFusedPrediction.
func (m *MatchSet) IntersectPrediction() []float64 { return m.fused.Intersection }

// UnionPrediction returns the disjunctive fusion.
func (m *MatchSet) UnionPrediction() []float64 { return m.fused.Union }

// ConsistencyIdx returns the maximum of the intersection.
func (m *MatchSet) ConsistencyIdx() float64 { return m.fused.Consistency }

// Fused returns the whole fusion result.
func (m *MatchSet) Fused() fusion.Fused { return m.fused }

// #endregion predictions

// #region shutdown

// Shutdown stops the worker pool and waits for every worker to exit.
// Afterwards the match set only matches serially. Calling it again is a
// no-op.
func (m *MatchSet) Shutdown() {
	if m.engine != nil {
		m.engine.Close()
		m.engine = nil
	}
	m.calibrator.Disable()
}

// #endregion shutdown
