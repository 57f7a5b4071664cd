// Package orchestrator runs the learning loop and the evaluation passes on
// top of a match set, and records what they produce.
package orchestrator

// #region imports
import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/danielpatrickdp/prbf/go-engine/internal/classifier"
	"github.com/danielpatrickdp/prbf/go-engine/internal/config"
	"github.com/danielpatrickdp/prbf/go-engine/internal/fusion"
	"github.com/danielpatrickdp/prbf/go-engine/internal/gate"
	"github.com/danielpatrickdp/prbf/go-engine/internal/lcs"
	"github.com/danielpatrickdp/prbf/go-engine/internal/logging"
	"github.com/danielpatrickdp/prbf/go-engine/internal/matching"
	"github.com/danielpatrickdp/prbf/go-engine/internal/store"
)

// #endregion

var tracer = otel.Tracer("prbf.orchestrator")

// #region runner-struct

// Runner owns one match set and drives it over a population. It is not
// safe for concurrent use.
type Runner struct {
	cfg      config.Config
	pop      lcs.Population
	matchSet *matching.MatchSet
	gate     *gate.Gate
	recorder Recorder
	runID    string
	evolver  lcs.Evolver
	logger   *slog.Logger

	closeOnce sync.Once
}

// snapshotter is implemented by populations that can be persisted.
type snapshotter interface {
	Snapshot() ([]byte, error)
}

// #endregion

// #region constructor

// NewRunner wires a match set with a covering factory for cfg.Classifier
// onto pop. Callers must call Close.
func NewRunner(cfg config.Config, pop lcs.Population, deps Deps) (*Runner, error) {
	if (deps.Recorder == nil) != (deps.RunID == "") {
		return nil, errors.New("orchestrator: recorder and run id must be set together")
	}
	logger := logging.OrDefault(deps.Logger)

	coverer, err := classifier.NewCoverer(cfg.Classifier, logger)
	if err != nil {
		return nil, fmt.Errorf("coverer: %w", err)
	}

	r := &Runner{
		cfg:      cfg,
		pop:      pop,
		gate:     gate.NewGate(gate.GateConfig{ConsistencyThreshold: cfg.Learning.ConsistencyThreshold}),
		recorder: deps.Recorder,
		runID:    deps.RunID,
		evolver:  deps.Evolver,
		logger:   logger.With("component", "orchestrator"),
	}

	ms, err := matching.NewMatchSet(matching.Options{
		ClosestMatching:    cfg.Matching.Closest,
		ClosestK:           cfg.Matching.ClosestK,
		Multithreading:     cfg.Matching.Multithreading,
		ThreadingThreshold: cfg.Matching.ThreadingThreshold,
		MaxPopulationSize:  cfg.Population.MaxSize,
		Workers:            cfg.Matching.Workers,
		Coverer:            coverer,
		Logger:             logger,
		OnCalibration:      r.onCalibration,
	})
	if err != nil {
		return nil, err
	}
	r.matchSet = ms
	return r, nil
}

// #endregion

// #region accessors

// MatchSet exposes the underlying match set.
func (r *Runner) MatchSet() *matching.MatchSet { return r.matchSet }

// Population returns the population the runner works on.
func (r *Runner) Population() lcs.Population { return r.pop }

// RunID returns the run records are written to, if any.
func (r *Runner) RunID() string { return r.runID }

// #endregion

// #region predict

// Predict matches x and fuses the match set. It returns
// matching.ErrEmptyMatchSet when nothing matches; it never covers.
func (r *Runner) Predict(x []float64) (Prediction, error) {
	s := lcs.NewState(x, nil)
	if err := r.match(s); err != nil {
		return Prediction{}, err
	}
	if r.matchSet.Size() == 0 {
		return Prediction{}, matching.ErrEmptyMatchSet
	}
	weighted, err := r.weighted()
	if err != nil {
		return Prediction{}, err
	}
	if err := r.matchSet.CalculateFusedPrediction(); err != nil {
		return Prediction{}, fmt.Errorf("fuse: %w", err)
	}
	fused := r.matchSet.Fused()
	return Prediction{
		Weighted: weighted,
		Fused:    fused,
		Decision: r.gate.Evaluate(fused),
		Matched:  r.matchSet.Size(),
	}, nil
}

// #endregion

// #region helpers

// match runs one matching round. A failed parallel round leaves the match
// set serial-only, so the round is retried once.
func (r *Runner) match(s lcs.State) error {
	if err := r.matchSet.Match(s, r.pop); err != nil {
		r.logger.Warn("matching round failed, retrying serially", "error", err)
		if err := r.matchSet.Match(s, r.pop); err != nil {
			return fmt.Errorf("match: %w", err)
		}
	}
	return nil
}

// weighted returns the fitness-weighted prediction, or the plain mean when
// every fitness in the match set is zero.
func (r *Runner) weighted() ([]float64, error) {
	p, err := r.matchSet.WeightedPrediction()
	if !errors.Is(err, fusion.ErrDegenerateFitness) {
		return p, err
	}
	r.logger.Debug("degenerate fitness, using unweighted mean")
	s := r.matchSet.State()
	sources := make([]fusion.Source, r.matchSet.Size())
	for i, cl := range r.matchSet.Elements() {
		sources[i] = fusion.Source{Fitness: 1, Prediction: cl.Predict(s)}
	}
	return fusion.WeightedMean(sources)
}

func (r *Runner) onCalibration(ev matching.CalibrationEvent) {
	if r.recorder == nil {
		return
	}
	err := r.recorder.RecordCalibration(store.CalibrationRecord{
		RunID:          r.runID,
		Outcome:        string(ev.Outcome),
		PopulationSize: ev.PopulationSize,
		Serial:         ev.Serial,
		Parallel:       ev.Parallel,
		Threshold:      ev.Threshold,
	})
	if err != nil {
		r.logger.Warn("failed to record calibration", "error", err)
	}
}

func (r *Runner) sizes() (macro, micro int) {
	elements := r.pop.Elements()
	for _, cl := range elements {
		micro += cl.Numerosity()
	}
	return len(elements), micro
}

// snapshot persists the population. Populations that cannot be encoded
// and runners without a recorder skip it.
func (r *Runner) snapshot(iteration int) error {
	sp, ok := r.pop.(snapshotter)
	if r.recorder == nil || !ok {
		return nil
	}
	data, err := sp.Snapshot()
	if err != nil {
		return err
	}
	macro, micro := r.sizes()
	_, err = r.recorder.SavePopulation(store.PopulationSnapshot{
		RunID:     r.runID,
		Iteration: iteration,
		Macro:     macro,
		Micro:     micro,
		Data:      data,
	})
	return err
}

// #endregion

// #region close

// Close stops the match set's workers. It is safe to call more than once.
func (r *Runner) Close() {
	r.closeOnce.Do(r.matchSet.Shutdown)
}

// #endregion
