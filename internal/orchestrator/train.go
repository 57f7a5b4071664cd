package orchestrator

// #region imports
import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielpatrickdp/prbf/go-engine/internal/dataset"
	"github.com/danielpatrickdp/prbf/go-engine/internal/lcs"
)

// #endregion

// #region train

// Train runs cfg.Learning.MaxIterations learning iterations over ds,
// cycling through its rows. Each iteration matches, covers if needed,
// updates the match set and runs the evolver. Evolution stops for the last
// pass over the data so every instance is seen by a stable population.
func (r *Runner) Train(ctx context.Context, ds *dataset.Dataset) (res TrainResult, err error) {
	maxIter := r.cfg.Learning.MaxIterations
	compactAt := int(r.cfg.Learning.StartCompaction * float64(maxIter))

	ctx, span := tracer.Start(ctx, "orchestrator.Train",
		trace.WithAttributes(
			attribute.String("run_id", r.runID),
			attribute.Int("max_iterations", maxIter),
			attribute.Int("data_size", ds.Size()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	var errSum float64
	var errCount int

	for iteration := 1; iteration <= maxIter; iteration++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("train interrupted at iteration %d: %w", iteration, err)
		}
		inst := ds.Next()
		s := lcs.NewState(inst.Input, inst.Output)

		if err := r.match(s); err != nil {
			return res, err
		}
		covered, err := r.matchSet.EnsureCoverage(r.pop, iteration)
		if err != nil {
			return res, fmt.Errorf("cover: %w", err)
		}
		if covered {
			res.Covered++
		}

		if pred, err := r.weighted(); err == nil {
			errSum += meanAbsError(pred, inst.Output)
			errCount++
		} else {
			r.logger.Debug("no training prediction", "iteration", iteration, "error", err)
		}

		r.matchSet.UpdateClassifiers()

		if r.evolver != nil && iteration <= maxIter-ds.Size() {
			r.evolver.Evolve(r.pop, r.matchSet.Elements(), s, iteration)
		}

		if every := r.cfg.Learning.SnapshotEvery; every > 0 && iteration%every == 0 {
			if err := r.snapshot(iteration); err != nil {
				r.logger.Warn("population snapshot failed", "iteration", iteration, "error", err)
			}
		}

		if iteration+1 == compactAt {
			r.startCompaction(span, iteration)
			res.CompactionStarted = true
		}
		res.Iterations = iteration
	}

	if errCount > 0 {
		res.MeanError = errSum / float64(errCount)
	}
	res.Macro, res.Micro = r.sizes()
	res.Duration = time.Since(start)

	if err := r.snapshot(maxIter); err != nil {
		return res, fmt.Errorf("final snapshot: %w", err)
	}

	phase, threshold := r.matchSet.Calibration()
	span.AddEvent("train_complete", trace.WithAttributes(
		attribute.Int("macro", res.Macro),
		attribute.Int("micro", res.Micro),
		attribute.Float64("mean_error", res.MeanError),
	))
	r.logger.Info("training complete",
		"iterations", res.Iterations,
		"covered", res.Covered,
		"macro", res.Macro,
		"micro", res.Micro,
		"mean_error", res.MeanError,
		"calibration_phase", phase,
		"threshold", threshold,
		"duration", res.Duration,
	)
	return res, nil
}

// startCompaction switches on the configured compaction: types 1 and 3
// enable closest classifier matching, types 2 and 3 compact the population.
func (r *Runner) startCompaction(span trace.Span, iteration int) {
	kind := r.cfg.Learning.CompactionType
	if kind%2 == 1 {
		r.matchSet.SetClosestMatching(true)
	}
	if kind >= 2 {
		if c, ok := r.pop.(lcs.Compactor); ok {
			before, _ := r.sizes()
			c.Compact()
			after, _ := r.sizes()
			r.logger.Info("population compacted", "before", before, "after", after)
		}
	}
	span.AddEvent("compaction_started", trace.WithAttributes(
		attribute.Int("iteration", iteration),
		attribute.Int("compaction_type", kind),
	))
}

// #endregion

// #region helpers
func meanAbsError(pred, target []float64) float64 {
	n := min(len(pred), len(target))
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(pred[i] - target[i])
	}
	return sum / float64(n)
}

// #endregion
