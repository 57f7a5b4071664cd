package orchestrator

// #region imports
import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielpatrickdp/prbf/go-engine/internal/dataset"
	"github.com/danielpatrickdp/prbf/go-engine/internal/eval"
	"github.com/danielpatrickdp/prbf/go-engine/internal/lcs"
	"github.com/danielpatrickdp/prbf/go-engine/internal/store"
)

// #endregion

// #region evaluate

// Evaluate runs one pass over every row of ds without learning. Unmatched
// rows are counted, not covered. Matched rows are scored on the clamped
// weighted prediction and on the fused prediction the gate picks.
// The per-row labels are returned as (label, crisp) pairs.
func (r *Runner) Evaluate(ctx context.Context, ds *dataset.Dataset, pass Pass) (res eval.EvalResult, labels [][2]int, err error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Evaluate",
		trace.WithAttributes(
			attribute.String("run_id", r.runID),
			attribute.String("pass", string(pass)),
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

	harness := eval.NewEvalHarness(r.cfg.Eval, ds.OutputSize())
	recs := make([]store.PredictionRecord, 0, ds.Size())
	labels = make([][2]int, 0, ds.Size())
	inconsistent := 0

	ds.Reset()
	for i := 0; i < ds.Size(); i++ {
		if err := ctx.Err(); err != nil {
			return res, nil, fmt.Errorf("evaluate interrupted at instance %d: %w", i, err)
		}
		inst := ds.Next()
		s := lcs.NewState(inst.Input, inst.Output)
		if err := r.match(s); err != nil {
			return res, nil, err
		}

		rec := store.PredictionRecord{RunID: r.runID, Pass: string(pass), Instance: i, Label: inst.Label, Crisp: -1}
		if r.matchSet.Size() == 0 {
			harness.NoMatch()
			recs = append(recs, rec)
			continue
		}

		weighted, err := r.weighted()
		if err != nil {
			return res, nil, fmt.Errorf("instance %d: %w", i, err)
		}
		if err := r.matchSet.CalculateFusedPrediction(); err != nil {
			return res, nil, fmt.Errorf("instance %d: fuse: %w", i, err)
		}
		decision := r.gate.Evaluate(r.matchSet.Fused())
		if decision.Inconsistent() {
			inconsistent++
			r.logger.Debug("inconsistent sources, using union", "instance", i, "consistency", decision.Consistency)
		}
		if err := harness.Observe(weighted, decision.Prediction, inst.Output, decision.Crisp, inst.Label); err != nil {
			return res, nil, fmt.Errorf("instance %d: %w", i, err)
		}

		rec.Matched = true
		rec.Crisp = decision.Crisp
		rec.Mode = string(decision.Mode)
		rec.Consistency = decision.Consistency
		recs = append(recs, rec)
		labels = append(labels, [2]int{inst.Label, decision.Crisp})
	}

	res = harness.Run()
	if err := r.record(pass, res, recs); err != nil {
		return res, labels, err
	}

	span.AddEvent("evaluation_complete", trace.WithAttributes(
		attribute.Float64("accuracy", res.Accuracy),
		attribute.Int("no_match", res.NoMatch),
		attribute.Int("inconsistent", inconsistent),
	))
	r.logger.Info("evaluation complete",
		"pass", pass,
		"accuracy", res.Accuracy,
		"weighted_error", res.WeightedError,
		"pi_error", res.PiError,
		"no_match", res.NoMatch,
		"inconsistent", inconsistent,
		"passed", res.Passed,
	)
	return res, labels, nil
}

func (r *Runner) record(pass Pass, res eval.EvalResult, recs []store.PredictionRecord) error {
	if r.recorder == nil {
		return nil
	}
	if err := r.recorder.RecordPredictions(recs); err != nil {
		return err
	}
	return r.recorder.RecordEvaluation(store.EvaluationRecord{
		RunID:         r.runID,
		Pass:          string(pass),
		Instances:     res.Instances,
		Correct:       res.Correct,
		NoMatch:       res.NoMatch,
		Accuracy:      res.Accuracy,
		WeightedError: res.WeightedError,
		PiError:       res.PiError,
		Passed:        res.Passed,
		Reason:        res.Reason,
	})
}

// #endregion
