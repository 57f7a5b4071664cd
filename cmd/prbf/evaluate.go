package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/prbf/go-engine/internal/dataset"
	"github.com/danielpatrickdp/prbf/go-engine/internal/eval"
	"github.com/danielpatrickdp/prbf/go-engine/internal/orchestrator"
	"github.com/danielpatrickdp/prbf/go-engine/internal/population"
)

// #region evaluate
func newEvaluateCmd() *cobra.Command {
	var runID, testFile, labelsDir string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a persisted population on a test file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.Close()
			if testFile != "" {
				e.cfg.Data.TestFile = testFile
			}
			if e.cfg.Data.TestFile == "" {
				return errors.New("no test file: set data.test_file, PRBF_TEST_FILE or --test-file")
			}

			runner, err := loadRunner(e, runID)
			if err != nil {
				return err
			}
			defer runner.Close()

			test, err := dataset.Load(e.cfg.Data.TestFile, e.cfg.Data.InputSize, e.cfg.Data.OutputSize)
			if err != nil {
				return err
			}
			res, labels, err := runner.Evaluate(cmd.Context(), test, orchestrator.PassTest)
			if err != nil {
				return err
			}
			printEval(cmd, orchestrator.PassTest, res)
			return writeLabels(labelsDir, orchestrator.PassTest, labels)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run whose population to load (default latest)")
	cmd.Flags().StringVar(&testFile, "test-file", "", "test data (overrides data.test_file)")
	cmd.Flags().StringVar(&labelsDir, "labels-dir", "", "write class_prediction_test.txt here")
	return cmd
}

// #endregion evaluate

// #region helpers

// loadRunner restores the latest population snapshot of a run.
func loadRunner(e *env, runID string) (*orchestrator.Runner, error) {
	run, err := e.resolveRun(runID)
	if err != nil {
		return nil, err
	}
	snap, err := e.store.LoadPopulation(run.ID)
	if err != nil {
		return nil, err
	}
	pop, err := population.Restore(snap.Data, e.cfg.Population.MaxSize, e.cfg.Classifier)
	if err != nil {
		return nil, err
	}
	e.logger.Info("population restored", "run_id", run.ID, "iteration", snap.Iteration, "macro", snap.Macro, "micro", snap.Micro)
	return orchestrator.NewRunner(e.cfg, pop, orchestrator.Deps{
		Recorder: e.store,
		RunID:    run.ID,
		Logger:   e.logger.With("run_id", run.ID),
	})
}

func printEval(cmd *cobra.Command, pass orchestrator.Pass, res eval.EvalResult) {
	fmt.Fprintf(cmd.OutOrStdout(),
		"%s: accuracy %.4f  weighted error %.4f  pi error %.4f  no match %d/%d  (%s)\n",
		pass, res.Accuracy, res.WeightedError, res.PiError, res.NoMatch, res.Instances, res.Reason)
}

// #endregion helpers
