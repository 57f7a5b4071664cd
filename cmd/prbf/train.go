package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/prbf/go-engine/internal/dataset"
	"github.com/danielpatrickdp/prbf/go-engine/internal/orchestrator"
	"github.com/danielpatrickdp/prbf/go-engine/internal/population"
	"github.com/danielpatrickdp/prbf/go-engine/internal/store"
)

// #region train
func newTrainCmd() *cobra.Command {
	var trainFile, testFile, labelsDir string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run the learning loop and evaluate the final population",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.Close()
			if trainFile != "" {
				e.cfg.Data.TrainFile = trainFile
			}
			if testFile != "" {
				e.cfg.Data.TestFile = testFile
			}
			if e.cfg.Data.TrainFile == "" {
				return errors.New("no training file: set data.train_file, PRBF_TRAIN_FILE or --train-file")
			}

			train, err := dataset.Load(e.cfg.Data.TrainFile, e.cfg.Data.InputSize, e.cfg.Data.OutputSize)
			if err != nil {
				return err
			}
			pop, err := population.New(e.cfg.Population.MaxSize)
			if err != nil {
				return err
			}
			run, err := e.store.CreateRun(e.cfg.JSON())
			if err != nil {
				return err
			}
			defer func() {
				status := store.RunFinished
				if err != nil {
					status = store.RunFailed
				}
				if ferr := e.store.FinishRun(run.ID, status); ferr != nil {
					e.logger.Warn("failed to finish run", "run_id", run.ID, "error", ferr)
				}
			}()

			runner, err := orchestrator.NewRunner(e.cfg, pop, orchestrator.Deps{
				Recorder: e.store,
				RunID:    run.ID,
				Logger:   e.logger.With("run_id", run.ID),
			})
			if err != nil {
				return err
			}
			defer runner.Close()

			ctx := cmd.Context()
			res, err := runner.Train(ctx, train)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d iterations, %d classifiers (%d micro), mean error %.4f\n",
				run.ID, res.Iterations, res.Macro, res.Micro, res.MeanError)

			evalRes, labels, err := runner.Evaluate(ctx, train, orchestrator.PassTrain)
			if err != nil {
				return err
			}
			printEval(cmd, orchestrator.PassTrain, evalRes)
			if err := writeLabels(labelsDir, orchestrator.PassTrain, labels); err != nil {
				return err
			}

			if e.cfg.Data.TestFile == "" {
				return nil
			}
			test, err := dataset.Load(e.cfg.Data.TestFile, e.cfg.Data.InputSize, e.cfg.Data.OutputSize)
			if err != nil {
				return err
			}
			evalRes, labels, err = runner.Evaluate(ctx, test, orchestrator.PassTest)
			if err != nil {
				return err
			}
			printEval(cmd, orchestrator.PassTest, evalRes)
			return writeLabels(labelsDir, orchestrator.PassTest, labels)
		},
	}
	cmd.Flags().StringVar(&trainFile, "train-file", "", "training data (overrides data.train_file)")
	cmd.Flags().StringVar(&testFile, "test-file", "", "test data (overrides data.test_file)")
	cmd.Flags().StringVar(&labelsDir, "labels-dir", "", "write class_prediction_<pass>.txt files here")
	return cmd
}

// #endregion train

// #region helpers
func writeLabels(dir string, pass orchestrator.Pass, labels [][2]int) error {
	if dir == "" {
		return nil
	}
	path := filepath.Join(dir, fmt.Sprintf("class_prediction_%s.txt", pass))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := dataset.WriteLabels(f, labels); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// #endregion helpers
