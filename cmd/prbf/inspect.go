package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/prbf/go-engine/internal/store"
)

// #region inspect
func newInspectCmd() *cobra.Command {
	var (
		runID   string
		last    int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List runs or show one run's summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.Close()

			if runID != "" {
				return runDetailMode(cmd.OutOrStdout(), e.store, runID, jsonOut)
			}
			return runListMode(cmd.OutOrStdout(), e.store, last, jsonOut)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "show one run in detail")
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent runs")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")
	return cmd
}

// #endregion inspect

// #region list-mode

type listRow struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

func runListMode(w io.Writer, st *store.Store, last int, jsonOut bool) error {
	runs, err := st.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs found")
		return nil
	}

	// store returns newest first, print chronologically
	rows := make([]listRow, len(runs))
	for i, run := range runs {
		row := listRow{
			RunID:     run.ID,
			Status:    string(run.Status),
			StartedAt: run.StartedAt.Format(time.RFC3339),
		}
		if !run.FinishedAt.IsZero() {
			row.FinishedAt = run.FinishedAt.Format(time.RFC3339)
		}
		rows[len(runs)-1-i] = row
	}

	if jsonOut {
		return printJSON(w, rows)
	}
	fmt.Fprintf(w, "%-36s  %-9s  %-20s  %s\n", "Run", "Status", "Started", "Finished")
	for _, r := range rows {
		fmt.Fprintf(w, "%-36s  %-9s  %-20s  %s\n", r.RunID, r.Status, r.StartedAt, r.FinishedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailView struct {
	RunID             string           `json:"run_id"`
	Status            string           `json:"status"`
	StartedAt         string           `json:"started_at"`
	FinishedAt        string           `json:"finished_at,omitempty"`
	Predictions       int              `json:"predictions"`
	Snapshots         int              `json:"snapshots"`
	CalibrationEvents int              `json:"calibration_events"`
	Threshold         *int             `json:"threshold,omitempty"`
	LastOutcome       string           `json:"last_outcome,omitempty"`
	Evaluations       []evaluationView `json:"evaluations"`
}

type evaluationView struct {
	Pass          string  `json:"pass"`
	Instances     int     `json:"instances"`
	NoMatch       int     `json:"no_match"`
	Accuracy      float64 `json:"accuracy"`
	WeightedError float64 `json:"weighted_error"`
	PiError       float64 `json:"pi_error"`
	Passed        bool    `json:"passed"`
}

func runDetailMode(w io.Writer, st *store.Store, runID string, jsonOut bool) error {
	sum, err := st.RunSummary(runID)
	if err != nil {
		return err
	}

	v := detailView{
		RunID:             sum.Run.ID,
		Status:            string(sum.Run.Status),
		StartedAt:         sum.Run.StartedAt.Format(time.RFC3339),
		Predictions:       sum.Predictions,
		Snapshots:         sum.Snapshots,
		CalibrationEvents: sum.CalibrationEvents,
		Evaluations:       []evaluationView{},
	}
	if !sum.Run.FinishedAt.IsZero() {
		v.FinishedAt = sum.Run.FinishedAt.Format(time.RFC3339)
	}
	if sum.LastCalibration != nil {
		th := sum.LastCalibration.Threshold
		v.Threshold = &th
		v.LastOutcome = sum.LastCalibration.Outcome
	}
	for _, ev := range sum.Evaluations {
		v.Evaluations = append(v.Evaluations, evaluationView{
			Pass:          ev.Pass,
			Instances:     ev.Instances,
			NoMatch:       ev.NoMatch,
			Accuracy:      ev.Accuracy,
			WeightedError: ev.WeightedError,
			PiError:       ev.PiError,
			Passed:        ev.Passed,
		})
	}

	if jsonOut {
		return printJSON(w, v)
	}
	fmt.Fprintf(w, "Run:          %s\n", v.RunID)
	fmt.Fprintf(w, "Status:       %s\n", v.Status)
	fmt.Fprintf(w, "Started:      %s\n", v.StartedAt)
	if v.FinishedAt != "" {
		fmt.Fprintf(w, "Finished:     %s\n", v.FinishedAt)
	}
	fmt.Fprintf(w, "Predictions:  %d\n", v.Predictions)
	fmt.Fprintf(w, "Snapshots:    %d\n", v.Snapshots)
	fmt.Fprintf(w, "Calibration:  %d events", v.CalibrationEvents)
	if v.Threshold != nil {
		fmt.Fprintf(w, ", last %s at threshold %d", v.LastOutcome, *v.Threshold)
	}
	fmt.Fprintln(w)
	for _, ev := range v.Evaluations {
		fmt.Fprintf(w, "  %-5s  accuracy %.4f  weighted %.4f  pi %.4f  no match %d/%d  passed=%v\n",
			ev.Pass, ev.Accuracy, ev.WeightedError, ev.PiError, ev.NoMatch, ev.Instances, ev.Passed)
	}
	return nil
}

// #endregion detail-mode

// #region helpers
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// #endregion helpers
