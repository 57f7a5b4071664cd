// Package store persists runs, threading calibration decisions, evaluated
// predictions and population snapshots in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run or snapshot does not exist.
var ErrNotFound = errors.New("store: not found")

// timeFormat is fixed width so timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	config_json  TEXT,
	started_at   TEXT NOT NULL,
	finished_at  TEXT
);

CREATE TABLE IF NOT EXISTS calibration_events (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	population_size INTEGER NOT NULL,
	serial_ns       INTEGER NOT NULL,
	parallel_ns     INTEGER NOT NULL,
	threshold       INTEGER NOT NULL,
	created_at      TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS predictions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	pass         TEXT NOT NULL,
	instance     INTEGER NOT NULL,
	matched      INTEGER NOT NULL,
	label        INTEGER NOT NULL,
	crisp        INTEGER NOT NULL,
	mode         TEXT,
	consistency  REAL,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS evaluations (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	pass            TEXT NOT NULL,
	instances       INTEGER NOT NULL,
	correct         INTEGER NOT NULL,
	no_match        INTEGER NOT NULL,
	accuracy        REAL NOT NULL,
	weighted_error  REAL NOT NULL,
	pi_error        REAL NOT NULL,
	passed          INTEGER NOT NULL,
	reason          TEXT,
	created_at      TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS population_snapshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	iteration   INTEGER NOT NULL,
	macro       INTEGER NOT NULL,
	micro       INTEGER NOT NULL,
	data        BLOB NOT NULL,
	created_at  TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_predictions_run ON predictions(run_id, pass);
`

// #endregion schema

// #region store-struct
// Store manages run data in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion constructor

// #region runs
// CreateRun starts a run with the given configuration document.
func (s *Store) CreateRun(configJSON string) (Run, error) {
	run := Run{
		ID:         uuid.New().String(),
		Status:     RunRunning,
		ConfigJSON: configJSON,
		StartedAt:  time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, status, config_json, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), nullIfEmpty(configJSON), run.StartedAt.Format(timeFormat),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun records the final status of a run.
func (s *Store) FinishRun(runID string, status RunStatus) error {
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, finished_at = ? WHERE run_id = ?`,
		string(status), time.Now().UTC().Format(timeFormat), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// GetRun reads one run.
func (s *Store) GetRun(runID string) (Run, error) {
	row := s.db.QueryRow(
		`SELECT run_id, status, config_json, started_at, finished_at FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, err
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT run_id, status, config_json, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun() (Run, error) {
	runs, err := s.ListRuns(1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, fmt.Errorf("latest run: %w", ErrNotFound)
	}
	return runs[0], nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run                Run
		status             string
		configJSON, finish sql.NullString
		started            string
	)
	if err := sc.Scan(&run.ID, &status, &configJSON, &started, &finish); err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	run.ConfigJSON = configJSON.String
	run.StartedAt, _ = time.Parse(timeFormat, started)
	if finish.Valid {
		run.FinishedAt, _ = time.Parse(timeFormat, finish.String)
	}
	return run, nil
}

// #endregion runs

// #region calibration
// RecordCalibration writes one calibration decision.
func (s *Store) RecordCalibration(rec CalibrationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO calibration_events (run_id, outcome, population_size, serial_ns, parallel_ns, threshold, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Outcome, rec.PopulationSize,
		rec.Serial.Nanoseconds(), rec.Parallel.Nanoseconds(), rec.Threshold,
		rec.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("record calibration: %w", err)
	}
	return nil
}

// Calibrations returns the calibration decisions of a run in order.
func (s *Store) Calibrations(runID string) ([]CalibrationRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, outcome, population_size, serial_ns, parallel_ns, threshold, created_at
		 FROM calibration_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query calibrations: %w", err)
	}
	defer rows.Close()

	var out []CalibrationRecord
	for rows.Next() {
		var (
			rec                CalibrationRecord
			serialNs, parallel int64
			created            string
		)
		if err := rows.Scan(&rec.RunID, &rec.Outcome, &rec.PopulationSize, &serialNs, &parallel, &rec.Threshold, &created); err != nil {
			return nil, err
		}
		rec.Serial = time.Duration(serialNs)
		rec.Parallel = time.Duration(parallel)
		rec.CreatedAt, _ = time.Parse(timeFormat, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion calibration

// #region predictions
// RecordPrediction writes one evaluated instance.
func (s *Store) RecordPrediction(rec PredictionRecord) error {
	return s.RecordPredictions([]PredictionRecord{rec})
}

// RecordPredictions writes a batch of evaluated instances in one transaction.
func (s *Store) RecordPredictions(recs []PredictionRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO predictions (run_id, pass, instance, matched, label, crisp, mode, consistency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare prediction: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range recs {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		_, err := stmt.Exec(
			rec.RunID, rec.Pass, rec.Instance, boolInt(rec.Matched), rec.Label, rec.Crisp,
			nullIfEmpty(rec.Mode), rec.Consistency, rec.CreatedAt.Format(timeFormat),
		)
		if err != nil {
			return fmt.Errorf("insert prediction: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Predictions returns the evaluated instances of one pass in order.
func (s *Store) Predictions(runID, pass string) ([]PredictionRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, pass, instance, matched, label, crisp, mode, consistency, created_at
		 FROM predictions WHERE run_id = ? AND pass = ? ORDER BY id`, runID, pass)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []PredictionRecord
	for rows.Next() {
		var (
			rec     PredictionRecord
			matched int
			mode    sql.NullString
			consist sql.NullFloat64
			created string
		)
		if err := rows.Scan(&rec.RunID, &rec.Pass, &rec.Instance, &matched, &rec.Label, &rec.Crisp, &mode, &consist, &created); err != nil {
			return nil, err
		}
		rec.Matched = matched != 0
		rec.Mode = mode.String
		rec.Consistency = consist.Float64
		rec.CreatedAt, _ = time.Parse(timeFormat, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion predictions

// #region evaluations
// RecordEvaluation writes the summary of an evaluation pass.
func (s *Store) RecordEvaluation(rec EvaluationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO evaluations (run_id, pass, instances, correct, no_match, accuracy, weighted_error, pi_error, passed, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Pass, rec.Instances, rec.Correct, rec.NoMatch,
		rec.Accuracy, rec.WeightedError, rec.PiError, boolInt(rec.Passed),
		nullIfEmpty(rec.Reason), rec.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("record evaluation: %w", err)
	}
	return nil
}

func (s *Store) evaluations(runID string) ([]EvaluationRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, pass, instances, correct, no_match, accuracy, weighted_error, pi_error, passed, reason, created_at
		 FROM evaluations WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	var out []EvaluationRecord
	for rows.Next() {
		var (
			rec     EvaluationRecord
			passed  int
			reason  sql.NullString
			created string
		)
		if err := rows.Scan(&rec.RunID, &rec.Pass, &rec.Instances, &rec.Correct, &rec.NoMatch,
			&rec.Accuracy, &rec.WeightedError, &rec.PiError, &passed, &reason, &created); err != nil {
			return nil, err
		}
		rec.Passed = passed != 0
		rec.Reason = reason.String
		rec.CreatedAt, _ = time.Parse(timeFormat, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion evaluations

// #region population
// SavePopulation stores a population snapshot for a run.
func (s *Store) SavePopulation(snap PopulationSnapshot) (int64, error) {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO population_snapshots (run_id, iteration, macro, micro, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.RunID, snap.Iteration, snap.Macro, snap.Micro, snap.Data,
		snap.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("save population: %w", err)
	}
	return res.LastInsertId()
}

// LoadPopulation returns the latest snapshot of a run.
func (s *Store) LoadPopulation(runID string) (PopulationSnapshot, error) {
	var (
		snap    PopulationSnapshot
		created string
	)
	err := s.db.QueryRow(
		`SELECT id, run_id, iteration, macro, micro, data, created_at
		 FROM population_snapshots WHERE run_id = ? ORDER BY id DESC LIMIT 1`, runID,
	).Scan(&snap.ID, &snap.RunID, &snap.Iteration, &snap.Macro, &snap.Micro, &snap.Data, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return PopulationSnapshot{}, fmt.Errorf("population of run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return PopulationSnapshot{}, fmt.Errorf("load population: %w", err)
	}
	snap.CreatedAt, _ = time.Parse(timeFormat, created)
	return snap, nil
}

// #endregion population

// #region summary
// RunSummary aggregates the records of one run.
func (s *Store) RunSummary(runID string) (RunSummary, error) {
	run, err := s.GetRun(runID)
	if err != nil {
		return RunSummary{}, err
	}
	sum := RunSummary{Run: run}

	if sum.Evaluations, err = s.evaluations(runID); err != nil {
		return RunSummary{}, err
	}
	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM calibration_events WHERE run_id = ?`, &sum.CalibrationEvents},
		{`SELECT COUNT(*) FROM predictions WHERE run_id = ?`, &sum.Predictions},
		{`SELECT COUNT(*) FROM population_snapshots WHERE run_id = ?`, &sum.Snapshots},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query, runID).Scan(c.dst); err != nil {
			return RunSummary{}, fmt.Errorf("count: %w", err)
		}
	}
	if sum.CalibrationEvents > 0 {
		cals, err := s.Calibrations(runID)
		if err != nil {
			return RunSummary{}, err
		}
		last := cals[len(cals)-1]
		sum.LastCalibration = &last
	}
	return sum, nil
}

// #endregion summary

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
