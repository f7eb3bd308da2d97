// Package tracking records finished search runs and their leaderboards in a
// SQL database.
package tracking

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"github.com/thalesfsp/tune"
	"github.com/thalesfsp/tune/internal/leaderboard"
)

// Run is one finished search.
type Run struct {
	ID              uuid.UUID
	Experiment      string
	Metric          string
	Direction       string
	Value           float64
	Hyperparameters tune.Assignment
	Holdout         map[string]float64
	Leaderboard     []leaderboard.Trial
	CreatedAt       time.Time
}

// RunSummary is a stored run without its trials.
type RunSummary struct {
	ID         uuid.UUID `db:"id"`
	Experiment string    `db:"experiment"`
	Metric     string    `db:"metric"`
	Direction  string    `db:"direction"`
	Value      float64   `db:"value"`
	Trials     int       `db:"trials"`
	CreatedAt  time.Time `db:"created_at"`
}

type runRow struct {
	ID              uuid.UUID `db:"id"`
	Experiment      string    `db:"experiment"`
	Metric          string    `db:"metric"`
	Direction       string    `db:"direction"`
	Value           float64   `db:"value"`
	Hyperparameters string    `db:"hyperparameters"`
	Holdout         string    `db:"holdout"`
	CreatedAt       time.Time `db:"created_at"`
}

type trialRow struct {
	RunID           uuid.UUID `db:"run_id"`
	Index           int       `db:"trial_index"`
	Hyperparameters string    `db:"hyperparameters"`
	FoldMetrics     string    `db:"fold_metrics"`
	Averages        string    `db:"averages"`
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		experiment TEXT NOT NULL,
		metric TEXT NOT NULL,
		direction TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		hyperparameters TEXT NOT NULL,
		holdout TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trials (
		run_id TEXT NOT NULL REFERENCES runs(id),
		trial_index INTEGER NOT NULL,
		hyperparameters TEXT NOT NULL,
		fold_metrics TEXT NOT NULL,
		averages TEXT NOT NULL,
		PRIMARY KEY (run_id, trial_index)
	)`,
	`CREATE INDEX IF NOT EXISTS runs_experiment_idx ON runs (experiment)`,
}

// Store is a run store backed by sqlite or postgres.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn and creates the schema if needed. postgres:// and
// postgresql:// DSNs use lib/pq; anything else is a sqlite path, optionally
// prefixed with sqlite://.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source := driverFor(dsn)

	db, err := sqlx.ConnectContext(ctx, driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tracking database: %w", err)
	}

	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

func driverFor(dsn string) (driver, source string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn
	default:
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://")
	}
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate tracking schema: %w", err)
		}
	}

	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LogRun stores run and its leaderboard in one transaction and returns the
// run ID, generating one when run.ID is zero.
func (s *Store) LogRun(ctx context.Context, run Run) (uuid.UUID, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	row := runRow{
		ID:         run.ID,
		Experiment: run.Experiment,
		Metric:     run.Metric,
		Direction:  run.Direction,
		Value:      run.Value,
		CreatedAt:  run.CreatedAt,
	}

	var err error
	if row.Hyperparameters, err = encode(run.Hyperparameters); err != nil {
		return uuid.Nil, err
	}

	if row.Holdout, err = encode(run.Holdout); err != nil {
		return uuid.Nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO runs (id, experiment, metric, direction, value, hyperparameters, holdout, created_at)
		VALUES (:id, :experiment, :metric, :direction, :value, :hyperparameters, :holdout, :created_at)
	`, row); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert run: %w", err)
	}

	for _, trial := range run.Leaderboard {
		tr := trialRow{RunID: run.ID, Index: trial.Index}

		if tr.Hyperparameters, err = encode(trial.Hyperparameters); err != nil {
			return uuid.Nil, err
		}

		if tr.FoldMetrics, err = encode(trial.FoldMetrics); err != nil {
			return uuid.Nil, err
		}

		if tr.Averages, err = encode(trial.Averages); err != nil {
			return uuid.Nil, err
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO trials (run_id, trial_index, hyperparameters, fold_metrics, averages)
			VALUES (:run_id, :trial_index, :hyperparameters, :fold_metrics, :averages)
		`, tr); err != nil {
			return uuid.Nil, fmt.Errorf("failed to insert trial %d: %w", trial.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit run: %w", err)
	}

	return run.ID, nil
}

// Runs lists stored runs, newest first. An empty experiment lists all.
func (s *Store) Runs(ctx context.Context, experiment string) ([]RunSummary, error) {
	query := `
		SELECT r.id, r.experiment, r.metric, r.direction, r.value, r.created_at,
		       (SELECT COUNT(*) FROM trials t WHERE t.run_id = r.id) AS trials
		FROM runs r`

	var args []any
	if experiment != "" {
		query += ` WHERE r.experiment = ?`

		args = append(args, experiment)
	}

	query += ` ORDER BY r.created_at DESC, r.id`

	var runs []RunSummary
	if err := s.db.SelectContext(ctx, &runs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

// Run returns the summary of one stored run.
func (s *Store) Run(ctx context.Context, id uuid.UUID) (RunSummary, error) {
	var run RunSummary

	err := s.db.GetContext(ctx, &run, s.db.Rebind(`
		SELECT r.id, r.experiment, r.metric, r.direction, r.value, r.created_at,
		       (SELECT COUNT(*) FROM trials t WHERE t.run_id = r.id) AS trials
		FROM runs r
		WHERE r.id = ?
	`), id)
	if err != nil {
		return RunSummary{}, fmt.Errorf("run %s: %w", id, err)
	}

	return run, nil
}

// Leaderboard returns the trials of one run in index order.
func (s *Store) Leaderboard(ctx context.Context, runID uuid.UUID) ([]leaderboard.Trial, error) {
	var rows []trialRow

	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT run_id, trial_index, hyperparameters, fold_metrics, averages
		FROM trials
		WHERE run_id = ?
		ORDER BY trial_index
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trials: %w", err)
	}

	if len(rows) == 0 {
		var exists int
		if err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT COUNT(*) FROM runs WHERE id = ?`), runID); err != nil {
			return nil, fmt.Errorf("failed to look up run: %w", err)
		}

		if exists == 0 {
			return nil, fmt.Errorf("run %s: %w", runID, sql.ErrNoRows)
		}
	}

	out := make([]leaderboard.Trial, len(rows))

	for i, row := range rows {
		trial := leaderboard.Trial{Index: row.Index}

		if err := decode(row.Hyperparameters, &trial.Hyperparameters); err != nil {
			return nil, err
		}

		if err := decode(row.FoldMetrics, &trial.FoldMetrics); err != nil {
			return nil, err
		}

		if err := decode(row.Averages, &trial.Averages); err != nil {
			return nil, err
		}

		out[i] = trial
	}

	return out, nil
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}

	return string(b), nil
}

func decode(s string, v any) error {
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("failed to decode column: %w", err)
	}

	return nil
}
