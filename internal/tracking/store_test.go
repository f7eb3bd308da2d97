package tracking

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalesfsp/tune"
	"github.com/thalesfsp/tune/internal/leaderboard"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestDriverFor(t *testing.T) {
	driver, source := driverFor("postgres://u:p@localhost/tune?sslmode=disable")
	assert.Equal(t, "postgres", driver)
	assert.Equal(t, "postgres://u:p@localhost/tune?sslmode=disable", source)

	driver, source = driverFor("sqlite:///tmp/runs.db")
	assert.Equal(t, "sqlite3", driver)
	assert.Equal(t, "/tmp/runs.db", source)

	driver, _ = driverFor("runs.db")
	assert.Equal(t, "sqlite3", driver)
}

func TestLogRunAndReadBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	trials := []leaderboard.Trial{
		{
			Index:           0,
			Hyperparameters: tune.Assignment{"max_depth": 5},
			FoldMetrics:     map[string][]float64{"acc": {0.7, 0.8}},
			Averages:        map[string]float64{"acc_avg": 0.75},
		},
		{
			Index:           1,
			Hyperparameters: tune.Assignment{"max_depth": 9},
			FoldMetrics:     map[string][]float64{"acc": {0.9, 0.8}},
			Averages:        map[string]float64{"acc_avg": 0.85},
		},
	}

	id, err := s.LogRun(ctx, Run{
		Experiment:      "titanic",
		Metric:          "acc_avg",
		Direction:       "max",
		Value:           0.85,
		Hyperparameters: tune.Assignment{"max_depth": 9},
		Holdout:         map[string]float64{"acc": 0.8},
		Leaderboard:     trials,
		CreatedAt:       time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	_, err = s.LogRun(ctx, Run{
		Experiment: "other",
		Metric:     "auc_avg",
		Direction:  "max",
		Value:      0.6,
		CreatedAt:  time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	all, err := s.Runs(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "other", all[0].Experiment)

	runs, err := s.Runs(ctx, "titanic")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, 2, runs[0].Trials)
	assert.InDelta(t, 0.85, runs[0].Value, 1e-12)

	one, err := s.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "acc_avg", one.Metric)
	assert.Equal(t, "max", one.Direction)

	got, err := s.Leaderboard(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, trials, got)
}

func TestLeaderboardUnknownRun(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Leaderboard(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	_, err = s.Run(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}
