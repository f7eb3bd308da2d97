package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/thalesfsp/tune/internal/errors"
	"github.com/thalesfsp/tune/internal/leaderboard"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	assert.Equal(t, 5, c.NFolds)
	assert.Equal(t, 3, c.NRuns)
	assert.Equal(t, "acc_avg", c.Metric)
	assert.Equal(t, leaderboard.Maximize, c.OptimisationDirection())
}

func TestNewDoesNotMutateBase(t *testing.T) {
	base := Default()
	base.Features = []string{"age"}

	c, err := New(base, WithFolds(3), WithTarget("survived", "fare"))
	require.NoError(t, err)

	assert.Equal(t, 3, c.NFolds)
	assert.Equal(t, []string{"fare"}, c.Features)
	assert.Equal(t, 5, base.NFolds)
	assert.Equal(t, []string{"age"}, base.Features)
	assert.Equal(t, "target", base.Target)
}

func TestNewValidates(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{name: "one fold", opt: WithFolds(1)},
		{name: "zero runs", opt: WithRuns(0)},
		{name: "unknown metric", opt: WithMetric("acc", "max")},
		{name: "unknown direction", opt: WithMetric("auc_avg", "up")},
		{name: "no target", opt: WithTarget("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Default(), tt.opt)
			assert.True(t, errors.Is(err, apperrors.ErrConfiguration), "got %v", err)
		})
	}
}

func TestLoadLayersFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tune.yaml")
	content := "n_folds: 4\noptimisation_metric: auc_avg\ntracking:\n  experiment: titanic\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("TUNE_N_HYPERPARAMETER_OPTIMISATION_RUNS", "7")
	t.Setenv("TUNE_MAX_OR_MIN_OPTIMISATION_METRIC", "min")

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	c, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 4, c.NFolds)
	assert.Equal(t, 7, c.NRuns)
	assert.Equal(t, "auc_avg", c.Metric)
	assert.Equal(t, leaderboard.Minimize, c.OptimisationDirection())
	assert.Equal(t, "titanic", c.Tracking.Experiment)
	assert.Equal(t, ":8080", c.Server.Addr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("TUNE_N_FOLDS", "1")

	_, err := Load(viper.New())
	assert.Equal(t, apperrors.CodeConfiguration, apperrors.GetCode(err))
}
