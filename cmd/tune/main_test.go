package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs a fresh root command against a fresh viper instance
// and returns what it wrote to stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)

	root := newRootCmd()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--log-level", "error"))

	err := root.ExecuteContext(context.Background())

	return out.String(), err
}

// writeTable writes n rows where "signal" decides "label". With label false
// the target column is left out.
func writeTable(t *testing.T, dir string, n int, label bool) string {
	t.Helper()

	var b strings.Builder

	b.WriteString("signal,noise")
	if label {
		b.WriteString(",label")
	}

	b.WriteString("\n")

	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,%d", i%10, (i*37)%11)

		if label {
			y := 0
			if i%10 >= 5 {
				y = 1
			}

			fmt.Fprintf(&b, ",%d", y)
		}

		b.WriteString("\n")
	}

	name := "unlabelled.csv"
	if label {
		name = "labelled.csv"
	}

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))

	return path
}

// trackedRun returns the experiment and trial count of the only run listed
// for experiment.
func trackedRun(t *testing.T, dsn, experiment string) (string, string) {
	t.Helper()

	out, err := executeCommand(t, "runs", "--tracking-dsn", dsn, "--experiment", experiment)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2, out)

	fields := strings.Fields(lines[1])
	require.GreaterOrEqual(t, len(fields), 6, lines[1])

	return fields[1], fields[5]
}

func TestVersion(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)

	assert.Equal(t, "tune dev\n", out)
}

func TestFitFlagsOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "runs.db")
	data := writeTable(t, dir, 60, true)

	t.Setenv("TUNE_N_HYPERPARAMETER_OPTIMISATION_RUNS", "9")
	t.Setenv("TUNE_TRACKING_EXPERIMENT", "from-env")

	out, err := executeCommand(t, "fit",
		"--data", data,
		"--target", "label",
		"--runs", "2",
		"--experiment", "from-flag",
		"--tracking-dsn", dsn,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Best trial")
	assert.Contains(t, out, "Run ID:")

	experiment, trials := trackedRun(t, dsn, "from-flag")
	assert.Equal(t, "from-flag", experiment)
	assert.Equal(t, "2", trials)
}

func TestFitReadsEnvironment(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "runs.db")
	data := writeTable(t, dir, 60, true)

	t.Setenv("TUNE_N_HYPERPARAMETER_OPTIMISATION_RUNS", "3")
	t.Setenv("TUNE_TRACKING_EXPERIMENT", "from-env")
	t.Setenv("TUNE_TARGET", "label")

	_, err := executeCommand(t, "fit", "--data", data, "--tracking-dsn", dsn)
	require.NoError(t, err)

	experiment, trials := trackedRun(t, dsn, "from-env")
	assert.Equal(t, "from-env", experiment)
	assert.Equal(t, "3", trials)
}

func TestFitRejectsInvalidSettings(t *testing.T) {
	data := writeTable(t, t.TempDir(), 20, true)

	_, err := executeCommand(t, "fit", "--data", data, "--target", "label", "--metric", "bogus_avg")
	assert.Error(t, err)
}

func TestPredictScoresExportedArtifact(t *testing.T) {
	dir := t.TempDir()
	labelled := writeTable(t, dir, 60, true)
	unlabelled := writeTable(t, dir, 15, false)
	model := filepath.Join(dir, "model.json")
	preds := filepath.Join(dir, "preds.csv")

	_, err := executeCommand(t, "fit", "--data", labelled, "--target", "label", "--runs", "2", "--export", model)
	require.NoError(t, err)

	out, err := executeCommand(t, "predict", "--artifact", model, "--data", labelled, "--out", preds)
	require.NoError(t, err)
	assert.Contains(t, out, "Scores: acc=")

	content, err := os.ReadFile(preds)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 61)
	assert.Equal(t, "row,prediction,probability,label", lines[0])

	out, err = executeCommand(t, "predict", "--artifact", model, "--data", unlabelled)
	require.NoError(t, err)

	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 16)
	assert.Equal(t, "row,prediction,probability", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0,"), lines[1])
}
