package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalesfsp/tune"
	"github.com/thalesfsp/tune/internal/artifact"
	"github.com/thalesfsp/tune/internal/config"
	"github.com/thalesfsp/tune/internal/dataset"
	apperrors "github.com/thalesfsp/tune/internal/errors"
	"github.com/thalesfsp/tune/internal/leaderboard"
	"github.com/thalesfsp/tune/internal/metrics"
	"github.com/thalesfsp/tune/internal/model"
	"github.com/thalesfsp/tune/internal/tracking"
)

// table returns n rows where "signal" decides the label and "noise" does
// not. Labels alternate in blocks of five so any contiguous slice holds both.
func table(t *testing.T, n int) *dataset.Table {
	t.Helper()

	x := make([][]float64, n)
	y := make([]int, n)

	for i := range x {
		x[i] = []float64{float64(i % 10), float64((i * 37) % 11)}
		if i%10 >= 5 {
			y[i] = 1
		}
	}

	tbl, err := dataset.New([]string{"signal", "noise"}, x, y)
	require.NoError(t, err)

	return tbl
}

func smallSpace(t *testing.T) *tune.SearchSpace {
	t.Helper()

	space, err := tune.NewSearchSpace(
		tune.Integer(MaxDepth, tune.Bounds[int]{Min: 2, Max: 6}),
		tune.Integer(MinSamplesLeaf, tune.Bounds[int]{Min: 1, Max: 3}),
		tune.Real(MinWeightFractionLeaf, tune.Bounds[float64]{Min: 0, Max: 0.05}),
	)
	require.NoError(t, err)

	return space
}

func testConfig(t *testing.T, opts ...config.Option) config.Config {
	t.Helper()

	base := config.Default()
	base.InitialPoints = 2
	base.NEstimators = 5

	c, err := config.New(base, append([]config.Option{config.WithRuns(4), config.WithFolds(3), config.WithSeed(7)}, opts...)...)
	require.NoError(t, err)

	return c
}

// exhaustiveForest tries every feature at each split so the signal column
// is always found.
func exhaustiveForest(hp tune.Assignment) (model.Classifier, error) {
	clf, err := ForestFactory(5, 1)(hp)
	if err != nil {
		return nil, err
	}

	clf.(*model.RandomForest).MaxFeatures = 2

	return clf, nil
}

func newSearch(t *testing.T) *Search {
	t.Helper()

	return &Search{
		Config:          testConfig(t),
		Space:           smallSpace(t),
		NewModel:        exhaustiveForest,
		NewPreprocessor: ScalerFactory,
	}
}

func TestDefaultSpace(t *testing.T) {
	space, err := DefaultSpace()
	require.NoError(t, err)

	assert.Equal(t, []string{MaxDepth, MinSamplesLeaf, MinWeightFractionLeaf}, space.Names())
}

func TestDefaultSpaceForNarrowsLeafBound(t *testing.T) {
	tests := []struct {
		rows, folds int
		want        float64
	}{
		{rows: 1000, folds: 5, want: 50},
		{rows: 60, folds: 5, want: 4},
		{rows: 5, folds: 5, want: 1},
	}

	for _, tt := range tests {
		space, err := DefaultSpaceFor(tt.rows, tt.folds)
		require.NoError(t, err)

		leaf := space.Dimensions()[1]
		assert.Equal(t, MinSamplesLeaf, leaf.Name)
		assert.Equal(t, 1.0, leaf.Low)
		assert.Equal(t, tt.want, leaf.High, "rows=%d folds=%d", tt.rows, tt.folds)
	}
}

func TestRunRecordsOneTrialPerRun(t *testing.T) {
	progress := make(chan tune.ProgressUpdate, 10)

	s := newSearch(t)
	s.Progress = progress

	result, err := s.Run(table(t, 60))
	require.NoError(t, err)

	trials := result.Leaderboard.Trials()
	require.Len(t, trials, 4)

	for i, trial := range trials {
		assert.Equal(t, i, trial.Index)

		for _, name := range metrics.Names {
			values := trial.FoldMetrics[name]
			require.Len(t, values, 3, name)

			sum := 0.0
			for _, v := range values {
				sum += v
			}

			assert.InDelta(t, sum/3, trial.Averages[metrics.AverageName(name)], 1e-12)
		}
	}

	best, err := result.Leaderboard.Best("acc_avg", leaderboard.Maximize)
	require.NoError(t, err)
	assert.Equal(t, best, result.Best)

	assert.NotNil(t, result.Model)
	assert.NotNil(t, result.Preprocessor)
	assert.Len(t, progress, 4)
}

func TestRunIsDeterministic(t *testing.T) {
	a, err := newSearch(t).Run(table(t, 60))
	require.NoError(t, err)

	b, err := newSearch(t).Run(table(t, 60))
	require.NoError(t, err)

	assert.Equal(t, a.Leaderboard.Trials(), b.Leaderboard.Trials())
}

func TestRunValidatesBeforeFirstTrial(t *testing.T) {
	calls := 0

	s := newSearch(t)
	s.Config.Metric = "accuracy"
	s.NewModel = func(tune.Assignment) (model.Classifier, error) {
		calls++

		return model.NewRandomForest(), nil
	}

	_, err := s.Run(table(t, 60))
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
	assert.Zero(t, calls)
}

func TestRunAbortsOnTrainingFailure(t *testing.T) {
	s := newSearch(t)
	s.NewModel = func(tune.Assignment) (model.Classifier, error) {
		return nil, errors.New("out of memory")
	}

	_, err := s.Run(table(t, 60))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTraining, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "trial 0")
}

func TestBuildFinalFitsOnWholeTable(t *testing.T) {
	tbl := table(t, 40)

	clf, pre, err := BuildFinal(tbl, tune.Assignment{MaxDepth: 4, MinSamplesLeaf: 1}, exhaustiveForest, ScalerFactory)
	require.NoError(t, err)

	scaler, ok := pre.(*model.StandardScaler)
	require.True(t, ok)
	assert.InDelta(t, 4.5, scaler.Mean[0], 1e-12)

	X, err := pre.Transform(tbl.X)
	require.NoError(t, err)

	pred, err := clf.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, tbl.Y, pred)

	clf, pre, err = BuildFinal(tbl, tune.Assignment{MaxDepth: 4, MinSamplesLeaf: 1}, exhaustiveForest, nil)
	require.NoError(t, err)
	assert.Nil(t, pre)
	assert.NotNil(t, clf)
}

func TestPipelineFit(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := tracking.Open(ctx, filepath.Join(dir, "runs.db"))
	require.NoError(t, err)

	defer store.Close()

	s := newSearch(t)
	s.Config.Tracking.Experiment = "unit"

	p := &Pipeline{
		Search:     s,
		ExportPath: filepath.Join(dir, "model.json"),
		Tracker:    store,
	}

	report, err := p.Fit(ctx, table(t, 80))
	require.NoError(t, err)

	assert.Len(t, report.Holdout, len(metrics.Names))
	require.Len(t, report.Importances, 2)
	assert.Equal(t, "signal", report.Importances[0].Feature)
	assert.GreaterOrEqual(t, report.Importances[0].Weight, report.Importances[1].Weight)

	bundle, err := artifact.Load(p.ExportPath)
	require.NoError(t, err)
	assert.Equal(t, report.Best.Hyperparameters, bundle.Hyperparameters)

	scored, err := Score(bundle, table(t, 80))
	require.NoError(t, err)
	assert.Len(t, scored.Predictions, 80)
	assert.Len(t, scored.Probabilities, 80)
	assert.Len(t, scored.Scores, len(metrics.Names))
	assert.GreaterOrEqual(t, scored.Scores[metrics.Accuracy], 0.9)

	runs, err := store.Runs(ctx, "unit")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].ID)
	assert.Equal(t, 4, runs[0].Trials)
}

func TestScoreUnlabelledAndMismatchedTables(t *testing.T) {
	tbl := table(t, 40)

	clf, pre, err := BuildFinal(tbl, tune.Assignment{MaxDepth: 4, MinSamplesLeaf: 1}, ForestFactory(5, 1), ScalerFactory)
	require.NoError(t, err)

	bundle, err := artifact.New(testConfig(t), tbl.Features, tune.Assignment{MaxDepth: 4, MinSamplesLeaf: 1}, clf, pre)
	require.NoError(t, err)

	unlabelled, err := dataset.New(tbl.Features, tbl.X, nil)
	require.NoError(t, err)

	scored, err := Score(bundle, unlabelled)
	require.NoError(t, err)
	assert.Len(t, scored.Predictions, 40)
	assert.Nil(t, scored.Scores)

	for _, p := range scored.Probabilities {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}

	swapped, err := dataset.New([]string{"noise", "signal"}, tbl.X, tbl.Y)
	require.NoError(t, err)

	_, err = Score(bundle, swapped)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfiguration, apperrors.GetCode(err))
}

func TestRunRejectsUnlabelledTable(t *testing.T) {
	tbl := table(t, 30)

	unlabelled, err := dataset.New(tbl.Features, tbl.X, nil)
	require.NoError(t, err)

	_, err = newSearch(t).Run(unlabelled)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfiguration, apperrors.GetCode(err))
}
