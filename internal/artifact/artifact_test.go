package artifact

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalesfsp/tune"
	"github.com/thalesfsp/tune/internal/config"
	"github.com/thalesfsp/tune/internal/model"
)

func fitted(t *testing.T) (*model.RandomForest, *model.StandardScaler, [][]float64) {
	t.Helper()

	X := [][]float64{{1, 10}, {2, 20}, {3, 30}, {4, 40}, {5, 50}, {6, 60}}
	y := []int{0, 0, 0, 1, 1, 1}

	scaler := model.NewStandardScaler()
	require.NoError(t, scaler.Fit(X))

	scaled, err := scaler.Transform(X)
	require.NoError(t, err)

	forest := model.NewRandomForest(model.WithEstimators(4), model.WithSeed(1))
	require.NoError(t, forest.Fit(scaled, y))

	return forest, scaler, X
}

func TestSaveLoadRoundTrip(t *testing.T) {
	forest, scaler, X := fitted(t)

	b, err := New(config.Default(), []string{"a", "b"}, tune.Assignment{"max_depth": 6}, forest, scaler)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, Save(path, b))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, loaded.SchemaVersion)
	assert.Equal(t, model.KindRandomForest, loaded.ModelKind)
	assert.Equal(t, []string{"a", "b"}, loaded.Features)
	assert.Equal(t, 6, loaded.Hyperparameters.Int("max_depth"))
	assert.Equal(t, config.Default().NFolds, loaded.Config.NFolds)

	pre, err := loaded.Preprocessor()
	require.NoError(t, err)

	clf, err := loaded.Classifier()
	require.NoError(t, err)

	scaled, err := pre.Transform(X)
	require.NoError(t, err)

	got, err := clf.Predict(scaled)
	require.NoError(t, err)

	wantScaled, err := scaler.Transform(X)
	require.NoError(t, err)

	want, err := forest.Predict(wantScaled)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestBundleWithoutPreprocessing(t *testing.T) {
	forest, _, _ := fitted(t)

	b, err := New(config.Default(), nil, nil, forest, nil)
	require.NoError(t, err)

	pre, err := b.Preprocessor()
	require.NoError(t, err)
	assert.Nil(t, pre)
}

func TestReadRejectsUnknownVersionAndKind(t *testing.T) {
	forest, _, _ := fitted(t)

	b, err := New(config.Default(), nil, nil, forest, nil)
	require.NoError(t, err)

	b.SchemaVersion = 99

	var buf bytes.Buffer
	require.NoError(t, b.Write(&buf))

	_, err = Read(&buf)
	assert.ErrorContains(t, err, "schema version")

	b.SchemaVersion = SchemaVersion
	b.ModelKind = "svm"

	raw, err := json.Marshal(b)
	require.NoError(t, err)

	_, err = Read(bytes.NewReader(raw))
	assert.ErrorContains(t, err, "unknown classifier kind")
}
