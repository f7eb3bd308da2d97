package serve

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalesfsp/tune"
	"github.com/thalesfsp/tune/internal/artifact"
	"github.com/thalesfsp/tune/internal/config"
	"github.com/thalesfsp/tune/internal/model"
)

func testService(t *testing.T) *Service {
	t.Helper()

	X := [][]float64{{1, 0}, {2, 1}, {3, 0}, {7, 1}, {8, 0}, {9, 1}}
	y := []int{0, 0, 0, 1, 1, 1}

	scaler := model.NewStandardScaler()
	require.NoError(t, scaler.Fit(X))

	scaled, err := scaler.Transform(X)
	require.NoError(t, err)

	forest := model.NewRandomForest(model.WithEstimators(5), model.WithMaxFeatures(2), model.WithSeed(2))
	require.NoError(t, forest.Fit(scaled, y))

	b, err := artifact.New(config.Default(), []string{"fare", "sex"}, tune.Assignment{"max_depth": 5}, forest, scaler)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, artifact.Save(path, b))

	svc, err := Open(path)
	require.NoError(t, err)

	return svc
}

func post(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/predict", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestPredict(t *testing.T) {
	srv := NewServer(testService(t), nil)

	rec := post(t, srv, PredictRequest{Rows: []map[string]float64{
		{"fare": 1, "sex": 0},
		{"fare": 9, "sex": 1, "ignored": 3},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Predictions, 2)

	assert.Equal(t, 0, resp.Predictions[0].Label)
	assert.Equal(t, 1, resp.Predictions[1].Label)
	assert.Greater(t, resp.Predictions[1].Probability, resp.Predictions[0].Probability)
}

func TestPredictRejectsBadRequests(t *testing.T) {
	srv := NewServer(testService(t), nil)

	rec := post(t, srv, PredictRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, srv, PredictRequest{Rows: []map[string]float64{{"fare": 1}}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing feature")

	req := httptest.NewRequest(http.MethodPost, "/v1/predict", bytes.NewReader([]byte("{")))
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModelAndHealth(t *testing.T) {
	srv := NewServer(testService(t), nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/model", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var meta Metadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, []string{"fare", "sex"}, meta.Features)
	assert.Equal(t, model.KindRandomForest, meta.ModelKind)
	assert.Equal(t, "acc_avg", meta.Metric)
}

func TestClosedServiceIsUnavailable(t *testing.T) {
	svc := testService(t)
	srv := NewServer(svc, nil)

	require.NoError(t, svc.Close())

	rec := post(t, srv, PredictRequest{Rows: []map[string]float64{{"fare": 1, "sex": 0}}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
