// Package serve scores feature rows against a loaded artifact over HTTP.
package serve

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thalesfsp/tune"
	"github.com/thalesfsp/tune/internal/artifact"
	"github.com/thalesfsp/tune/internal/model"
)

// ErrClosed is returned by a Service after Close.
var ErrClosed = errors.New("service is closed")

// Prediction is the score of one row.
type Prediction struct {
	Label       int     `json:"label"`
	Probability float64 `json:"probability"`
}

// Metadata describes the loaded model.
type Metadata struct {
	SchemaVersion   int             `json:"schema_version"`
	ModelKind       string          `json:"model_kind"`
	CreatedAt       time.Time       `json:"created_at"`
	LoadedAt        time.Time       `json:"loaded_at"`
	Features        []string        `json:"features"`
	Hyperparameters tune.Assignment `json:"hyperparameters"`
	Metric          string          `json:"optimisation_metric"`
}

// Service owns the decoded model and preprocessing for the process lifetime.
// The model is read-only after NewService, so Predict may be called
// concurrently.
type Service struct {
	mu     sync.RWMutex
	closed bool

	model    model.Classifier
	pre      model.Preprocessor
	metadata Metadata
}

// NewService decodes b.
func NewService(b *artifact.Bundle) (*Service, error) {
	clf, err := b.Classifier()
	if err != nil {
		return nil, err
	}

	pre, err := b.Preprocessor()
	if err != nil {
		return nil, err
	}

	return &Service{
		model: clf,
		pre:   pre,
		metadata: Metadata{
			SchemaVersion:   b.SchemaVersion,
			ModelKind:       b.ModelKind,
			CreatedAt:       b.CreatedAt,
			LoadedAt:        time.Now().UTC(),
			Features:        append([]string(nil), b.Features...),
			Hyperparameters: b.Hyperparameters.Clone(),
			Metric:          b.Config.Metric,
		},
	}, nil
}

// Open loads the artifact at path and returns a Service for it.
func Open(path string) (*Service, error) {
	b, err := artifact.Load(path)
	if err != nil {
		return nil, err
	}

	return NewService(b)
}

// Metadata returns a copy of the model description.
func (s *Service) Metadata() Metadata {
	m := s.metadata
	m.Features = append([]string(nil), m.Features...)
	m.Hyperparameters = m.Hyperparameters.Clone()

	return m
}

// Predict scores rows keyed by feature name. Every model feature must be
// present; extra keys are ignored.
func (s *Service) Predict(rows []map[string]float64) ([]Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	X := make([][]float64, len(rows))

	for i, row := range rows {
		x := make([]float64, len(s.metadata.Features))

		for j, name := range s.metadata.Features {
			v, ok := row[name]
			if !ok {
				return nil, fmt.Errorf("row %d: missing feature %q", i, name)
			}

			x[j] = v
		}

		X[i] = x
	}

	if s.pre != nil {
		var err error
		if X, err = s.pre.Transform(X); err != nil {
			return nil, fmt.Errorf("transform: %w", err)
		}
	}

	proba, err := s.model.PredictProba(X)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	labels, err := s.model.Predict(X)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	out := make([]Prediction, len(rows))
	for i := range out {
		out[i] = Prediction{Label: labels[i], Probability: proba[i][1]}
	}

	return out, nil
}

// Close releases the model. Predict fails afterwards.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.model = nil
	s.pre = nil

	return nil
}
