// Package model defines the trainable capabilities consumed by cross
// validation and the final refit, plus reference implementations.
package model

import (
	"encoding"
	"fmt"
)

// Classifier is a binary classifier over labels 0 and 1.
type Classifier interface {
	Fit(X [][]float64, y []int) error
	Predict(X [][]float64) ([]int, error)
	// PredictProba returns per-row probabilities ordered [P(0), P(1)].
	PredictProba(X [][]float64) ([][]float64, error)
	// FeatureImportances returns one non-negative weight per feature.
	FeatureImportances() []float64
}

// Preprocessor is fitted on training features only and then transforms any
// partition with the learned state.
type Preprocessor interface {
	Fit(X [][]float64) error
	Transform(X [][]float64) ([][]float64, error)
}

// Persistable is implemented by models and preprocessors that can be written
// into an artifact.
type Persistable interface {
	Kind() string
	encoding.BinaryMarshaler
}

// Kinds of the reference implementations.
const (
	KindRandomForest   = "random_forest"
	KindStandardScaler = "standard_scaler"
)

// DecodeClassifier restores a classifier written by MarshalBinary.
func DecodeClassifier(kind string, data []byte) (Classifier, error) {
	switch kind {
	case KindRandomForest:
		f := &RandomForest{}
		if err := f.UnmarshalBinary(data); err != nil {
			return nil, err
		}

		return f, nil
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", kind)
	}
}

// DecodePreprocessor restores a preprocessor written by MarshalBinary.
func DecodePreprocessor(kind string, data []byte) (Preprocessor, error) {
	switch kind {
	case KindStandardScaler:
		s := &StandardScaler{}
		if err := s.UnmarshalBinary(data); err != nil {
			return nil, err
		}

		return s, nil
	default:
		return nil, fmt.Errorf("unknown preprocessor kind %q", kind)
	}
}

func checkXY(X [][]float64, y []int) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("empty X")
	}

	if len(X) != len(y) {
		return 0, fmt.Errorf("X has %d rows, y has %d", len(X), len(y))
	}

	p := len(X[0])
	for i := range X {
		if len(X[i]) != p {
			return 0, fmt.Errorf("row %d has %d features, expected %d", i, len(X[i]), p)
		}
	}

	for i, label := range y {
		if label != 0 && label != 1 {
			return 0, fmt.Errorf("row %d has label %d, expected 0 or 1", i, label)
		}
	}

	return p, nil
}
