package model

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/montanaflynn/stats"
)

// StandardScaler centres each column on its training mean and divides by its
// training population standard deviation. Constant columns keep scale 1.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// NewStandardScaler returns an unfitted scaler.
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// Kind implements Persistable.
func (s *StandardScaler) Kind() string { return KindStandardScaler }

// Fit learns per-column mean and scale from X.
func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("empty X")
	}

	p := len(X[0])
	mean := make([]float64, p)
	scale := make([]float64, p)
	column := make(stats.Float64Data, len(X))

	for j := 0; j < p; j++ {
		for i, row := range X {
			if len(row) != p {
				return fmt.Errorf("row %d has %d features, expected %d", i, len(row), p)
			}

			column[i] = row[j]
		}

		m, err := stats.Mean(column)
		if err != nil {
			return fmt.Errorf("column %d: %w", j, err)
		}

		sd, err := stats.StandardDeviationPopulation(column)
		if err != nil {
			return fmt.Errorf("column %d: %w", j, err)
		}

		if sd == 0 {
			sd = 1
		}

		mean[j], scale[j] = m, sd
	}

	s.Mean, s.Scale = mean, scale

	return nil
}

// Transform returns a scaled copy of X.
func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	if s.Mean == nil {
		return nil, fmt.Errorf("standard scaler is not fitted")
	}

	out := make([][]float64, len(X))

	for i, row := range X {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("row %d has %d features, scaler expects %d", i, len(row), len(s.Mean))
		}

		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Scale[j]
		}

		out[i] = scaled
	}

	return out, nil
}

type scalerState struct {
	Mean  []float64
	Scale []float64
}

// MarshalBinary encodes the fitted state with gob.
func (s *StandardScaler) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer

	state := scalerState{Mean: s.Mean, Scale: s.Scale}
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, fmt.Errorf("encode standard scaler: %w", err)
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary restores a scaler encoded by MarshalBinary.
func (s *StandardScaler) UnmarshalBinary(data []byte) error {
	var state scalerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return fmt.Errorf("decode standard scaler: %w", err)
	}

	s.Mean, s.Scale = state.Mean, state.Scale

	return nil
}
