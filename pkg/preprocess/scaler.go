// Package preprocess provides feature scaling fitted on training data.
package preprocess

import (
	"math"

	"github.com/rotisserie/eris"
)

// StandardScaler standardizes each column to zero mean and unit variance.
// Fields are exported so the fitted parameters can be persisted.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Fit computes per-column mean and population standard deviation. Constant columns
// get a scale of 1 so they transform to 0 instead of NaN.
func (s *StandardScaler) Fit(data [][]float64) error {
	if len(data) == 0 {
		return eris.New("preprocess: empty data")
	}
	nFeatures := len(data[0])
	n := float64(len(data))

	mean := make([]float64, nFeatures)
	for i, row := range data {
		if len(row) != nFeatures {
			return eris.Errorf("preprocess: row %d has %d features, want %d", i, len(row), nFeatures)
		}
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= n
	}

	scale := make([]float64, nFeatures)
	for _, row := range data {
		for j, v := range row {
			d := v - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / n)
		if scale[j] == 0 || math.IsNaN(scale[j]) {
			scale[j] = 1
		}
	}

	s.Mean = mean
	s.Scale = scale
	return nil
}

// Fitted reports whether the scaler carries parameters.
func (s *StandardScaler) Fitted() bool {
	return s != nil && len(s.Mean) > 0 && len(s.Mean) == len(s.Scale)
}

// Width returns the number of columns the scaler was fitted on.
func (s *StandardScaler) Width() int {
	if s == nil {
		return 0
	}
	return len(s.Mean)
}

// Transform returns a scaled copy of data using the fitted parameters.
func (s *StandardScaler) Transform(data [][]float64) ([][]float64, error) {
	if !s.Fitted() {
		return nil, eris.New("preprocess: scaler not fitted")
	}
	out := make([][]float64, len(data))
	for i, row := range data {
		if len(row) != len(s.Mean) {
			return nil, eris.Errorf("preprocess: row %d has %d features, want %d", i, len(row), len(s.Mean))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// FitTransform fits on data and returns the scaled copy.
func (s *StandardScaler) FitTransform(data [][]float64) ([][]float64, error) {
	if err := s.Fit(data); err != nil {
		return nil, err
	}
	return s.Transform(data)
}
