package preprocess

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardScaler_Fit(t *testing.T) {
	tests := []struct {
		name      string
		data      [][]float64
		wantMean  []float64
		wantScale []float64
		wantErr   bool
	}{
		{
			name:    "empty data",
			data:    [][]float64{},
			wantErr: true,
		},
		{
			name:    "ragged rows",
			data:    [][]float64{{1, 2}, {3}},
			wantErr: true,
		},
		{
			name:      "two columns",
			data:      [][]float64{{1, 10}, {3, 10}},
			wantMean:  []float64{2, 10},
			wantScale: []float64{1, 1},
		},
		{
			name:      "population std",
			data:      [][]float64{{2}, {4}, {4}, {4}, {5}, {5}, {7}, {9}},
			wantMean:  []float64{5},
			wantScale: []float64{2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s StandardScaler
			err := s.Fit(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, s.Fitted())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMean, s.Mean)
			assert.Equal(t, tt.wantScale, s.Scale)
		})
	}
}

func TestStandardScaler_Transform(t *testing.T) {
	var s StandardScaler
	out, err := s.FitTransform([][]float64{{1, 5}, {3, 5}, {5, 5}})
	require.NoError(t, err)

	var colSum float64
	for _, row := range out {
		colSum += row[0]
		assert.Equal(t, 0.0, row[1], "constant column maps to zero")
	}
	assert.InDelta(t, 0, colSum, 1e-12)
	assert.InDelta(t, -math.Sqrt(1.5), out[0][0], 1e-12)

	t.Run("width mismatch", func(t *testing.T) {
		_, err := s.Transform([][]float64{{1}})
		assert.Error(t, err)
	})

	t.Run("not fitted", func(t *testing.T) {
		var empty StandardScaler
		_, err := empty.Transform([][]float64{{1}})
		assert.Error(t, err)
	})

	t.Run("transform does not refit", func(t *testing.T) {
		before := append([]float64(nil), s.Mean...)
		_, err := s.Transform([][]float64{{100, 100}})
		require.NoError(t, err)
		assert.Equal(t, before, s.Mean)
	})
}
