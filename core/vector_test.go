package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		expected []float32
	}{
		{"unit vector unchanged", []float32{1, 0, 0}, []float32{1, 0, 0}},
		{"three four five", []float32{3, 4}, []float32{0.6, 0.8}},
		{"negative values", []float32{-1, 1}, []float32{-1 / float32(math.Sqrt2), 1 / float32(math.Sqrt2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeVector(tt.input)
			require.Len(t, got, len(tt.expected))
			var sum float64
			for i := range got {
				assert.InDelta(t, tt.expected[i], got[i], 1e-6)
				sum += float64(got[i]) * float64(got[i])
			}
			assert.InDelta(t, 1.0, sum, 1e-6)
		})
	}

	t.Run("input untouched", func(t *testing.T) {
		in := []float32{3, 4}
		NormalizeVector(in)
		assert.Equal(t, []float32{3, 4}, in)
	})

	t.Run("zero and empty", func(t *testing.T) {
		assert.Equal(t, []float32{0, 0}, NormalizeVector([]float32{0, 0}))
		assert.Empty(t, NormalizeVector(nil))
	})
}
