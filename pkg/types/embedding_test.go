package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical unit vectors score 1", func(t *testing.T) {
		u := []float64{1, 0}
		assert.InDelta(t, 1.0, CosineSimilarity(u, u, Magnitude(u), Magnitude(u)), 1e-12)
	})

	t.Run("orthogonal vectors score 0", func(t *testing.T) {
		u := []float64{1, 0}
		v := []float64{0, 1}
		assert.InDelta(t, 0.0, CosineSimilarity(u, v, Magnitude(u), Magnitude(v)), 1e-12)
	})

	t.Run("zero vector scores 0 with anything", func(t *testing.T) {
		zero := []float64{0, 0}
		v := []float64{3, 4}
		assert.Equal(t, 0.0, CosineSimilarity(zero, v, Magnitude(zero), Magnitude(v)))
	})

	t.Run("opposite vectors score -1", func(t *testing.T) {
		u := []float64{1, 0}
		v := []float64{-1, 0}
		assert.InDelta(t, -1.0, CosineSimilarity(u, v, Magnitude(u), Magnitude(v)), 1e-12)
	})

	t.Run("length mismatch scores 0", func(t *testing.T) {
		u := []float64{1, 0}
		v := []float64{1, 0, 0}
		assert.Equal(t, 0.0, CosineSimilarity(u, v, Magnitude(u), Magnitude(v)))
	})
}

func TestMagnitude(t *testing.T) {
	assert.InDelta(t, 5.0, Magnitude([]float64{3, 4}), 1e-12)
	assert.Equal(t, 0.0, Magnitude(nil))
}
