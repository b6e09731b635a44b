package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-6)

	sim, err = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-6)

	sim, err = CosineSimilarity([]float32{1, 1}, []float32{-1, -1})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, sim, 1e-6)

	sim, err = CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Zero(t, sim)
}

func TestCosineSimilarityErrors(t *testing.T) {
	_, err := CosineSimilarity(nil, []float32{1})
	assert.ErrorIs(t, err, ErrEmptyVector)

	_, err = CosineSimilarity([]float32{1, 2}, []float32{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
