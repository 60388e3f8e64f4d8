package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relbias/pkg/relpos"
	"relbias/pkg/tensor"
)

func TestTruncNormal_Statistics(t *testing.T) {
	table := tensor.NewTensor([]int{4000, 2})
	require.NoError(t, TruncNormal(table, 0, 0.02, -2, 2, rand.New(rand.NewSource(11))))

	var sum, sumSq float64
	for _, v := range table.Data {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	n := float64(len(table.Data))
	mean := sum / n
	std := math.Sqrt(sumSq/n - mean*mean)

	assert.InDelta(t, 0, mean, 0.002)
	assert.InDelta(t, 0.02, std, 0.002)
}

func TestTruncNormal_Bounds(t *testing.T) {
	table := tensor.NewTensor([]int{2000})
	require.NoError(t, TruncNormal(table, 0, 1, -0.5, 0.25, rand.New(rand.NewSource(2))))

	for _, v := range table.Data {
		assert.GreaterOrEqual(t, v, float32(-0.5))
		assert.LessOrEqual(t, v, float32(0.25))
	}
}

func TestTruncNormal_Deterministic(t *testing.T) {
	a := tensor.NewTensor([]int{32})
	b := tensor.NewTensor([]int{32})
	require.NoError(t, TruncNormal(a, 0, 0.02, -2, 2, rand.New(rand.NewSource(9))))
	require.NoError(t, TruncNormal(b, 0, 0.02, -2, 2, rand.New(rand.NewSource(9))))
	assert.Equal(t, a.Data, b.Data)
}

func TestTruncNormal_Invalid(t *testing.T) {
	table := tensor.NewTensor([]int{4})
	rng := rand.New(rand.NewSource(1))

	err := TruncNormal(table, 0, -1, -2, 2, rng)
	assert.True(t, errors.Is(err, relpos.ErrInvalidConfig), "got %v", err)
	err = TruncNormal(table, 0, 1, 2, -2, rng)
	assert.True(t, errors.Is(err, relpos.ErrInvalidConfig), "got %v", err)
	assert.Error(t, TruncNormal(table, 0, 1, -2, 2, nil))

	require.NoError(t, TruncNormal(table, 3, 0, -2, 2, rng))
	assert.Equal(t, []float32{2, 2, 2, 2}, table.Data)
}
