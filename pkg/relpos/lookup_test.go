package relpos

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relbias/pkg/tensor"
)

func TestLookupTensor_Clipped(t *testing.T) {
	ret, err := LookupTensor(3, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 3}, ret.Shape)

	// Offset +2 exceeds the maximum
	for v := 0; v < 3; v++ {
		assert.Equal(t, float32(0), ret.Get(0, 2, v))
	}
	// Offset +1 maps to the last vocabulary slot
	assert.Equal(t, float32(1), ret.Get(1, 2, 2))
	// Offset -1 maps to the first
	assert.Equal(t, float32(1), ret.Get(2, 1, 0))
}

func TestLookupTensor_RowSums(t *testing.T) {
	tests := []struct {
		length, maxRel int
		clipped        int
	}{
		{length: 3, maxRel: 1, clipped: 2},
		{length: 5, maxRel: 2, clipped: 6},
		{length: 4, maxRel: -1, clipped: 0},
		{length: 4, maxRel: 0, clipped: 12},
	}

	for _, tt := range tests {
		ret, err := LookupTensor(tt.length, tt.maxRel)
		require.NoError(t, err)

		vocab := ret.Shape[2]
		total := float32(0)
		for i := 0; i < tt.length; i++ {
			for x := 0; x < tt.length; x++ {
				sum := float32(0)
				for v := 0; v < vocab; v++ {
					sum += ret.Get(i, x, v)
				}
				assert.True(t, sum == 0 || sum == 1, "row (%d,%d) sums to %f", i, x, sum)
				total += sum
			}
		}
		assert.Equal(t, float32(tt.length*tt.length-tt.clipped), total)
	}
}

func TestLookupTensor_DefaultCoversAll(t *testing.T) {
	ret, err := LookupTensor(4, -1)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4, 7}, ret.Shape)
}

func TestLookupTensor_InvalidLength(t *testing.T) {
	_, err := LookupTensor(0, 1)
	assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
}

func TestReindex(t *testing.T) {
	lookup, err := LookupTensor(3, 1)
	require.NoError(t, err)

	// One 2-d embedding per offset -1, 0, +1
	emb, err := tensor.FromSlice([]float32{
		-1, -10,
		0, 0.5,
		1, 10,
	}, []int{3, 2})
	require.NoError(t, err)

	out, err := Reindex(emb, lookup)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 2}, out.Shape)

	assert.Equal(t, float32(1), out.Get(0, 1, 0))
	assert.Equal(t, float32(10), out.Get(0, 1, 1))
	assert.Equal(t, float32(0.5), out.Get(2, 2, 1))
	assert.Equal(t, float32(-10), out.Get(2, 1, 1))
	// Clipped pair
	assert.Equal(t, float32(0), out.Get(0, 2, 0))
	assert.Equal(t, float32(0), out.Get(0, 2, 1))
}

func TestReindex_ShapeMismatch(t *testing.T) {
	lookup, err := LookupTensor(3, 1)
	require.NoError(t, err)

	_, err = Reindex(tensor.NewTensor([]int{4, 2}), lookup)
	assert.True(t, errors.Is(err, ErrShapeMismatch), "got %v", err)

	_, err = Reindex(tensor.NewTensor([]int{3, 2}), tensor.NewTensor([]int{3, 3}))
	assert.True(t, errors.Is(err, ErrShapeMismatch), "got %v", err)
}
