package model

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"relbias/pkg/tensor"
)

func TestNewMLP(t *testing.T) {
	m, err := NewMLP(2, 16, 3, [2]bool{true, false}, [2]float32{0.125, 0}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, 2, m.InFeatures())
	assert.Equal(t, 3, m.OutFeatures())
	assert.Len(t, m.B1, 16)
	assert.Nil(t, m.B2)

	// U(-1/sqrt(2), 1/sqrt(2)) for the first layer
	r, c := m.FC1.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.LessOrEqual(t, m.FC1.At(i, j), 0.7072)
			assert.GreaterOrEqual(t, m.FC1.At(i, j), -0.7072)
		}
	}

	_, err = NewMLP(0, 16, 3, [2]bool{}, [2]float32{}, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
	_, err = NewMLP(2, 16, 3, [2]bool{}, [2]float32{}, nil)
	assert.Error(t, err)
}

func TestMLP_ForwardManual(t *testing.T) {
	// 2 -> 2 -> 1 with hand-set weights
	m := &MLP{
		FC1: mat.NewDense(2, 2, []float64{
			1, -1,
			2, 1,
		}),
		B1:  []float64{0, -1},
		FC2: mat.NewDense(2, 1, []float64{1, 3}),
		B2:  []float64{0.5},
	}

	x, _ := tensor.FromSlice([]float32{
		1, 1,
		-1, 0,
	}, []int{2, 2})
	out, err := m.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, out.Shape)

	// row 0: h = (3, -1) -> relu (3, 0) -> 3 + 0.5
	// row 1: h = (-1, 0) -> relu (0, 0) -> 0.5
	assert.InDelta(t, 3.5, out.Data[0], 1e-6)
	assert.InDelta(t, 0.5, out.Data[1], 1e-6)
}

func TestMLP_ForwardKeepsLeadingAxes(t *testing.T) {
	m, err := NewMLP(2, 8, 4, [2]bool{true, true}, [2]float32{}, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	out, err := m.Forward(tensor.NewTensor([]int{3, 5, 2}))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 4}, out.Shape)

	_, err = m.Forward(tensor.NewTensor([]int{3, 5, 3}))
	assert.Error(t, err)
}

func TestMLP_DropoutOnlyWhileTraining(t *testing.T) {
	m, err := NewMLP(2, 64, 4, [2]bool{true, true}, [2]float32{0.5, 0}, rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	x := tensor.NewTensor([]int{9, 2})
	for i := range x.Data {
		x.Data[i] = float32(i%5) - 2
	}

	eval1, err := m.Forward(x)
	require.NoError(t, err)
	eval2, err := m.Forward(x)
	require.NoError(t, err)
	assert.True(t, eval1.Equals(eval2, 0), "inference must be deterministic")

	m.SetTraining(true)
	train, err := m.Forward(x)
	require.NoError(t, err)
	assert.False(t, train.Equals(eval1, 1e-6), "dropout should perturb the output while training")
}
