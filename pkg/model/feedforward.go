package model

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"relbias/pkg/tensor"
)

// Projection maps the trailing feature axis of its input from InFeatures()
// to OutFeatures() values; all leading axes are kept.
//
// The MLP bias head uses it as an opaque function R^2 -> R^num_heads applied
// to every cell of the log-coordinate grid.
type Projection interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	InFeatures() int
	OutFeatures() int
}

// MLP implements the two-layer projection used by the MLP bias head.
//
// Architecture:
//  1. Linear projection: x @ FC1 (+ B1) -> (..., hidden)
//  2. ReLU activation
//  3. Dropout(Dropout[0])
//  4. Linear projection: @ FC2 (+ B2) -> (..., out)
//  5. Dropout(Dropout[1])
//
// A nil bias vector disables that layer's bias. Dropout is only applied
// while Training is set.
type MLP struct {
	FC1 *mat.Dense // (in, hidden)
	B1  []float64  // (hidden) or nil
	FC2 *mat.Dense // (hidden, out)
	B2  []float64  // (out) or nil

	Dropout  [2]float32
	Training bool

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewMLP creates a projection with weights and biases drawn from
// U(-1/sqrt(fan_in), 1/sqrt(fan_in)).
//
// Parameters:
//   - in, hidden, out: layer widths
//   - bias: whether the first and second layer have a bias vector
//   - dropout: dropout rates after the first and second layer
//   - rng: source for initialization and dropout
func NewMLP(in, hidden, out int, bias [2]bool, dropout [2]float32, rng *rand.Rand) (*MLP, error) {
	if in <= 0 || hidden <= 0 || out <= 0 {
		return nil, fmt.Errorf("mlp widths must be positive, got %d -> %d -> %d", in, hidden, out)
	}
	if rng == nil {
		return nil, fmt.Errorf("mlp needs a random source")
	}

	m := &MLP{
		FC1:     mat.NewDense(in, hidden, uniform(in*hidden, in, rng)),
		FC2:     mat.NewDense(hidden, out, uniform(hidden*out, hidden, rng)),
		Dropout: dropout,
		rng:     rng,
	}
	if bias[0] {
		m.B1 = uniform(hidden, in, rng)
	}
	if bias[1] {
		m.B2 = uniform(out, hidden, rng)
	}
	return m, nil
}

// uniform returns n samples from U(-1/sqrt(fanIn), 1/sqrt(fanIn)).
func uniform(n, fanIn int, rng *rand.Rand) []float64 {
	bound := 1 / math.Sqrt(float64(fanIn))
	out := make([]float64, n)
	for i := range out {
		out[i] = (2*rng.Float64() - 1) * bound
	}
	return out
}

// InFeatures returns the input width.
func (m *MLP) InFeatures() int {
	r, _ := m.FC1.Dims()
	return r
}

// OutFeatures returns the output width.
func (m *MLP) OutFeatures() int {
	_, c := m.FC2.Dims()
	return c
}

// SetTraining enables or disables dropout.
func (m *MLP) SetTraining(training bool) {
	m.Training = training
}

// Forward computes the projection.
//
// Input shape: (..., in)
// Output shape: (..., out)
func (m *MLP) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) < 1 {
		return nil, fmt.Errorf("expected at least 1D input, got a scalar")
	}
	in, hidden := m.FC1.Dims()
	if lastDim := x.Shape[len(x.Shape)-1]; lastDim != in {
		return nil, fmt.Errorf("input dimension %d doesn't match FC1 input dimension %d", lastDim, in)
	}
	if r, _ := m.FC2.Dims(); r != hidden {
		return nil, fmt.Errorf("FC2 input dimension %d doesn't match FC1 output dimension %d", r, hidden)
	}
	rows := x.Size() / in
	if rows == 0 {
		return nil, fmt.Errorf("empty input of shape %v", x.Shape)
	}

	// Step 1: first linear projection
	input := mat.NewDense(rows, in, toFloat64(x.Data))
	var h mat.Dense
	h.Mul(input, m.FC1)
	addBias(&h, m.B1)

	// Steps 2-3: ReLU, then dropout
	act, err := m.dropout(fromDense(&h).ReLU(), m.Dropout[0])
	if err != nil {
		return nil, fmt.Errorf("failed to apply hidden dropout: %w", err)
	}

	// Step 4: second linear projection
	var o mat.Dense
	o.Mul(mat.NewDense(rows, hidden, toFloat64(act.Data)), m.FC2)
	addBias(&o, m.B2)

	// Step 5: output dropout
	output, err := m.dropout(fromDense(&o), m.Dropout[1])
	if err != nil {
		return nil, fmt.Errorf("failed to apply output dropout: %w", err)
	}

	outShape := append([]int{}, x.Shape[:len(x.Shape)-1]...)
	outShape = append(outShape, m.OutFeatures())
	return output.View(outShape)
}

func (m *MLP) dropout(t *tensor.Tensor, p float32) (*tensor.Tensor, error) {
	if !m.Training || p == 0 {
		return t, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return t.Dropout(p, true, m.rng)
}

// addBias adds b to every row of d. A nil b is a no-op.
func addBias(d *mat.Dense, b []float64) {
	if b == nil {
		return
	}
	d.Apply(func(_, j int, v float64) float64 {
		return v + b[j]
	}, d)
}

func fromDense(d *mat.Dense) *tensor.Tensor {
	r, c := d.Dims()
	t := tensor.NewTensor([]int{r, c})
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			t.Data[i*c+j] = float32(d.At(i, j))
		}
	}
	return t
}

func toFloat64(data []float32) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}
