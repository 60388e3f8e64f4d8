package tensor

import (
	"fmt"

	"github.com/x448/float16"
)

// Float16 converts the tensor data to IEEE 754 half precision, in the same
// row-major order as Data. Values outside the float16 range become ±Inf.
func (t *Tensor) Float16() []float16.Float16 {
	out := make([]float16.Float16, len(t.Data))
	for i, v := range t.Data {
		out[i] = float16.Fromfloat32(v)
	}
	return out
}

// FromFloat16 builds a float32 tensor from half-precision values.
func FromFloat16(data []float16.Float16, shape []int) (*Tensor, error) {
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
	}
	if len(data) != numElements(shape) {
		return nil, fmt.Errorf("data size %d does not match shape %v (expected %d elements)",
			len(data), shape, numElements(shape))
	}
	t := NewTensor(shape)
	for i, h := range data {
		t.Data[i] = h.Float32()
	}
	return t, nil
}
