package tensor

import "math"

// ReLU applies the rectified linear unit element-wise.
//
// Input: tensor of any shape
// Output: tensor of the same shape with max(0, x) applied element-wise
func (t *Tensor) ReLU() *Tensor {
	result := NewTensor(t.Shape)
	for i, x := range t.Data {
		if x > 0 {
			result.Data[i] = x
		}
	}
	return result
}

// Sigmoid applies the logistic function element-wise.
//
// The function is defined as:
//
//	sigmoid(x) = 1 / (1 + exp(-x))
//
// Outputs lie in the open interval (0, 1), which bounds any gain applied
// afterwards.
func (t *Tensor) Sigmoid() *Tensor {
	result := NewTensor(t.Shape)
	for i, x := range t.Data {
		result.Data[i] = float32(1.0 / (1.0 + math.Exp(-float64(x))))
	}
	return result
}

// Identity returns a copy of the tensor unchanged.
// It stands in for an activation when none is configured.
func (t *Tensor) Identity() *Tensor {
	return t.Clone()
}
