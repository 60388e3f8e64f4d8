// Package tensor provides the dense array operations used to build and
// gather relative position biases.
// This is a simplified implementation focused on the needs of attention bias heads.
package tensor

import (
	"fmt"
	"math"
	"strings"
)

// Tensor represents a multi-dimensional array of float32 values.
// It stores data in a flat slice with shape information for indexing.
type Tensor struct {
	Data    []float32 // Flattened data storage
	Shape   []int     // Dimensions (e.g., [batch, heads, query, key])
	Strides []int     // Precomputed strides for indexing
}

// NewTensor creates a new tensor with the given shape, initialized to zeros.
func NewTensor(shape []int) *Tensor {
	return &Tensor{
		Data:    make([]float32, numElements(shape)),
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}
}

// FromSlice creates a tensor from existing data with the given shape.
// Returns an error if data size doesn't match the shape.
func FromSlice(data []float32, shape []int) (*Tensor, error) {
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
	}
	expectedSize := numElements(shape)
	if len(data) != expectedSize {
		return nil, fmt.Errorf("data size %d does not match shape %v (expected %d elements)",
			len(data), shape, expectedSize)
	}

	dataCopy := make([]float32, len(data))
	copy(dataCopy, data)

	return &Tensor{
		Data:    dataCopy,
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}, nil
}

// View returns a new tensor with a different shape but sharing the same underlying data.
// Returns an error if total size doesn't match.
func (t *Tensor) View(newShape []int) (*Tensor, error) {
	for _, dim := range newShape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, newShape)
		}
	}
	if newSize := numElements(newShape); newSize != len(t.Data) {
		return nil, fmt.Errorf("cannot view tensor of size %d as shape %v (total size %d)",
			len(t.Data), newShape, newSize)
	}

	return &Tensor{
		Data:    t.Data,
		Shape:   copyShape(newShape),
		Strides: computeStrides(newShape),
	}, nil
}

// Unsqueeze inserts a dimension of size 1 at position dim.
// The result shares the underlying data.
func (t *Tensor) Unsqueeze(dim int) (*Tensor, error) {
	if dim < 0 || dim > len(t.Shape) {
		return nil, fmt.Errorf("invalid unsqueeze dimension %d for tensor with %d dimensions", dim, len(t.Shape))
	}
	newShape := make([]int, 0, len(t.Shape)+1)
	newShape = append(newShape, t.Shape[:dim]...)
	newShape = append(newShape, 1)
	newShape = append(newShape, t.Shape[dim:]...)
	return t.View(newShape)
}

// Permute reorders the dimensions of the tensor and returns a contiguous copy.
//
// dims must be a permutation of [0, len(t.Shape)). Output dimension i is input
// dimension dims[i], so Permute(2, 0, 1) turns (a, b, c) into (c, a, b).
func (t *Tensor) Permute(dims ...int) (*Tensor, error) {
	rank := len(t.Shape)
	if len(dims) != rank {
		return nil, fmt.Errorf("permute expects %d dimensions, got %v", rank, dims)
	}
	seen := make([]bool, rank)
	newShape := make([]int, rank)
	for i, d := range dims {
		if d < 0 || d >= rank || seen[d] {
			return nil, fmt.Errorf("invalid permutation %v for tensor with %d dimensions", dims, rank)
		}
		seen[d] = true
		newShape[i] = t.Shape[d]
	}

	result := NewTensor(newShape)
	if len(t.Data) == 0 {
		return result, nil
	}

	// Walk the output in row-major order, advancing the source offset by the
	// permuted source strides.
	srcStrides := make([]int, rank)
	for i, d := range dims {
		srcStrides[i] = t.Strides[d]
	}
	indices := make([]int, rank)
	srcIdx := 0
	for dstIdx := range result.Data {
		result.Data[dstIdx] = t.Data[srcIdx]
		for i := rank - 1; i >= 0; i-- {
			indices[i]++
			srcIdx += srcStrides[i]
			if indices[i] < newShape[i] {
				break
			}
			srcIdx -= indices[i] * srcStrides[i]
			indices[i] = 0
		}
	}

	return result, nil
}

// GatherRows selects rows of a 2D tensor.
//
// Input shape: (rows, cols)
// Output shape: (len(indices), cols)
//
// Every index must lie in [0, rows); out-of-range indices are an error rather
// than being clamped.
func (t *Tensor) GatherRows(indices []int) (*Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("gather expects a 2D tensor, got shape %v", t.Shape)
	}
	rows, cols := t.Shape[0], t.Shape[1]

	result := NewTensor([]int{len(indices), cols})
	for i, idx := range indices {
		if idx < 0 || idx >= rows {
			return nil, fmt.Errorf("gather index %d at position %d out of range [0, %d)", idx, i, rows)
		}
		copy(result.Data[i*cols:(i+1)*cols], t.Data[idx*cols:(idx+1)*cols])
	}
	return result, nil
}

// PadLeading zero-pads the last two dimensions by n on the low side.
// A tensor of shape (..., r, c) becomes (..., r+n, c+n) with the input
// values in the bottom-right block.
func (t *Tensor) PadLeading(n int) (*Tensor, error) {
	if n < 0 {
		return nil, fmt.Errorf("padding must be non-negative, got %d", n)
	}
	if len(t.Shape) < 2 {
		return nil, fmt.Errorf("padding needs at least 2 dimensions, got shape %v", t.Shape)
	}
	if n == 0 {
		return t.Clone(), nil
	}

	rank := len(t.Shape)
	rows, cols := t.Shape[rank-2], t.Shape[rank-1]
	newShape := copyShape(t.Shape)
	newShape[rank-2] += n
	newShape[rank-1] += n
	result := NewTensor(newShape)

	outer := numElements(t.Shape[:rank-2])
	newCols := cols + n
	for o := 0; o < outer; o++ {
		src := o * rows * cols
		dst := o * (rows + n) * newCols
		for r := 0; r < rows; r++ {
			start := dst + (r+n)*newCols + n
			copy(result.Data[start:start+cols], t.Data[src+r*cols:src+(r+1)*cols])
		}
	}
	return result, nil
}

// Size returns the total number of elements in the tensor.
func (t *Tensor) Size() int {
	return numElements(t.Shape)
}

// FlatIndex converts multi-dimensional indices to a flat index.
func (t *Tensor) FlatIndex(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("indices length %d does not match shape dimensions %d",
			len(indices), len(t.Shape)))
	}

	idx := 0
	for i := 0; i < len(t.Shape); i++ {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d with size %d",
				indices[i], i, t.Shape[i]))
		}
		idx += indices[i] * t.Strides[i]
	}
	return idx
}

// Get retrieves a value at the specified indices.
func (t *Tensor) Get(indices ...int) float32 {
	return t.Data[t.FlatIndex(indices)]
}

// Set sets a value at the specified indices.
func (t *Tensor) Set(value float32, indices ...int) {
	t.Data[t.FlatIndex(indices)] = value
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	dataCopy := make([]float32, len(t.Data))
	copy(dataCopy, t.Data)
	return &Tensor{
		Data:    dataCopy,
		Shape:   copyShape(t.Shape),
		Strides: computeStrides(t.Shape),
	}
}

// ShapeEquals checks if the tensor has exactly the given shape.
func (t *Tensor) ShapeEquals(shape []int) bool {
	if len(t.Shape) != len(shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != shape[i] {
			return false
		}
	}
	return true
}

// Equals checks if two tensors have the same shape and approximately equal values.
func (t *Tensor) Equals(other *Tensor, tolerance float32) bool {
	if !t.ShapeEquals(other.Shape) {
		return false
	}
	for i := range t.Data {
		if math.Abs(float64(t.Data[i]-other.Data[i])) > float64(tolerance) {
			return false
		}
	}
	return true
}

// Scale multiplies all elements by a scalar.
func (t *Tensor) Scale(s float32) *Tensor {
	result := NewTensor(t.Shape)
	for i := range t.Data {
		result.Data[i] = t.Data[i] * s
	}
	return result
}

// Add performs element-wise addition with broadcasting.
func Add(a, b *Tensor) (*Tensor, error) {
	outShape, err := broadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, fmt.Errorf("cannot broadcast shapes %v and %v: %w", a.Shape, b.Shape, err)
	}

	result := NewTensor(outShape)
	if len(result.Data) == 0 {
		return result, nil
	}

	aStrides := broadcastStrides(a.Shape, outShape)
	bStrides := broadcastStrides(b.Shape, outShape)
	indices := make([]int, len(outShape))
	aIdx, bIdx := 0, 0
	for i := range result.Data {
		result.Data[i] = a.Data[aIdx] + b.Data[bIdx]
		for d := len(outShape) - 1; d >= 0; d-- {
			indices[d]++
			aIdx += aStrides[d]
			bIdx += bStrides[d]
			if indices[d] < outShape[d] {
				break
			}
			aIdx -= indices[d] * aStrides[d]
			bIdx -= indices[d] * bStrides[d]
			indices[d] = 0
		}
	}
	return result, nil
}

// broadcastShapes computes the broadcasted shape of two shapes
func broadcastShapes(a, b []int) ([]int, error) {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}

	result := make([]int, maxLen)
	for i := 0; i < maxLen; i++ {
		dimA := 1
		if i < len(a) {
			dimA = a[len(a)-1-i]
		}
		dimB := 1
		if i < len(b) {
			dimB = b[len(b)-1-i]
		}

		if dimA != dimB && dimA != 1 && dimB != 1 {
			return nil, fmt.Errorf("incompatible dimensions %d and %d", dimA, dimB)
		}

		if dimA > dimB {
			result[maxLen-1-i] = dimA
		} else {
			result[maxLen-1-i] = dimB
		}
	}

	return result, nil
}

// broadcastStrides returns strides of inShape aligned to outShape, with zero
// strides on broadcast dimensions.
func broadcastStrides(inShape, outShape []int) []int {
	inStrides := computeStrides(inShape)
	result := make([]int, len(outShape))
	diff := len(outShape) - len(inShape)
	for i := range inShape {
		if inShape[i] != 1 {
			result[i+diff] = inStrides[i]
		}
	}
	return result
}

// String returns a string representation of the tensor.
func (t *Tensor) String() string {
	var sb strings.Builder
	sb.WriteString("Tensor[")
	for i, dim := range t.Shape {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%d", dim))
	}
	sb.WriteString("]")

	if len(t.Data) == 0 {
		return sb.String()
	}
	sb.WriteString(": ")
	sb.WriteString(formatData(t.Shape, t.Data, 0))

	return sb.String()
}

// formatData recursively formats tensor data
func formatData(shape []int, data []float32, offset int) string {
	if len(shape) == 0 {
		return fmt.Sprintf("%g", data[offset])
	}

	var sb strings.Builder
	sb.WriteString("[")
	if len(shape) == 1 {
		for i := 0; i < shape[0] && i < 6; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%g", data[offset+i]))
		}
		if shape[0] > 6 {
			sb.WriteString(", ...")
		}
		sb.WriteString("]")
		return sb.String()
	}

	subSize := numElements(shape[1:])
	for i := 0; i < shape[0] && i < 3; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(formatData(shape[1:], data, offset+i*subSize))
	}
	if shape[0] > 3 {
		sb.WriteString(", ...")
	}
	sb.WriteString("]")
	return sb.String()
}

func numElements(shape []int) int {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return size
}

func computeStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

// copyShape creates a copy of a shape slice
func copyShape(shape []int) []int {
	result := make([]int, len(shape))
	copy(result, shape)
	return result
}
