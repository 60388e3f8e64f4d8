package relpos

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"relbias/pkg/tensor"
)

// LookupTensor builds a one-hot tensor that re-indexes relative position
// embeddings along one dimension:
//
//	ret[i, x, v] = 1  iff  v == x - i + maxRelativePosition
//
// The shape is (length, length, 2*maxRelativePosition+1). Pairs farther apart
// than maxRelativePosition are clipped: their vocabulary slice stays zero. A
// negative maxRelativePosition selects length-1, which covers every offset.
func LookupTensor(length, maxRelativePosition int) (*tensor.Tensor, error) {
	if length <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "lookup length must be positive, got %d", length)
	}
	if maxRelativePosition < 0 {
		maxRelativePosition = length - 1
	}

	vocab := 2*maxRelativePosition + 1
	ret := tensor.NewTensor([]int{length, length, vocab})
	for i := 0; i < length; i++ {
		for x := 0; x < length; x++ {
			d := x - i
			if d > maxRelativePosition || -d > maxRelativePosition {
				continue
			}
			ret.Data[(i*length+x)*vocab+d+maxRelativePosition] = 1
		}
	}
	return ret, nil
}

// Reindex expands per-offset embeddings of shape (vocab, dim) into per-pair
// embeddings of shape (length, length, dim) by multiplying with a lookup
// tensor from LookupTensor. Clipped pairs receive zero vectors.
//
// This is the matrix-multiply counterpart of gathering with an index table.
func Reindex(embeddings, lookup *tensor.Tensor) (*tensor.Tensor, error) {
	if len(lookup.Shape) != 3 || lookup.Shape[0] != lookup.Shape[1] {
		return nil, errors.Wrapf(ErrShapeMismatch, "lookup tensor must have shape (L, L, V), got %v", lookup.Shape)
	}
	length, vocab := lookup.Shape[0], lookup.Shape[2]
	if len(embeddings.Shape) != 2 || embeddings.Shape[0] != vocab || embeddings.Shape[1] == 0 {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"embeddings must have shape (%d, D), got %v", vocab, embeddings.Shape)
	}
	dim := embeddings.Shape[1]

	oneHot := mat.NewDense(length*length, vocab, toFloat64(lookup.Data))
	emb := mat.NewDense(vocab, dim, toFloat64(embeddings.Data))
	var out mat.Dense
	out.Mul(oneHot, emb)

	result := tensor.NewTensor([]int{length, length, dim})
	for i, v := range out.RawMatrix().Data {
		result.Data[i] = float32(v)
	}
	return result, nil
}

func toFloat64(data []float32) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}
