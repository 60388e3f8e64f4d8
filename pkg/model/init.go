package model

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"relbias/pkg/relpos"
	"relbias/pkg/tensor"
)

// TruncNormal fills t in place with samples from a normal distribution with
// the given mean and std, truncated to the absolute interval [a, b].
//
// Samples are drawn by inverse transform: a uniform value between the normal
// CDF at a and at b is mapped back through the quantile function, so no
// sample is ever rejected.
func TruncNormal(t *tensor.Tensor, mean, std, a, b float64, rng *rand.Rand) error {
	if std < 0 || a >= b {
		return errors.Wrapf(relpos.ErrInvalidConfig, "invalid truncated normal: std=%g bounds=[%g, %g]", std, a, b)
	}
	if rng == nil {
		return errors.New("truncated normal needs a random source")
	}
	if std == 0 {
		v := float32(math.Min(math.Max(mean, a), b))
		for i := range t.Data {
			t.Data[i] = v
		}
		return nil
	}

	norm := distuv.Normal{Mu: mean, Sigma: std}
	lo, hi := norm.CDF(a), norm.CDF(b)
	for i := range t.Data {
		p := lo + (hi-lo)*rng.Float64()
		// Keep p inside (0, 1) where the quantile is finite.
		p = math.Min(math.Max(p, math.SmallestNonzeroFloat64), 1-1e-16)
		x := norm.Quantile(p)
		t.Data[i] = float32(math.Min(math.Max(x, a), b))
	}
	return nil
}
