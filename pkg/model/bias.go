package model

import (
	"log/slog"
	"math/rand"

	"github.com/pkg/errors"

	"relbias/pkg/relpos"
	"relbias/pkg/tensor"
)

// RelPosBias produces the relative position bias of one attention layer.
//
// GetBias is called on every forward pass. It reads buffers cached at
// construction plus the current learned parameters and is safe for
// concurrent use as long as parameters are not updated during the pass.
type RelPosBias interface {
	// GetBias returns the bias matrix of shape (1, num_heads, N, N).
	GetBias() (*tensor.Tensor, error)

	// Forward returns attn + GetBias(). attn must end in (num_heads, N, N);
	// leading axes broadcast. sharedRelPos is accepted for interface
	// compatibility with layers that share precomputed biases and is unused.
	Forward(attn, sharedRelPos *tensor.Tensor) (*tensor.Tensor, error)

	// BiasShape returns (1, num_heads, N, N).
	BiasShape() []int

	// NumHeads returns the number of attention heads.
	NumHeads() int

	// Config returns the configuration the head was built with.
	Config() BiasConfig
}

// Option customizes bias head construction.
type Option func(*options)

type options struct {
	projection Projection
	cache      *relpos.Cache
	rng        *rand.Rand
}

// WithProjection injects the projection used by the MLP variant instead of
// the default two-layer MLP.
func WithProjection(p Projection) Option {
	return func(o *options) { o.projection = p }
}

// WithCache shares index tables and coordinate grids through c.
func WithCache(c *relpos.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithRand sets the random source for initialization and dropout. It
// defaults to one seeded with BiasConfig.Seed.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

func buildOptions(cfg BiasConfig, opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(cfg.Seed))
	}
	return o
}

func (o options) index(q relpos.Window, classToken bool) (*relpos.IndexTable, error) {
	if o.cache != nil {
		return o.cache.Index(q, relpos.Window{}, classToken)
	}
	return relpos.RelativePositionIndex(q, relpos.Window{}, classToken)
}

func (o options) logCoords(win, pretrained relpos.Window, mode relpos.Mode) (*tensor.Tensor, error) {
	if o.cache != nil {
		return o.cache.LogCoords(win, pretrained, mode)
	}
	return relpos.LogCoords(win, pretrained, mode)
}

// NewRelPosBias builds the bias head selected by cfg.Variant.
func NewRelPosBias(cfg BiasConfig, opts ...Option) (RelPosBias, error) {
	switch cfg.Variant {
	case VariantTable:
		return NewTableBias(cfg, opts...)
	case VariantMLP:
		return NewMLPBias(cfg, opts...)
	default:
		return nil, errors.Wrapf(relpos.ErrInvalidConfig, "unknown bias variant %q", cfg.Variant)
	}
}

// gatherBias looks up every entry of the index table in source and returns
// the result as (num_heads, rows, cols).
//
// source must have shape (index.VocabSize, numHeads); anything else is
// reported as ErrShapeMismatch rather than broadcast or truncated.
func gatherBias(source *tensor.Tensor, index *relpos.IndexTable, numHeads int) (*tensor.Tensor, error) {
	if !source.ShapeEquals([]int{index.VocabSize, numHeads}) {
		return nil, errors.Wrapf(relpos.ErrShapeMismatch,
			"bias source has shape %v, index table needs (%d, %d)", source.Shape, index.VocabSize, numHeads)
	}

	gathered, err := source.GatherRows(index.Data)
	if err != nil {
		return nil, errors.WithMessage(relpos.ErrShapeMismatch, err.Error())
	}
	gathered, err = gathered.View([]int{index.Rows, index.Cols, numHeads})
	if err != nil {
		return nil, errors.WithMessage(relpos.ErrShapeMismatch, err.Error())
	}
	return gathered.Permute(2, 0, 1)
}

// finishBias checks the (num_heads, N, N) bias against the declared shape and
// adds the leading batch axis.
func finishBias(bias *tensor.Tensor, shape []int) (*tensor.Tensor, error) {
	if !bias.ShapeEquals(shape[1:]) {
		return nil, errors.Wrapf(relpos.ErrShapeMismatch, "bias has shape %v, want %v", bias.Shape, shape[1:])
	}
	return bias.Unsqueeze(0)
}

// addBiasTo adds the bias of b to attention logits.
func addBiasTo(b RelPosBias, attn *tensor.Tensor) (*tensor.Tensor, error) {
	shape := b.BiasShape()
	rank := len(attn.Shape)
	if rank < 3 || !tensorTailEquals(attn.Shape, shape[1:]) {
		return nil, errors.Wrapf(relpos.ErrShapeMismatch,
			"attention logits of shape %v do not end in %v", attn.Shape, shape[1:])
	}

	bias, err := b.GetBias()
	if err != nil {
		return nil, err
	}
	return tensor.Add(attn, bias)
}

func tensorTailEquals(shape, tail []int) bool {
	if len(shape) < len(tail) {
		return false
	}
	off := len(shape) - len(tail)
	for i, d := range tail {
		if shape[off+i] != d {
			return false
		}
	}
	return true
}

func logConstruction(cfg BiasConfig, vocab int) {
	slog.Debug("relative position bias",
		slog.String("variant", string(cfg.Variant)),
		slog.String("window", cfg.Window.String()),
		slog.Int("heads", cfg.NumHeads),
		slog.Int("prefix_tokens", cfg.PrefixTokens),
		slog.Int("vocab", vocab))
}
