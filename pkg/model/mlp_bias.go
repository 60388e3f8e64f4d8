package model

import (
	"github.com/pkg/errors"

	"relbias/pkg/relpos"
	"relbias/pkg/tensor"
)

// MLPBias is the continuous bias head: a projection network evaluated on the
// log-scaled offset grid, gathered by the relative position index.
//
// In swin mode the result is squashed with 16*sigmoid(x); in cr mode it is
// used as is. Prefix-token interactions get zero bias: the bias matrix is
// zero-padded on the low side rather than given learned classes like the
// table variant.
type MLPBias struct {
	// Proj maps each (Δrow, Δcol) log coordinate to num_heads values.
	Proj Projection

	cfg    BiasConfig
	act    func(*tensor.Tensor) *tensor.Tensor
	coords *tensor.Tensor
	index  *relpos.IndexTable
	shape  []int
}

// NewMLPBias builds an MLP bias head. Without WithProjection it creates the
// default MLP 2 -> cfg.HiddenDim -> cfg.NumHeads with ReLU and cfg.Dropout;
// swin mode drops the output layer's bias.
func NewMLPBias(cfg BiasConfig, opts ...Option) (*MLPBias, error) {
	cfg.Variant = VariantMLP
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(cfg, opts)

	// The index never carries class-token classes here; prefix tokens are
	// handled by padding.
	index, err := o.index(cfg.Window, false)
	if err != nil {
		return nil, err
	}
	coords, err := o.logCoords(cfg.Window, cfg.PretrainedWindow, cfg.Mode)
	if err != nil {
		return nil, err
	}

	proj := o.projection
	if proj == nil {
		bias := [2]bool{true, cfg.Mode != relpos.ModeSwin}
		proj, err = NewMLP(2, cfg.HiddenDim, cfg.NumHeads, bias, cfg.Dropout, o.rng)
		if err != nil {
			return nil, errors.WithMessage(relpos.ErrInvalidConfig, err.Error())
		}
	}
	if proj.InFeatures() != 2 || proj.OutFeatures() != cfg.NumHeads {
		return nil, errors.Wrapf(relpos.ErrShapeMismatch,
			"projection maps %d -> %d features, need 2 -> %d", proj.InFeatures(), proj.OutFeatures(), cfg.NumHeads)
	}

	b := &MLPBias{
		Proj:   proj,
		cfg:    cfg,
		act:    biasActivation(cfg.Mode),
		coords: coords,
		index:  index,
		shape:  cfg.BiasShape(),
	}
	logConstruction(cfg, index.VocabSize)
	return b, nil
}

// biasActivation returns the function applied to gathered MLP outputs:
// 16*sigmoid(x) in swin mode, the identity in cr mode.
func biasActivation(mode relpos.Mode) func(*tensor.Tensor) *tensor.Tensor {
	if mode == relpos.ModeSwin {
		return func(t *tensor.Tensor) *tensor.Tensor {
			return t.Sigmoid().Scale(swinGain)
		}
	}
	return (*tensor.Tensor).Identity
}

// SetTraining switches dropout in the projection on or off, when the
// projection supports it.
func (b *MLPBias) SetTraining(training bool) {
	if t, ok := b.Proj.(interface{ SetTraining(bool) }); ok {
		t.SetTraining(training)
	}
}

// GetBias evaluates the projection on the log-coordinate grid, gathers it by
// the cached index and returns (1, num_heads, N, N).
func (b *MLPBias) GetBias() (*tensor.Tensor, error) {
	heads := b.cfg.NumHeads
	out, err := b.Proj.Forward(b.coords)
	if err != nil {
		return nil, errors.Wrap(err, "relative position projection")
	}
	want := []int{b.coords.Shape[0], b.coords.Shape[1], heads}
	if !out.ShapeEquals(want) {
		return nil, errors.Wrapf(relpos.ErrShapeMismatch, "projection output has shape %v, want %v", out.Shape, want)
	}
	flat, err := out.View([]int{want[0] * want[1], heads})
	if err != nil {
		return nil, errors.WithMessage(relpos.ErrShapeMismatch, err.Error())
	}

	bias, err := gatherBias(flat, b.index, heads)
	if err != nil {
		return nil, err
	}
	bias = b.act(bias)
	if b.cfg.PrefixTokens > 0 {
		if bias, err = bias.PadLeading(b.cfg.PrefixTokens); err != nil {
			return nil, err
		}
	}
	return finishBias(bias, b.shape)
}

// Forward adds the bias to attention logits.
func (b *MLPBias) Forward(attn, _ *tensor.Tensor) (*tensor.Tensor, error) {
	return addBiasTo(b, attn)
}

// BiasShape returns (1, num_heads, N, N).
func (b *MLPBias) BiasShape() []int {
	return append([]int{}, b.shape...)
}

// NumHeads returns the number of attention heads.
func (b *MLPBias) NumHeads() int {
	return b.cfg.NumHeads
}

// Config returns the head's configuration.
func (b *MLPBias) Config() BiasConfig {
	return b.cfg
}

// Coords returns the cached log-coordinate grid.
func (b *MLPBias) Coords() *tensor.Tensor {
	return b.coords
}

// Index returns the cached relative position index table.
func (b *MLPBias) Index() *relpos.IndexTable {
	return b.index
}
