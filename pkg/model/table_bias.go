package model

import (
	"math/rand"

	"relbias/pkg/relpos"
	"relbias/pkg/tensor"
)

// truncBound is the absolute truncation bound of the table initializer.
const truncBound = 2

// TableBias is the discrete bias head: one learned row per relative position
// class, one column per head.
//
// With a prefix token the table has three extra rows for token-to-prefix,
// prefix-to-token and prefix-to-prefix interactions.
type TableBias struct {
	// Table holds the learned biases, shape (vocab_size, num_heads). It is
	// updated by the training loop between forward passes.
	Table *tensor.Tensor

	cfg   BiasConfig
	index *relpos.IndexTable
	shape []int
}

// NewTableBias builds a table bias head and initializes the table from a
// normal distribution with std cfg.InitStd truncated to [-2, 2].
func NewTableBias(cfg BiasConfig, opts ...Option) (*TableBias, error) {
	cfg.Variant = VariantTable
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(cfg, opts)

	index, err := o.index(cfg.Window, cfg.PrefixTokens > 0)
	if err != nil {
		return nil, err
	}

	b := &TableBias{
		Table: tensor.NewTensor([]int{index.VocabSize, cfg.NumHeads}),
		cfg:   cfg,
		index: index,
		shape: cfg.BiasShape(),
	}
	if err := b.InitWeights(o.rng); err != nil {
		return nil, err
	}

	logConstruction(cfg, index.VocabSize)
	return b, nil
}

// InitWeights re-draws the table from the truncated normal initializer.
func (b *TableBias) InitWeights(rng *rand.Rand) error {
	return TruncNormal(b.Table, 0, b.cfg.InitStd, -truncBound, truncBound, rng)
}

// GetBias gathers the table by the cached index and returns
// (1, num_heads, N, N).
func (b *TableBias) GetBias() (*tensor.Tensor, error) {
	bias, err := gatherBias(b.Table, b.index, b.cfg.NumHeads)
	if err != nil {
		return nil, err
	}
	return finishBias(bias, b.shape)
}

// Forward adds the bias to attention logits.
func (b *TableBias) Forward(attn, _ *tensor.Tensor) (*tensor.Tensor, error) {
	return addBiasTo(b, attn)
}

// BiasShape returns (1, num_heads, N, N).
func (b *TableBias) BiasShape() []int {
	return append([]int{}, b.shape...)
}

// NumHeads returns the number of attention heads.
func (b *TableBias) NumHeads() int {
	return b.cfg.NumHeads
}

// Config returns the head's configuration.
func (b *TableBias) Config() BiasConfig {
	return b.cfg
}

// Index returns the cached relative position index table.
func (b *TableBias) Index() *relpos.IndexTable {
	return b.index
}
