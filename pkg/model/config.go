// Package model provides the relative position bias heads used by windowed
// attention layers.
//
// A bias head turns the cached relative position buffers of pkg/relpos into
// a per-head bias matrix of shape (1, num_heads, N, N) that is added to the
// attention logits before softmax. Two variants are available:
//   - TableBias: a learned (vocab_size, num_heads) table gathered by index
//   - MLPBias: a small projection network evaluated on log-scaled offsets
package model

import (
	"github.com/pkg/errors"

	"relbias/pkg/relpos"
)

// Variant selects how bias values are produced.
type Variant string

const (
	// VariantTable gathers bias values from a learned table.
	VariantTable Variant = "table"

	// VariantMLP evaluates a projection network on log-scaled coordinates.
	VariantMLP Variant = "mlp"
)

// swinGain is the multiplier applied after the sigmoid in swin mode.
const swinGain = 16

// BiasConfig holds the hyperparameters of one bias head.
type BiasConfig struct {
	// Window is the attention window (7x7 for Swin-T)
	Window relpos.Window

	// NumHeads is the number of attention heads, one bias matrix each
	NumHeads int

	// PrefixTokens is 1 when a class token is prepended to every window, else 0
	PrefixTokens int

	// Variant selects the table or MLP implementation
	Variant Variant

	// Mode is the log-coordinate mode of the MLP variant ("swin" or "cr")
	Mode relpos.Mode

	// PretrainedWindow, when set, is the window the MLP variant was trained
	// with; swin mode normalizes offsets by it
	PretrainedWindow relpos.Window

	// HiddenDim is the hidden width of the default MLP projection (256)
	HiddenDim int

	// Dropout holds the dropout rates after the first and second MLP layer
	Dropout [2]float32

	// InitStd is the standard deviation of the truncated-normal table init (0.02)
	InitStd float64

	// Seed seeds parameter initialization and dropout
	Seed int64
}

// DefaultBiasConfig returns a configuration for a 7x7 window with 8 heads
// using the table variant. The MLP fields carry the defaults used when the
// variant is switched to VariantMLP.
func DefaultBiasConfig() BiasConfig {
	return BiasConfig{
		Window:    relpos.Window{Height: 7, Width: 7},
		NumHeads:  8,
		Variant:   VariantTable,
		Mode:      relpos.ModeCR,
		HiddenDim: 256,
		Dropout:   [2]float32{0.125, 0},
		InitStd:   0.02,
	}
}

// Validate checks if the configuration is valid and consistent.
// Every failure wraps relpos.ErrInvalidConfig.
func (c BiasConfig) Validate() error {
	if err := c.Window.Validate(); err != nil {
		return err
	}
	if c.NumHeads <= 0 {
		return errors.Wrapf(relpos.ErrInvalidConfig, "num_heads must be positive, got %d", c.NumHeads)
	}
	if c.PrefixTokens < 0 || c.PrefixTokens > 1 {
		return errors.Wrapf(relpos.ErrInvalidConfig, "prefix_tokens must be 0 or 1, got %d", c.PrefixTokens)
	}

	switch c.Variant {
	case VariantTable:
		if c.InitStd < 0 {
			return errors.Wrapf(relpos.ErrInvalidConfig, "init_std must be non-negative, got %g", c.InitStd)
		}
	case VariantMLP:
		if _, err := relpos.ParseMode(string(c.Mode)); err != nil {
			return err
		}
		if c.HiddenDim <= 0 {
			return errors.Wrapf(relpos.ErrInvalidConfig, "hidden_dim must be positive, got %d", c.HiddenDim)
		}
		for i, p := range c.Dropout {
			if p < 0 || p >= 1 {
				return errors.Wrapf(relpos.ErrInvalidConfig, "dropout[%d] must be in [0, 1), got %g", i, p)
			}
		}
	default:
		return errors.Wrapf(relpos.ErrInvalidConfig, "unknown bias variant %q", c.Variant)
	}
	return nil
}

// NumTokens returns N, the window area plus any prefix token.
func (c BiasConfig) NumTokens() int {
	return c.Window.Area() + c.PrefixTokens
}

// BiasShape returns the shape of the bias matrix, (1, num_heads, N, N).
func (c BiasConfig) BiasShape() []int {
	n := c.NumTokens()
	return []int{1, c.NumHeads, n, n}
}
