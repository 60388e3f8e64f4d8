package relpos

import (
	"math"

	"github.com/pkg/errors"

	"relbias/pkg/tensor"
)

// Mode selects the log-coordinate normalization.
type Mode string

const (
	// ModeSwin rescales offsets by the reference window to [-8, 8] and
	// squashes them with sign(x)*log2(1+|x|)/log2(8). With the window as its
	// own reference, outputs span [-log2(9)/3, log2(9)/3], about ±1.0566, not
	// [-1, 1]. A pretrained window larger than the window shrinks that span.
	ModeSwin Mode = "swin"

	// ModeCR applies sign(x)*ln(1+|x|) to the raw offsets.
	ModeCR Mode = "cr"
)

// swinRange is the magnitude normalized offsets are stretched to before the
// log2 squash in swin mode.
const swinRange = 8

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSwin, ModeCR:
		return m, nil
	default:
		return "", errors.Wrapf(ErrInvalidConfig, "unknown log-coordinate mode %q (want %q or %q)", s, ModeSwin, ModeCR)
	}
}

// LogCoords returns the log-scaled relative coordinates of every offset in
// the window, laid out on the dense grid
//
//	Δrow ∈ [-(h-1), h-1], Δcol ∈ [-(w-1), w-1]
//
// with shape (2h-1, 2w-1, 2). The last axis holds (Δrow, Δcol) after
// normalization. Cell (h-1, w-1) is the zero offset and maps to (0, 0).
//
// In swin mode each axis is divided by (ref-1), where ref is the pretrained
// window when set and the window itself otherwise. A reference axis of length
// 1 cannot be normalized and is reported as ErrInvalidConfig. cr mode never
// divides and accepts any positive window.
func LogCoords(win, pretrained Window, mode Mode) (*tensor.Tensor, error) {
	if err := win.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	ref := win
	if !pretrained.IsZero() {
		if err := pretrained.Validate(); err != nil {
			return nil, errors.WithMessage(err, "pretrained window")
		}
		ref = pretrained
	}
	if mode == ModeSwin && (ref.Height == 1 || ref.Width == 1) {
		return nil, errors.Wrapf(ErrInvalidConfig,
			"swin log coordinates need reference window dimensions > 1, got %v", ref)
	}

	rows, cols := 2*win.Height-1, 2*win.Width-1
	grid := tensor.NewTensor([]int{rows, cols, 2})
	for i := 0; i < rows; i++ {
		dr := float64(i - (win.Height - 1))
		for j := 0; j < cols; j++ {
			dc := float64(j - (win.Width - 1))

			var y, x float64
			switch mode {
			case ModeSwin:
				y = swinLog(dr / float64(ref.Height-1) * swinRange)
				x = swinLog(dc / float64(ref.Width-1) * swinRange)
			case ModeCR:
				y = signedLog(dr)
				x = signedLog(dc)
			}
			base := (i*cols + j) * 2
			grid.Data[base] = float32(y)
			grid.Data[base+1] = float32(x)
		}
	}
	return grid, nil
}

// signedLog returns sign(x)*ln(1+|x|).
func signedLog(x float64) float64 {
	if x < 0 {
		return -math.Log1p(-x)
	}
	return math.Log1p(x)
}

// swinLog returns sign(x)*log2(1+|x|)/log2(8).
func swinLog(x float64) float64 {
	return signedLog(x) / math.Log(swinRange)
}
