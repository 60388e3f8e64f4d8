// Package relpos computes the cached relative-position buffers used by
// windowed attention bias heads: pairwise relative position indices,
// log-scaled offset coordinates, and one-hot lookup tensors.
//
// Everything here is a pure function of the window geometry. Results are
// computed once when a bias head is built and are read-only afterwards.
package relpos

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Window is a rectangular grid of token positions sharing one relative
// position coordinate system.
type Window struct {
	Height int
	Width  int
}

// Area returns the number of positions in the window.
func (w Window) Area() int {
	return w.Height * w.Width
}

// IsZero reports whether the window is unset.
func (w Window) IsZero() bool {
	return w.Height == 0 && w.Width == 0
}

// NumRelativeDistances returns (2h-1)(2w-1), the number of distinct
// relative offsets inside the window.
func (w Window) NumRelativeDistances() int {
	return (2*w.Height - 1) * (2*w.Width - 1)
}

// Validate checks that both dimensions are positive.
func (w Window) Validate() error {
	if w.Height <= 0 || w.Width <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "window dimensions must be positive, got %v", w)
	}
	return nil
}

func (w Window) String() string {
	return fmt.Sprintf("%dx%d", w.Height, w.Width)
}

// ParseWindow parses "HxW" (or a single "N" for a square window). The
// result is validated.
func ParseWindow(s string) (Window, error) {
	hs, ws, found := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !found {
		ws = hs
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return Window{}, errors.Wrapf(ErrInvalidConfig, "bad window %q", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return Window{}, errors.Wrapf(ErrInvalidConfig, "bad window %q", s)
	}
	win := Window{Height: h, Width: w}
	return win, win.Validate()
}

// coords enumerates the (row, col) coordinates of every window position in
// row-major order.
func (w Window) coords() []offset {
	out := make([]offset, 0, w.Area())
	for r := 0; r < w.Height; r++ {
		for c := 0; c < w.Width; c++ {
			out = append(out, offset{r, c})
		}
	}
	return out
}
