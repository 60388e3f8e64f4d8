package relpos

import "github.com/pkg/errors"

// Error classes returned by this package and by the bias heads built on it.
// Errors are wrapped with context; test for the class with errors.Is.
var (
	// ErrInvalidConfig reports invalid geometry or parameters: non-positive
	// window dimensions, more than one prefix token, a non-positive head
	// count, a degenerate normalization axis or an unknown mode.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrShapeMismatch reports tensors whose shapes disagree with the cached
	// index table or the declared bias shape.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrUnsupportedConfig reports combinations whose semantics are not
	// defined, such as class-token padding over unequal query/key windows.
	ErrUnsupportedConfig = errors.New("unsupported configuration")
)
