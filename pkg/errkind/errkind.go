// Package errkind defines the error taxonomy shared by the measurement
// packages. Callers classify failures with errors.Is against these
// sentinels; the packages annotate them with positional context using
// github.com/pkg/errors.
package errkind

import "errors"

var (
	// ErrInvalidArgument reports a precondition violation, such as an
	// empty kernel list or a duplicate factory registration.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound reports a failed lookup by name, such as an
	// unregistered PSF factory.
	ErrNotFound = errors.New("not found")

	// ErrRange reports a value outside the domain of an operation,
	// such as a zero model norm in a kernel fit.
	ErrRange = errors.New("range error")

	// ErrOutOfBounds reports an access past the edge of an image.
	// It is usually recoverable: a candidate whose stamp falls off
	// the parent image is skipped, not fatal.
	ErrOutOfBounds = errors.New("out of bounds")

	// ErrDomain reports a mathematically undefined result, such as a
	// non-positive normalizer in a PSF moment computation.
	ErrDomain = errors.New("domain error")
)
