package kernel

import (
	"github.com/pkg/errors"

	"starmeasure/pkg/errkind"
)

// InnerProduct returns the unweighted dot product of two images of
// identical dimensions, skipping a border of the given width around the
// edge of both.
func InnerProduct(a, b *Image, border int) (float64, error) {
	if a.Width() != b.Width() || a.Height() != b.Height() {
		return 0, errors.Wrapf(errkind.ErrInvalidArgument,
			"inner product of %dx%d and %dx%d images",
			a.Width(), a.Height(), b.Width(), b.Height())
	}
	if 2*border >= a.Width() || 2*border >= a.Height() {
		return 0, errors.Wrapf(errkind.ErrInvalidArgument,
			"border %d leaves no pixels in a %dx%d image", border, a.Width(), a.Height())
	}
	sum := 0.0
	for y := border; y < a.Height()-border; y++ {
		for x := border; x < a.Width()-border; x++ {
			sum += a.At(x, y) * b.At(x, y)
		}
	}
	return sum, nil
}
