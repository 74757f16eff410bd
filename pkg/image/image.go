// Package image provides the pixel substrate shared by the measurement
// algorithms: a generic floating-point raster, a bit-plane mask, the
// MaskedImage triple (image, variance, mask), Footprints described as
// row-spans, and a Lanczos resampler for sub-pixel shifts.
package image

import (
	"github.com/pkg/errors"

	"starmeasure/pkg/errkind"
)

// Pixel is the set of floating-point types an Image can hold.
type Pixel interface {
	~float32 | ~float64
}

// Box is an axis-aligned rectangle of pixels. X0 and Y0 are the
// coordinates of the lower-left corner; both endpoints of the covered
// ranges are inclusive of X0/Y0 and exclusive of X0+Width/Y0+Height.
type Box struct {
	X0, Y0        int
	Width, Height int
}

// X1 returns the inclusive upper column of the box.
func (b Box) X1() int { return b.X0 + b.Width - 1 }

// Y1 returns the inclusive upper row of the box.
func (b Box) Y1() int { return b.Y0 + b.Height - 1 }

// Contains reports whether the point (x, y) lies inside the box.
func (b Box) Contains(x, y int) bool {
	return x >= b.X0 && x <= b.X1() && y >= b.Y0 && y <= b.Y1()
}

// Image is a rectangular raster of pixels with an integer origin.
// Pixel access is in local coordinates (0 .. Width-1, 0 .. Height-1);
// the origin (X0, Y0) records where the raster sits in its parent frame.
type Image[P Pixel] struct {
	x0, y0        int
	width, height int
	pix           []P
}

// New returns a zero-filled Image of the given dimensions with origin (0, 0).
func New[P Pixel](width, height int) *Image[P] {
	return &Image[P]{
		width:  width,
		height: height,
		pix:    make([]P, width*height),
	}
}

// Width returns the number of columns.
func (im *Image[P]) Width() int { return im.width }

// Height returns the number of rows.
func (im *Image[P]) Height() int { return im.height }

// X0 returns the column origin of the image in its parent frame.
func (im *Image[P]) X0() int { return im.x0 }

// Y0 returns the row origin of the image in its parent frame.
func (im *Image[P]) Y0() int { return im.y0 }

// SetXY0 places the image origin in its parent frame.
func (im *Image[P]) SetXY0(x0, y0 int) {
	im.x0 = x0
	im.y0 = y0
}

// Bounds returns the image extent in parent coordinates.
func (im *Image[P]) Bounds() Box {
	return Box{X0: im.x0, Y0: im.y0, Width: im.width, Height: im.height}
}

// At returns the pixel at local coordinates (x, y).
func (im *Image[P]) At(x, y int) P { return im.pix[y*im.width+x] }

// Set stores a pixel at local coordinates (x, y).
func (im *Image[P]) Set(x, y int, v P) { im.pix[y*im.width+x] = v }

// Fill sets every pixel to v.
func (im *Image[P]) Fill(v P) {
	for i := range im.pix {
		im.pix[i] = v
	}
}

// AddScalar adds v to every pixel.
func (im *Image[P]) AddScalar(v P) {
	for i := range im.pix {
		im.pix[i] += v
	}
}

// ScaleBy multiplies every pixel by v.
func (im *Image[P]) ScaleBy(v P) {
	for i := range im.pix {
		im.pix[i] *= v
	}
}

// Sum returns the sum of all pixels as a float64.
func (im *Image[P]) Sum() float64 {
	sum := 0.0
	for i := range im.pix {
		sum += float64(im.pix[i])
	}
	return sum
}

// Clone returns a deep copy of the image, origin included.
func (im *Image[P]) Clone() *Image[P] {
	out := New[P](im.width, im.height)
	out.x0, out.y0 = im.x0, im.y0
	copy(out.pix, im.pix)
	return out
}

// Subimage returns a deep copy of the pixels covered by box, which is
// given in local coordinates. The copy's origin is set so that it stays
// aligned with the parent frame.
func (im *Image[P]) Subimage(box Box) (*Image[P], error) {
	if box.X0 < 0 || box.Y0 < 0 || box.Width <= 0 || box.Height <= 0 ||
		box.X1() >= im.width || box.Y1() >= im.height {
		return nil, errors.Wrapf(errkind.ErrOutOfBounds,
			"subimage %+v of %dx%d image", box, im.width, im.height)
	}
	out := New[P](box.Width, box.Height)
	out.x0 = im.x0 + box.X0
	out.y0 = im.y0 + box.Y0
	for y := 0; y < box.Height; y++ {
		src := im.pix[(box.Y0+y)*im.width+box.X0:]
		copy(out.pix[y*box.Width:(y+1)*box.Width], src[:box.Width])
	}
	return out, nil
}
