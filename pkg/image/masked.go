package image

// MaskedImage bundles an image raster with a variance raster and a
// bit-plane mask of the same dimensions. A variance of zero is read as
// "infinite variance"; samples with zero variance are skipped in sums.
type MaskedImage[P Pixel] struct {
	im  *Image[P]
	va  *Image[P]
	msk *Mask
}

// NewMaskedImage returns a zeroed MaskedImage with the standard mask
// planes and origin (0, 0).
func NewMaskedImage[P Pixel](width, height int) *MaskedImage[P] {
	return &MaskedImage[P]{
		im:  New[P](width, height),
		va:  New[P](width, height),
		msk: NewMask(width, height),
	}
}

// Width returns the number of columns.
func (mi *MaskedImage[P]) Width() int { return mi.im.width }

// Height returns the number of rows.
func (mi *MaskedImage[P]) Height() int { return mi.im.height }

// X0 returns the column origin in the parent frame.
func (mi *MaskedImage[P]) X0() int { return mi.im.x0 }

// Y0 returns the row origin in the parent frame.
func (mi *MaskedImage[P]) Y0() int { return mi.im.y0 }

// SetXY0 places the origin in the parent frame.
func (mi *MaskedImage[P]) SetXY0(x0, y0 int) {
	mi.im.SetXY0(x0, y0)
	mi.va.SetXY0(x0, y0)
}

// Image returns the intensity raster.
func (mi *MaskedImage[P]) Image() *Image[P] { return mi.im }

// Variance returns the variance raster.
func (mi *MaskedImage[P]) Variance() *Image[P] { return mi.va }

// Mask returns the bit-plane mask.
func (mi *MaskedImage[P]) Mask() *Mask { return mi.msk }

// PlaneBitMask looks up a named mask plane.
func (mi *MaskedImage[P]) PlaneBitMask(name string) (MaskPixel, error) {
	return mi.msk.planes.BitMask(name)
}

// Clone returns a deep copy.
func (mi *MaskedImage[P]) Clone() *MaskedImage[P] {
	return &MaskedImage[P]{im: mi.im.Clone(), va: mi.va.Clone(), msk: mi.msk.Clone()}
}

// Subimage deep-copies the region covered by box (local coordinates).
// The copy keeps parent-frame alignment through its origin and shares
// the mask-plane registry.
func (mi *MaskedImage[P]) Subimage(box Box) (*MaskedImage[P], error) {
	im, err := mi.im.Subimage(box)
	if err != nil {
		return nil, err
	}
	va, err := mi.va.Subimage(box)
	if err != nil {
		return nil, err
	}
	return &MaskedImage[P]{im: im, va: va, msk: mi.msk.submask(box)}, nil
}

// LocatorAt returns a Locator positioned at local coordinates (x, y).
// The position must allow all offsets the caller will use; offsets are
// not bounds-checked.
func (mi *MaskedImage[P]) LocatorAt(x, y int) Locator[P] {
	return Locator[P]{mi: mi, x: x, y: y}
}

// Locator gives constant-time access to a pixel and its neighborhood.
type Locator[P Pixel] struct {
	mi   *MaskedImage[P]
	x, y int
}

// X returns the locator's local column.
func (l Locator[P]) X() int { return l.x }

// Y returns the locator's local row.
func (l Locator[P]) Y() int { return l.y }

// Image returns the image value at offset (dx, dy) from the locator.
func (l Locator[P]) Image(dx, dy int) float64 {
	return float64(l.mi.im.At(l.x+dx, l.y+dy))
}

// Variance returns the variance at offset (dx, dy) from the locator.
func (l Locator[P]) Variance(dx, dy int) float64 {
	return float64(l.mi.va.At(l.x+dx, l.y+dy))
}

// MaskBits returns the mask bitfield at offset (dx, dy) from the locator.
func (l Locator[P]) MaskBits(dx, dy int) MaskPixel {
	return l.mi.msk.At(l.x+dx, l.y+dy)
}

// SetImage stores a new image value at the locator's pixel.
func (l Locator[P]) SetImage(v float64) {
	l.mi.im.Set(l.x, l.y, P(v))
}

// ShiftX moves the locator one column to the right.
func (l *Locator[P]) ShiftX() { l.x++ }
