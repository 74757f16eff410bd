package image

import (
	"github.com/pkg/errors"

	"starmeasure/pkg/errkind"
)

// MaskPixel is an integer bitfield over named bit-planes.
type MaskPixel uint16

// Names of the standard mask planes. These are part of the library's
// contract; every new PlaneSet carries them.
const (
	PlaneBad      = "BAD"      // generic bad pixels
	PlaneSat      = "SAT"      // saturated pixels
	PlaneInterp   = "INTRP"    // interpolated pixels
	PlaneCR       = "CR"       // cosmic-ray contaminated pixels
	PlaneDetected = "DETECTED" // pixels inside detected objects
)

// PlaneSet maps bit-plane names to bit positions within a MaskPixel.
type PlaneSet struct {
	planes map[string]uint
}

// NewPlaneSet returns a PlaneSet populated with the standard planes.
func NewPlaneSet() *PlaneSet {
	ps := &PlaneSet{planes: make(map[string]uint)}
	for _, name := range []string{PlaneBad, PlaneSat, PlaneInterp, PlaneCR, PlaneDetected} {
		ps.planes[name] = uint(len(ps.planes))
	}
	return ps
}

// Add registers a new plane and returns its bit mask. Registering an
// existing name returns its current mask.
func (ps *PlaneSet) Add(name string) (MaskPixel, error) {
	if bit, ok := ps.planes[name]; ok {
		return 1 << bit, nil
	}
	if len(ps.planes) >= 16 {
		return 0, errors.Wrapf(errkind.ErrInvalidArgument, "too many mask planes adding %q", name)
	}
	bit := uint(len(ps.planes))
	ps.planes[name] = bit
	return 1 << bit, nil
}

// BitMask returns the bit mask of the named plane.
func (ps *PlaneSet) BitMask(name string) (MaskPixel, error) {
	bit, ok := ps.planes[name]
	if !ok {
		return 0, errors.Wrapf(errkind.ErrNotFound, "mask plane %q", name)
	}
	return 1 << bit, nil
}

// Mask is a raster of MaskPixel bitfields.
type Mask struct {
	width, height int
	pix           []MaskPixel
	planes        *PlaneSet
}

// NewMask returns a zeroed mask with the standard planes.
func NewMask(width, height int) *Mask {
	return &Mask{
		width:  width,
		height: height,
		pix:    make([]MaskPixel, width*height),
		planes: NewPlaneSet(),
	}
}

// Width returns the number of columns.
func (m *Mask) Width() int { return m.width }

// Height returns the number of rows.
func (m *Mask) Height() int { return m.height }

// Planes returns the mask's plane registry.
func (m *Mask) Planes() *PlaneSet { return m.planes }

// At returns the bitfield at local coordinates (x, y).
func (m *Mask) At(x, y int) MaskPixel { return m.pix[y*m.width+x] }

// Set stores a bitfield at local coordinates (x, y).
func (m *Mask) Set(x, y int, v MaskPixel) { m.pix[y*m.width+x] = v }

// Or sets the given bits at local coordinates (x, y).
func (m *Mask) Or(x, y int, bits MaskPixel) { m.pix[y*m.width+x] |= bits }

// Clone returns a deep copy sharing the plane registry.
func (m *Mask) Clone() *Mask {
	out := &Mask{
		width:  m.width,
		height: m.height,
		pix:    make([]MaskPixel, len(m.pix)),
		planes: m.planes,
	}
	copy(out.pix, m.pix)
	return out
}

// submask deep-copies the pixels covered by box (local coordinates),
// sharing the plane registry. Bounds are the caller's responsibility.
func (m *Mask) submask(box Box) *Mask {
	out := &Mask{
		width:  box.Width,
		height: box.Height,
		pix:    make([]MaskPixel, box.Width*box.Height),
		planes: m.planes,
	}
	for y := 0; y < box.Height; y++ {
		src := m.pix[(box.Y0+y)*m.width+box.X0:]
		copy(out.pix[y*box.Width:(y+1)*box.Width], src[:box.Width])
	}
	return out
}
