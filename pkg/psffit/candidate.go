// Package psffit builds spatially varying point-spread-function models
// from star postage-stamps. Stars are collected as PsfCandidates in a
// grid of spatial cells; a weighted PCA over their stamps yields a set
// of eigen-PSF basis images, and a linear or nonlinear fit determines
// how the basis weights vary polynomially across the field.
package psffit

import (
	"gonum.org/v1/gonum/stat"

	"starmeasure/pkg/image"
)

// defaultCandidateSize is the stamp width and height used when the
// caller does not set one.
const defaultCandidateSize = 15

// PsfCandidate is a star considered for PSF estimation: a centroid and
// flux on a parent image, plus a lazily extracted postage-stamp and the
// amplitude and chi-squared cached by the fitters.
type PsfCandidate[P image.Pixel] struct {
	parent           *image.MaskedImage[P]
	xCenter, yCenter float64
	flux             float64
	width, height    int

	stamp     *image.MaskedImage[P]
	amplitude float64
	ampSet    bool
	chi2      float64
}

// NewPsfCandidate returns a candidate centered at (x, y) on parent with
// the default stamp size.
func NewPsfCandidate[P image.Pixel](parent *image.MaskedImage[P], x, y, flux float64) *PsfCandidate[P] {
	return &PsfCandidate[P]{
		parent:  parent,
		xCenter: x,
		yCenter: y,
		flux:    flux,
		width:   defaultCandidateSize,
		height:  defaultCandidateSize,
	}
}

// XCenter returns the candidate's column centroid.
func (c *PsfCandidate[P]) XCenter() float64 { return c.xCenter }

// YCenter returns the candidate's row centroid.
func (c *PsfCandidate[P]) YCenter() float64 { return c.yCenter }

// Flux returns the candidate's flux estimate.
func (c *PsfCandidate[P]) Flux() float64 { return c.flux }

// Width returns the stamp width.
func (c *PsfCandidate[P]) Width() int { return c.width }

// Height returns the stamp height.
func (c *PsfCandidate[P]) Height() int { return c.height }

// SetSize changes the stamp dimensions, invalidating any cached stamp.
func (c *PsfCandidate[P]) SetSize(width, height int) {
	if width == c.width && height == c.height {
		return
	}
	c.width = width
	c.height = height
	c.stamp = nil
}

// Image extracts the candidate's postage-stamp: a deep copy of the
// parent region centered on the pixel nearest the centroid. Fails with
// an out-of-bounds error when the stamp would fall off the parent.
func (c *PsfCandidate[P]) Image() (*image.MaskedImage[P], error) {
	if c.stamp != nil {
		return c.stamp, nil
	}
	ix, _ := image.PositionToIndex(c.xCenter)
	iy, _ := image.PositionToIndex(c.yCenter)
	box := image.Box{
		X0:     ix - c.parent.X0() - c.width/2,
		Y0:     iy - c.parent.Y0() - c.height/2,
		Width:  c.width,
		Height: c.height,
	}
	stamp, err := c.parent.Subimage(box)
	if err != nil {
		return nil, err
	}
	c.stamp = stamp
	return stamp, nil
}

// Variance returns the mean of the stamp's variance plane.
func (c *PsfCandidate[P]) Variance() (float64, error) {
	stamp, err := c.Image()
	if err != nil {
		return 0, err
	}
	va := stamp.Variance()
	samples := make([]float64, 0, va.Width()*va.Height())
	for y := 0; y < va.Height(); y++ {
		for x := 0; x < va.Width(); x++ {
			samples = append(samples, float64(va.At(x, y)))
		}
	}
	return stat.Mean(samples, nil), nil
}

// Amplitude returns the fitted amplitude, defaulting to the stamp's
// pixel sum before any fit has run.
func (c *PsfCandidate[P]) Amplitude() (float64, error) {
	if c.ampSet {
		return c.amplitude, nil
	}
	stamp, err := c.Image()
	if err != nil {
		return 0, err
	}
	return stamp.Image().Sum(), nil
}

// SetAmplitude caches a fitted amplitude.
func (c *PsfCandidate[P]) SetAmplitude(a float64) {
	c.amplitude = a
	c.ampSet = true
}

// Chi2 returns the candidate's cached chi-squared.
func (c *PsfCandidate[P]) Chi2() float64 { return c.chi2 }

// SetChi2 caches a chi-squared.
func (c *PsfCandidate[P]) SetChi2(v float64) { c.chi2 = v }
