package psf

import (
	"math"

	"github.com/pkg/errors"

	"starmeasure/pkg/errkind"
	"starmeasure/pkg/kernel"
)

// Attributes derives shape measures from a rendered PSF image. The
// center is taken at the continuous position the image was rendered for.
type Attributes struct {
	im         *kernel.Image
	xcen, ycen float64
}

// NewAttributes measures the given PSF at position (x, y). The image is
// rendered once and shared by all measures.
func NewAttributes(p Psf, x, y float64) (*Attributes, error) {
	im, err := p.ComputeImage(x, y)
	if err != nil {
		return nil, err
	}
	return &Attributes{
		im:   im,
		xcen: x - float64(im.X0()),
		ycen: y - float64(im.Y0()),
	}, nil
}

// moments accumulates sum(I), sum(I*r), sum(I*r^2), sum(I^2) and
// sum((I*r)^2) over the image.
func (a *Attributes) moments() (sumI, sumIR, sumIR2, sumI2, sumI2R2 float64) {
	for row := 0; row < a.im.Height(); row++ {
		for col := 0; col < a.im.Width(); col++ {
			v := a.im.At(col, row)
			dx := float64(col) - a.xcen
			dy := float64(row) - a.ycen
			r := math.Sqrt(dx*dx + dy*dy)
			sumI += v
			sumIR += v * r
			sumIR2 += v * r * r
			sumI2 += v * v
			sumI2R2 += v * r * v * r
		}
	}
	return
}

// GaussianWidth returns the radius at which the weighted profile I*r
// peaks, in the Gaussian sense: sqrt(sum((I*r)^2) / sum(I^2)).
func (a *Attributes) GaussianWidth() (float64, error) {
	_, _, _, sumI2, sumI2R2 := a.moments()
	if sumI2 <= 0 {
		return 0, errors.Wrap(errkind.ErrDomain, "psf image has no signal")
	}
	return math.Sqrt(sumI2R2 / sumI2), nil
}

// FirstMoment returns sum(I*r)/sum(I), the flux-weighted mean radius.
func (a *Attributes) FirstMoment() (float64, error) {
	sumI, sumIR, _, _, _ := a.moments()
	if sumI <= 0 {
		return 0, errors.Wrap(errkind.ErrDomain, "psf image has non-positive flux")
	}
	return sumIR / sumI, nil
}

// SecondMoment returns sqrt(sum(I*r^2)/sum(I)), the flux-weighted RMS
// radius.
func (a *Attributes) SecondMoment() (float64, error) {
	sumI, _, sumIR2, _, _ := a.moments()
	if sumI <= 0 {
		return 0, errors.Wrap(errkind.ErrDomain, "psf image has non-positive flux")
	}
	m := sumIR2 / sumI
	if m < 0 {
		return 0, errors.Wrap(errkind.ErrDomain, "negative second moment")
	}
	return math.Sqrt(m), nil
}

// EffectiveArea returns (sum I)^2 / sum(I^2), the noise-equivalent
// number of pixels of the profile.
func (a *Attributes) EffectiveArea() (float64, error) {
	sumI, _, _, sumI2, _ := a.moments()
	if sumI2 <= 0 {
		return 0, errors.Wrap(errkind.ErrDomain, "psf image has no signal")
	}
	return sumI * sumI / sumI2, nil
}
