package psf

import (
	"math"

	"github.com/pkg/errors"

	"starmeasure/pkg/errkind"
	"starmeasure/pkg/image"
	"starmeasure/pkg/kernel"
)

func init() {
	if err := DefaultRegistry.Declare("DoubleGaussian", func(width, height int, p0, p1, p2 float64) (Psf, error) {
		return NewDoubleGaussian(width, height, p0, p1, p2)
	}); err != nil {
		panic(err)
	}
}

// DoubleGaussian is a circular PSF built from two concentric Gaussians:
//
//	(exp(-r^2/2*sigma1^2) + b*exp(-r^2/2*sigma2^2)) / (1 + b)
//
// The narrow component carries the core, the wide one the wings.
type DoubleGaussian struct {
	width, height  int
	sigma1, sigma2 float64
	b              float64
}

// NewDoubleGaussian returns a double-Gaussian PSF rendered on a stamp of
// the given size. When both b and sigma2 are zero the profile degenerates
// to a single Gaussian and sigma2 is set to a harmless placeholder.
func NewDoubleGaussian(width, height int, sigma1, sigma2, b float64) (*DoubleGaussian, error) {
	if b == 0 && sigma2 == 0 {
		sigma2 = 1 // avoid 0/0 in Value
	}
	if sigma1 <= 0 || sigma2 <= 0 {
		return nil, errors.Wrapf(errkind.ErrDomain,
			"double-Gaussian sigma1=%g sigma2=%g", sigma1, sigma2)
	}
	return &DoubleGaussian{
		width:  width,
		height: height,
		sigma1: sigma1,
		sigma2: sigma2,
		b:      b,
	}, nil
}

// Width returns the rendered image width.
func (p *DoubleGaussian) Width() int { return p.width }

// Height returns the rendered image height.
func (p *DoubleGaussian) Height() int { return p.height }

// Value returns the peak-normalized profile at offset (dx, dy).
func (p *DoubleGaussian) Value(dx, dy float64) float64 {
	r2 := dx*dx + dy*dy
	v := math.Exp(-r2/(2*p.sigma1*p.sigma1)) + p.b*math.Exp(-r2/(2*p.sigma2*p.sigma2))
	return v / (1 + p.b)
}

// ComputeImage renders the PSF so its peak lands at the continuous
// position (x, y). The image origin places the stamp around the nearest
// pixel; the fractional part of the position shifts the profile within
// the stamp. The result is normalized to a unit peak sample.
func (p *DoubleGaussian) ComputeImage(x, y float64) (*kernel.Image, error) {
	ix, dx := image.PositionToIndex(x)
	iy, dy := image.PositionToIndex(y)

	im := image.New[float64](p.width, p.height)
	im.SetXY0(ix-p.width/2, iy-p.height/2)

	xcen := float64(p.width / 2)
	ycen := float64(p.height / 2)
	max := 0.0
	for row := 0; row < p.height; row++ {
		for col := 0; col < p.width; col++ {
			v := p.Value(float64(col)-dx-xcen, float64(row)-dy-ycen)
			im.Set(col, row, v)
			if v > max {
				max = v
			}
		}
	}
	if max <= 0 {
		return nil, errors.Wrap(errkind.ErrRange, "psf image has no positive samples")
	}
	im.ScaleBy(1 / max)
	return im, nil
}
