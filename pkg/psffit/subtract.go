package psffit

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"starmeasure/pkg/image"
	"starmeasure/pkg/kernel"
	"starmeasure/pkg/psf"
)

// SubtractPsf renders the PSF at (x, y), fits its amplitude to the
// underlying pixels by closed form, and subtracts the scaled model from
// the image in place. Returns the chi-squared of the fit. Fails with an
// out-of-bounds error when the PSF stamp does not fit inside the image.
func SubtractPsf[P image.Pixel](p psf.Psf, mi *image.MaskedImage[P], x, y float64) (float64, error) {
	kim, err := p.ComputeImage(x, y)
	if err != nil {
		return 0, err
	}
	box := image.Box{
		X0:     kim.X0() - mi.X0(),
		Y0:     kim.Y0() - mi.Y0(),
		Width:  kim.Width(),
		Height: kim.Height(),
	}
	stamp, err := mi.Subimage(box)
	if err != nil {
		return 0, err
	}
	amp, chi2, err := fitKernel(kim, stamp)
	if err != nil {
		return 0, errors.Wrapf(err, "psf at (%.1f, %.1f)", x, y)
	}
	im := mi.Image()
	for yy := 0; yy < kim.Height(); yy++ {
		for xx := 0; xx < kim.Width(); xx++ {
			lx, ly := box.X0+xx, box.Y0+yy
			im.Set(lx, ly, im.At(lx, ly)-P(amp*kim.At(xx, yy)))
		}
	}
	return chi2, nil
}

// FitKernelToImage fits the kernel's basis images independently to the
// pixels around (x, y): each basis is recentered by the fractional part
// of the position, and the N-by-N normal equations over the basis inner
// products give one constant weight per component. Returns a new fixed
// kernel carrying those weights and the chi-squared of the residual.
func FitKernelToImage[P image.Pixel](k *kernel.LinearCombinationKernel,
	mi *image.MaskedImage[P], x, y float64) (*kernel.LinearCombinationKernel, float64, error) {

	nc := k.NBasisKernels()
	ix, dx := image.PositionToIndex(x)
	iy, dy := image.PositionToIndex(y)

	shifted := make([]*kernel.Image, nc)
	for i := 0; i < nc; i++ {
		shifted[i] = image.Offset(k.BasisImage(i), dx, dy)
	}

	box := image.Box{
		X0:     ix - mi.X0() - k.Width()/2,
		Y0:     iy - mi.Y0() - k.Height()/2,
		Width:  k.Width(),
		Height: k.Height(),
	}
	stamp, err := mi.Subimage(box)
	if err != nil {
		return nil, 0, err
	}
	data := toFloat64(stamp.Image())

	gram := make([]float64, nc*nc)
	rhs := make([]float64, nc)
	for i := 0; i < nc; i++ {
		for j := 0; j < nc; j++ {
			dot, err := kernel.InnerProduct(shifted[i], shifted[j], 0)
			if err != nil {
				return nil, 0, err
			}
			gram[i*nc+j] = dot
		}
		dot, err := kernel.InnerProduct(shifted[i], data, 0)
		if err != nil {
			return nil, 0, err
		}
		rhs[i] = dot
	}
	sym := symFromDense(gram, nc)
	weights, err := solveNormal(sym, rhs)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "kernel fit at (%.1f, %.1f)", x, y)
	}

	fitted, err := kernel.NewLinearCombinationKernel(shifted)
	if err != nil {
		return nil, 0, err
	}
	if err := fitted.SetKernelParameters(weights); err != nil {
		return nil, 0, err
	}

	// Residual chi-squared against the variance plane.
	model, err := fitted.ComputeImage(false, x, y)
	if err != nil {
		return nil, 0, err
	}
	chi2 := 0.0
	for yy := 0; yy < model.Height(); yy++ {
		for xx := 0; xx < model.Width(); xx++ {
			v := float64(stamp.Variance().At(xx, yy))
			if v == 0 {
				continue
			}
			r := float64(stamp.Image().At(xx, yy)) - model.At(xx, yy)
			chi2 += r * r / v
		}
	}
	return fitted, chi2, nil
}

// symFromDense copies a row-major symmetric matrix into a SymDense.
func symFromDense(data []float64, n int) *mat.SymDense {
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, data[i*n+j])
		}
	}
	return sym
}
