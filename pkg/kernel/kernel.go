// Package kernel provides convolution-kernel models for point-spread
// functions: fixed single-image kernels and linear combinations of basis
// images whose weights may vary polynomially across the field, plus the
// principal-component analysis used to derive such bases from star
// cutouts.
package kernel

import (
	"github.com/pkg/errors"

	"starmeasure/pkg/errkind"
	"starmeasure/pkg/image"
)

// Image is the float64 raster kernels are built from.
type Image = image.Image[float64]

// Kernel is a pixelized convolution kernel.
type Kernel interface {
	// Width returns the number of kernel columns.
	Width() int
	// Height returns the number of kernel rows.
	Height() int
	// ComputeImage renders the kernel at field position (x, y) into a
	// new image. If normalize is set the result sums to one.
	ComputeImage(normalize bool, x, y float64) (*Image, error)
}

// FixedKernel is a kernel with a single, position-independent image.
type FixedKernel struct {
	im *Image
}

// NewFixedKernel copies im into a FixedKernel.
func NewFixedKernel(im *Image) *FixedKernel {
	return &FixedKernel{im: im.Clone()}
}

// Width returns the number of kernel columns.
func (k *FixedKernel) Width() int { return k.im.Width() }

// Height returns the number of kernel rows.
func (k *FixedKernel) Height() int { return k.im.Height() }

// ComputeImage renders the kernel; the position is ignored.
func (k *FixedKernel) ComputeImage(normalize bool, _, _ float64) (*Image, error) {
	out := k.im.Clone()
	if normalize {
		if err := normalizeSum(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LinearCombinationKernel is a weighted sum of basis images. Each basis
// component carries a spatial function giving its weight as a function
// of field position; a component without one uses a fixed weight.
type LinearCombinationKernel struct {
	basis   []*Image
	weights []float64
	spatial []*Polynomial2
}

// NewLinearCombinationKernel builds a kernel over copies of the given
// basis images with fixed unit weights. All basis images must share the
// same dimensions.
func NewLinearCombinationKernel(basis []*Image) (*LinearCombinationKernel, error) {
	if len(basis) == 0 {
		return nil, errors.Wrap(errkind.ErrInvalidArgument, "empty kernel basis")
	}
	k := &LinearCombinationKernel{
		basis:   make([]*Image, len(basis)),
		weights: make([]float64, len(basis)),
	}
	for i, b := range basis {
		if b.Width() != basis[0].Width() || b.Height() != basis[0].Height() {
			return nil, errors.Wrapf(errkind.ErrInvalidArgument,
				"basis image %d is %dx%d, want %dx%d",
				i, b.Width(), b.Height(), basis[0].Width(), basis[0].Height())
		}
		k.basis[i] = b.Clone()
		k.weights[i] = 1
	}
	return k, nil
}

// NewSpatialLinearCombinationKernel builds a kernel whose component
// weights are order-n polynomials of field position, initialized so the
// first component has constant weight one and the rest zero.
func NewSpatialLinearCombinationKernel(basis []*Image, order int) (*LinearCombinationKernel, error) {
	k, err := NewLinearCombinationKernel(basis)
	if err != nil {
		return nil, err
	}
	k.spatial = make([]*Polynomial2, len(basis))
	for i := range k.spatial {
		p, err := NewPolynomial2(order)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			p.coeffs[0] = 1
		}
		k.spatial[i] = p
	}
	return k, nil
}

// Width returns the number of kernel columns.
func (k *LinearCombinationKernel) Width() int { return k.basis[0].Width() }

// Height returns the number of kernel rows.
func (k *LinearCombinationKernel) Height() int { return k.basis[0].Height() }

// NBasisKernels returns the number of basis components.
func (k *LinearCombinationKernel) NBasisKernels() int { return len(k.basis) }

// NSpatialParameters returns the coefficient count of each component's
// spatial function, or zero when the kernel is not spatially varying.
func (k *LinearCombinationKernel) NSpatialParameters() int {
	if len(k.spatial) == 0 {
		return 0
	}
	return k.spatial[0].NParameters()
}

// IsSpatiallyVarying reports whether component weights depend on position.
func (k *LinearCombinationKernel) IsSpatiallyVarying() bool { return len(k.spatial) > 0 }

// BasisImage returns a copy of the i-th basis image.
func (k *LinearCombinationKernel) BasisImage(i int) *Image { return k.basis[i].Clone() }

// SpatialFunction returns a copy of the i-th component's spatial function.
func (k *LinearCombinationKernel) SpatialFunction(i int) *Polynomial2 {
	return k.spatial[i].Clone()
}

// SetSpatialParameters replaces every component's spatial coefficients.
// params[i] holds the coefficients of component i.
func (k *LinearCombinationKernel) SetSpatialParameters(params [][]float64) error {
	if len(k.spatial) == 0 {
		return errors.Wrap(errkind.ErrInvalidArgument, "kernel is not spatially varying")
	}
	if len(params) != len(k.spatial) {
		return errors.Wrapf(errkind.ErrInvalidArgument,
			"got coefficients for %d components, want %d", len(params), len(k.spatial))
	}
	for i, p := range params {
		if err := k.spatial[i].SetParameters(p); err != nil {
			return err
		}
	}
	return nil
}

// SetSpatialParametersFlat replaces every component's spatial
// coefficients from a single flat slice, component-major.
func (k *LinearCombinationKernel) SetSpatialParametersFlat(flat []float64) error {
	n := k.NSpatialParameters()
	if len(k.spatial) == 0 || len(flat) != len(k.spatial)*n {
		return errors.Wrapf(errkind.ErrInvalidArgument,
			"got %d flat coefficients, want %d", len(flat), len(k.spatial)*n)
	}
	for i := range k.spatial {
		if err := k.spatial[i].SetParameters(flat[i*n : (i+1)*n]); err != nil {
			return err
		}
	}
	return nil
}

// SpatialParametersFlat returns all spatial coefficients as a single
// component-major slice.
func (k *LinearCombinationKernel) SpatialParametersFlat() []float64 {
	n := k.NSpatialParameters()
	flat := make([]float64, len(k.spatial)*n)
	for i, p := range k.spatial {
		copy(flat[i*n:(i+1)*n], p.coeffs)
	}
	return flat
}

// SetKernelParameters replaces the fixed component weights of a
// non-spatially-varying kernel.
func (k *LinearCombinationKernel) SetKernelParameters(weights []float64) error {
	if len(k.spatial) > 0 {
		return errors.Wrap(errkind.ErrInvalidArgument, "kernel weights are spatially varying")
	}
	if len(weights) != len(k.weights) {
		return errors.Wrapf(errkind.ErrInvalidArgument,
			"got %d weights for %d components", len(weights), len(k.weights))
	}
	copy(k.weights, weights)
	return nil
}

// KernelParameters returns the component weights at field position (x, y).
func (k *LinearCombinationKernel) KernelParameters(x, y float64) []float64 {
	out := make([]float64, len(k.basis))
	for i := range k.basis {
		if len(k.spatial) > 0 {
			out[i] = k.spatial[i].Eval(x, y)
		} else {
			out[i] = k.weights[i]
		}
	}
	return out
}

// ComputeImage renders the weighted sum of the basis images at field
// position (x, y).
func (k *LinearCombinationKernel) ComputeImage(normalize bool, x, y float64) (*Image, error) {
	weights := k.KernelParameters(x, y)
	out := image.New[float64](k.Width(), k.Height())
	out.SetXY0(k.basis[0].X0(), k.basis[0].Y0())
	for i, b := range k.basis {
		w := weights[i]
		if w == 0 {
			continue
		}
		for yy := 0; yy < out.Height(); yy++ {
			for xx := 0; xx < out.Width(); xx++ {
				out.Set(xx, yy, out.At(xx, yy)+w*b.At(xx, yy))
			}
		}
	}
	if normalize {
		if err := normalizeSum(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// normalizeSum scales im to unit sum in place.
func normalizeSum(im *Image) error {
	sum := im.Sum()
	if sum == 0 {
		return errors.Wrap(errkind.ErrRange, "kernel sums to zero")
	}
	im.ScaleBy(1 / sum)
	return nil
}
