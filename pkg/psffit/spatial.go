package psffit

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"starmeasure/pkg/errkind"
	"starmeasure/pkg/image"
	"starmeasure/pkg/kernel"
)

// Params bundles the spatial-fit settings.
type Params struct {
	// NEigenComponents is the number of eigen-PSF images to keep; zero
	// or negative keeps all of them.
	NEigenComponents int `yaml:"n_eigen_components"`
	// SpatialOrder is the order of the 2-D polynomials giving each
	// component's weight across the field.
	SpatialOrder int `yaml:"spatial_order"`
	// KernelSize is the (odd) width and height of the kernel stamps.
	KernelSize int `yaml:"kernel_size"`
	// NStarPerCell limits how many stars each spatial cell contributes;
	// zero or negative uses them all.
	NStarPerCell int `yaml:"n_star_per_cell"`
	// ConstantWeight gives every star equal weight in the PCA instead
	// of weighting by flux.
	ConstantWeight bool `yaml:"constant_weight"`
	// Tolerance is the convergence tolerance of the nonlinear fit.
	Tolerance float64 `yaml:"tolerance"`
}

// DefaultParams returns the standard fit settings.
func DefaultParams() Params {
	return Params{
		NEigenComponents: 4,
		SpatialOrder:     2,
		KernelSize:       15,
		NStarPerCell:     3,
		ConstantWeight:   true,
		Tolerance:        1e-5,
	}
}

// CreateKernelFromPsfCandidates runs a weighted PCA over the candidate
// stamps and returns a spatially varying kernel whose basis images are
// the leading eigen-PSFs, together with the eigenvalues of the kept
// components. Candidates whose stamp cannot be extracted are skipped.
//
// Each stamp is recentered onto the pixel grid with a Lanczos resampler
// before entering the PCA, and each kept eigen-image has the mean of
// its outer border subtracted so a variable sky background does not
// leak into the PSF shape.
func CreateKernelFromPsfCandidates[P image.Pixel](cells *SpatialCellSet[P],
	nEigenComponents, spatialOrder, ksize, nStarPerCell int,
	constantWeight bool) (*kernel.LinearCombinationKernel, []float64, error) {

	pca := kernel.NewImagePca()
	var visitErr error
	cells.VisitCandidates(nStarPerCell, func(cand *PsfCandidate[P]) {
		if visitErr != nil {
			return
		}
		cand.SetSize(ksize, ksize)
		stamp, err := cand.Image()
		if err != nil {
			if errors.Is(err, errkind.ErrOutOfBounds) {
				return
			}
			visitErr = err
			return
		}
		_, dx := image.PositionToIndex(cand.XCenter())
		_, dy := image.PositionToIndex(cand.YCenter())
		centered := image.Offset(toFloat64(stamp.Image()), -dx, -dy)

		weight := 1.0
		if !constantWeight {
			weight = cand.Flux()
		}
		if err := pca.AddImage(centered, weight); err != nil {
			visitErr = err
		}
	})
	if visitErr != nil {
		return nil, nil, visitErr
	}
	if err := pca.Analyze(); err != nil {
		return nil, nil, err
	}

	eigenImages := pca.EigenImages()
	ncomp := len(eigenImages)
	if nEigenComponents > 0 && nEigenComponents < ncomp {
		ncomp = nEigenComponents
	}

	basis := make([]*kernel.Image, ncomp)
	for i := 0; i < ncomp; i++ {
		basis[i] = eigenImages[i].Clone()
		subtractBorderMean(basis[i])
	}
	k, err := kernel.NewSpatialLinearCombinationKernel(basis, spatialOrder)
	if err != nil {
		return nil, nil, err
	}
	eigenValues := make([]float64, ncomp)
	copy(eigenValues, pca.EigenValues())
	return k, eigenValues, nil
}

// subtractBorderMean subtracts the mean of the outer-border pixels,
// using a frame of width min(2, width, height).
func subtractBorderMean(im *kernel.Image) {
	border := 2
	if im.Width() < border {
		border = im.Width()
	}
	if im.Height() < border {
		border = im.Height()
	}
	sum, n := 0.0, 0
	for y := 0; y < im.Height(); y++ {
		for x := 0; x < im.Width(); x++ {
			if x >= border && x < im.Width()-border && y >= border && y < im.Height()-border {
				continue
			}
			sum += im.At(x, y)
			n++
		}
	}
	if n > 0 {
		im.AddScalar(-sum / float64(n))
	}
}

// toFloat64 copies an image plane into a float64 raster.
func toFloat64[P image.Pixel](im *image.Image[P]) *kernel.Image {
	out := image.New[float64](im.Width(), im.Height())
	out.SetXY0(im.X0(), im.Y0())
	for y := 0; y < im.Height(); y++ {
		for x := 0; x < im.Width(); x++ {
			out.Set(x, y, float64(im.At(x, y)))
		}
	}
	return out
}

// FitSpatialKernelFromPsfCandidates fits the kernel's spatial
// coefficients to the candidates: a direct linear least-squares solve
// on the normal equations by default, or a quasi-Newton chi-squared
// minimization when doNonLinearFit is set. It returns whether the fit
// is usable and the total chi-squared over all candidates.
func FitSpatialKernelFromPsfCandidates[P image.Pixel](k *kernel.LinearCombinationKernel,
	cells *SpatialCellSet[P], doNonLinearFit bool, nStarPerCell int, tolerance float64) (bool, float64, error) {

	if doNonLinearFit {
		return fitSpatialNonLinear(k, cells, nStarPerCell, tolerance)
	}
	return fitSpatialLinear(k, cells, nStarPerCell)
}

// fitSpatialLinear assembles and solves the normal equations over the
// kernel's N*S spatial coefficients.
func fitSpatialLinear[P image.Pixel](k *kernel.LinearCombinationKernel,
	cells *SpatialCellSet[P], nStarPerCell int) (bool, float64, error) {

	a, b, err := fillAB(k, cells, nStarPerCell)
	if err != nil {
		return false, 0, err
	}
	x, err := solveNormal(a, b)
	if err != nil {
		return false, 0, err
	}
	if err := k.SetSpatialParametersFlat(x); err != nil {
		return false, 0, err
	}
	chi2, err := evalChi2(k, cells, nStarPerCell)
	if err != nil {
		return false, 0, err
	}
	return true, chi2, nil
}

// fillAB builds the normal-equations system A x = b over the flat
// coefficient vector, component-major. The basis-basis inner products
// are candidate-independent and computed once.
func fillAB[P image.Pixel](k *kernel.LinearCombinationKernel,
	cells *SpatialCellSet[P], nStarPerCell int) (*mat.SymDense, []float64, error) {

	nc := k.NBasisKernels()
	ns := k.NSpatialParameters()
	if ns == 0 {
		return nil, nil, errors.Wrap(errkind.ErrInvalidArgument, "kernel is not spatially varying")
	}
	dim := nc * ns

	basisDotBasis := make([][]float64, nc)
	basis := make([]*kernel.Image, nc)
	for i := 0; i < nc; i++ {
		basis[i] = k.BasisImage(i)
	}
	for i := 0; i < nc; i++ {
		basisDotBasis[i] = make([]float64, nc)
		for j := 0; j < nc; j++ {
			dot, err := kernel.InnerProduct(basis[i], basis[j], 0)
			if err != nil {
				return nil, nil, err
			}
			basisDotBasis[i][j] = dot
		}
	}

	a := mat.NewSymDense(dim, nil)
	b := make([]float64, dim)
	phi := k.SpatialFunction(0)

	var visitErr error
	cells.VisitCandidates(nStarPerCell, func(cand *PsfCandidate[P]) {
		if visitErr != nil {
			return
		}
		stamp, err := cand.Image()
		if err != nil {
			if errors.Is(err, errkind.ErrOutOfBounds) {
				return
			}
			visitErr = err
			return
		}
		variance, err := cand.Variance()
		if err != nil {
			visitErr = err
			return
		}
		amp, err := cand.Amplitude()
		if err != nil {
			visitErr = err
			return
		}
		if variance <= 0 || amp == 0 {
			return
		}
		ivar := 1 / variance

		data := toFloat64(stamp.Image())
		dfdp := phi.DFuncDParameters(cand.XCenter(), cand.YCenter())

		basisDotData := make([]float64, nc)
		for c := 0; c < nc; c++ {
			dot, err := kernel.InnerProduct(basis[c], data, 0)
			if err != nil {
				visitErr = err
				return
			}
			basisDotData[c] = dot
		}

		for c := 0; c < nc; c++ {
			for s := 0; s < ns; s++ {
				row := c*ns + s
				b[row] += ivar * dfdp[s] * basisDotData[c] / amp
				for c2 := 0; c2 < nc; c2++ {
					for s2 := 0; s2 < ns; s2++ {
						col := c2*ns + s2
						if col < row {
							continue
						}
						a.SetSym(row, col, a.At(row, col)+
							ivar*dfdp[s]*dfdp[s2]*basisDotBasis[c][c2])
					}
				}
			}
		}
	})
	if visitErr != nil {
		return nil, nil, visitErr
	}
	return a, b, nil
}

// solveNormal solves the symmetric system A x = b by Cholesky, falling
// back to QR when the matrix is not numerically positive definite.
func solveNormal(a *mat.SymDense, b []float64) ([]float64, error) {
	dim := len(b)
	rhs := mat.NewVecDense(dim, b)
	var x mat.VecDense

	var chol mat.Cholesky
	if chol.Factorize(a) {
		if err := chol.SolveVecTo(&x, rhs); err == nil {
			return x.RawVector().Data, nil
		}
	}

	var qr mat.QR
	qr.Factorize(a)
	if err := qr.SolveVecTo(&x, false, rhs); err != nil {
		return nil, errors.Wrap(errkind.ErrRange, "normal equations are singular")
	}
	return x.RawVector().Data, nil
}

// evalChi2 refits every candidate's amplitude against the kernel
// evaluated at its position, caches the per-candidate amplitude and
// chi-squared, and returns the total chi-squared.
func evalChi2[P image.Pixel](k *kernel.LinearCombinationKernel,
	cells *SpatialCellSet[P], nStarPerCell int) (float64, error) {

	total := 0.0
	var visitErr error
	cells.VisitCandidates(nStarPerCell, func(cand *PsfCandidate[P]) {
		if visitErr != nil {
			return
		}
		stamp, err := cand.Image()
		if err != nil {
			if errors.Is(err, errkind.ErrOutOfBounds) {
				return
			}
			visitErr = err
			return
		}
		kim, err := k.ComputeImage(false, cand.XCenter(), cand.YCenter())
		if err != nil {
			visitErr = err
			return
		}
		amp, chi2, err := fitKernel(kim, stamp)
		if err != nil {
			visitErr = errors.Wrapf(err, "candidate at (%.1f, %.1f)", cand.XCenter(), cand.YCenter())
			return
		}
		cand.SetAmplitude(amp)
		cand.SetChi2(chi2)
		total += chi2
	})
	if visitErr != nil {
		return 0, visitErr
	}
	return total, nil
}

// fitKernel fits the scalar amplitude minimizing
// sum((data - amp*model)^2 / variance) in closed form, skipping pixels
// with zero variance. Returns the amplitude and the chi-squared at the
// minimum; fails with a range error when the model has zero norm over
// the usable pixels.
func fitKernel[P image.Pixel](model *kernel.Image, data *image.MaskedImage[P]) (float64, float64, error) {
	if model.Width() != data.Width() || model.Height() != data.Height() {
		return 0, 0, errors.Wrapf(errkind.ErrInvalidArgument,
			"model is %dx%d, data is %dx%d",
			model.Width(), model.Height(), data.Width(), data.Height())
	}
	var sumMM, sumMD, sumDD float64
	for y := 0; y < model.Height(); y++ {
		for x := 0; x < model.Width(); x++ {
			v := float64(data.Variance().At(x, y))
			if v == 0 {
				continue
			}
			m := model.At(x, y)
			d := float64(data.Image().At(x, y))
			sumMM += m * m / v
			sumMD += m * d / v
			sumDD += d * d / v
		}
	}
	if sumMM == 0 {
		return 0, 0, errors.Wrap(errkind.ErrRange, "model norm is zero")
	}
	amp := sumMD / sumMM
	chi2 := sumDD - 2*amp*sumMD + amp*amp*sumMM
	return amp, chi2, nil
}

// fitSpatialNonLinear minimizes the total chi-squared over the flat
// coefficient vector with a quasi-Newton optimizer. The first
// coefficient is held fixed to remove the overall-scale degeneracy;
// the best point found is adopted even when the optimizer does not
// report convergence.
func fitSpatialNonLinear[P image.Pixel](k *kernel.LinearCombinationKernel,
	cells *SpatialCellSet[P], nStarPerCell int, tolerance float64) (bool, float64, error) {

	nc := k.NBasisKernels()
	ns := k.NSpatialParameters()
	if ns == 0 {
		return false, 0, errors.Wrap(errkind.ErrInvalidArgument, "kernel is not spatially varying")
	}

	// Start every component at constant weight one.
	init := make([]float64, nc*ns)
	for c := 0; c < nc; c++ {
		init[c*ns] = 1
	}
	fixed := init[0]

	objective := func(free []float64) float64 {
		flat := make([]float64, nc*ns)
		flat[0] = fixed
		copy(flat[1:], free)
		if err := k.SetSpatialParametersFlat(flat); err != nil {
			return math.Inf(1)
		}
		chi2, err := evalChi2(k, cells, nStarPerCell)
		if err != nil {
			return math.Inf(1)
		}
		return chi2
	}

	if nc*ns == 1 {
		if err := k.SetSpatialParametersFlat(init); err != nil {
			return false, 0, err
		}
		chi2, err := evalChi2(k, cells, nStarPerCell)
		if err != nil {
			return false, 0, err
		}
		return true, chi2, nil
	}

	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   tolerance,
			Iterations: 10,
		},
	}
	result, optErr := optimize.Minimize(problem, init[1:], settings, &optimize.BFGS{})

	best := init[1:]
	if result != nil {
		best = result.X
	}
	flat := make([]float64, nc*ns)
	flat[0] = fixed
	copy(flat[1:], best)
	if err := k.SetSpatialParametersFlat(flat); err != nil {
		return false, 0, err
	}
	chi2, err := evalChi2(k, cells, nStarPerCell)
	if err != nil {
		return false, 0, err
	}
	isValid := optErr == nil && !math.IsNaN(chi2) && !math.IsInf(chi2, 0)
	return isValid, chi2, nil
}
