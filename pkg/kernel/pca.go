package kernel

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"starmeasure/pkg/errkind"
	"starmeasure/pkg/image"
)

// ImagePca computes the principal components of a set of images of
// identical dimensions. Each image carries a flux used as its weight in
// the decomposition, so bright inputs dominate the leading components.
type ImagePca struct {
	images []*Image
	fluxes []float64

	eigenImages []*Image
	eigenValues []float64
}

// NewImagePca returns an empty analysis.
func NewImagePca() *ImagePca {
	return &ImagePca{}
}

// AddImage adds an image with the given flux weight. The flux must be
// positive and the image must match the dimensions of those already added.
func (pca *ImagePca) AddImage(im *Image, flux float64) error {
	if flux <= 0 || math.IsNaN(flux) {
		return errors.Wrapf(errkind.ErrInvalidArgument, "flux %g", flux)
	}
	if len(pca.images) > 0 {
		first := pca.images[0]
		if im.Width() != first.Width() || im.Height() != first.Height() {
			return errors.Wrapf(errkind.ErrInvalidArgument,
				"image is %dx%d, want %dx%d",
				im.Width(), im.Height(), first.Width(), first.Height())
		}
	}
	pca.images = append(pca.images, im.Clone())
	pca.fluxes = append(pca.fluxes, flux)
	return nil
}

// NImages returns the number of images added so far.
func (pca *ImagePca) NImages() int { return len(pca.images) }

// Analyze computes the eigen-decomposition of the weighted image set.
// It must be called before EigenImages or EigenValues.
func (pca *ImagePca) Analyze() error {
	n := len(pca.images)
	if n == 0 {
		return errors.Wrap(errkind.ErrInvalidArgument, "no images to analyze")
	}

	// Normalize weights so the Gram matrix stays well scaled.
	wsum := 0.0
	for _, f := range pca.fluxes {
		wsum += f
	}
	w := make([]float64, n)
	for i, f := range pca.fluxes {
		w[i] = f / wsum
	}

	gram := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dot, err := InnerProduct(pca.images[i], pca.images[j], 0)
			if err != nil {
				return err
			}
			gram.SetSym(i, j, w[i]*w[j]*dot)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(gram, true); !ok {
		return errors.Wrap(errkind.ErrRange, "eigen-decomposition failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// gonum returns eigenvalues ascending; we want the largest first.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return vals[order[a]] > vals[order[b]] })

	pca.eigenValues = make([]float64, n)
	pca.eigenImages = make([]*Image, n)
	width, height := pca.images[0].Width(), pca.images[0].Height()
	for rank, k := range order {
		pca.eigenValues[rank] = vals[k]

		eim := image.New[float64](width, height)
		for i := 0; i < n; i++ {
			c := vecs.At(i, k) * w[i]
			if c == 0 {
				continue
			}
			for y := 0; y < height; y++ {
				for x := 0; x < width; x++ {
					eim.Set(x, y, eim.At(x, y)+c*pca.images[i].At(x, y))
				}
			}
		}
		norm, err := InnerProduct(eim, eim, 0)
		if err != nil {
			return err
		}
		if norm > 0 {
			eim.ScaleBy(1 / math.Sqrt(norm))
		}
		pca.eigenImages[rank] = eim
	}
	return nil
}

// EigenImages returns the unit-norm eigen-images, most significant first.
func (pca *ImagePca) EigenImages() []*Image { return pca.eigenImages }

// EigenValues returns the eigenvalues, most significant first.
func (pca *ImagePca) EigenValues() []float64 { return pca.eigenValues }
