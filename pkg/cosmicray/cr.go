// Package cosmicray detects cosmic-ray hits in a masked image and
// repairs them. A hit shows up as one or a few pixels sharply brighter
// than their surroundings, too narrow to be a star: the detector
// compares each pixel against its directional neighbor means and the
// point-spread function profile, groups detections into connected
// footprints, grows them iteratively, and replaces the contaminated
// values with bias-corrected local interpolation.
package cosmicray

import (
	"math"
	"sort"

	"starmeasure/pkg/image"
	"starmeasure/pkg/psf"
)

// crPixel records a detected pixel's local coordinates and original
// value. seq is the insertion ticket used to restore values in birth
// order; id is the connected-component label assigned later.
type crPixel struct {
	col, row int
	val      float64
	seq      int
	id       int
}

// idSpan is a labeled horizontal run used during component labeling.
type idSpan struct {
	id, y, x0, x1 int
}

// resolveAlias follows the alias table to the root label, compressing
// the path behind it. Resolution is idempotent.
func resolveAlias(aliases []int, id int) int {
	resolved := id
	for aliases[resolved] != resolved {
		resolved = aliases[resolved]
	}
	aliases[id] = resolved
	return resolved
}

// thresholds carries the PSF-derived directional contrast limits.
type thresholds struct {
	ns, we, diag float64
}

// FindCosmicRays detects cosmic-ray hits in mi and returns one
// normalized Footprint per retained hit, in parent coordinates.
//
// The image is modified in place: the CR mask bit is set on every
// retained pixel, and unless keep is true the pixel values are replaced
// by interpolated estimates with the INTRP bit set. bkgd is the
// unsubtracted background level in DN. model supplies the PSF profile
// values used by the directional sharpness test.
func FindCosmicRays[P image.Pixel](mi *image.MaskedImage[P], model psf.Psf, bkgd float64, pol Policy, keep bool) ([]*image.Footprint, error) {
	if err := pol.Validate(); err != nil {
		return nil, err
	}

	badBit, err := mi.PlaneBitMask(image.PlaneBad)
	if err != nil {
		return nil, err
	}
	crBit, err := mi.PlaneBitMask(image.PlaneCR)
	if err != nil {
		return nil, err
	}
	interpBit, err := mi.PlaneBitMask(image.PlaneInterp)
	if err != nil {
		return nil, err
	}
	satBit, err := mi.PlaneBitMask(image.PlaneSat)
	if err != nil {
		return nil, err
	}
	detBadMask := badBit | interpBit | satBit
	repairBadMask := badBit | crBit | satBit | interpBit

	thres := thresholds{
		ns:   pol.Cond3Fac2 * model.Value(1, 0),
		we:   pol.Cond3Fac2 * model.Value(0, 1),
		diag: pol.Cond3Fac2 * model.Value(1, 1),
	}

	ncol, nrow := mi.Width(), mi.Height()
	im := mi.Image()

	// Initial sweep over interior pixels. Detected pixels are
	// overwritten with the directional estimate immediately so the
	// neighborhoods of pixels not yet visited see the cleaned value.
	var crpixels []crPixel
	for y := 1; y < nrow-1; y++ {
		for x := 1; x < ncol-1; x++ {
			loc := mi.LocatorAt(x, y)
			estimate, hit := isCRPixel(loc, thres, pol.MinSigma, pol.Cond3Fac, bkgd, detBadMask)
			if !hit {
				continue
			}
			crpixels = append(crpixels, crPixel{
				col: x,
				row: y,
				val: float64(im.At(x, y)),
				seq: len(crpixels),
				id:  -1,
			})
			loc.SetImage(estimate)
		}
	}
	if len(crpixels) == 0 {
		return nil, nil
	}

	// Label connected components. Each maximal horizontal run becomes
	// an idSpan; runs on adjacent rows that overlap, corners included,
	// are unioned through the alias table.
	sort.Slice(crpixels, func(i, j int) bool {
		if crpixels[i].row != crpixels[j].row {
			return crpixels[i].row < crpixels[j].row
		}
		return crpixels[i].col < crpixels[j].col
	})

	var spans []idSpan
	aliases := []int{0}
	for i := 0; i < len(crpixels); {
		j := i + 1
		for ; j < len(crpixels); j++ {
			if crpixels[j].row != crpixels[i].row || crpixels[j].col != crpixels[j-1].col+1 {
				break
			}
		}
		id := len(spans)
		if id > 0 {
			aliases = append(aliases, id)
		}
		spans = append(spans, idSpan{id: id, y: crpixels[i].row, x0: crpixels[i].col, x1: crpixels[j-1].col})
		for k := i; k < j; k++ {
			crpixels[k].id = id
		}
		i = j
	}

	for i, sp := range spans {
		for j := i + 1; j < len(spans) && spans[j].y <= sp.y+1; j++ {
			sp2 := spans[j]
			if sp2.y == sp.y+1 && sp2.x1 >= sp.x0-1 && sp2.x0 <= sp.x1+1 {
				aliases[resolveAlias(aliases, sp.id)] = resolveAlias(aliases, sp2.id)
			}
		}
	}
	for i := range spans {
		spans[i].id = resolveAlias(aliases, spans[i].id)
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].id != spans[j].id {
			return spans[i].id < spans[j].id
		}
		if spans[i].y != spans[j].y {
			return spans[i].y < spans[j].y
		}
		return spans[i].x0 < spans[j].x0
	})

	x0, y0 := mi.X0(), mi.Y0()
	var crs []*image.Footprint
	for i := 0; i < len(spans); {
		fp := image.NewFootprint()
		j := i
		for ; j < len(spans) && spans[j].id == spans[i].id; j++ {
			fp.AddSpan(spans[j].y+y0, spans[j].x0+x0, spans[j].x1+x0)
		}
		fp.Normalize()
		crs = append(crs, fp)
		i = j
	}

	// Reinstate the original values so the charge sum below and the
	// interpolation supports use unmodified data.
	for _, cp := range crpixels {
		im.Set(cp.col, cp.row, P(cp.val))
	}

	// Aggregate charge floor: drop candidates carrying too few electrons.
	retained := crs[:0]
	for _, cr := range crs {
		sum := 0.0
		cr.EachPixel(func(px, py int) {
			sum += float64(im.At(px-x0, py-y0)) - bkgd
		})
		if sum*pol.EPerDN >= pol.MinE {
			retained = append(retained, cr)
		}
	}
	crs = retained
	if len(crs) == 0 {
		return nil, nil
	}

	removeCR(mi, crs, bkgd, repairBadMask, satBit, interpBit, true, false, false)

	// Growth passes: re-test the rows around every span with a relaxed
	// threshold, extending footprints until a pass adds nothing.
	for iter := 0; iter < pol.NIteration; iter++ {
		nextra := 0
		for _, cr := range crs {
			if all := mi.FootprintAndMask(cr, interpBit); all.Npix() == cr.Npix() {
				continue
			}
			nextra += growFootprint(mi, cr, thres, pol, bkgd, detBadMask, keep, &crpixels)
		}
		if nextra == 0 {
			break
		}
		for _, cr := range crs {
			cr.Normalize()
		}
	}

	mi.SetMaskFromFootprints(crs, crBit)

	if keep {
		sort.Slice(crpixels, func(i, j int) bool { return crpixels[i].seq < crpixels[j].seq })
		for i := len(crpixels) - 1; i >= 0; i-- {
			im.Set(crpixels[i].col, crpixels[i].row, P(crpixels[i].val))
		}
	} else {
		removeCR(mi, crs, bkgd, repairBadMask, satBit, interpBit, true, true, true)
	}
	return crs, nil
}

// growFootprint re-runs the pixel test on the three rows around every
// span of cr with a halved sigma threshold and no noise-floor term,
// adding new detections to the footprint. It returns the number of
// pixels added.
func growFootprint[P image.Pixel](mi *image.MaskedImage[P], cr *image.Footprint, thres thresholds,
	pol Policy, bkgd float64, detBadMask image.MaskPixel, keep bool, crpixels *[]crPixel) int {

	ncol, nrow := mi.Width(), mi.Height()
	x0, y0 := mi.X0(), mi.Y0()
	im := mi.Image()

	nextra := 0
	for _, s := range cr.Spans() {
		for ly := s.Y - y0 - 1; ly <= s.Y-y0+1; ly++ {
			if ly < 2 || ly >= nrow-2 {
				continue
			}
			lo, hi := s.X0-x0-1, s.X1-x0+1
			if lo < 2 {
				lo = 2
			}
			if hi > ncol-3 {
				hi = ncol - 3
			}
			for lx := lo; lx <= hi; lx++ {
				if cr.Contains(lx+x0, ly+y0) {
					continue
				}
				loc := mi.LocatorAt(lx, ly)
				if _, hit := isCRPixel(loc, thres, pol.MinSigma/2, 0, bkgd, detBadMask); !hit {
					continue
				}
				if keep {
					*crpixels = append(*crpixels, crPixel{
						col: lx,
						row: ly,
						val: float64(im.At(lx, ly)),
						seq: len(*crpixels),
						id:  -1,
					})
				}
				cr.AddSpan(ly+y0, lx+x0, lx+x0)
				nextra++
			}
		}
	}
	return nextra
}

// isCRPixel applies the pixel-level detection conditions to the pixel
// under loc. On detection it returns the directional neighbor mean to
// substitute for the pixel.
func isCRPixel[P image.Pixel](loc image.Locator[P], thres thresholds, minSigma, cond3Fac, bkgd float64, badMask image.MaskPixel) (float64, bool) {
	v := loc.Image(0, 0)
	if v < 0 {
		return 0, false
	}
	variance := loc.Variance(0, 0)
	if variance < 0 {
		return 0, false
	}
	if loc.MaskBits(0, 0)&badMask != 0 {
		return 0, false
	}

	// Two-sided neighbor means and the sigma of each mean, in the fixed
	// order N-S, W-E, SW-NE, NW-SE.
	type direction struct {
		mean, sigma, thres float64
	}
	mean := func(dx, dy int) (float64, float64) {
		m := (loc.Image(-dx, -dy) + loc.Image(dx, dy)) / 2
		s := math.Sqrt(loc.Variance(-dx, -dy)+loc.Variance(dx, dy)) / 2
		return m, s
	}
	var dirs [4]direction
	dirs[0].mean, dirs[0].sigma = mean(0, 1)
	dirs[0].thres = thres.ns
	dirs[1].mean, dirs[1].sigma = mean(1, 0)
	dirs[1].thres = thres.we
	dirs[2].mean, dirs[2].sigma = mean(1, 1)
	dirs[2].thres = thres.diag
	dirs[3].mean, dirs[3].sigma = mean(1, -1)
	dirs[3].thres = thres.diag

	// Contrast over the local background: the pixel must stand above
	// every neighbor mean, or clear a raw DN floor when minSigma < 0.
	if minSigma < 0 {
		if v < -minSigma {
			return 0, false
		}
	} else {
		s := minSigma * math.Sqrt(variance)
		for _, d := range dirs {
			if v < d.mean+s {
				return 0, false
			}
		}
	}

	// Directional sharpness against the PSF profile: a pixel this much
	// brighter than a neighbor mean is too sharp to be a star's core.
	peak := v - bkgd
	corr := cond3Fac * math.Sqrt(variance)
	for _, d := range dirs {
		if d.thres*(peak-corr) > (d.mean-bkgd)+cond3Fac*d.sigma {
			return d.mean, true
		}
	}
	return 0, false
}
