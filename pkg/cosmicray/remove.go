package cosmicray

import (
	"math"
	"math/rand"

	"starmeasure/pkg/image"
)

// growSatLimit is the pixel count above which a cosmic ray is too large
// to be checked for saturation-trail contact.
const growSatLimit = 100

// removeCR replaces the pixels of the given cosmic rays by interpolated
// estimates, walking the footprints in reverse order. When grow is set,
// small footprints are grown by one pixel first and any that touch a
// saturated pixel are marked SAT instead of being interpolated. When
// setInterp is set, every pixel actually interpolated gets the INTRP
// bit. When debias is set, pixels repaired from two or more directional
// estimates have the minimum-of-Gaussians bias subtracted.
func removeCR[P image.Pixel](mi *image.MaskedImage[P], crs []*image.Footprint, bkgd float64,
	badMask, satBit, interpBit image.MaskPixel, debias, grow, setInterp bool) {

	x0, y0 := mi.X0(), mi.Y0()
	for i := len(crs) - 1; i >= 0; i-- {
		cr := crs[i]

		if grow && cr.Npix() < growSatLimit {
			grown := image.Grow(cr, 1)
			if mi.FootprintAndMask(grown, satBit).Npix() > 0 {
				mi.SetMaskFromFootprint(cr, satBit)
				continue
			}
		}

		cr.EachPixel(func(px, py int) {
			lx, ly := px-x0, py-y0
			if lx < 0 || ly < 0 || lx >= mi.Width() || ly >= mi.Height() {
				return
			}
			sigma := math.Sqrt(float64(mi.Variance().At(lx, ly)))
			minval := bkgd - 2*sigma

			var val float64
			ests := directionalEstimates(mi, lx, ly, badMask)
			good := ests[:0]
			for _, e := range ests {
				if e > minval {
					good = append(good, e)
				}
			}
			switch {
			case len(good) > 0:
				val = good[0]
				for _, e := range good[1:] {
					if e < val {
						val = e
					}
				}
				if debias && len(good) > 1 {
					val -= minOfTwoGaussiansBias * sigma
				}
			default:
				h, hok := singlePixel(mi, lx, ly, badMask, true, minval)
				v, vok := singlePixel(mi, lx, ly, badMask, false, minval)
				switch {
				case hok && vok:
					val = (h + v) / 2
				case hok:
					val = h
				case vok:
					val = v
				default:
					val = bkgd + sigma*rand.NormFloat64()
				}
			}

			mi.Image().Set(lx, ly, P(val))
			if setInterp {
				mi.Mask().Or(lx, ly, interpBit)
			}
		})
	}
}
