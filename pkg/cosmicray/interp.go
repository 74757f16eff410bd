package cosmicray

import (
	"math"

	"starmeasure/pkg/image"
)

// 4-point symmetric local-polynomial interpolation coefficients. The
// estimate for a missing pixel from its neighbors at offsets -2, -1,
// +1, +2 along a line is c1*(v[-1]+v[+1]) + c2*(v[-2]+v[+2]); the
// diagonal variant accounts for the sqrt(2) pixel spacing.
const (
	interpC1     = 0.7737
	interpC2     = -0.2737
	interpDiagC1 = 0.7874
	interpDiagC2 = -0.2874
)

// minOfTwoGaussiansBias is the expected value of the minimum of two
// independent standard Gaussians, 1/sqrt(pi). Taking the minimum of
// several interpolation estimates biases the result low by this many
// sigma; the repair step subtracts it back out.
const minOfTwoGaussiansBias = 0.5641895835

// interpDirections lists the support offsets and coefficients of the
// four 4-point estimates, in the order W-E, N-S, SW-NE, NW-SE.
var interpDirections = [4]struct {
	dx, dy int
	c1, c2 float64
}{
	{1, 0, interpC1, interpC2},
	{0, 1, interpC1, interpC2},
	{1, 1, interpDiagC1, interpDiagC2},
	{1, -1, interpDiagC1, interpDiagC2},
}

// directionalEstimates returns the valid 4-point estimates for the
// pixel at local coordinates (x, y). An estimate is valid when all four
// of its support pixels lie inside the raster and carry none of the
// badMask bits.
func directionalEstimates[P image.Pixel](mi *image.MaskedImage[P], x, y int, badMask image.MaskPixel) []float64 {
	im, msk := mi.Image(), mi.Mask()
	w, h := mi.Width(), mi.Height()
	var out []float64
	for _, d := range interpDirections {
		ok := true
		var v [4]float64
		for i, step := range [4]int{-2, -1, 1, 2} {
			sx, sy := x+step*d.dx, y+step*d.dy
			if sx < 0 || sy < 0 || sx >= w || sy >= h || msk.At(sx, sy)&badMask != 0 {
				ok = false
				break
			}
			v[i] = float64(im.At(sx, sy))
		}
		if ok {
			out = append(out, d.c1*(v[1]+v[2])+d.c2*(v[0]+v[3]))
		}
	}
	return out
}

// singlePixel interpolates the pixel at local coordinates (x, y) from
// the nearest clean pixel on each side along a row (horizontal) or a
// column. It fails when either side has no clean pixel or the result
// does not exceed minval.
func singlePixel[P image.Pixel](mi *image.MaskedImage[P], x, y int, badMask image.MaskPixel, horizontal bool, minval float64) (float64, bool) {
	im, msk := mi.Image(), mi.Mask()

	clean := func(sx, sy int) bool { return msk.At(sx, sy)&badMask == 0 }

	var loVal, hiVal float64
	loDist, hiDist := 0, 0
	if horizontal {
		for sx := x - 1; sx >= 0; sx-- {
			if clean(sx, y) {
				loVal, loDist = float64(im.At(sx, y)), x-sx
				break
			}
		}
		for sx := x + 1; sx < mi.Width(); sx++ {
			if clean(sx, y) {
				hiVal, hiDist = float64(im.At(sx, y)), sx-x
				break
			}
		}
	} else {
		for sy := y - 1; sy >= 0; sy-- {
			if clean(x, sy) {
				loVal, loDist = float64(im.At(x, sy)), y-sy
				break
			}
		}
		for sy := y + 1; sy < mi.Height(); sy++ {
			if clean(x, sy) {
				hiVal, hiDist = float64(im.At(x, sy)), sy-y
				break
			}
		}
	}
	if loDist == 0 || hiDist == 0 {
		return 0, false
	}
	val := (loVal*float64(hiDist) + hiVal*float64(loDist)) / float64(loDist+hiDist)
	if val <= minval || math.IsNaN(val) {
		return 0, false
	}
	return val, true
}
