package image

import "math"

// lanczosOrder is the order of the separable Lanczos kernel used for
// sub-pixel shifts.
const lanczosOrder = 5

// PositionToIndex splits a continuous position into the index of the
// nearest pixel and the residual fraction in [-0.5, 0.5).
func PositionToIndex(pos float64) (int, float64) {
	idx := int(math.Floor(pos + 0.5))
	return idx, pos - float64(idx)
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// lanczos evaluates the order-n windowed sinc at t; zero outside |t| < n.
func lanczos(t float64, n int) float64 {
	if t <= -float64(n) || t >= float64(n) {
		return 0
	}
	return sinc(t) * sinc(t/float64(n))
}

// lanczosWeights returns the resampling taps that shift image content
// by frac in [-0.5, 0.5): the output pixel x samples the input at
// x - frac. The taps span indices k0 .. k0+len(w)-1 relative to the
// output pixel and are normalized to unit sum.
func lanczosWeights(frac float64) (w []float64, k0 int) {
	k0 = -(lanczosOrder - 1)
	w = make([]float64, 2*lanczosOrder)
	sum := 0.0
	for i := range w {
		w[i] = lanczos(float64(k0+i)+frac, lanczosOrder)
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w, k0
}

// Offset shifts the content of src by the fractional amounts (dx, dy)
// in [-0.5, 0.5) using a separable Lanczos kernel, returning a new
// image of the same dimensions and origin. A zero shift reproduces src
// exactly. Taps falling outside the raster are clamped to the nearest
// edge pixel.
func Offset[P Pixel](src *Image[P], dx, dy float64) *Image[P] {
	if dx == 0 && dy == 0 {
		return src.Clone()
	}
	w, h := src.Width(), src.Height()

	clamp := func(i, n int) int {
		if i < 0 {
			return 0
		}
		if i >= n {
			return n - 1
		}
		return i
	}

	// Rows first, then columns.
	tmp := New[float64](w, h)
	wx, kx0 := lanczosWeights(dx)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 0.0
			for i, wv := range wx {
				v += wv * float64(src.At(clamp(x+kx0+i, w), y))
			}
			tmp.Set(x, y, v)
		}
	}

	out := New[P](w, h)
	out.SetXY0(src.X0(), src.Y0())
	wy, ky0 := lanczosWeights(dy)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 0.0
			for i, wv := range wy {
				v += wv * tmp.At(x, clamp(y+ky0+i, h))
			}
			out.Set(x, y, P(v))
		}
	}
	return out
}
