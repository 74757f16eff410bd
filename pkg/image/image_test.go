package image

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"starmeasure/pkg/errkind"
)

// TestImageAccessors verifies basic raster reads, writes and dimensions
func TestImageAccessors(t *testing.T) {
	im := New[float64](5, 3)

	if im.Width() != 5 || im.Height() != 3 {
		t.Errorf("Expected 5x3 image, got %dx%d", im.Width(), im.Height())
	}
	im.Set(2, 1, 7.5)
	if got := im.At(2, 1); got != 7.5 {
		t.Errorf("Expected 7.5 at (2,1), got %f", got)
	}
	im.AddScalar(1)
	if got := im.At(0, 0); got != 1 {
		t.Errorf("Expected 1 after AddScalar, got %f", got)
	}
	if got := im.Sum(); got != 15+7.5 {
		t.Errorf("Expected sum %f, got %f", 15+7.5, got)
	}
}

// TestSubimageOrigin verifies that a subimage stays aligned with the
// parent frame through its origin
func TestSubimageOrigin(t *testing.T) {
	im := New[float64](10, 10)
	im.SetXY0(100, 200)
	im.Set(4, 5, 42)

	sub, err := im.Subimage(Box{X0: 3, Y0: 4, Width: 4, Height: 4})
	if err != nil {
		t.Fatalf("Subimage failed: %v", err)
	}
	if sub.X0() != 103 || sub.Y0() != 204 {
		t.Errorf("Expected origin (103,204), got (%d,%d)", sub.X0(), sub.Y0())
	}
	if got := sub.At(1, 1); got != 42 {
		t.Errorf("Expected 42 at local (1,1), got %f", got)
	}

	// Deep copy: writes to the subimage do not touch the parent.
	sub.Set(0, 0, 9)
	if im.At(3, 4) != 0 {
		t.Error("Expected subimage to be a deep copy")
	}
}

// TestSubimageOutOfBounds verifies the out-of-bounds error kind
func TestSubimageOutOfBounds(t *testing.T) {
	im := New[float64](4, 4)

	_, err := im.Subimage(Box{X0: 2, Y0: 2, Width: 4, Height: 4})
	if !errors.Is(err, errkind.ErrOutOfBounds) {
		t.Errorf("Expected out-of-bounds error, got %v", err)
	}
}

// TestMaskPlanes verifies the standard planes and plane registration
func TestMaskPlanes(t *testing.T) {
	m := NewMask(3, 3)

	for i, name := range []string{PlaneBad, PlaneSat, PlaneInterp, PlaneCR, PlaneDetected} {
		bit, err := m.Planes().BitMask(name)
		if err != nil {
			t.Fatalf("Failed to look up plane %s: %v", name, err)
		}
		if bit != 1<<uint(i) {
			t.Errorf("Expected plane %s at bit %d, got mask %b", name, i, bit)
		}
	}

	if _, err := m.Planes().BitMask("NO_SUCH_PLANE"); !errors.Is(err, errkind.ErrNotFound) {
		t.Errorf("Expected not-found error, got %v", err)
	}

	bit, err := m.Planes().Add("EDGE")
	if err != nil {
		t.Fatalf("Failed to add plane: %v", err)
	}
	if bit != 1<<5 {
		t.Errorf("Expected new plane at bit 5, got mask %b", bit)
	}
	again, err := m.Planes().Add("EDGE")
	if err != nil || again != bit {
		t.Errorf("Expected re-adding a plane to return the same mask, got %b, %v", again, err)
	}
}

// TestMaskedImageSubimage verifies that all three planes are copied and
// the plane registry is shared
func TestMaskedImageSubimage(t *testing.T) {
	mi := NewMaskedImage[float32](8, 8)
	mi.Image().Set(3, 3, 5)
	mi.Variance().Set(3, 3, 2)
	crBit, _ := mi.PlaneBitMask(PlaneCR)
	mi.Mask().Or(3, 3, crBit)

	sub, err := mi.Subimage(Box{X0: 2, Y0: 2, Width: 3, Height: 3})
	if err != nil {
		t.Fatalf("Subimage failed: %v", err)
	}
	if got := sub.Image().At(1, 1); got != 5 {
		t.Errorf("Expected image value 5, got %f", got)
	}
	if got := sub.Variance().At(1, 1); got != 2 {
		t.Errorf("Expected variance 2, got %f", got)
	}
	if sub.Mask().At(1, 1)&crBit == 0 {
		t.Error("Expected CR bit copied into subimage")
	}
	if _, err := sub.PlaneBitMask(PlaneCR); err != nil {
		t.Errorf("Expected shared plane registry, got %v", err)
	}
}

// TestFootprintNormalize verifies span merging, pixel count and
// bounding box maintenance
func TestFootprintNormalize(t *testing.T) {
	fp := NewFootprint()
	fp.AddSpan(2, 5, 7)
	fp.AddSpan(2, 6, 9)
	fp.AddSpan(1, 3, 3)
	fp.Normalize()

	if len(fp.Spans()) != 2 {
		t.Fatalf("Expected 2 spans after merging, got %d", len(fp.Spans()))
	}
	if fp.Npix() != 1+5 {
		t.Errorf("Expected 6 pixels, got %d", fp.Npix())
	}
	bbox := fp.BBox()
	if bbox.X0 != 3 || bbox.Y0 != 1 || bbox.X1() != 9 || bbox.Y1() != 2 {
		t.Errorf("Expected bbox (3,1)-(9,2), got %+v", bbox)
	}

	// Pixel count always equals the sum of span widths.
	total := 0
	for _, s := range fp.Spans() {
		total += s.Width()
	}
	if total != fp.Npix() {
		t.Errorf("Expected span widths to sum to %d, got %d", fp.Npix(), total)
	}
}

// TestFootprintGrow verifies 8-connected growth by one pixel
func TestFootprintGrow(t *testing.T) {
	fp := NewFootprint()
	fp.AddSpan(5, 5, 5)

	grown := Grow(fp, 1)

	if grown.Npix() != 9 {
		t.Errorf("Expected 9 pixels after growing a single pixel, got %d", grown.Npix())
	}
	for y := 4; y <= 6; y++ {
		for x := 4; x <= 6; x++ {
			if !grown.Contains(x, y) {
				t.Errorf("Expected grown footprint to contain (%d,%d)", x, y)
			}
		}
	}
}

// TestFootprintAndMask verifies intersection with a mask plane
func TestFootprintAndMask(t *testing.T) {
	mi := NewMaskedImage[float64](6, 6)
	satBit, _ := mi.PlaneBitMask(PlaneSat)
	mi.Mask().Or(2, 2, satBit)

	fp := NewFootprint()
	fp.AddSpan(2, 1, 3)
	fp.AddSpan(3, 1, 3)

	hit := mi.FootprintAndMask(fp, satBit)
	if hit.Npix() != 1 || !hit.Contains(2, 2) {
		t.Errorf("Expected intersection {(2,2)}, got %+v", hit.Spans())
	}

	mi.SetMaskFromFootprint(fp, satBit)
	if mi.Mask().At(1, 3)&satBit == 0 {
		t.Error("Expected SAT bit painted over the footprint")
	}
}

// TestPositionToIndex verifies nearest-pixel rounding and the residual
// fraction convention
func TestPositionToIndex(t *testing.T) {
	cases := []struct {
		pos  float64
		idx  int
		frac float64
	}{
		{3.0, 3, 0},
		{3.4, 3, 0.4},
		{3.6, 4, -0.4},
		{2.5, 3, -0.5},
	}
	for _, c := range cases {
		idx, frac := PositionToIndex(c.pos)
		if idx != c.idx || math.Abs(frac-c.frac) > 1e-12 {
			t.Errorf("PositionToIndex(%f): expected (%d, %f), got (%d, %f)",
				c.pos, c.idx, c.frac, idx, frac)
		}
	}
}

// TestOffsetIdentity verifies that a zero shift reproduces the input
func TestOffsetIdentity(t *testing.T) {
	im := New[float64](9, 9)
	im.Set(4, 4, 1)

	out := Offset(im, 0, 0)

	for y := 0; y < 9; y++ {
		for x := 0; x < 9; x++ {
			if out.At(x, y) != im.At(x, y) {
				t.Errorf("Expected identical pixel at (%d,%d)", x, y)
			}
		}
	}
}

// TestOffsetShiftsCentroid verifies that a fractional shift moves a
// smooth profile's centroid by the requested amount
func TestOffsetShiftsCentroid(t *testing.T) {
	im := New[float64](21, 21)
	sigma := 2.0
	for y := 0; y < 21; y++ {
		for x := 0; x < 21; x++ {
			r2 := float64((x-10)*(x-10) + (y-10)*(y-10))
			im.Set(x, y, math.Exp(-r2/(2*sigma*sigma)))
		}
	}

	dx, dy := 0.3, -0.2
	out := Offset(im, dx, dy)

	centroid := func(im *Image[float64]) (float64, float64) {
		var sum, sx, sy float64
		for y := 0; y < im.Height(); y++ {
			for x := 0; x < im.Width(); x++ {
				v := im.At(x, y)
				sum += v
				sx += v * float64(x)
				sy += v * float64(y)
			}
		}
		return sx / sum, sy / sum
	}
	cx0, cy0 := centroid(im)
	cx1, cy1 := centroid(out)

	if math.Abs(cx1-cx0-dx) > 0.01 || math.Abs(cy1-cy0-dy) > 0.01 {
		t.Errorf("Expected centroid shift (%f, %f), got (%f, %f)",
			dx, dy, cx1-cx0, cy1-cy0)
	}
	if math.Abs(out.Sum()-im.Sum()) > 0.01*im.Sum() {
		t.Errorf("Expected flux preserved: %f vs %f", im.Sum(), out.Sum())
	}
}
