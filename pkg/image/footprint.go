package image

import "sort"

// Span is a run of pixels on a single row; X0 and X1 are inclusive.
type Span struct {
	Y, X0, X1 int
}

// Width returns the number of pixels in the span.
func (s Span) Width() int { return s.X1 - s.X0 + 1 }

// Footprint is a set of pixels described as an ordered list of row-spans,
// in parent-frame coordinates. A normalized Footprint's spans are sorted
// by (y, x0) and non-overlapping; its bounding box and pixel count are
// kept current by AddSpan and Normalize.
type Footprint struct {
	spans []Span
	bbox  Box
	npix  int
}

// NewFootprint returns an empty Footprint.
func NewFootprint() *Footprint {
	return &Footprint{}
}

// AddSpan appends the run y, x0..x1 (inclusive) to the footprint.
func (f *Footprint) AddSpan(y, x0, x1 int) {
	f.spans = append(f.spans, Span{Y: y, X0: x0, X1: x1})
	f.npix += x1 - x0 + 1
	if len(f.spans) == 1 {
		f.bbox = Box{X0: x0, Y0: y, Width: x1 - x0 + 1, Height: 1}
		return
	}
	f.growBBox(y, x0, x1)
}

func (f *Footprint) growBBox(y, x0, x1 int) {
	bx1, by1 := f.bbox.X1(), f.bbox.Y1()
	if x0 < f.bbox.X0 {
		f.bbox.X0 = x0
	}
	if y < f.bbox.Y0 {
		f.bbox.Y0 = y
	}
	if x1 > bx1 {
		bx1 = x1
	}
	if y > by1 {
		by1 = y
	}
	f.bbox.Width = bx1 - f.bbox.X0 + 1
	f.bbox.Height = by1 - f.bbox.Y0 + 1
}

// Spans returns the footprint's spans. The slice is owned by the
// footprint and must not be modified.
func (f *Footprint) Spans() []Span { return f.spans }

// Npix returns the number of pixels in the footprint.
func (f *Footprint) Npix() int { return f.npix }

// BBox returns the bounding box of the footprint.
func (f *Footprint) BBox() Box { return f.bbox }

// Contains reports whether the pixel (x, y) belongs to the footprint.
func (f *Footprint) Contains(x, y int) bool {
	for _, s := range f.spans {
		if s.Y == y && x >= s.X0 && x <= s.X1 {
			return true
		}
	}
	return false
}

// Normalize sorts the spans by (y, x0) and merges overlapping or
// touching runs on the same row, then recomputes the bounding box and
// pixel count.
func (f *Footprint) Normalize() {
	if len(f.spans) == 0 {
		return
	}
	sort.Slice(f.spans, func(i, j int) bool {
		if f.spans[i].Y != f.spans[j].Y {
			return f.spans[i].Y < f.spans[j].Y
		}
		return f.spans[i].X0 < f.spans[j].X0
	})
	merged := f.spans[:1]
	for _, s := range f.spans[1:] {
		last := &merged[len(merged)-1]
		if s.Y == last.Y && s.X0 <= last.X1+1 {
			if s.X1 > last.X1 {
				last.X1 = s.X1
			}
			continue
		}
		merged = append(merged, s)
	}
	f.spans = merged
	f.npix = 0
	f.bbox = Box{X0: f.spans[0].X0, Y0: f.spans[0].Y, Width: f.spans[0].Width(), Height: 1}
	for i, s := range f.spans {
		f.npix += s.Width()
		if i > 0 {
			f.growBBox(s.Y, s.X0, s.X1)
		}
	}
}

// EachPixel calls fn for every pixel of the footprint, span by span,
// in parent coordinates.
func (f *Footprint) EachPixel(fn func(x, y int)) {
	for _, s := range f.spans {
		for x := s.X0; x <= s.X1; x++ {
			fn(x, s.Y)
		}
	}
}

// Grow returns a new normalized Footprint expanded by n pixels in every
// direction, diagonals included.
func Grow(f *Footprint, n int) *Footprint {
	out := NewFootprint()
	for _, s := range f.spans {
		for dy := -n; dy <= n; dy++ {
			out.AddSpan(s.Y+dy, s.X0-n, s.X1+n)
		}
	}
	out.Normalize()
	return out
}

// FootprintAndMask returns the normalized intersection of the footprint
// with the pixels whose mask has any of the given bits set. Pixels
// outside the image are ignored.
func (mi *MaskedImage[P]) FootprintAndMask(f *Footprint, bits MaskPixel) *Footprint {
	out := NewFootprint()
	x0, y0 := mi.X0(), mi.Y0()
	f.EachPixel(func(x, y int) {
		lx, ly := x-x0, y-y0
		if lx < 0 || ly < 0 || lx >= mi.Width() || ly >= mi.Height() {
			return
		}
		if mi.msk.At(lx, ly)&bits != 0 {
			out.AddSpan(y, x, x)
		}
	})
	out.Normalize()
	return out
}

// SetMaskFromFootprint sets the given bits for every footprint pixel
// that lies inside the image.
func (mi *MaskedImage[P]) SetMaskFromFootprint(f *Footprint, bits MaskPixel) {
	x0, y0 := mi.X0(), mi.Y0()
	f.EachPixel(func(x, y int) {
		lx, ly := x-x0, y-y0
		if lx < 0 || ly < 0 || lx >= mi.Width() || ly >= mi.Height() {
			return
		}
		mi.msk.Or(lx, ly, bits)
	})
}

// SetMaskFromFootprints applies SetMaskFromFootprint to every footprint
// in the list.
func (mi *MaskedImage[P]) SetMaskFromFootprints(fps []*Footprint, bits MaskPixel) {
	for _, f := range fps {
		mi.SetMaskFromFootprint(f, bits)
	}
}

// ApplyFootprint positions a locator on every footprint pixel that lies
// inside the image and calls fn with the locator and the pixel's parent
// coordinates.
func (mi *MaskedImage[P]) ApplyFootprint(f *Footprint, fn func(loc Locator[P], x, y int)) {
	x0, y0 := mi.X0(), mi.Y0()
	for _, s := range f.spans {
		ly := s.Y - y0
		if ly < 0 || ly >= mi.Height() {
			continue
		}
		for x := s.X0; x <= s.X1; x++ {
			lx := x - x0
			if lx < 0 || lx >= mi.Width() {
				continue
			}
			fn(mi.LocatorAt(lx, ly), x, s.Y)
		}
	}
}
