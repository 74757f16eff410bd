package psffit

import (
	"sort"

	"github.com/pkg/errors"

	"starmeasure/pkg/errkind"
	"starmeasure/pkg/image"
)

// SpatialCell holds the candidates falling inside one grid cell,
// brightest first.
type SpatialCell[P image.Pixel] struct {
	bbox       image.Box
	candidates []*PsfCandidate[P]
}

// BBox returns the cell's extent in parent coordinates.
func (c *SpatialCell[P]) BBox() image.Box { return c.bbox }

// NCandidates returns the number of candidates in the cell.
func (c *SpatialCell[P]) NCandidates() int { return len(c.candidates) }

// SpatialCellSet partitions a region into a fixed grid of cells so that
// PSF candidates are drawn evenly from across the field. Traversal is
// deterministic: cells row-major, candidates within a cell by
// descending flux.
type SpatialCellSet[P image.Pixel] struct {
	bbox                  image.Box
	cellWidth, cellHeight int
	nx, ny                int
	cells                 []*SpatialCell[P]
}

// NewSpatialCellSet grids bbox into cells of at most the given size.
func NewSpatialCellSet[P image.Pixel](bbox image.Box, cellWidth, cellHeight int) (*SpatialCellSet[P], error) {
	if bbox.Width <= 0 || bbox.Height <= 0 || cellWidth <= 0 || cellHeight <= 0 {
		return nil, errors.Wrapf(errkind.ErrInvalidArgument,
			"cell grid %dx%d over %+v", cellWidth, cellHeight, bbox)
	}
	nx := (bbox.Width + cellWidth - 1) / cellWidth
	ny := (bbox.Height + cellHeight - 1) / cellHeight
	set := &SpatialCellSet[P]{
		bbox:       bbox,
		cellWidth:  cellWidth,
		cellHeight: cellHeight,
		nx:         nx,
		ny:         ny,
		cells:      make([]*SpatialCell[P], nx*ny),
	}
	for iy := 0; iy < ny; iy++ {
		for ix := 0; ix < nx; ix++ {
			cb := image.Box{
				X0:     bbox.X0 + ix*cellWidth,
				Y0:     bbox.Y0 + iy*cellHeight,
				Width:  cellWidth,
				Height: cellHeight,
			}
			if over := cb.X1() - bbox.X1(); over > 0 {
				cb.Width -= over
			}
			if over := cb.Y1() - bbox.Y1(); over > 0 {
				cb.Height -= over
			}
			set.cells[iy*nx+ix] = &SpatialCell[P]{bbox: cb}
		}
	}
	return set, nil
}

// NCells returns the number of grid cells.
func (s *SpatialCellSet[P]) NCells() int { return len(s.cells) }

// InsertCandidate places cand in the cell containing its centroid,
// keeping the cell ordered by descending flux.
func (s *SpatialCellSet[P]) InsertCandidate(cand *PsfCandidate[P]) error {
	ix, _ := image.PositionToIndex(cand.XCenter())
	iy, _ := image.PositionToIndex(cand.YCenter())
	if !s.bbox.Contains(ix, iy) {
		return errors.Wrapf(errkind.ErrOutOfBounds,
			"candidate at (%.1f, %.1f) outside %+v", cand.XCenter(), cand.YCenter(), s.bbox)
	}
	cx := (ix - s.bbox.X0) / s.cellWidth
	cy := (iy - s.bbox.Y0) / s.cellHeight
	cell := s.cells[cy*s.nx+cx]
	cell.candidates = append(cell.candidates, cand)
	sort.SliceStable(cell.candidates, func(i, j int) bool {
		return cell.candidates[i].Flux() > cell.candidates[j].Flux()
	})
	return nil
}

// VisitCandidates calls fn for up to n candidates per cell, brightest
// first; n <= 0 visits every candidate.
func (s *SpatialCellSet[P]) VisitCandidates(n int, fn func(*PsfCandidate[P])) {
	for _, cell := range s.cells {
		for i, cand := range cell.candidates {
			if n > 0 && i >= n {
				break
			}
			fn(cand)
		}
	}
}

// VisitAllCandidates calls fn for every candidate in traversal order.
func (s *SpatialCellSet[P]) VisitAllCandidates(fn func(*PsfCandidate[P])) {
	s.VisitCandidates(0, fn)
}

// CountPsfCandidates returns how many candidates a traversal with the
// given per-cell limit would visit whose stamps can be extracted.
func CountPsfCandidates[P image.Pixel](s *SpatialCellSet[P], nStarPerCell int) int {
	n := 0
	s.VisitCandidates(nStarPerCell, func(c *PsfCandidate[P]) {
		if _, err := c.Image(); err == nil {
			n++
		}
	})
	return n
}
