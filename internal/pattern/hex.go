package pattern

import (
	"fmt"
	"math"
)

// HexLattice returns Gaussian peaks centered on the nodes of a hexagonal
// lattice with the given lattice constant, rotated by angle degrees.
//
// The lattice itself is never rotated. Sample coordinates are mapped through
// x' = x*cos + y*sin, y' = -x*sin + y*cos instead, which places node q of the
// unrotated lattice at R(angle)*q: positive angles turn the pattern
// counter-clockwise in the (x, y) frame.
//
// Sampling happens on a 2h x 2w oversampled grid and the top-left h x w block
// is returned, so nodes rotated in from outside the canvas are not truncated.
func HexLattice(height, width int, latticeConstant, angle float64) (*Field, error) {
	if !isFinite(angle) {
		return nil, fmt.Errorf("%w: angle %v", ErrInvalidParameter, angle)
	}
	basis, err := NewLatticeBasis(latticeConstant)
	if err != nil {
		return nil, err
	}
	grid, err := NewGrid(height, width, true)
	if err != nil {
		return nil, err
	}
	buf, err := NewField(grid.Height(), grid.Width())
	if err != nil {
		return nil, err
	}

	s := newLatticeSampler(basis, angle)
	fillRows(buf, func(row int, dst []float64) {
		for col := range dst {
			dst[col] = s.at(grid.Point(row, col))
		}
	})
	return buf.Crop(height, width)
}

// latticeSampler evaluates the rotated lattice field at a single point.
type latticeSampler struct {
	basis      *LatticeBasis
	sin, cos   float64
	twoSigmaSq float64
}

func newLatticeSampler(basis *LatticeBasis, angle float64) latticeSampler {
	sin, cos := math.Sincos(angle * math.Pi / 180)
	sigma := basis.Constant() / 4
	return latticeSampler{
		basis:      basis,
		sin:        sin,
		cos:        cos,
		twoSigmaSq: 2 * sigma * sigma,
	}
}

func (s latticeSampler) at(x, y float64) float64 {
	xr := x*s.cos + y*s.sin
	yr := -x*s.sin + y*s.cos
	nx, ny := s.basis.Nearest(xr, yr)
	dx, dy := xr-nx, yr-ny
	return math.Exp(-(dx*dx + dy*dy) / s.twoSigmaSq)
}
