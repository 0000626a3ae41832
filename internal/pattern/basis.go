package pattern

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LatticeBasis is the 2x2 matrix whose columns are the hexagonal basis
// vectors a1 = (c, 0) and a2 = (c/2, c*sqrt(3)/2).
//
// For this 60-degree basis, rounding fractional coordinates to the nearest
// integer pair selects the lattice node used as the peak center. That is a
// property of this basis only; it does not hold for arbitrary bases.
type LatticeBasis struct {
	m   *mat.Dense
	inv *mat.Dense

	// Row-major copies of m and inv for the per-sample hot path.
	fwd [4]float64
	rev [4]float64

	constant float64
}

// NewLatticeBasis builds the basis for lattice constant c. The inverse is
// computed once and reused for every sample.
func NewLatticeBasis(c float64) (*LatticeBasis, error) {
	if !(c > 0) || math.IsInf(c, 0) {
		return nil, fmt.Errorf("%w: lattice constant %v", ErrInvalidParameter, c)
	}

	m := mat.NewDense(2, 2, []float64{
		c, 0.5 * c,
		0, c * math.Sqrt(3) / 2,
	})
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("%w: lattice constant %v: %v", ErrInvalidParameter, c, err)
	}

	b := &LatticeBasis{m: m, inv: &inv, constant: c}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			b.fwd[i*2+j] = m.At(i, j)
			b.rev[i*2+j] = inv.At(i, j)
		}
	}
	return b, nil
}

// Constant is the lattice constant c.
func (b *LatticeBasis) Constant() float64 { return b.constant }

// Det is the basis determinant, c^2*sqrt(3)/2.
func (b *LatticeBasis) Det() float64 { return mat.Det(b.m) }

// Matrix returns the basis matrix with a1 and a2 as columns.
func (b *LatticeBasis) Matrix() mat.Matrix { return b.m }

// Inverse returns the inverse basis matrix.
func (b *LatticeBasis) Inverse() mat.Matrix { return b.inv }

// Fractional expresses (x, y) as coefficients of a1 and a2.
func (b *LatticeBasis) Fractional(x, y float64) (u, v float64) {
	return b.rev[0]*x + b.rev[1]*y, b.rev[2]*x + b.rev[3]*y
}

// Point maps fractional coordinates back to real space.
func (b *LatticeBasis) Point(u, v float64) (x, y float64) {
	return b.fwd[0]*u + b.fwd[1]*v, b.fwd[2]*u + b.fwd[3]*v
}

// Nearest returns the lattice node selected for (x, y) by rounding its
// fractional coordinates. Halves round to even.
func (b *LatticeBasis) Nearest(x, y float64) (nx, ny float64) {
	u, v := b.Fractional(x, y)
	return b.Point(math.RoundToEven(u), math.RoundToEven(v))
}
