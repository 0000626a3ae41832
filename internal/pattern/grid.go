package pattern

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Grid is a centered coordinate grid. Along an axis of n samples the
// coordinates are n evenly spaced values spanning [-n/2, n/2]. Oversampling
// doubles both axes, so the grid then spans [-width, width] x [-height, height].
type Grid struct {
	xs []float64
	ys []float64
}

// NewGrid builds the coordinate axes for a height x width canvas.
func NewGrid(height, width int, oversample bool) (*Grid, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("%w: grid %dx%d", ErrInvalidShape, height, width)
	}
	if oversample {
		height *= 2
		width *= 2
	}
	return &Grid{xs: centeredAxis(width), ys: centeredAxis(height)}, nil
}

func centeredAxis(n int) []float64 {
	half := float64(n) / 2
	axis := make([]float64, n)
	if n == 1 {
		axis[0] = -half
		return axis
	}
	return floats.Span(axis, -half, half)
}

// Height is the number of rows.
func (g *Grid) Height() int { return len(g.ys) }

// Width is the number of columns.
func (g *Grid) Width() int { return len(g.xs) }

// Point returns the (x, y) coordinate of a sample.
func (g *Grid) Point(row, col int) (x, y float64) {
	return g.xs[col], g.ys[row]
}

// X materializes the x coordinate of every sample.
func (g *Grid) X() *Field {
	f := &Field{Data: make([]float64, g.Height()*g.Width()), Height: g.Height(), Width: g.Width()}
	for row := 0; row < f.Height; row++ {
		copy(f.Row(row), g.xs)
	}
	return f
}

// Y materializes the y coordinate of every sample.
func (g *Grid) Y() *Field {
	f := &Field{Data: make([]float64, g.Height()*g.Width()), Height: g.Height(), Width: g.Width()}
	for row := 0; row < f.Height; row++ {
		dst := f.Row(row)
		for col := range dst {
			dst[col] = g.ys[row]
		}
	}
	return f
}
