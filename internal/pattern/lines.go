package pattern

import (
	"fmt"
	"math"
)

// LineGrating returns straight sinusoidal fringes with period pitch, measured
// along the direction rotated angle degrees from the x axis. Values are
// (cos(2*pi*x'/pitch)+1)/2 with x' = x*cos(angle) + y*sin(angle), so the range
// is exactly [0, 1].
func LineGrating(height, width int, pitch, angle float64) (*Field, error) {
	if pitch == 0 || !isFinite(pitch) {
		return nil, fmt.Errorf("%w: pitch %v", ErrInvalidParameter, pitch)
	}
	if !isFinite(angle) {
		return nil, fmt.Errorf("%w: angle %v", ErrInvalidParameter, angle)
	}

	grid, err := NewGrid(height, width, false)
	if err != nil {
		return nil, err
	}
	field, err := NewField(height, width)
	if err != nil {
		return nil, err
	}

	sin, cos := math.Sincos(angle * math.Pi / 180)
	fillRows(field, func(row int, dst []float64) {
		for col := range dst {
			x, y := grid.Point(row, col)
			xRot := x*cos + y*sin
			dst[col] = (math.Cos(2*math.Pi*xRot/pitch) + 1) / 2
		}
	})
	return field, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
