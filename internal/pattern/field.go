// Package pattern synthesizes the scalar fields that make up a moiré image:
// centered coordinate grids, sinusoidal line gratings, rotated hexagonal
// lattices, and min-max normalization.
package pattern

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// Field is a dense row-major 2D array of samples.
type Field struct {
	Data   []float64
	Height int
	Width  int
}

// NewField allocates a zero-valued field of the given shape.
func NewField(height, width int) (*Field, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidShape, height, width)
	}
	return &Field{
		Data:   make([]float64, height*width),
		Height: height,
		Width:  width,
	}, nil
}

// NewUniformField allocates a field with every sample set to v.
func NewUniformField(height, width int, v float64) (*Field, error) {
	f, err := NewField(height, width)
	if err != nil {
		return nil, err
	}
	for i := range f.Data {
		f.Data[i] = v
	}
	return f, nil
}

// At returns the sample at (row, col).
func (f *Field) At(row, col int) float64 {
	return f.Data[row*f.Width+col]
}

// Set stores v at (row, col).
func (f *Field) Set(row, col int, v float64) {
	f.Data[row*f.Width+col] = v
}

// Row returns the backing slice of one row.
func (f *Field) Row(row int) []float64 {
	return f.Data[row*f.Width : (row+1)*f.Width]
}

// SameShape reports whether f and o have identical dimensions.
func (f *Field) SameShape(o *Field) bool {
	return f.Height == o.Height && f.Width == o.Width
}

// Clone returns a deep copy of f.
func (f *Field) Clone() *Field {
	data := make([]float64, len(f.Data))
	copy(data, f.Data)
	return &Field{Data: data, Height: f.Height, Width: f.Width}
}

// Mul multiplies o into f elementwise.
func (f *Field) Mul(o *Field) error {
	if !f.SameShape(o) {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch, f.Height, f.Width, o.Height, o.Width)
	}
	floats.Mul(f.Data, o.Data)
	return nil
}

// Crop returns a copy of the top-left height x width block of f.
func (f *Field) Crop(height, width int) (*Field, error) {
	if height > f.Height || width > f.Width {
		return nil, fmt.Errorf("%w: crop %dx%d out of %dx%d", ErrInvalidShape, height, width, f.Height, f.Width)
	}
	out, err := NewField(height, width)
	if err != nil {
		return nil, err
	}
	for row := 0; row < height; row++ {
		copy(out.Row(row), f.Data[row*f.Width:row*f.Width+width])
	}
	return out, nil
}

// Min returns the smallest sample.
func (f *Field) Min() float64 { return floats.Min(f.Data) }

// Max returns the largest sample.
func (f *Field) Max() float64 { return floats.Max(f.Data) }

// fillRows evaluates fn for every row of f, spreading rows across CPUs.
// Rows are independent so the result does not depend on scheduling.
func fillRows(f *Field, fn func(row int, dst []float64)) {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for row := 0; row < f.Height; row++ {
		row := row
		g.Go(func() error {
			fn(row, f.Row(row))
			return nil
		})
	}
	_ = g.Wait() // rows never fail
}
