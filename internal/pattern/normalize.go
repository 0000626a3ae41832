package pattern

import "gonum.org/v1/gonum/floats"

// Normalize rescales f to [0, 1] with (v-min)/(max-min) into a new field.
// A flat field (max == min) is returned unchanged, as the same pointer; this
// covers the all-ones field produced by an empty composition.
func Normalize(f *Field) *Field {
	data := NormalizeValues(f.Data)
	if sameBacking(data, f.Data) {
		return f
	}
	return &Field{Data: data, Height: f.Height, Width: f.Width}
}

// NormalizeValues is Normalize for a flat slice. Degenerate or empty input is
// returned as is; otherwise a new slice is allocated.
func NormalizeValues(values []float64) []float64 {
	if len(values) == 0 {
		return values
	}
	lo, hi := floats.Min(values), floats.Max(values)
	if !(hi > lo) {
		return values
	}
	out := make([]float64, len(values))
	span := hi - lo
	for i, v := range values {
		out[i] = (v - lo) / span
	}
	return out
}

func sameBacking(a, b []float64) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}
