// Package sweep builds twisted-bilayer task lists: a base layer stack plus a
// copy of it rotated by each angle of a range.
package sweep

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/moire/internal/layer"
	"github.com/MeKo-Tech/moire/internal/worker"
)

// MaxAngles bounds the number of patterns a single sweep may produce.
const MaxAngles = 100000

// Range is an inclusive range of twist angles in degrees.
type Range struct {
	Min  float64
	Max  float64
	Step float64
}

// Validate checks that the range is finite, ordered and has a positive step.
func (r Range) Validate() error {
	for _, v := range []float64{r.Min, r.Max, r.Step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("angle range values must be finite")
		}
	}
	if r.Step <= 0 {
		return fmt.Errorf("angle step must be positive, got %v", r.Step)
	}
	if r.Min > r.Max {
		return fmt.Errorf("angle min (%v) must be <= angle max (%v)", r.Min, r.Max)
	}
	if n := r.count(); n > MaxAngles {
		return fmt.Errorf("angle range yields %d patterns, limit is %d", n, MaxAngles)
	}
	return nil
}

// Count returns the number of angles in the range, or 0 when it is invalid.
func (r Range) Count() int {
	if r.Validate() != nil {
		return 0
	}
	return r.count()
}

func (r Range) count() int {
	// The epsilon keeps Max inside the range despite float accumulation (0.1 steps).
	return int(math.Floor((r.Max-r.Min)/r.Step+1e-9)) + 1
}

// ForEach calls fn for each angle in ascending order.
func (r Range) ForEach(fn func(angle float64)) {
	n := r.Count()
	for i := 0; i < n; i++ {
		fn(roundAngle(r.Min + float64(i)*r.Step))
	}
}

// Angles returns every angle of the range.
func (r Range) Angles() []float64 {
	angles := make([]float64, 0, r.Count())
	r.ForEach(func(a float64) { angles = append(angles, a) })
	return angles
}

func roundAngle(a float64) float64 {
	return math.Round(a*1e9) / 1e9
}

const namePrefix = "twist_"

// Name returns the output stem for a twist angle, e.g. "twist_1.50". Two
// decimals are used unless the angle needs more (down to 1e-9), so distinct
// angles of a range never share a name.
func Name(angle float64) string {
	a := roundAngle(angle)
	if a == 0 {
		a = 0 // no "-0.00"
	}
	for prec := 2; prec < 9; prec++ {
		s := strconv.FormatFloat(a, 'f', prec, 64)
		if v, err := strconv.ParseFloat(s, 64); err == nil && v == a {
			return namePrefix + s
		}
	}
	return namePrefix + strconv.FormatFloat(a, 'f', 9, 64)
}

// ParseName parses a name like "twist_1.50" back into its angle.
func ParseName(s string) (float64, error) {
	num, ok := strings.CutPrefix(s, namePrefix)
	if !ok {
		return 0, fmt.Errorf("invalid twist name format: %s", s)
	}
	angle, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0, fmt.Errorf("invalid twist name format: %s", s)
	}
	return angle, nil
}

// SortNames orders twist names by angle, so twist_10.00 follows twist_9.50.
// Other names keep lexical order after the twist names.
func SortNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ai, errI := ParseName(names[i])
		aj, errJ := ParseName(names[j])
		switch {
		case errI == nil && errJ == nil:
			if ai != aj {
				return ai < aj
			}
			return names[i] < names[j]
		case errI == nil:
			return true
		case errJ == nil:
			return false
		default:
			return names[i] < names[j]
		}
	})
}

// Twist returns base followed by a copy of every base layer rotated by angle.
func Twist(base []layer.Spec, angle float64) ([]layer.Spec, error) {
	out := make([]layer.Spec, 0, 2*len(base))
	out = append(out, base...)
	for i, s := range base {
		rotated, err := s.WithAngle(angle)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i+1, err)
		}
		out = append(out, rotated)
	}
	return out, nil
}

// Tasks builds one worker task per angle of r.
func Tasks(base []layer.Spec, r Range, resolution int, force bool) ([]worker.Task, error) {
	if len(base) == 0 {
		return nil, fmt.Errorf("at least one base layer is required")
	}
	if resolution <= 0 {
		return nil, fmt.Errorf("resolution must be positive, got %d", resolution)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	tasks := make([]worker.Task, 0, r.Count())
	var err error
	r.ForEach(func(angle float64) {
		if err != nil {
			return
		}
		var layers []layer.Spec
		layers, err = Twist(base, angle)
		tasks = append(tasks, worker.Task{
			Name:       Name(angle),
			Layers:     layers,
			Resolution: resolution,
			Force:      force,
		})
	})
	if err != nil {
		return nil, err
	}
	// Steps below the 1e-9 angle resolution collapse onto one name.
	if err := worker.CheckNames(tasks); err != nil {
		return nil, fmt.Errorf("angle step %v is too fine: %w", r.Step, err)
	}
	return tasks, nil
}
