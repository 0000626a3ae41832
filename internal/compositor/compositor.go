// Package compositor multiplies layer fields into a single moiré field.
package compositor

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/MeKo-Tech/moire/internal/layer"
	"github.com/MeKo-Tech/moire/internal/pattern"
	"golang.org/x/sync/errgroup"
)

// Options configures a Compositor.
type Options struct {
	Logger *slog.Logger
	// Workers bounds how many layers are evaluated at once (default: number of CPUs).
	Workers int
}

// Skipped records a layer that did not contribute to the composition.
type Skipped struct {
	Err   error
	Input string // raw definition, when the layer came from text
	Index int    // 1-based position in the input list
}

// Report summarizes a composition.
type Report struct {
	Skipped []Skipped
	Applied int
}

// Compositor evaluates ordered layer lists. It holds no per-call state and is
// safe for concurrent use.
type Compositor struct {
	logger  *slog.Logger
	workers int
}

// New creates a Compositor.
func New(opts Options) *Compositor {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Compositor{logger: opts.Logger, workers: workers}
}

// ComposeDefinitions parses each definition string and composes the result.
// Malformed definitions are logged, reported and dropped.
func (c *Compositor) ComposeDefinitions(defs []string, resolution int) (*pattern.Field, Report, error) {
	specs := make([]layer.Spec, 0, len(defs))
	positions := make([]int, 0, len(defs))
	var malformed []Skipped

	for i, def := range defs {
		spec, err := layer.Parse(def)
		if err != nil {
			c.log().Warn("Dropping malformed layer definition", "layer", i+1, "definition", def, "error", err)
			malformed = append(malformed, Skipped{Index: i + 1, Input: def, Err: err})
			continue
		}
		specs = append(specs, spec)
		positions = append(positions, i+1)
	}

	field, report, err := c.compose(specs, positions, resolution)
	if err != nil {
		return nil, Report{}, err
	}
	for i := range report.Skipped {
		report.Skipped[i].Input = defs[report.Skipped[i].Index-1]
	}
	report.Skipped = mergeSkipped(malformed, report.Skipped)
	return field, report, nil
}

// Compose evaluates every spec in order and multiplies the fields into an
// all-ones accumulator of shape resolution x resolution. Layers with an
// unknown type or invalid parameters are logged and skipped; only a
// non-positive resolution fails the call.
func (c *Compositor) Compose(specs []layer.Spec, resolution int) (*pattern.Field, Report, error) {
	positions := make([]int, len(specs))
	for i := range specs {
		positions[i] = i + 1
	}
	return c.compose(specs, positions, resolution)
}

// ComposeAndNormalize is Compose followed by pattern.Normalize.
func (c *Compositor) ComposeAndNormalize(specs []layer.Spec, resolution int) (*pattern.Field, Report, error) {
	field, report, err := c.Compose(specs, resolution)
	if err != nil {
		return nil, report, err
	}
	return pattern.Normalize(field), report, nil
}

// ComposeDefinitionsAndNormalize is ComposeDefinitions followed by
// pattern.Normalize.
func (c *Compositor) ComposeDefinitionsAndNormalize(defs []string, resolution int) (*pattern.Field, Report, error) {
	field, report, err := c.ComposeDefinitions(defs, resolution)
	if err != nil {
		return nil, report, err
	}
	return pattern.Normalize(field), report, nil
}

func (c *Compositor) compose(specs []layer.Spec, positions []int, resolution int) (*pattern.Field, Report, error) {
	acc, err := pattern.NewUniformField(resolution, resolution, 1)
	if err != nil {
		return nil, Report{}, fmt.Errorf("invalid resolution %d: %w", resolution, err)
	}

	fields := make([]*pattern.Field, len(specs))
	errs := make([]error, len(specs))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			l, err := layer.FromSpec(spec)
			if err != nil {
				errs[i] = err
				return nil
			}
			c.log().Debug("Generating layer", "layer", positions[i], "type", l.Kind(), "params", layer.Format(l.Spec()))
			fields[i], errs[i] = l.Generate(resolution)
			return nil
		})
	}
	_ = g.Wait() // per-layer failures are collected in errs

	var report Report
	for i, f := range fields {
		if errs[i] != nil {
			c.log().Warn("Skipping layer", "layer", positions[i], "type", specs[i].Type(), "error", errs[i])
			report.Skipped = append(report.Skipped, Skipped{Index: positions[i], Err: errs[i]})
			continue
		}
		if err := acc.Mul(f); err != nil {
			return nil, Report{}, fmt.Errorf("layer %d: %w", positions[i], err)
		}
		report.Applied++
	}

	c.log().Debug("Composed layers", "applied", report.Applied, "skipped", len(report.Skipped), "resolution", resolution)
	return acc, report, nil
}

// mergeSkipped merges two lists that are each sorted by Index.
func mergeSkipped(a, b []Skipped) []Skipped {
	if len(a) == 0 {
		return b
	}
	out := make([]Skipped, 0, len(a)+len(b))
	for len(a) > 0 && len(b) > 0 {
		if a[0].Index < b[0].Index {
			out, a = append(out, a[0]), a[1:]
		} else {
			out, b = append(out, b[0]), b[1:]
		}
	}
	out = append(out, a...)
	return append(out, b...)
}

func (c *Compositor) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}
