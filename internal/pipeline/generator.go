// Package pipeline wires composition, rendering and output into a single step.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/moire/internal/archive"
	"github.com/MeKo-Tech/moire/internal/compositor"
	"github.com/MeKo-Tech/moire/internal/layer"
	"github.com/MeKo-Tech/moire/internal/render"
)

// Options configures a Generator.
type Options struct {
	Compositor *compositor.Compositor
	// Archive receives rendered patterns instead of OutputDir when set.
	Archive   *archive.Writer
	Logger    *slog.Logger
	OutputDir string
	Format    render.Format
	Render    render.Options
}

// Output describes a stored pattern.
type Output struct {
	// Path is the written file, or "archive:<name>" for archive output.
	Path string
	// Reused is set when existing output was kept and nothing was rendered.
	Reused bool
	Report compositor.Report
}

// Generator composes layers, renders the field and stores the image.
type Generator struct {
	comp      *compositor.Compositor
	archive   *archive.Writer
	logger    *slog.Logger
	outputDir string
	format    render.Format
	render    render.Options
}

// NewGenerator validates options and prepares a generator.
func NewGenerator(opts Options) (*Generator, error) {
	if err := opts.Render.Validate(); err != nil {
		return nil, err
	}

	format := opts.Format
	if format == "" {
		format = render.FormatPNG
	}
	if _, err := render.ParseFormat(string(format)); err != nil {
		return nil, err
	}

	comp := opts.Compositor
	if comp == nil {
		comp = compositor.New(compositor.Options{Logger: opts.Logger})
	}

	return &Generator{
		comp:      comp,
		archive:   opts.Archive,
		logger:    opts.Logger,
		outputDir: opts.OutputDir,
		format:    format,
		render:    opts.Render,
	}, nil
}

// Format returns the image format the generator encodes.
func (g *Generator) Format() render.Format { return g.format }

// CacheTag identifies the render options baked into the generator's output.
// Cached images are only reusable by generators with the same tag and format.
func (g *Generator) CacheTag() string { return g.render.Tag(g.format) }

// Render composes, normalizes and encodes specs without storing the result.
func (g *Generator) Render(ctx context.Context, specs []layer.Spec, resolution int) ([]byte, compositor.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, compositor.Report{}, err
	}

	field, report, err := g.comp.ComposeAndNormalize(specs, resolution)
	if err != nil {
		return nil, report, fmt.Errorf("failed to compose layers: %w", err)
	}

	// Composition is not interruptible; drop the result if the caller gave up meanwhile.
	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	data, err := render.EncodeField(field, g.format, g.render)
	if err != nil {
		return nil, report, err
	}
	return data, report, nil
}

// Generate renders one pattern and stores it under name. Existing output is
// reused unless force is set.
func (g *Generator) Generate(ctx context.Context, name string, specs []layer.Spec, resolution int, force bool) (Output, error) {
	if name == "" {
		return Output{}, fmt.Errorf("pattern name must not be empty")
	}

	if g.archive != nil {
		return g.generateToArchive(ctx, name, specs, resolution, force)
	}
	if g.outputDir == "" {
		return Output{}, fmt.Errorf("no output dir or archive configured")
	}

	finalPath := filepath.Join(g.outputDir, name+g.format.Ext())
	if !force {
		if _, err := os.Stat(finalPath); err == nil {
			g.log().Info("Pattern already exists; skipping", "name", name, "path", finalPath)
			return Output{Path: finalPath, Reused: true}, nil
		}
	}

	data, report, err := g.renderLogged(ctx, name, specs, resolution)
	if err != nil {
		return Output{}, err
	}

	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("failed to create output dir: %w", err)
	}

	g.log().Info("Writing pattern", "name", name, "path", finalPath)
	if err := os.WriteFile(finalPath, data, 0o644); err != nil {
		return Output{}, fmt.Errorf("failed to write pattern file: %w", err)
	}

	return Output{Path: finalPath, Report: report}, nil
}

func (g *Generator) generateToArchive(ctx context.Context, name string, specs []layer.Spec, resolution int, force bool) (Output, error) {
	path := "archive:" + name
	if !force {
		_, err := g.archive.Get(name)
		if err == nil {
			g.log().Info("Pattern already archived; skipping", "name", name)
			return Output{Path: path, Reused: true}, nil
		}
		if !errors.Is(err, archive.ErrNotFound) {
			return Output{}, err
		}
	}

	data, report, err := g.renderLogged(ctx, name, specs, resolution)
	if err != nil {
		return Output{}, err
	}

	err = g.archive.Add(archive.Entry{
		Key:        name,
		Layers:     layer.FormatAll(specs),
		Resolution: resolution,
		Format:     string(g.format),
		Data:       data,
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to archive pattern: %w", err)
	}

	return Output{Path: path, Report: report}, nil
}

func (g *Generator) renderLogged(ctx context.Context, name string, specs []layer.Spec, resolution int) ([]byte, compositor.Report, error) {
	g.log().Info("Rendering pattern", "name", name, "layers", len(specs), "resolution", resolution)
	data, report, err := g.Render(ctx, specs, resolution)
	if err != nil {
		return nil, report, err
	}
	if len(report.Skipped) > 0 {
		g.log().Warn("Pattern rendered with skipped layers", "name", name, "skipped", len(report.Skipped), "applied", report.Applied)
	}
	return data, report, nil
}

func (g *Generator) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}
