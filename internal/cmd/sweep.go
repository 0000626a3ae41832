package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/MeKo-Tech/moire/internal/archive"
	"github.com/MeKo-Tech/moire/internal/compositor"
	"github.com/MeKo-Tech/moire/internal/pipeline"
	"github.com/MeKo-Tech/moire/internal/render"
	"github.com/MeKo-Tech/moire/internal/sweep"
	"github.com/MeKo-Tech/moire/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Render a twisted-bilayer series over a range of angles",
	Long: `Render one pattern per twist angle: the base layers plus a copy of them
rotated by that angle. Patterns are written to a folder (twist_<angle>.<ext>)
or into a single archive database.`,
	Example: `  moire sweep --layer "type=hex;const=20" --angle-min 0.5 --angle-max 5 --angle-step 0.5
  moire sweep --layer "type=hex;const=20" --format archive --output-file twist.db`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().StringArray("layer", nil, "Base layer definition (repeatable)")
	sweepCmd.Flags().Float64("angle-min", 0.5, "First twist angle in degrees")
	sweepCmd.Flags().Float64("angle-max", 5, "Last twist angle in degrees (inclusive)")
	sweepCmd.Flags().Float64("angle-step", 0.5, "Twist angle increment in degrees")
	sweepCmd.Flags().Int("resolution", 1024, "Side length of each pattern in pixels")
	sweepCmd.Flags().IntP("workers", "w", 0, "Number of parallel workers (default: number of CPUs)")
	sweepCmd.Flags().Bool("progress", true, "Show progress bar")
	sweepCmd.Flags().Bool("allow-failures", false, "Exit successfully even if some patterns fail")
	sweepCmd.Flags().Bool("force", false, "Force regeneration even if the pattern exists")

	sweepCmd.Flags().String("format", "folder", "Output format: folder or archive")
	sweepCmd.Flags().String("image-format", "png", "Image encoding: png, tiff or bmp")
	sweepCmd.Flags().String("output-dir", "./patterns", "Output directory for folder format")
	sweepCmd.Flags().String("output-file", "", "Output database path for archive format (e.g., twist.db)")

	bindFlags(sweepCmd, []flagBinding{
		{"sweep.layers", "layer"},
		{"sweep.angle_min", "angle-min"},
		{"sweep.angle_max", "angle-max"},
		{"sweep.angle_step", "angle-step"},
		{"sweep.resolution", "resolution"},
		{"sweep.workers", "workers"},
		{"sweep.progress", "progress"},
		{"sweep.allow_failures", "allow-failures"},
		{"sweep.force", "force"},
		{"sweep.format", "format"},
		{"sweep.image_format", "image-format"},
		{"sweep.output_dir", "output-dir"},
		{"sweep.output_file", "output-file"},
	})
	addRenderFlags(sweepCmd, "sweep")
}

func runSweep(cmd *cobra.Command, args []string) error {
	defs := viper.GetStringSlice("sweep.layers")
	angles := sweep.Range{
		Min:  viper.GetFloat64("sweep.angle_min"),
		Max:  viper.GetFloat64("sweep.angle_max"),
		Step: viper.GetFloat64("sweep.angle_step"),
	}
	resolution := viper.GetInt("sweep.resolution")
	workers := viper.GetInt("sweep.workers")
	showProgress := viper.GetBool("sweep.progress")
	allowFailures := viper.GetBool("sweep.allow_failures")
	force := viper.GetBool("sweep.force")
	format := viper.GetString("sweep.format")
	outputDir := viper.GetString("sweep.output_dir")
	outputFile := viper.GetString("sweep.output_file")

	if logger == nil {
		initLogging()
	}

	if format != "folder" && format != "archive" {
		return fmt.Errorf("invalid format %q: must be 'folder' or 'archive'", format)
	}
	if format == "archive" && outputFile == "" {
		return fmt.Errorf("--output-file is required when using --format=archive")
	}

	imageFormat, err := render.ParseFormat(viper.GetString("sweep.image_format"))
	if err != nil {
		return err
	}
	opts, err := renderOptions("sweep")
	if err != nil {
		return err
	}

	base, err := parseLayerDefs(defs, true)
	if err != nil {
		return fmt.Errorf("invalid base layer: %w", err)
	}

	tasks, err := sweep.Tasks(base, angles, resolution, force)
	if err != nil {
		return err
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	logger.Info("Starting twist sweep",
		"angles", fmt.Sprintf("%g..%g step %g", angles.Min, angles.Max, angles.Step),
		"patterns", len(tasks),
		"resolution", resolution,
		"workers", workers,
		"format", format,
	)

	var archiveWriter *archive.Writer
	if format == "archive" {
		archiveWriter, err = archive.New(outputFile, archive.Metadata{
			Name:        "Moire twist sweep",
			Description: fmt.Sprintf("Twisted bilayer of %d base layers, %g..%g step %g degrees", len(base), angles.Min, angles.Max, angles.Step),
			Generator:   "moire sweep",
			Version:     "1.0",
		})
		if err != nil {
			return fmt.Errorf("failed to create archive writer: %w", err)
		}
		defer archiveWriter.Close()
	}

	// Patterns are rendered in parallel by the pool; keep each composition serial.
	gen, err := pipeline.NewGenerator(pipeline.Options{
		Compositor: compositor.New(compositor.Options{Logger: logger, Workers: 1}),
		Archive:    archiveWriter,
		Logger:     logger,
		OutputDir:  outputDir,
		Format:     imageFormat,
		Render:     opts,
	})
	if err != nil {
		return fmt.Errorf("failed to init generator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received interrupt signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	progress := worker.NewProgress(len(tasks), showProgress)

	pool := worker.New(worker.Config{
		Workers:    workers,
		Generator:  gen,
		OnProgress: progress.Update,
	})

	results, err := pool.Run(ctx, tasks)
	if err != nil {
		return err
	}
	progress.Done()

	var failedCount int
	for _, r := range results {
		if r.Err != nil {
			failedCount++
			logger.Error("Pattern generation failed", "name", r.Task.Name, "error", r.Err)
		}
	}

	logger.Info(progress.Summary())

	if archiveWriter != nil {
		logger.Info("Flushing archive database...")
		if err := archiveWriter.Flush(); err != nil {
			return fmt.Errorf("failed to flush archive: %w", err)
		}
		logger.Info("Archive complete", "output", outputFile)
	}

	if failedCount > 0 {
		if allowFailures {
			logger.Warn("Some patterns failed to generate, but continuing due to --allow-failures flag", "failed_count", failedCount)
		} else {
			return fmt.Errorf("%d patterns failed to generate", failedCount)
		}
	}

	return nil
}
