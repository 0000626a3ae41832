package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/moire/internal/compositor"
	"github.com/MeKo-Tech/moire/internal/render"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a single moiré pattern image",
	Long: `Generate a moiré pattern by multiplying one or more layers.

Layer format: "type=<lines|hex>;key=value;..."
  lines: pitch (default 10), angle (degrees, default 0)
  hex:   const (default 20), angle (degrees, default 0)

The output format is chosen by extension: .png, .tif/.tiff or .bmp.`,
	Example: `  moire generate --layer "type=lines;pitch=12;angle=15" --layer "type=hex;const=30"
  moire generate --layer "type=hex;const=20" --layer "type=hex;const=20;angle=3" -o twist.tiff`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringArray("layer", nil, "Layer definition (repeatable)")
	generateCmd.Flags().Int("resolution", 1024, "Side length of the square pattern in pixels")
	generateCmd.Flags().StringP("output", "o", "moire_pattern.png", "Output image path")

	bindFlags(generateCmd, []flagBinding{
		{"generate.layers", "layer"},
		{"generate.resolution", "resolution"},
		{"generate.output", "output"},
	})
	addRenderFlags(generateCmd, "generate")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	defs := viper.GetStringSlice("generate.layers")
	resolution := viper.GetInt("generate.resolution")
	output := viper.GetString("generate.output")

	if logger == nil {
		initLogging()
	}

	if len(defs) == 0 {
		return fmt.Errorf("at least one --layer is required")
	}
	if resolution <= 0 {
		return fmt.Errorf("resolution must be positive, got %d", resolution)
	}
	if _, err := render.FormatFromPath(output); err != nil {
		return err
	}

	opts, err := renderOptions("generate")
	if err != nil {
		return err
	}

	logger.Info("Starting pattern generation",
		"layers", len(defs),
		"resolution", resolution,
		"output", output,
	)

	comp := compositor.New(compositor.Options{Logger: logger})
	field, report, err := comp.ComposeDefinitionsAndNormalize(defs, resolution)
	if err != nil {
		return fmt.Errorf("failed to compose pattern: %w", err)
	}
	if report.Applied == 0 {
		logger.Warn("No valid layers; writing a flat image", "skipped", len(report.Skipped))
	}

	if err := render.WriteFile(output, field, opts); err != nil {
		return fmt.Errorf("failed to write pattern: %w", err)
	}

	logger.Info("Pattern generated",
		"path", output,
		"applied", report.Applied,
		"skipped", len(report.Skipped),
	)
	return nil
}
