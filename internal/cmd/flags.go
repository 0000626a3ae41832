package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/moire/internal/layer"
	"github.com/MeKo-Tech/moire/internal/render"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// addRenderFlags registers the post-processing flags shared by generate,
// sweep and serve, bound under section.
func addRenderFlags(cmd *cobra.Command, section string) {
	cmd.Flags().String("png-compression", "default", "PNG compression (default, speed, best, none)")
	cmd.Flags().Int("upscale", 1, "Integer upscale factor applied after rendering")
	cmd.Flags().Float32("soften", 0, "Gaussian blur sigma in output pixels (0 disables)")
	cmd.Flags().Float64("grain", 0, "Perlin grain strength in [0,1] (0 disables)")
	cmd.Flags().Int64("seed", 1337, "Deterministic seed for grain noise")

	bindFlags(cmd, []flagBinding{
		{section + ".png_compression", "png-compression"},
		{section + ".upscale", "upscale"},
		{section + ".soften", "soften"},
		{section + ".grain", "grain"},
		{section + ".seed", "seed"},
	})
}

// renderOptions reads the flags registered by addRenderFlags.
func renderOptions(section string) (render.Options, error) {
	opts := render.Options{
		PNGCompression: viper.GetString(section + ".png_compression"),
		Upscale:        viper.GetInt(section + ".upscale"),
		Soften:         float32(viper.GetFloat64(section + ".soften")),
		Grain:          viper.GetFloat64(section + ".grain"),
		Seed:           viper.GetInt64(section + ".seed"),
	}
	if err := opts.Validate(); err != nil {
		return render.Options{}, err
	}
	return opts, nil
}

type flagBinding struct {
	key  string
	flag string
}

func bindFlags(cmd *cobra.Command, bindings []flagBinding) {
	for _, bf := range bindings {
		if err := viper.BindPFlag(bf.key, cmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

// parseLayerDefs parses every definition. When strict is false malformed
// definitions are logged and dropped; otherwise the first one is an error.
func parseLayerDefs(defs []string, strict bool) ([]layer.Spec, error) {
	specs := make([]layer.Spec, 0, len(defs))
	for i, def := range defs {
		spec, err := layer.Parse(def)
		if err != nil {
			if strict {
				return nil, fmt.Errorf("layer %d: %w", i+1, err)
			}
			logger.Warn("Dropping malformed layer definition", "layer", i+1, "definition", def, "error", err)
			continue
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
