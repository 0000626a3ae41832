package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/MeKo-Tech/moire/internal/archive"
	"github.com/MeKo-Tech/moire/internal/render"
	"github.com/MeKo-Tech/moire/internal/sweep"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect and extract pattern archives",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the patterns stored in an archive",
	RunE:  runArchiveList,
}

var archiveExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Write every archived pattern to a folder",
	Long:  `Extract the stored images of an archive database into a folder, one file per key.`,
	RunE:  runArchiveExtract,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveListCmd, archiveExtractCmd)

	archiveCmd.PersistentFlags().StringP("input", "i", "", "Archive database path (required)")
	archiveExtractCmd.Flags().String("output-dir", "./patterns", "Directory to write images into")

	if err := viper.BindPFlag("archive.input", archiveCmd.PersistentFlags().Lookup("input")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
	bindFlags(archiveExtractCmd, []flagBinding{
		{"archive.output_dir", "output-dir"},
	})
}

func openArchiveInput() (*archive.Reader, string, error) {
	input := viper.GetString("archive.input")
	if input == "" {
		return nil, "", fmt.Errorf("--input is required")
	}
	if _, err := os.Stat(input); os.IsNotExist(err) {
		return nil, "", fmt.Errorf("archive does not exist: %s", input)
	}
	r, err := archive.OpenReader(input)
	if err != nil {
		return nil, "", err
	}
	return r, input, nil
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	r, _, err := openArchiveInput()
	if err != nil {
		return err
	}
	defer r.Close()

	keys, err := r.Keys()
	if err != nil {
		return err
	}
	sweep.SortNames(keys)
	for _, k := range keys {
		fmt.Fprintln(cmd.OutOrStdout(), k)
	}
	return nil
}

func runArchiveExtract(cmd *cobra.Command, args []string) error {
	outputDir := viper.GetString("archive.output_dir")

	if logger == nil {
		initLogging()
	}

	r, input, err := openArchiveInput()
	if err != nil {
		return err
	}
	defer r.Close()

	meta, err := r.Metadata()
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	keys, err := r.Keys()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("no patterns found in %s", input)
	}
	sweep.SortNames(keys)

	logger.Info("Extracting archive",
		"input", input,
		"name", meta.Name,
		"patterns", len(keys),
		"output_dir", outputDir,
	)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	var failed int
	for i, key := range keys {
		e, err := r.Read(key)
		if err != nil {
			logger.Error("Failed to read pattern", "key", key, "error", err)
			failed++
			continue
		}

		name, err := extractFileName(e.Key, e.Format)
		if err != nil {
			logger.Error("Skipping pattern", "key", key, "error", err)
			failed++
			continue
		}

		path := filepath.Join(outputDir, name)
		if err := os.WriteFile(path, e.Data, 0o644); err != nil {
			logger.Error("Failed to write pattern", "path", path, "error", err)
			failed++
			continue
		}

		if (i+1)%100 == 0 {
			logger.Info("Progress", "extracted", i+1, "total", len(keys))
		}
	}

	logger.Info("Extraction complete", "output_dir", outputDir, "patterns", len(keys)-failed, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d patterns could not be extracted", failed)
	}
	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._@-]+`)

// extractFileName turns an archive key into a safe file name carrying the
// stored format's extension.
func extractFileName(key, format string) (string, error) {
	f, err := render.ParseFormat(format)
	if err != nil {
		return "", err
	}
	name := strings.Trim(unsafeFileChars.ReplaceAllString(key, "_"), "_.")
	if name == "" {
		return "", fmt.Errorf("key %q has no usable characters", key)
	}
	if !strings.HasSuffix(name, f.Ext()) {
		name += f.Ext()
	}
	return name, nil
}
