package cmd

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/MeKo-Tech/moire/internal/archive"
	"github.com/MeKo-Tech/moire/internal/compositor"
	"github.com/MeKo-Tech/moire/internal/pipeline"
	"github.com/MeKo-Tech/moire/internal/render"
	"github.com/MeKo-Tech/moire/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve moiré patterns rendered on demand",
	Long: `Serve patterns over HTTP.

  GET /pattern.<ext>?layer=...&layer=...&resolution=N   render on demand
  GET /status, /status/stream                          render counters (JSON, SSE)
  GET /archive/, /archive/<key>                        browse an archive (--archive)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().Int("max-concurrent-generations", runtime.NumCPU(), "Max concurrent pattern generations (default: number of CPUs)")
	serveCmd.Flags().Duration("generation-timeout", 2*time.Minute, "Timeout per pattern generation")
	serveCmd.Flags().String("cache-control", "no-store", "Cache-Control header for served patterns")
	serveCmd.Flags().String("cache-file", "", "Archive database used to cache rendered patterns (optional)")
	serveCmd.Flags().Int("max-resolution", server.DefaultMaxResolution, "Largest resolution accepted on /pattern")
	serveCmd.Flags().String("archive", "", "Archive database to expose read-only under /archive/ (optional)")
	serveCmd.Flags().String("image-format", "png", "Image encoding: png, tiff or bmp")

	bindFlags(serveCmd, []flagBinding{
		{"serve.addr", "addr"},
		{"serve.max_concurrent_generations", "max-concurrent-generations"},
		{"serve.generation_timeout", "generation-timeout"},
		{"serve.cache_control", "cache-control"},
		{"serve.cache_file", "cache-file"},
		{"serve.max_resolution", "max-resolution"},
		{"serve.archive", "archive"},
		{"serve.image_format", "image-format"},
	})
	addRenderFlags(serveCmd, "serve")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	addr := viper.GetString("serve.addr")
	maxConc := viper.GetInt("serve.max_concurrent_generations")
	genTimeout := viper.GetDuration("serve.generation_timeout")
	cacheControl := viper.GetString("serve.cache_control")
	cacheFile := viper.GetString("serve.cache_file")
	maxResolution := viper.GetInt("serve.max_resolution")
	archivePath := viper.GetString("serve.archive")

	imageFormat, err := render.ParseFormat(viper.GetString("serve.image_format"))
	if err != nil {
		return err
	}
	opts, err := renderOptions("serve")
	if err != nil {
		return err
	}

	var cache *archive.Writer
	if cacheFile != "" {
		cache, err = archive.New(cacheFile, archive.Metadata{
			Name:        "Moire pattern cache",
			Description: "Patterns rendered on demand by moire serve",
			Generator:   "moire serve",
			Version:     "1.0",
		})
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer cache.Close()
	}

	gen, err := pipeline.NewGenerator(pipeline.Options{
		Compositor: compositor.New(compositor.Options{Logger: logger}),
		Logger:     logger,
		Format:     imageFormat,
		Render:     opts,
	})
	if err != nil {
		return fmt.Errorf("failed to init generator: %w", err)
	}

	od, err := server.NewOnDemandPatterns(gen, cache, server.OnDemandPatternsConfig{
		MaxConcurrentGenerations: maxConc,
		GenerationTimeout:        genTimeout,
		CacheControl:             cacheControl,
		MaxResolution:            maxResolution,
	}, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/status", od.StatusHandler())
	mux.Handle("/status/stream", od.StatusStreamHandler())
	mux.Handle("/pattern"+imageFormat.Ext(), od.Handler())

	if archivePath != "" {
		ah, err := server.NewArchiveHandler(server.ArchiveConfig{
			ArchivePath:  archivePath,
			CacheControl: cacheControl,
		}, logger)
		if err != nil {
			return err
		}
		defer ah.Close()
		mux.Handle("/archive/", withCORS(ah.Handler()))
	}

	logger.Info("pattern server listening",
		"addr", addr,
		"pattern_path", "/pattern"+imageFormat.Ext(),
		"cache_file", cacheFile,
		"archive", archivePath,
		"max_concurrent_generations", maxConc,
		"max_resolution", maxResolution,
	)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return srv.ListenAndServe()
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
