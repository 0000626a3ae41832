package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MeKo-Tech/moire/internal/archive"
	"github.com/MeKo-Tech/moire/internal/render"
	"github.com/MeKo-Tech/moire/internal/sweep"
)

// ArchiveHandler serves stored patterns from an archive database.
type ArchiveHandler struct {
	reader       *archive.Reader
	logger       *slog.Logger
	prefix       string
	cacheControl string
}

// ArchiveConfig configures the archive handler.
type ArchiveConfig struct {
	ArchivePath  string
	CacheControl string
	// Prefix is the URL path the handler is mounted on (default "/archive/").
	Prefix string
}

// NewArchiveHandler creates a new archive handler.
func NewArchiveHandler(cfg ArchiveConfig, logger *slog.Logger) (*ArchiveHandler, error) {
	reader, err := archive.OpenReader(cfg.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "/archive/"
	}

	return &ArchiveHandler{
		reader:       reader,
		logger:       logger,
		prefix:       prefix,
		cacheControl: cfg.CacheControl,
	}, nil
}

// Handler returns the HTTP handler function. The prefix itself lists the
// stored keys as JSON; prefix+key returns the stored image.
func (h *ArchiveHandler) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := strings.CutPrefix(r.URL.Path, h.prefix)
		if !ok {
			http.NotFound(w, r)
			return
		}
		if key == "" {
			h.serveIndex(w)
			return
		}
		h.servePattern(w, key)
	}
}

func (h *ArchiveHandler) serveIndex(w http.ResponseWriter) {
	keys, err := h.reader.Keys()
	if err != nil {
		h.log().Error("Failed to list archive", "error", err)
		http.Error(w, "failed to list archive", http.StatusInternalServerError)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	sweep.SortNames(keys)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(keys); err != nil {
		h.log().Error("Failed to encode archive index", "error", err)
	}
}

// servePattern serves a single pattern from the archive database.
func (h *ArchiveHandler) servePattern(w http.ResponseWriter, key string) {
	e, err := h.reader.Read(key)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			http.Error(w, "Pattern not found", http.StatusNotFound)
			return
		}
		h.log().Error("Failed to read pattern", "key", key, "error", err)
		http.Error(w, "failed to read pattern", http.StatusInternalServerError)
		return
	}

	format, err := render.ParseFormat(e.Format)
	if err != nil {
		h.log().Error("Stored pattern has unknown format", "key", key, "format", e.Format)
		http.Error(w, "unknown stored format", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", h.cacheControl)
	w.Header().Set("Content-Type", format.ContentType())
	if _, err := w.Write(e.Data); err != nil {
		h.log().Error("Failed to write response", "error", err)
	}
}

// Close closes the archive reader.
func (h *ArchiveHandler) Close() error {
	return h.reader.Close()
}

func (h *ArchiveHandler) log() *slog.Logger {
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}
