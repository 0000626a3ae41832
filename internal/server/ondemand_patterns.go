package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/moire/internal/archive"
	"github.com/MeKo-Tech/moire/internal/layer"
	"github.com/MeKo-Tech/moire/internal/pipeline"
)

// DefaultMaxResolution caps the side length of on-demand renders.
const DefaultMaxResolution = 4096

type OnDemandPatternsConfig struct {
	CacheControl             string
	MaxConcurrentGenerations int
	GenerationTimeout        time.Duration
	MaxResolution            int
}

type OnDemandPatterns struct {
	gen    *pipeline.Generator
	cache  *archive.Writer
	logger *slog.Logger
	sem    chan struct{}
	cfg    OnDemandPatternsConfig

	// Per-key render locks, dropped once no request holds or waits on them.
	locksMu sync.Mutex
	locks   map[string]*keyLock

	// Status tracking for renders
	activeRenders  atomic.Int32
	totalRendered  atomic.Int64
	totalFailed    atomic.Int64
	currentRenders sync.Map // map[string]time.Time - pattern key -> start time

	// Queue tracking - requests waiting for semaphore
	queuedRenders  atomic.Int32
	queuedPatterns sync.Map // map[string]time.Time - pattern key -> queue time

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// PatternStatus represents the current status of the pattern server.
type PatternStatus struct {
	Render RenderStatus `json:"render"`
	Cache  CacheStatus  `json:"cache"`
}

// RenderStatus contains current render operation status.
type RenderStatus struct {
	ActiveRenders   int      `json:"active_renders"`
	TotalRendered   int64    `json:"total_rendered"`
	TotalFailed     int64    `json:"total_failed"`
	CurrentPatterns []string `json:"current_patterns"`
	MaxConcurrent   int      `json:"max_concurrent"`
	QueuedRenders   int      `json:"queued_renders"`
	QueuedPatterns  []string `json:"queued_patterns"`
}

// CacheStatus contains archive cache counters.
type CacheStatus struct {
	Enabled bool  `json:"enabled"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// NewOnDemandPatterns creates the on-demand pattern handler. cache may be nil.
func NewOnDemandPatterns(gen *pipeline.Generator, cache *archive.Writer, cfg OnDemandPatternsConfig, logger *slog.Logger) (*OnDemandPatterns, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.MaxConcurrentGenerations <= 0 {
		cfg.MaxConcurrentGenerations = 1
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 2 * time.Minute
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "no-store"
	}
	if cfg.MaxResolution <= 0 {
		cfg.MaxResolution = DefaultMaxResolution
	}

	return &OnDemandPatterns{
		gen:    gen,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
		sem:    make(chan struct{}, cfg.MaxConcurrentGenerations),
		locks:  make(map[string]*keyLock),
	}, nil
}

// Status returns the current status of the pattern server.
func (p *OnDemandPatterns) Status() PatternStatus {
	return PatternStatus{
		Render: RenderStatus{
			ActiveRenders:   int(p.activeRenders.Load()),
			TotalRendered:   p.totalRendered.Load(),
			TotalFailed:     p.totalFailed.Load(),
			CurrentPatterns: sortedKeys(&p.currentRenders),
			MaxConcurrent:   p.cfg.MaxConcurrentGenerations,
			QueuedRenders:   int(p.queuedRenders.Load()),
			QueuedPatterns:  sortedKeys(&p.queuedPatterns),
		},
		Cache: CacheStatus{
			Enabled: p.cache != nil,
			Hits:    p.cacheHits.Load(),
			Misses:  p.cacheMisses.Load(),
		},
	}
}

// StatusHandler returns an HTTP handler for the status endpoint (JSON).
func (p *OnDemandPatterns) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Cache-Control", "no-store")

		if err := json.NewEncoder(w).Encode(p.Status()); err != nil {
			p.log().Error("failed to encode status", "error", err)
			http.Error(w, "failed to encode status", http.StatusInternalServerError)
			return
		}
	})
}

// StatusStreamHandler returns an SSE handler pushing status updates every 250ms.
func (p *OnDemandPatterns) StatusStreamHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "SSE not supported", http.StatusInternalServerError)
			return
		}

		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()

		p.sendStatusEvent(w, flusher)

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				p.sendStatusEvent(w, flusher)
			}
		}
	})
}

func (p *OnDemandPatterns) sendStatusEvent(w http.ResponseWriter, flusher http.Flusher) {
	data, err := json.Marshal(p.Status())
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func (p *OnDemandPatterns) Handler() http.Handler {
	return http.HandlerFunc(p.servePattern)
}

// patternRequest is a parsed GET /pattern.<ext> query.
type patternRequest struct {
	specs      []layer.Spec
	key        string
	resolution int
	malformed  int
}

func (p *OnDemandPatterns) parseRequest(r *http.Request) (patternRequest, error) {
	q := r.URL.Query()

	raw := q.Get("resolution")
	if raw == "" {
		return patternRequest{}, fmt.Errorf("resolution is required")
	}
	resolution, err := strconv.Atoi(raw)
	if err != nil {
		return patternRequest{}, fmt.Errorf("invalid resolution %q", raw)
	}
	if resolution <= 0 {
		return patternRequest{}, fmt.Errorf("resolution must be positive, got %d", resolution)
	}
	if resolution > p.cfg.MaxResolution {
		return patternRequest{}, fmt.Errorf("resolution %d exceeds limit %d", resolution, p.cfg.MaxResolution)
	}

	req := patternRequest{resolution: resolution}
	for i, def := range q["layer"] {
		spec, err := layer.Parse(def)
		if err != nil {
			p.log().Warn("Dropping malformed layer definition", "layer", i+1, "definition", def, "error", err)
			req.malformed++
			continue
		}
		req.specs = append(req.specs, spec)
	}
	req.key = archive.Key(layer.FormatAll(req.specs), resolution, p.gen.CacheTag(), string(p.gen.Format()))
	return req, nil
}

func (p *OnDemandPatterns) servePattern(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := p.parseRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Cache-Control", p.cfg.CacheControl)

	if data, ok := p.lookupCache(req.key); ok {
		p.writeImage(w, data)
		return
	}

	unlock := p.lockKey(req.key)
	defer unlock()

	// Another request for the same key may have filled the cache meanwhile.
	if data, ok := p.lookupCache(req.key); ok {
		p.writeImage(w, data)
		return
	}
	if p.cache != nil {
		p.cacheMisses.Add(1)
	}

	p.queuedRenders.Add(1)
	p.queuedPatterns.Store(req.key, time.Now())

	select {
	case p.sem <- struct{}{}:
		p.queuedRenders.Add(-1)
		p.queuedPatterns.Delete(req.key)
		defer func() { <-p.sem }()
	case <-r.Context().Done():
		p.queuedRenders.Add(-1)
		p.queuedPatterns.Delete(req.key)
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), p.cfg.GenerationTimeout)
	defer cancel()

	start := time.Now()
	p.activeRenders.Add(1)
	p.currentRenders.Store(req.key, start)

	data, report, err := p.gen.Render(ctx, req.specs, req.resolution)

	p.activeRenders.Add(-1)
	p.currentRenders.Delete(req.key)

	if err != nil {
		p.totalFailed.Add(1)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			p.log().Warn("pattern generation cancelled", "key", req.key, "error", err)
			http.Error(w, "pattern generation cancelled", http.StatusServiceUnavailable)
			return
		}
		p.log().Error("failed to generate pattern", "key", req.key, "error", err)
		http.Error(w, fmt.Sprintf("failed to generate pattern: %v", err), http.StatusInternalServerError)
		return
	}
	p.totalRendered.Add(1)
	p.log().Info("pattern generated on-demand",
		"key", req.key,
		"applied", report.Applied,
		"skipped", len(report.Skipped)+req.malformed,
		"ms", time.Since(start).Milliseconds(),
	)

	if p.cache != nil {
		err := p.cache.Put(archive.Entry{
			Key:        req.key,
			Layers:     layer.FormatAll(req.specs),
			Resolution: req.resolution,
			Format:     string(p.gen.Format()),
			Data:       data,
		})
		if err != nil {
			p.log().Warn("failed to cache pattern", "key", req.key, "error", err)
		}
	}

	p.writeImage(w, data)
}

// lookupCache counts hits only; the caller records a miss once, after the
// locked re-check.
func (p *OnDemandPatterns) lookupCache(key string) ([]byte, bool) {
	if p.cache == nil {
		return nil, false
	}
	e, err := p.cache.Get(key)
	if err != nil {
		if !errors.Is(err, archive.ErrNotFound) {
			p.log().Warn("cache lookup failed", "key", key, "error", err)
		}
		return nil, false
	}
	p.cacheHits.Add(1)
	return e.Data, true
}

func (p *OnDemandPatterns) writeImage(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", p.gen.Format().ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		p.log().Error("Failed to write response", "error", err)
	}
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// lockKey serializes renders of one key and returns the matching unlock.
func (p *OnDemandPatterns) lockKey(key string) func() {
	p.locksMu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &keyLock{}
		p.locks[key] = l
	}
	l.refs++
	p.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		p.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, key)
		}
		p.locksMu.Unlock()
	}
}

func (p *OnDemandPatterns) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.Default()
}

func sortedKeys(m *sync.Map) []string {
	keys := []string{}
	m.Range(func(key, _ any) bool {
		keys = append(keys, key.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}
