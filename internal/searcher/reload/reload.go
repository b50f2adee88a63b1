// Package reload loads the corpus at startup and replaces it after the
// corpus tree changes.
package reload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/srinipal/filesearch/internal/analytics"
	"github.com/srinipal/filesearch/internal/corpus"
	"github.com/srinipal/filesearch/internal/corpus/segment"
	"github.com/srinipal/filesearch/internal/searcher/cache"
	"github.com/srinipal/filesearch/internal/searcher/executor"
	"github.com/srinipal/filesearch/pkg/config"
	"github.com/srinipal/filesearch/pkg/metrics"
)

func crawlOptions(cfg config.CorpusConfig) corpus.CrawlOptions {
	return corpus.CrawlOptions{
		Root:        cfg.Root,
		Extensions:  cfg.Extensions,
		MaxFileSize: cfg.MaxFileSize,
		Concurrency: cfg.ReadConcurrency,
	}
}

// Load reads the snapshot at cfg.SnapshotPath, or crawls cfg.Root when there
// is no usable snapshot. A corrupt snapshot is logged and rebuilt.
func Load(ctx context.Context, cfg config.CorpusConfig) (*corpus.Index, error) {
	logger := slog.Default().With("component", "corpus-loader")
	if cfg.SnapshotPath != "" {
		idx, err := segment.Read(cfg.SnapshotPath)
		switch {
		case err == nil:
			logger.Info("corpus loaded from snapshot", "path", cfg.SnapshotPath, "documents", idx.Stats().Documents)
			return idx, nil
		case errors.Is(err, fs.ErrNotExist):
			logger.Info("no corpus snapshot, crawling", "path", cfg.SnapshotPath)
		default:
			logger.Warn("corpus snapshot unusable, crawling", "path", cfg.SnapshotPath, "error", err)
		}
	}
	return Rebuild(ctx, cfg)
}

// Rebuild crawls cfg.Root and refreshes the snapshot when one is configured.
// A failed snapshot write does not fail the rebuild.
func Rebuild(ctx context.Context, cfg config.CorpusConfig) (*corpus.Index, error) {
	idx, err := corpus.Crawl(ctx, crawlOptions(cfg))
	if err != nil {
		return nil, err
	}
	if cfg.SnapshotPath != "" {
		if err := segment.Write(cfg.SnapshotPath, idx); err != nil {
			slog.Warn("writing corpus snapshot failed", "path", cfg.SnapshotPath, "error", err)
		}
	}
	return idx, nil
}

// Reloader rebuilds the corpus and swaps it into the live executor.
type Reloader struct {
	live      *executor.Live
	build     func(ctx context.Context) (*corpus.Index, error)
	cache     *cache.QueryCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewReloader wires the optional collaborators; queryCache, collector and m
// may be nil.
func NewReloader(
	live *executor.Live,
	build func(ctx context.Context) (*corpus.Index, error),
	queryCache *cache.QueryCache,
	collector *analytics.Collector,
	m *metrics.Metrics,
) *Reloader {
	return &Reloader{
		live:      live,
		build:     build,
		cache:     queryCache,
		collector: collector,
		metrics:   m,
		logger:    slog.Default().With("component", "corpus-reloader"),
	}
}

// Reload builds a new index and installs it. Queries already running finish
// on the index they started with. On failure the current index stays live.
func (r *Reloader) Reload(ctx context.Context) error {
	start := time.Now()
	idx, err := r.build(ctx)
	if err == nil {
		var next *executor.Executor
		next, err = r.live.Load().WithCorpus(idx)
		if err == nil {
			r.live.Swap(next)
		}
	}
	event := analytics.CorpusEvent{
		Type:      analytics.EventCorpusReload,
		Status:    "ok",
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		event.Status = "error"
		event.Error = err.Error()
		r.observe(event)
		r.logger.Error("corpus reload failed", "error", err)
		return fmt.Errorf("reloading corpus: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx); err != nil {
			r.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	stats := idx.Stats()
	event.Documents = stats.Documents
	event.Terms = stats.Terms
	r.observe(event)
	r.logger.Info("corpus reloaded",
		"documents", stats.Documents,
		"terms", stats.Terms,
		"latency_ms", event.LatencyMs,
	)
	return nil
}

func (r *Reloader) observe(event analytics.CorpusEvent) {
	if r.metrics != nil {
		r.metrics.CorpusReloadsTotal.WithLabelValues(event.Status).Inc()
		if event.Status == "ok" {
			r.metrics.CorpusDocuments.Set(float64(event.Documents))
			r.metrics.CorpusTerms.Set(float64(event.Terms))
		}
	}
	if r.collector != nil {
		r.collector.Track(event)
	}
}
