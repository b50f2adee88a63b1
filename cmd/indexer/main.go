package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/srinipal/filesearch/internal/corpus/segment"
	"github.com/srinipal/filesearch/internal/searcher/reload"
	"github.com/srinipal/filesearch/pkg/config"
	"github.com/srinipal/filesearch/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/filesearch.yaml", "path to config file")
	root := flag.String("root", "", "corpus root, overrides corpus.root")
	out := flag.String("out", "", "snapshot path, overrides corpus.snapshotPath")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *root != "" {
		cfg.Corpus.Root = *root
	}
	if *out != "" {
		cfg.Corpus.SnapshotPath = *out
	}
	if cfg.Corpus.SnapshotPath == "" {
		fmt.Fprintln(os.Stderr, "no snapshot path: set corpus.snapshotPath or -out")
		os.Exit(1)
	}

	logger.Setup("indexer", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer", "root", cfg.Corpus.Root, "snapshot", cfg.Corpus.SnapshotPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	idx, err := reload.Rebuild(ctx, cfg.Corpus)
	if err != nil {
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}
	header, err := segment.ReadHeader(cfg.Corpus.SnapshotPath)
	if err != nil {
		slog.Error("snapshot not written", "path", cfg.Corpus.SnapshotPath, "error", err)
		os.Exit(1)
	}

	stats := idx.Stats()
	slog.Info("indexer finished",
		"documents", stats.Documents,
		"terms", stats.Terms,
		"postings", stats.Postings,
		"body_bytes", header.BodySize,
		"raw_bytes", header.RawSize,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
