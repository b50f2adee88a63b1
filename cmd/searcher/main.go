package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/srinipal/filesearch/internal/analytics"
	"github.com/srinipal/filesearch/internal/corpus"
	"github.com/srinipal/filesearch/internal/searcher/cache"
	"github.com/srinipal/filesearch/internal/searcher/executor"
	"github.com/srinipal/filesearch/internal/searcher/handler"
	"github.com/srinipal/filesearch/internal/searcher/reload"
	"github.com/srinipal/filesearch/internal/watcher"
	"github.com/srinipal/filesearch/pkg/config"
	"github.com/srinipal/filesearch/pkg/health"
	"github.com/srinipal/filesearch/pkg/kafka"
	"github.com/srinipal/filesearch/pkg/logger"
	"github.com/srinipal/filesearch/pkg/metrics"
	"github.com/srinipal/filesearch/pkg/middleware"
	"github.com/srinipal/filesearch/pkg/ratelimit"
	pkgredis "github.com/srinipal/filesearch/pkg/redis"
	"github.com/srinipal/filesearch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/filesearch.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup("searcher", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"corpus_root", cfg.Corpus.Root,
		"workers", cfg.Search.WorkerCount,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	trackCircuit := func(name string, _, to resilience.State) {
		m.CircuitState.WithLabelValues(name).Set(float64(to))
	}
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, metrics.Addr(cfg.Metrics.Port), reg); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	idx, err := reload.Load(ctx, cfg.Corpus)
	if err != nil {
		slog.Error("failed to load corpus", "error", err)
		os.Exit(1)
	}
	stats := idx.Stats()
	m.CorpusDocuments.Set(float64(stats.Documents))
	m.CorpusTerms.Set(float64(stats.Terms))

	exec, err := executor.New(idx,
		executor.WithWorkers(cfg.Search.WorkerCount),
		executor.WithTimeout(cfg.Search.QueryTimeout),
		executor.WithMetrics(m),
	)
	if err != nil {
		slog.Error("failed to create query executor", "error", err)
		os.Exit(1)
	}
	live := executor.NewLive(exec)

	var (
		queryCache  *cache.QueryCache
		redisClient *pkgredis.Client
	)
	if cfg.Redis.Enabled {
		err = resilience.Retry(ctx, "redis connect", resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond},
			func(ctx context.Context) error {
				var err error
				redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
				return err
			})
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
				OnStateChange:    trackCircuit,
			})
			queryCache = cache.New(cache.Guard(redisClient, breaker), cfg.Redis.CacheTTL, m)
			// generations restart at zero, so entries of a previous process are dropped
			if err := queryCache.Invalidate(ctx); err != nil {
				slog.Warn("failed to clear stale search cache", "error", err)
			}
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		breaker := resilience.NewCircuitBreaker("kafka", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     time.Minute,
			OnStateChange:    trackCircuit,
		})
		collector = analytics.NewCollector(analytics.Guard(producer, breaker), analytics.DefaultBufferSize, analytics.DefaultBatchSize, analytics.DefaultFlushInterval)
		// stopped by Close after the server drains, so late events still flush
		collector.Start(context.WithoutCancel(ctx))
		defer collector.Close()
		slog.Info("analytics enabled", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	if cfg.Corpus.Watch {
		reloader := reload.NewReloader(live, func(ctx context.Context) (*corpus.Index, error) {
			return reload.Rebuild(ctx, cfg.Corpus)
		}, queryCache, collector, m)
		opts := corpus.CrawlOptions{Extensions: cfg.Corpus.Extensions}
		w, err := watcher.New(watcher.Options{
			Root:     cfg.Corpus.Root,
			Debounce: cfg.Corpus.WatchDebounce,
			Accept:   opts.Accepts,
		}, func(ctx context.Context) {
			_ = reloader.Reload(ctx)
		})
		if err != nil {
			slog.Error("failed to watch corpus", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Error("corpus watcher stopped", "error", err)
			}
		}()
		slog.Info("watching corpus for changes", "root", cfg.Corpus.Root, "debounce", cfg.Corpus.WatchDebounce)
	}

	checker := health.NewChecker()
	checker.Register("corpus", func(ctx context.Context) health.ComponentHealth {
		current := live.Load()
		if current == nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no corpus loaded"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents", current.Corpus().TotalDocs()),
		}
	})
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, true))
	}

	h := handler.New(live, queryCache, collector, cfg.Search)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{middleware.RequestID, middleware.Metrics(m, mux)}
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.New(cfg.Server.RateLimit, time.Minute)
		go limiter.RunCleanup(ctx, 5*time.Minute)
		mws = append(mws, middleware.RateLimit(limiter))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.WriteTimeout))
	chain := middleware.Chain(mux, mws...)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// closed once Shutdown has let in-flight requests finish
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-drained

	slog.Info("search service stopped")
}
