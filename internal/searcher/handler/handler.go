package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/srinipal/filesearch/internal/analytics"
	"github.com/srinipal/filesearch/internal/corpus"
	"github.com/srinipal/filesearch/internal/searcher/cache"
	"github.com/srinipal/filesearch/internal/searcher/executor"
	"github.com/srinipal/filesearch/internal/searcher/merger"
	"github.com/srinipal/filesearch/internal/searcher/ranker"
	"github.com/srinipal/filesearch/pkg/config"
	apperrors "github.com/srinipal/filesearch/pkg/errors"
	"github.com/srinipal/filesearch/pkg/logger"
	"github.com/srinipal/filesearch/pkg/middleware"
	"github.com/srinipal/filesearch/pkg/tracing"
)

// Source returns the Executor serving the current corpus, nil before the
// first corpus is loaded. *executor.Live satisfies it.
type Source interface {
	Load() *executor.Executor
}

// Hit is one ranked document.
type Hit struct {
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
	corpus.DocInfo
}

type SearchResponse struct {
	Query     string           `json:"query"`
	Terms     []string         `json:"terms"`
	Outcome   executor.Outcome `json:"outcome"`
	MatchAll  bool             `json:"match_all"`
	TotalHits int              `json:"total_hits"`
	Results   []Hit            `json:"results"`
	CacheHit  bool             `json:"cache_hit"`
	LatencyMs int64            `json:"latency_ms"`
}

type CorpusStatsResponse struct {
	corpus.Stats
	TotalDocs int `json:"total_docs"`
	Workers   int `json:"workers"`
}

type Handler struct {
	source       Source
	cache        *cache.QueryCache
	collector    *analytics.Collector
	defaultLimit int
	maxResults   int
	matchAll     bool
	logger       *slog.Logger
}

// New builds a Handler. queryCache and collector may be nil.
func New(source Source, queryCache *cache.QueryCache, collector *analytics.Collector, cfg config.SearchConfig) *Handler {
	return &Handler{
		source:       source,
		cache:        queryCache,
		collector:    collector,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		matchAll:     cfg.MatchAllTerms,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/corpus/stats", h.CorpusStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.Start(r.Context(), "search")
	defer func() {
		span.End()
		span.Log(ctx, h.logger)
	}()
	log := logger.FromContext(ctx)

	values := r.URL.Query()
	if !values.Has("q") {
		h.writeError(w, apperrors.BadRequest("query parameter 'q' is required"))
		return
	}
	query := values.Get("q")

	limit := h.defaultLimit
	if raw := values.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, apperrors.BadRequest("limit must be a positive integer"))
			return
		}
		limit = min(parsed, h.maxResults)
	}

	params := ranker.Params{MatchAllTerms: h.matchAll}
	if raw := values.Get("match_all"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, apperrors.BadRequest("match_all must be a boolean"))
			return
		}
		params.MatchAllTerms = parsed
	}

	exec := h.source.Load()
	if exec == nil {
		h.writeError(w, apperrors.ErrCorpusMissing)
		return
	}

	var (
		result   *executor.Result
		cacheHit bool
		err      error
	)
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, exec, query, params)
	} else {
		result, err = exec.Execute(ctx, query, params)
	}
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		log.Error("search failed", "query", query, "error", err)
		h.track(analytics.SearchEvent{
			Type:      analytics.EventSearchFailed,
			Query:     query,
			MatchAll:  params.MatchAllTerms,
			LatencyMs: latencyMs,
			Workers:   exec.Workers(),
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(r),
		})
		h.writeError(w, err)
		return
	}

	idx := exec.Corpus()
	ranked := merger.TopK(result.Scores, limit)
	hits := make([]Hit, 0, len(ranked))
	for _, doc := range ranked {
		info, ok := idx.Doc(doc.DocID)
		if !ok {
			continue
		}
		hits = append(hits, Hit{Rank: len(hits) + 1, Score: doc.Score, DocInfo: info})
	}

	resp := SearchResponse{
		Query:     query,
		Terms:     result.Terms,
		Outcome:   result.Outcome,
		MatchAll:  params.MatchAllTerms,
		TotalHits: len(result.Scores),
		Results:   hits,
		CacheHit:  cacheHit,
		LatencyMs: latencyMs,
	}
	log.Info("search completed",
		"query", query,
		"outcome", resp.Outcome,
		"total_hits", resp.TotalHits,
		"returned", len(hits),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)

	eventType := analytics.EventSearch
	if resp.Outcome != executor.OutcomeMatched {
		eventType = analytics.EventZeroResult
	}
	h.track(analytics.SearchEvent{
		Type:      eventType,
		Query:     query,
		Terms:     resp.Terms,
		Outcome:   string(resp.Outcome),
		MatchAll:  params.MatchAllTerms,
		TotalHits: resp.TotalHits,
		Returned:  len(hits),
		LatencyMs: latencyMs,
		CacheHit:  cacheHit,
		Workers:   exec.Workers(),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	})

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CorpusStats(w http.ResponseWriter, r *http.Request) {
	exec := h.source.Load()
	if exec == nil {
		h.writeError(w, apperrors.ErrCorpusMissing)
		return
	}
	idx := exec.Corpus()
	h.writeJSON(w, http.StatusOK, CorpusStatsResponse{
		Stats:     idx.Stats(),
		TotalDocs: idx.TotalDocs(),
		Workers:   exec.Workers(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":       stats.Hits,
		"misses":     stats.Misses,
		"total":      total,
		"generation": stats.Generation,
		"hit_rate":   fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) track(event analytics.SearchEvent) {
	if h.collector != nil {
		h.collector.Track(event)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to its HTTP status. Internal details stay in the logs.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": apperrors.PublicMessage(err, "search failed")})
}
