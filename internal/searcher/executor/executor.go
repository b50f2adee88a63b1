// Package executor runs one query against the corpus: it builds the query
// plan, fans document scoring out to a fixed set of shard workers and merges
// their partial score maps.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/srinipal/filesearch/internal/corpus"
	"github.com/srinipal/filesearch/internal/searcher/parser"
	"github.com/srinipal/filesearch/internal/searcher/ranker"
	apperrors "github.com/srinipal/filesearch/pkg/errors"
	"github.com/srinipal/filesearch/pkg/logger"
	"github.com/srinipal/filesearch/pkg/metrics"
	"github.com/srinipal/filesearch/pkg/tracing"
)

const (
	DefaultWorkers = 4
	DefaultTimeout = 5 * time.Second
)

// Outcome classifies a query result.
type Outcome string

const (
	// OutcomeMatched means at least one document was scored.
	OutcomeMatched Outcome = "matched"
	// OutcomeNoMatch means the corpus knows some query term but no document
	// passed the filters.
	OutcomeNoMatch Outcome = "no_match"
	// OutcomeNoOverlap means no query term occurs in the corpus, including
	// empty queries.
	OutcomeNoOverlap Outcome = "no_overlap"
)

// Result holds the scores of every matching document, unordered.
type Result struct {
	Query   string          `json:"query"`
	Terms   []string        `json:"terms"`
	Outcome Outcome         `json:"outcome"`
	Scores  map[int]float64 `json:"scores"`
}

// Executor scores queries against one corpus index. It is immutable and safe
// for concurrent use; a rebuilt corpus gets a new Executor via WithCorpus.
type Executor struct {
	idx        *corpus.Index
	generation uint64
	workers    int
	timeout    time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option configures an Executor in New.
type Option func(*Executor) error

// WithWorkers sets the number of scoring shards.
func WithWorkers(n int) Option {
	return func(e *Executor) error {
		if n < 1 {
			return fmt.Errorf("%w: worker count must be at least 1, got %d", apperrors.ErrInvalidInput, n)
		}
		e.workers = n
		return nil
	}
}

// WithTimeout sets the deadline applied to queries whose context has none.
// Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) error {
		if d < 0 {
			return fmt.Errorf("%w: negative query timeout %s", apperrors.ErrInvalidInput, d)
		}
		e.timeout = d
		return nil
	}
}

// WithMetrics records query outcomes and latencies on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) error {
		e.metrics = m
		return nil
	}
}

// New returns an Executor over idx with DefaultWorkers and DefaultTimeout
// unless opts say otherwise.
func New(idx *corpus.Index, opts ...Option) (*Executor, error) {
	if idx == nil {
		return nil, apperrors.ErrCorpusMissing
	}
	e := &Executor{
		idx:     idx,
		workers: DefaultWorkers,
		timeout: DefaultTimeout,
		logger:  slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// WithCorpus returns an Executor with the same settings over idx, one
// generation after e.
func (e *Executor) WithCorpus(idx *corpus.Index) (*Executor, error) {
	if idx == nil {
		return nil, apperrors.ErrCorpusMissing
	}
	next := *e
	next.idx = idx
	next.generation = e.generation + 1
	return &next, nil
}

// Generation counts the corpus swaps behind e. Results computed by Executors
// of different generations must not be mixed.
func (e *Executor) Generation() uint64 { return e.generation }

func (e *Executor) Corpus() *corpus.Index { return e.idx }

func (e *Executor) Workers() int { return e.workers }

// Execute scores every document against query. The returned Scores hold only
// documents that matched; ordering is left to the caller. Any worker failure
// fails the whole query, no partial scores are returned.
func (e *Executor) Execute(ctx context.Context, query string, params ranker.Params) (*Result, error) {
	start := time.Now()
	if _, ok := ctx.Deadline(); !ok && e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	ctx, span := tracing.Start(ctx, "execute")
	defer span.End()

	plan := parser.Parse(query, e.idx)
	result := &Result{Query: query, Terms: plan.Terms}
	if plan.Empty() {
		result.Outcome = OutcomeNoOverlap
		e.record(ctx, result, start)
		return result, nil
	}

	scores, err := e.fanOut(ctx, plan, params)
	if err != nil {
		span.SetAttr("error", err.Error())
		if e.metrics != nil {
			e.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		}
		logger.FromContext(ctx).Error("query failed",
			"component", "query-executor",
			"query", query,
			"error", err,
		)
		return nil, err
	}

	result.Scores = scores
	if len(scores) == 0 {
		result.Outcome = OutcomeNoMatch
	} else {
		result.Outcome = OutcomeMatched
	}
	e.record(ctx, result, start)
	return result, nil
}

func (e *Executor) record(ctx context.Context, result *Result, start time.Time) {
	elapsed := time.Since(start)
	if span := tracing.FromContext(ctx); span != nil {
		span.SetAttr("outcome", string(result.Outcome))
		span.SetAttr("hits", len(result.Scores))
	}
	if e.metrics != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues(string(result.Outcome)).Inc()
		e.metrics.SearchLatency.Observe(elapsed.Seconds())
		e.metrics.SearchResultsCount.Observe(float64(len(result.Scores)))
	}
	e.logger.Info("query executed",
		"request_id", logger.RequestID(ctx),
		"query", result.Query,
		"terms", result.Terms,
		"outcome", result.Outcome,
		"hits", len(result.Scores),
		"workers", e.workers,
		"latency", elapsed,
	)
}

// candidates returns the sorted ids of documents containing at least one
// query term known to the corpus. No other document can score.
func candidates(plan *parser.QueryPlan, idx *corpus.Index) []int {
	union := roaring.New()
	for term := range plan.Vector {
		for docID := range idx.Postings(term) {
			union.Add(uint32(docID))
		}
	}
	ids := make([]int, 0, union.GetCardinality())
	it := union.Iterator()
	for it.HasNext() {
		ids = append(ids, int(it.Next()))
	}
	return ids
}

// Live holds the Executor currently serving queries. Swapping in an Executor
// over a rebuilt corpus never disturbs queries already running on the old one.
type Live struct {
	current atomic.Pointer[Executor]
}

func NewLive(e *Executor) *Live {
	l := &Live{}
	l.current.Store(e)
	return l
}

func (l *Live) Load() *Executor { return l.current.Load() }

// Swap installs e and returns the previous Executor.
func (l *Live) Swap(e *Executor) *Executor { return l.current.Swap(e) }
