// Package cache keeps executed query results in Redis so repeated queries
// skip scoring. Any cache failure degrades to a miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/srinipal/filesearch/internal/searcher/executor"
	"github.com/srinipal/filesearch/internal/searcher/ranker"
	"github.com/srinipal/filesearch/internal/tokenizer"
	apperrors "github.com/srinipal/filesearch/pkg/errors"
	"github.com/srinipal/filesearch/pkg/metrics"
	pkgredis "github.com/srinipal/filesearch/pkg/redis"
	"github.com/srinipal/filesearch/pkg/resilience"
)

const keyPrefix = "filesearch:"

// Store is the key-value backend, satisfied by *pkgredis.Client. Get must
// return an error for which pkgredis.IsNilError holds when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Stats struct {
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
	Generation uint64 `json:"generation"`
}

// Source computes query results, satisfied by *executor.Executor. Every
// result is cached under the Source's generation, so results of a replaced
// corpus are never served for the corpus that replaced it.
type Source interface {
	Generation() uint64
	Execute(ctx context.Context, query string, params ranker.Params) (*executor.Result, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	// generation is bumped by Invalidate and is part of every key, so
	// entries that survive a failed flush are unreachable.
	generation atomic.Uint64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get looks up the result of query computed on corpus generation gen.
func (c *QueryCache) Get(ctx context.Context, gen uint64, query string, params ranker.Params) (*executor.Result, bool) {
	return c.get(ctx, c.buildKey(gen, query, params))
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.Result, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) && !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Warn("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	return &result, true
}

// Set stores result as computed on corpus generation gen.
func (c *QueryCache) Set(ctx context.Context, gen uint64, query string, params ranker.Params, result *executor.Result) {
	c.set(ctx, c.buildKey(gen, query, params), result)
}

func (c *QueryCache) set(ctx context.Context, key string, result *executor.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result of query on src, or runs it once
// for all concurrent callers asking for the same key and caches the result.
// The shared run is not cancelled when one caller goes away; each caller
// stops waiting when its own ctx is done. Errors are returned to every
// waiting caller and never cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	src Source,
	query string,
	params ranker.Params,
) (*executor.Result, bool, error) {
	key := c.buildKey(src.Generation(), query, params)
	if result, ok := c.get(ctx, key); ok {
		return result, true, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		result, err := src.Execute(shared, query, params)
		if err != nil {
			return nil, err
		}
		c.set(shared, key, result)
		return result, nil
	})
	select {
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
		}
		return nil, false, err
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*executor.Result), false, nil
	}
}

// Invalidate moves the cache to a new generation and deletes every stored
// result.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	gen := c.generation.Add(1)
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted, "generation", gen)
	return nil
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Generation: c.generation.Load(),
	}
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) buildKey(gen uint64, query string, params ranker.Params) string {
	raw := fmt.Sprintf("%d.%d|%s|match_all=%t", gen, c.generation.Load(), normalizeQuery(query), params.MatchAllTerms)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeQuery maps queries with the same normalised terms, in any order and
// spelling, to one string. Repeated terms weigh more, so duplicates are kept.
func normalizeQuery(query string) string {
	terms := tokenizer.Normalize(query)
	sort.Strings(terms)
	return strings.Join(terms, ",")
}
