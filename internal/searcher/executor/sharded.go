package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/srinipal/filesearch/internal/searcher/parser"
	"github.com/srinipal/filesearch/internal/searcher/ranker"
	apperrors "github.com/srinipal/filesearch/pkg/errors"
	"github.com/srinipal/filesearch/pkg/tracing"
)

// ctxCheckInterval is how many documents a worker visits between context
// checks.
const ctxCheckInterval = 256

// scoreFunc scores one document; ok is false when it must be left out.
type scoreFunc func(docID int) (score float64, ok bool)

// ShardOf returns the worker shard owning docID.
func ShardOf(docID, shards int) int {
	s := docID % shards
	if s < 0 {
		s += shards
	}
	return s
}

func (e *Executor) fanOut(ctx context.Context, plan *parser.QueryPlan, params ranker.Params) (map[int]float64, error) {
	newScorer := func(int) scoreFunc {
		return ranker.NewScorer(plan, e.idx, params).Score
	}
	scores, err := e.scoreShards(ctx, candidates(plan, e.idx), newScorer)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
		}
		if !errors.Is(err, apperrors.ErrWorkerFailed) {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrWorkerFailed, err)
		}
		return nil, err
	}
	return scores, nil
}

// scoreShards runs one worker per shard over ids. Every worker owns the ids
// with ShardOf(id) == shard and fills its own map, so no document is scored
// twice and no map is shared while workers run. The maps are merged once all
// workers are done. The first failing worker cancels the others.
func (e *Executor) scoreShards(ctx context.Context, ids []int, newScorer func(shard int) scoreFunc) (map[int]float64, error) {
	shardScores := make([]map[int]float64, e.workers)
	g, gctx := errgroup.WithContext(ctx)
	for shard := 0; shard < e.workers; shard++ {
		g.Go(func() (err error) {
			start := time.Now()
			_, span := tracing.Start(gctx, "shard")
			span.SetAttr("shard", shard)
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: shard %d panicked: %v", apperrors.ErrWorkerFailed, shard, r)
				}
				span.End()
				if e.metrics != nil {
					e.metrics.ShardScoreDuration.Observe(time.Since(start).Seconds())
					if err != nil {
						e.metrics.WorkerFailuresTotal.Inc()
					}
				}
			}()

			score := newScorer(shard)
			local := make(map[int]float64)
			for i, docID := range ids {
				if i%ctxCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return fmt.Errorf("shard %d: %w", shard, err)
					}
				}
				if ShardOf(docID, e.workers) != shard {
					continue
				}
				if s, ok := score(docID); ok {
					local[docID] = s
				}
			}
			shardScores[shard] = local
			span.SetAttr("scored", len(local))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, local := range shardScores {
		total += len(local)
	}
	merged := make(map[int]float64, total)
	for _, local := range shardScores {
		for docID, s := range local {
			merged[docID] = s
		}
	}
	return merged, nil
}
