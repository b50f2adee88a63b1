package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/srinipal/filesearch/internal/searcher/executor"
	"github.com/srinipal/filesearch/internal/searcher/merger"
	"github.com/srinipal/filesearch/internal/searcher/parser"
	"github.com/srinipal/filesearch/internal/searcher/ranker"
)

func BenchmarkParse(b *testing.B) {
	idx := buildCorpus(b, 1000, 50)
	queries := map[string]string{
		"single":  "search",
		"pair":    "shard worker",
		"unknown": "nonexistent vocabulary",
		"long":    "alpha bravo charlie delta echo foxtrot golf hotel india juliet",
	}
	for name, q := range queries {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = parser.Parse(q, idx)
			}
		})
	}
}

func BenchmarkScoreDocument(b *testing.B) {
	idx := buildCorpus(b, 1000, 100)
	plan := parser.Parse("search index query score", idx)
	scorer := ranker.NewScorer(plan, idx, ranker.Params{})
	ids := idx.DocIDs()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = scorer.Score(ids[i%len(ids)])
	}
}

// BenchmarkExecute compares worker counts over the same corpus.
func BenchmarkExecute(b *testing.B) {
	idx := buildCorpus(b, 20000, 100)
	for _, workers := range []int{1, 2, 4, 8} {
		exec, err := executor.New(idx, executor.WithWorkers(workers))
		if err != nil {
			b.Fatal(err)
		}
		for _, matchAll := range []bool{false, true} {
			b.Run(fmt.Sprintf("workers_%d/match_all_%t", workers, matchAll), func(b *testing.B) {
				params := ranker.Params{MatchAllTerms: matchAll}
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := exec.Execute(context.Background(), "search shard worker", params); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkExecuteParallel(b *testing.B) {
	idx := buildCorpus(b, 10000, 100)
	exec, err := executor.New(idx)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := exec.Execute(context.Background(), "query score", ranker.Params{}); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkTopK(b *testing.B) {
	for _, n := range []int{100, 10000, 100000} {
		scores := make(map[int]float64, n)
		for i := 0; i < n; i++ {
			scores[i] = float64((i*7919)%1000) / 1000
		}
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = merger.TopK(scores, 10)
			}
		})
	}
}
