// Package merger orders a query's score map into ranked results.
package merger

import (
	"cmp"
	"container/heap"
	"slices"

	"github.com/srinipal/filesearch/internal/searcher/ranker"
)

const DefaultLimit = 10

// compareRank orders a before b when a ranks higher: larger score first, then
// smaller doc id.
func compareRank(a, b ranker.ScoredDoc) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.DocID, b.DocID)
}

// TopK returns the limit best documents of scores in rank order. A
// non-positive limit means DefaultLimit.
func TopK(scores map[int]float64, limit int) []ranker.ScoredDoc {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(scores) <= limit {
		return Rank(scores)
	}

	// worst-first heap of the best limit documents seen so far
	kept := make(worstFirst, 0, limit)
	for docID, score := range scores {
		doc := ranker.ScoredDoc{DocID: docID, Score: score}
		switch {
		case len(kept) < limit:
			heap.Push(&kept, doc)
		case compareRank(doc, kept[0]) < 0:
			kept[0] = doc
			heap.Fix(&kept, 0)
		}
	}
	out := []ranker.ScoredDoc(kept)
	slices.SortFunc(out, compareRank)
	return out
}

// Rank returns every scored document in rank order.
func Rank(scores map[int]float64) []ranker.ScoredDoc {
	out := make([]ranker.ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		out = append(out, ranker.ScoredDoc{DocID: docID, Score: score})
	}
	slices.SortFunc(out, compareRank)
	return out
}

type worstFirst []ranker.ScoredDoc

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return compareRank(h[i], h[j]) > 0 }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *worstFirst) Push(x any) { *h = append(*h, x.(ranker.ScoredDoc)) }

func (h *worstFirst) Pop() any {
	old := *h
	last := old[len(old)-1]
	*h = old[:len(old)-1]
	return last
}
