// Package ranker scores a single document against a query plan with TF-IDF
// cosine similarity.
//
// Document vectors are normalised over the query's matched terms only, not
// over the document's full term vector. This keeps scoring proportional to
// the query size instead of the document size, at the cost of not being an
// exact cosine. Scores stay comparable across documents of one query.
package ranker

import (
	"math"

	"github.com/srinipal/filesearch/internal/corpus"
	"github.com/srinipal/filesearch/internal/searcher/parser"
)

// Params are the per-query search options.
type Params struct {
	// MatchAllTerms keeps only documents containing every distinct query term,
	// including terms the corpus does not know.
	MatchAllTerms bool `json:"match_all_terms"`
}

// ScoredDoc is one ranked result.
type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
}

type termFreq struct {
	term string
	freq int
}

// Scorer scores documents for one plan. It reuses an internal buffer, so each
// goroutine needs its own Scorer.
type Scorer struct {
	plan    *parser.QueryPlan
	idx     *corpus.Index
	params  Params
	matched []termFreq
}

// NewScorer returns a Scorer of plan over idx.
func NewScorer(plan *parser.QueryPlan, idx *corpus.Index, params Params) *Scorer {
	return &Scorer{
		plan:    plan,
		idx:     idx,
		params:  params,
		matched: make([]termFreq, 0, len(plan.Terms)),
	}
}

// Score returns the similarity of docID to the plan. ok is false when the
// document shares no term with the query or fails the match-all filter; such
// documents must be left out of the results, not scored 0.
func (s *Scorer) Score(docID int) (score float64, ok bool) {
	s.matched = s.matched[:0]
	var sumSquares int64
	// Terms is sorted, so the summation order and the result are
	// deterministic.
	for _, term := range s.plan.Terms {
		freq, found := s.idx.Postings(term)[docID]
		if !found {
			continue
		}
		sumSquares += int64(freq) * int64(freq)
		s.matched = append(s.matched, termFreq{term: term, freq: freq})
	}
	if s.params.MatchAllTerms && len(s.matched) < len(s.plan.Terms) {
		return 0, false
	}
	if len(s.matched) == 0 {
		return 0, false
	}

	norm := math.Sqrt(float64(sumSquares))
	for _, m := range s.matched {
		docWeight := float64(m.freq) * s.idx.IDF(m.term) / norm
		score += s.plan.Vector[m.term] * docWeight
	}
	return score, true
}

// ScoreDocument is a one-off Score for callers that do not loop.
func ScoreDocument(docID int, plan *parser.QueryPlan, idx *corpus.Index, params Params) (float64, bool) {
	return NewScorer(plan, idx, params).Score(docID)
}
