// Package parser turns a raw query string into the weighted query vector
// used for cosine scoring.
package parser

import (
	"sort"

	"github.com/srinipal/filesearch/internal/corpus"
	"github.com/srinipal/filesearch/internal/tokenizer"
)

// QueryPlan is the per-query state shared read-only by every scoring worker.
type QueryPlan struct {
	RawQuery string
	// Terms is the sorted set of distinct normalised query tokens, including
	// tokens the corpus has never seen.
	Terms []string
	// Vector maps each query term known to the corpus to tf × idf. It is not
	// length-normalised: every document is compared against the same vector,
	// so scaling it cannot change the ranking.
	Vector map[string]float64
}

// Empty reports whether no query term occurs in the corpus.
func (p *QueryPlan) Empty() bool {
	return len(p.Vector) == 0
}

// Parse normalises query and weights its terms with idx's IDF values.
func Parse(query string, idx *corpus.Index) *QueryPlan {
	termFreqs := make(map[string]int)
	for _, token := range tokenizer.Normalize(query) {
		termFreqs[token]++
	}

	plan := &QueryPlan{
		RawQuery: query,
		Terms:    make([]string, 0, len(termFreqs)),
		Vector:   make(map[string]float64, len(termFreqs)),
	}
	for term, tf := range termFreqs {
		plan.Terms = append(plan.Terms, term)
		if idx.DocCount(term) > 0 {
			plan.Vector[term] = float64(tf) * idx.IDF(term)
		}
	}
	sort.Strings(plan.Terms)
	return plan
}
