package corpus

import (
	"fmt"
	"math"
	"sync"

	"github.com/srinipal/filesearch/internal/tokenizer"
)

// Builder accumulates documents into an inverted index. It is safe for
// concurrent Add calls; Build freezes the result into an immutable Index.
type Builder struct {
	mu       sync.Mutex
	inverted map[string]map[int]int
	docs     map[int]DocInfo
}

func NewBuilder() *Builder {
	return &Builder{
		inverted: make(map[string]map[int]int),
		docs:     make(map[int]DocInfo),
	}
}

// Add tokenises text and records its term frequencies under info.ID.
// Documents without any indexable term still count towards the corpus size.
func (b *Builder) Add(info DocInfo, text string) error {
	termFreqs := make(map[string]int)
	for _, term := range tokenizer.Normalize(text) {
		termFreqs[term]++
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.docs[info.ID]; exists {
		return fmt.Errorf("document %d (%s) added twice", info.ID, info.Path)
	}
	b.docs[info.ID] = info
	for term, freq := range termFreqs {
		if _, exists := b.inverted[term]; !exists {
			b.inverted[term] = make(map[int]int)
		}
		b.inverted[term][info.ID] = freq
	}
	return nil
}

// DocCount returns the number of documents added so far.
func (b *Builder) DocCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.docs)
}

// Build computes document counts and IDF weights and returns the Index. The
// Builder must not be used afterwards.
func (b *Builder) Build() (*Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	totalDocs := len(b.docs)
	termDocCount := make(map[string]int, len(b.inverted))
	idf := make(map[string]float64, len(b.inverted))
	for term, postings := range b.inverted {
		termDocCount[term] = len(postings)
		idf[term] = IDF(totalDocs, len(postings))
	}
	return New(totalDocs, b.inverted, termDocCount, idf, b.docs)
}

// IDF is ln(totalDocs / docCount); 0 for a term every document contains.
func IDF(totalDocs, docCount int) float64 {
	if totalDocs <= 0 || docCount <= 0 {
		return 0
	}
	return math.Log(float64(totalDocs) / float64(docCount))
}
