// Package corpus holds the immutable corpus index consumed by the query
// engine: the inverted index (term -> doc id -> frequency), per-term document
// counts and IDF weights, and per-document file metadata.
//
// An Index is built once (Builder, Crawl, or segment.Read) and never mutated
// afterwards, so any number of queries may read it concurrently without
// locking. Maps returned by accessors are the index's own storage and must be
// treated as read-only.
package corpus

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/srinipal/filesearch/pkg/errors"
)

// DocInfo is the metadata of one corpus document.
type DocInfo struct {
	ID                 int    `json:"id"`
	Path               string `json:"path"`
	BaseName           string `json:"base_name"`
	FileType           string `json:"file_type"`
	SizeBytes          int64  `json:"size_bytes"`
	LastModifiedMillis int64  `json:"last_modified_ms"`
}

// NewDocInfo derives BaseName and FileType from path.
func NewDocInfo(id int, path string, size int64, modTime time.Time) DocInfo {
	base := filepath.Base(path)
	return DocInfo{
		ID:                 id,
		Path:               path,
		BaseName:           base,
		FileType:           strings.TrimPrefix(strings.ToLower(filepath.Ext(base)), "."),
		SizeBytes:          size,
		LastModifiedMillis: modTime.UnixMilli(),
	}
}

type Index struct {
	totalDocs    int
	inverted     map[string]map[int]int
	termDocCount map[string]int
	idf          map[string]float64
	docs         map[int]DocInfo
	docIDs       []int
	terms        []string
	postings     int
}

// Stats summarises an Index.
type Stats struct {
	Documents int `json:"documents"`
	Terms     int `json:"terms"`
	Postings  int `json:"postings"`
}

// MaxDocID is the largest document id an Index accepts. Ids are stored in
// 32-bit posting bitmaps at query time.
const MaxDocID = math.MaxUint32

// New wraps precomputed corpus statistics in an Index after checking that
// every inverted-index term has an IDF and a document count, and that every
// referenced document has metadata. The maps are owned by the Index
// afterwards.
func New(
	totalDocs int,
	inverted map[string]map[int]int,
	termDocCount map[string]int,
	idf map[string]float64,
	docs map[int]DocInfo,
) (*Index, error) {
	if totalDocs < 0 {
		return nil, fmt.Errorf("%w: negative document count %d", apperrors.ErrInvalidCorpus, totalDocs)
	}
	if inverted == nil {
		inverted = make(map[string]map[int]int)
	}
	if termDocCount == nil {
		termDocCount = make(map[string]int)
	}
	if idf == nil {
		idf = make(map[string]float64)
	}
	if docs == nil {
		docs = make(map[int]DocInfo)
	}
	postings := 0
	terms := make([]string, 0, len(inverted))
	for term, docFreqs := range inverted {
		if _, ok := termDocCount[term]; !ok {
			return nil, fmt.Errorf("%w: term %q has no document count", apperrors.ErrInvalidCorpus, term)
		}
		w, ok := idf[term]
		if !ok {
			return nil, fmt.Errorf("%w: term %q has no idf", apperrors.ErrInvalidCorpus, term)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return nil, fmt.Errorf("%w: term %q has idf %v", apperrors.ErrInvalidCorpus, term, w)
		}
		for docID, freq := range docFreqs {
			if _, ok := docs[docID]; !ok {
				return nil, fmt.Errorf("%w: term %q references unknown doc %d", apperrors.ErrInvalidCorpus, term, docID)
			}
			if freq < 1 {
				return nil, fmt.Errorf("%w: term %q has frequency %d in doc %d", apperrors.ErrInvalidCorpus, term, freq, docID)
			}
		}
		postings += len(docFreqs)
		terms = append(terms, term)
	}
	sort.Strings(terms)

	docIDs := make([]int, 0, len(docs))
	for id := range docs {
		if id < 0 || int64(id) > MaxDocID {
			return nil, fmt.Errorf("%w: doc id %d out of range", apperrors.ErrInvalidCorpus, id)
		}
		docIDs = append(docIDs, id)
	}
	sort.Ints(docIDs)

	return &Index{
		totalDocs:    totalDocs,
		inverted:     inverted,
		termDocCount: termDocCount,
		idf:          idf,
		docs:         docs,
		docIDs:       docIDs,
		terms:        terms,
		postings:     postings,
	}, nil
}

func (idx *Index) TotalDocs() int { return idx.totalDocs }

// Postings returns doc id -> frequency for term, nil when the term is unknown.
func (idx *Index) Postings(term string) map[int]int { return idx.inverted[term] }

// DocCount returns the number of documents containing term; 0 means unknown.
func (idx *Index) DocCount(term string) int { return idx.termDocCount[term] }

func (idx *Index) IDF(term string) float64 { return idx.idf[term] }

func (idx *Index) Doc(id int) (DocInfo, bool) {
	info, ok := idx.docs[id]
	return info, ok
}

// DocIDs returns every document id in ascending order.
func (idx *Index) DocIDs() []int { return idx.docIDs }

// Terms returns every indexed term in ascending order.
func (idx *Index) Terms() []string { return idx.terms }

func (idx *Index) TermCount() int { return len(idx.terms) }

func (idx *Index) Stats() Stats {
	return Stats{
		Documents: len(idx.docIDs),
		Terms:     len(idx.terms),
		Postings:  idx.postings,
	}
}
