// Package benchmark measures corpus construction, snapshot persistence and
// query scoring throughput.
package benchmark

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/srinipal/filesearch/internal/corpus"
	"github.com/srinipal/filesearch/internal/corpus/segment"
)

var vocabulary = strings.Fields(`alpha bravo charlie delta echo foxtrot golf hotel
	india juliet kilo lima mike november oscar papa quebec romeo sierra tango
	uniform victor whiskey xray yankee zulu search index query score shard worker`)

// syntheticText returns a deterministic document of n words.
func syntheticText(docID, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = vocabulary[(docID*7+i*i)%len(vocabulary)]
	}
	return strings.Join(words, " ")
}

func buildCorpus(tb testing.TB, docs, words int) *corpus.Index {
	tb.Helper()
	b := corpus.NewBuilder()
	for i := 0; i < docs; i++ {
		info := corpus.DocInfo{ID: i, Path: fmt.Sprintf("/corpus/doc-%05d.txt", i)}
		if err := b.Add(info, syntheticText(i, words)); err != nil {
			tb.Fatal(err)
		}
	}
	idx, err := b.Build()
	if err != nil {
		tb.Fatal(err)
	}
	return idx
}

func BenchmarkBuilderAdd(b *testing.B) {
	builder := corpus.NewBuilder()
	text := syntheticText(1, 200)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := builder.Add(corpus.DocInfo{ID: i}, text); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBuild(b *testing.B) {
	for _, docs := range []int{1000, 10000} {
		b.Run(fmt.Sprintf("docs_%d", docs), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = buildCorpus(b, docs, 100)
			}
		})
	}
}

func BenchmarkSnapshotWriteRead(b *testing.B) {
	idx := buildCorpus(b, 5000, 100)
	path := filepath.Join(b.TempDir(), "corpus.fsx")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := segment.Write(path, idx); err != nil {
			b.Fatal(err)
		}
		if _, err := segment.Read(path); err != nil {
			b.Fatal(err)
		}
	}
}
