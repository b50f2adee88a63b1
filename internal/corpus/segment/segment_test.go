package segment

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srinipal/filesearch/internal/corpus"
	apperrors "github.com/srinipal/filesearch/pkg/errors"
)

func buildIndex(t *testing.T) *corpus.Index {
	t.Helper()
	b := corpus.NewBuilder()
	mod := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, b.Add(corpus.NewDocInfo(0, "/docs/d1.txt", 11, mod), "cat dog cat"))
	require.NoError(t, b.Add(corpus.NewDocInfo(1, "/docs/d2.md", 8, mod), "dog bird"))
	require.NoError(t, b.Add(corpus.NewDocInfo(2, "/docs/d3.txt", 0, mod), ""))
	idx, err := b.Build()
	require.NoError(t, err)
	return idx
}

func TestWriteRead(t *testing.T) {
	idx := buildIndex(t)
	path := filepath.Join(t.TempDir(), "nested", "corpus.fsx")

	require.NoError(t, Write(path, idx))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	loaded, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, idx.TotalDocs(), loaded.TotalDocs())
	assert.Equal(t, idx.Terms(), loaded.Terms())
	assert.Equal(t, idx.DocIDs(), loaded.DocIDs())
	for _, term := range idx.Terms() {
		assert.Equal(t, idx.Postings(term), loaded.Postings(term), term)
		assert.Equal(t, idx.DocCount(term), loaded.DocCount(term), term)
		assert.Equal(t, idx.IDF(term), loaded.IDF(term), "idf must round-trip exactly for %s", term)
	}
	for _, id := range idx.DocIDs() {
		want, _ := idx.Doc(id)
		got, ok := loaded.Doc(id)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestReadHeader(t *testing.T) {
	idx := buildIndex(t)
	path := filepath.Join(t.TempDir(), "corpus.fsx")
	require.NoError(t, Write(path, idx))

	h, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, MagicBytes, h.Magic)
	assert.Equal(t, uint32(idx.TermCount()), h.TermCount)
	assert.Equal(t, uint32(3), h.DocCount)
	assert.Equal(t, uint64(3), h.TotalDocs)
	assert.Equal(t, int64(HeaderSize), h.BodyOffset)
}

func TestReadCorrupt(t *testing.T) {
	idx := buildIndex(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "good.fsx")
	require.NoError(t, Write(good, idx))
	data, err := os.ReadFile(good)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"bad magic", func(b []byte) []byte { b[0] ^= 0xff; return b }},
		{"bad version", func(b []byte) []byte { b[4] = 9; return b }},
		{"flipped body byte", func(b []byte) []byte { b[HeaderSize+1] ^= 0xff; return b }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-5] }},
		{"too short", func(b []byte) []byte { return b[:10] }},
		{"huge raw size", func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[48:56], 1<<63)
			return b
		}},
		{"negative raw size", func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[48:56], math.MaxUint64)
			return b
		}},
		{"understated raw size", func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[48:56], 16)
			return b
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := append([]byte(nil), data...)
			path := filepath.Join(dir, tt.name+".fsx")
			require.NoError(t, os.WriteFile(path, tt.mutate(buf), 0o644))

			_, err := Read(path)
			assert.ErrorIs(t, err, apperrors.ErrSnapshotCorrupt)
		})
	}
}

func TestReadMissing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.fsx"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
