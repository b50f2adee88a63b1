package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/srinipal/filesearch/internal/corpus"
)

// Write atomically stores idx at path. It writes to path+".tmp" first and
// renames on success.
func Write(path string, idx *corpus.Index) error {
	raw, err := json.Marshal(encodeBody(idx))
	if err != nil {
		return fmt.Errorf("marshaling corpus body: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	compressed := enc.EncodeAll(raw, nil)
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing zstd encoder: %w", err)
	}

	header := Header{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(idx.TermCount()),
		DocCount:   uint32(len(idx.DocIDs())),
		TotalDocs:  uint64(idx.TotalDocs()),
		CreatedAt:  time.Now().Unix(),
		BodyOffset: int64(HeaderSize),
		BodySize:   int64(len(compressed)),
		RawSize:    int64(len(raw)),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(encodeHeader(header)); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(compressed); err != nil {
		return fmt.Errorf("writing body: %w", err)
	}
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(compressed))
	binary.LittleEndian.PutUint32(footer[4:8], MagicBytes)
	if _, err := f.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming snapshot file: %w", err)
	}
	return nil
}

func encodeBody(idx *corpus.Index) body {
	b := body{
		Terms: make([]termEntry, 0, idx.TermCount()),
		Docs:  make([]corpus.DocInfo, 0, len(idx.DocIDs())),
	}
	for _, term := range idx.Terms() {
		docFreqs := idx.Postings(term)
		postings := make([]posting, 0, len(docFreqs))
		for docID, freq := range docFreqs {
			postings = append(postings, posting{DocID: docID, Frequency: freq})
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		b.Terms = append(b.Terms, termEntry{
			Term:     term,
			DocFreq:  idx.DocCount(term),
			IDF:      idx.IDF(term),
			Postings: postings,
		})
	}
	for _, id := range idx.DocIDs() {
		info, _ := idx.Doc(id)
		b.Docs = append(b.Docs, info)
	}
	return b
}

func encodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(buf[16:24], h.TotalDocs)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.BodyOffset))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.BodySize))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(h.RawSize))
	return buf
}
