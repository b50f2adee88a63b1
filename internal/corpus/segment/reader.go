package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/srinipal/filesearch/internal/corpus"
	apperrors "github.com/srinipal/filesearch/pkg/errors"
)

// ReadHeader returns the header of the snapshot at path without loading the
// body.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("opening snapshot file: %w", err)
	}
	defer f.Close()
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return Header{}, fmt.Errorf("%w: reading header: %v", apperrors.ErrSnapshotCorrupt, err)
	}
	return decodeHeader(buf)
}

// Read loads the snapshot at path and rebuilds the corpus.Index, re-checking
// the index invariants.
func Read(path string) (*corpus.Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("%w: file too short (%d bytes)", apperrors.ErrSnapshotCorrupt, len(data))
	}
	header, err := decodeHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}
	end := header.BodyOffset + header.BodySize
	if header.BodyOffset != int64(HeaderSize) || end+int64(FooterSize) != int64(len(data)) {
		return nil, fmt.Errorf("%w: body bounds [%d,%d) do not match file size %d",
			apperrors.ErrSnapshotCorrupt, header.BodyOffset, end, len(data))
	}
	compressed := data[header.BodyOffset:end]
	footer := data[end:]
	if binary.LittleEndian.Uint32(footer[4:8]) != MagicBytes {
		return nil, fmt.Errorf("%w: bad footer magic", apperrors.ErrSnapshotCorrupt)
	}
	if want, got := binary.LittleEndian.Uint32(footer[0:4]), crc32.ChecksumIEEE(compressed); want != got {
		return nil, fmt.Errorf("%w: checksum mismatch (want %08x, got %08x)", apperrors.ErrSnapshotCorrupt, want, got)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(MaxRawSize)))
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing body: %v", apperrors.ErrSnapshotCorrupt, err)
	}
	if int64(len(raw)) != header.RawSize {
		return nil, fmt.Errorf("%w: body is %d bytes, header says %d",
			apperrors.ErrSnapshotCorrupt, len(raw), header.RawSize)
	}
	var b body
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: parsing body: %v", apperrors.ErrSnapshotCorrupt, err)
	}
	if len(b.Terms) != int(header.TermCount) || len(b.Docs) != int(header.DocCount) {
		return nil, fmt.Errorf("%w: header counts %d terms/%d docs, body has %d/%d",
			apperrors.ErrSnapshotCorrupt, header.TermCount, header.DocCount, len(b.Terms), len(b.Docs))
	}
	return decodeBody(header, b)
}

func decodeHeader(buf []byte) (Header, error) {
	h := Header{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Version:    binary.LittleEndian.Uint32(buf[4:8]),
		TermCount:  binary.LittleEndian.Uint32(buf[8:12]),
		DocCount:   binary.LittleEndian.Uint32(buf[12:16]),
		TotalDocs:  binary.LittleEndian.Uint64(buf[16:24]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(buf[24:32])),
		BodyOffset: int64(binary.LittleEndian.Uint64(buf[32:40])),
		BodySize:   int64(binary.LittleEndian.Uint64(buf[40:48])),
		RawSize:    int64(binary.LittleEndian.Uint64(buf[48:56])),
	}
	if h.Magic != MagicBytes {
		return Header{}, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrSnapshotCorrupt, h.Magic)
	}
	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("%w: unsupported version %d", apperrors.ErrSnapshotCorrupt, h.Version)
	}
	if h.RawSize <= 0 || h.RawSize > MaxRawSize {
		return Header{}, fmt.Errorf("%w: raw body size %d out of range", apperrors.ErrSnapshotCorrupt, h.RawSize)
	}
	return h, nil
}

func decodeBody(h Header, b body) (*corpus.Index, error) {
	inverted := make(map[string]map[int]int, len(b.Terms))
	termDocCount := make(map[string]int, len(b.Terms))
	idf := make(map[string]float64, len(b.Terms))
	for _, entry := range b.Terms {
		docFreqs := make(map[int]int, len(entry.Postings))
		for _, p := range entry.Postings {
			docFreqs[p.DocID] = p.Frequency
		}
		inverted[entry.Term] = docFreqs
		termDocCount[entry.Term] = entry.DocFreq
		idf[entry.Term] = entry.IDF
	}
	docs := make(map[int]corpus.DocInfo, len(b.Docs))
	for _, info := range b.Docs {
		docs[info.ID] = info
	}
	idx, err := corpus.New(int(h.TotalDocs), inverted, termDocCount, idf, docs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrSnapshotCorrupt, err)
	}
	return idx, nil
}
