// Package segment persists a corpus.Index to a single snapshot file and loads
// it back.
//
// Layout (little-endian):
//
//	[0:64)        header: magic, version, term count, doc count, total docs,
//	              created-at, body offset, body size, raw body size
//	[64:64+size)  body: zstd-compressed JSON (term dictionary + doc table)
//	[end-16:end)  footer: CRC32 (IEEE) of the compressed body, magic
package segment

import "github.com/srinipal/filesearch/internal/corpus"

const (
	MagicBytes    uint32 = 0x46535849
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 16

	// MaxRawSize bounds the decompressed body a header may announce.
	MaxRawSize int64 = 1 << 32
)

// Header is the fixed-size header written at the start of every snapshot.
type Header struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	TotalDocs  uint64
	CreatedAt  int64
	BodyOffset int64
	BodySize   int64
	RawSize    int64
}

type termEntry struct {
	Term     string    `json:"t"`
	DocFreq  int       `json:"d"`
	IDF      float64   `json:"i"`
	Postings []posting `json:"p"`
}

type posting struct {
	DocID     int `json:"id"`
	Frequency int `json:"f"`
}

type body struct {
	Terms []termEntry      `json:"terms"`
	Docs  []corpus.DocInfo `json:"docs"`
}
