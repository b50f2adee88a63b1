package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// CrawlOptions selects the files that make up a corpus.
type CrawlOptions struct {
	Root        string
	Extensions  []string
	MaxFileSize int64
	Concurrency int
}

type candidate struct {
	path    string
	size    int64
	modTime time.Time
}

// Crawl walks opts.Root, reads every matching regular file and builds an
// Index. Document ids follow the lexical order of file paths, so an
// unchanged tree always gets the same ids. Files that disappear between the
// walk and the read are skipped.
func Crawl(ctx context.Context, opts CrawlOptions) (*Index, error) {
	logger := slog.Default().With("component", "corpus-crawler")
	start := time.Now()

	files, err := collect(opts)
	if err != nil {
		return nil, err
	}

	b := NewBuilder()
	g, gctx := errgroup.WithContext(ctx)
	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for id, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(f.path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					logger.Warn("file vanished during crawl, skipping", "path", f.path)
					return nil
				}
				return fmt.Errorf("reading %s: %w", f.path, err)
			}
			return b.Add(NewDocInfo(id, f.path, f.size, f.modTime), string(data))
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("crawling %s: %w", opts.Root, err)
	}

	idx, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("building corpus index: %w", err)
	}
	stats := idx.Stats()
	logger.Info("corpus built",
		"root", opts.Root,
		"documents", stats.Documents,
		"terms", stats.Terms,
		"postings", stats.Postings,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return idx, nil
}

// Accepts reports whether path has one of the configured extensions. An
// empty extension list accepts every file.
func (o CrawlOptions) Accepts(path string) bool {
	return acceptsExt(extensionSet(o.Extensions), path)
}

func extensionSet(extensions []string) map[string]struct{} {
	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return exts
}

func acceptsExt(exts map[string]struct{}, path string) bool {
	if len(exts) == 0 {
		return true
	}
	_, ok := exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

func collect(opts CrawlOptions) ([]candidate, error) {
	exts := extensionSet(opts.Extensions)

	var files []candidate
	err := filepath.WalkDir(opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != opts.Root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !acceptsExt(exts, path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize {
			return nil
		}
		files = append(files, candidate{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", opts.Root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}
