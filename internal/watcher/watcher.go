// Package watcher reports changes under a corpus root. Bursts of filesystem
// events are collapsed into a single callback once the tree has been quiet
// for the debounce interval.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 2 * time.Second

type Options struct {
	Root     string
	Debounce time.Duration
	// Accept filters file events by path; nil accepts everything. Events on
	// directories are always accepted.
	Accept func(path string) bool
}

type Watcher struct {
	fsw      *fsnotify.Watcher
	opts     Options
	onChange func(ctx context.Context)
	logger   *slog.Logger
}

// New watches opts.Root and every non-hidden directory below it.
func New(opts Options, onChange func(ctx context.Context)) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	w := &Watcher{
		fsw:      fsw,
		opts:     opts,
		onChange: onChange,
		logger:   slog.Default().With("component", "corpus-watcher", "root", opts.Root),
	}
	if err := w.addTree(opts.Root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run dispatches events until ctx is done. onChange runs on this goroutine,
// so a rebuild never overlaps the next one.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	pending := 0

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("watching new directory failed", "path", event.Name, "error", err)
					}
				}
			}
			pending++
			timer.Reset(w.opts.Debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)
		case <-timer.C:
			w.logger.Info("corpus changed", "events", pending)
			pending = 0
			w.onChange(ctx)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	if w.opts.Accept == nil || w.opts.Accept(event.Name) {
		return true
	}
	// Removed or renamed directories can no longer be stat'ed; extensionless
	// paths are treated as possible directories.
	if filepath.Ext(event.Name) == "" {
		return true
	}
	info, err := os.Stat(event.Name)
	return err == nil && info.IsDir()
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
