// Package watch monitors a spool directory for dropped link files. Each
// file contains one or more post URLs; new files are debounced, parsed,
// and handed to a callback, then renamed so a restart never reprocesses
// them.
package watch

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/reelsheet/reelsheet/internal/model"
)

// SpoolWatcher watches a directory for link files.
type SpoolWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	processing map[string]bool

	// OnURL is invoked once per URL found in a new spool file.
	OnURL func(ctx context.Context, url string) error
}

// NewSpoolWatcher creates a watcher over the given directory, creating it
// if needed.
func NewSpoolWatcher(dir string, logger *slog.Logger) (*SpoolWatcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SpoolWatcher{
		watcher:    fsWatcher,
		dir:        dir,
		debounce:   500 * time.Millisecond,
		logger:     logger,
		processing: make(map[string]bool),
	}, nil
}

// Run drains any files already in the spool, then blocks processing new
// ones until the context is canceled.
func (w *SpoolWatcher) Run(ctx context.Context) error {
	w.drainExisting(ctx)

	debounceTimers := make(map[string]*time.Timer)
	var timerMu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			path := event.Name
			if !isSpoolFile(path) {
				continue
			}

			// Debounce: editors and copies fire several events per file.
			timerMu.Lock()
			if timer, exists := debounceTimers[path]; exists {
				timer.Stop()
			}
			debounceTimers[path] = time.AfterFunc(w.debounce, func() {
				w.handleFile(ctx, path)
			})
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch.error", "error", err)
		}
	}
}

// drainExisting processes spool files that were present before the
// watcher started.
func (w *SpoolWatcher) drainExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Error("watch.drain.failed", "dir", w.dir, "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if isSpoolFile(path) {
			w.handleFile(ctx, path)
		}
	}
}

func (w *SpoolWatcher) handleFile(ctx context.Context, path string) {
	w.mu.Lock()
	if w.processing[path] {
		w.mu.Unlock()
		return
	}
	w.processing[path] = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.processing, path)
		w.mu.Unlock()
	}()

	urls, err := ParseLinkFile(path)
	if err != nil {
		w.logger.Error("watch.parse.failed", "file", path, "error", err)
		return
	}
	if len(urls) == 0 {
		w.logger.Warn("watch.file.empty", "file", path)
		w.markDone(path)
		return
	}

	w.logger.Info("watch.file.found", "file", path, "urls", len(urls))
	failed := 0
	for _, url := range urls {
		if w.OnURL == nil {
			continue
		}
		if err := w.OnURL(ctx, url); err != nil {
			w.logger.Error("watch.process.failed", "url", url, "error", err)
			failed++
		}
	}

	if failed == 0 {
		w.markDone(path)
	} else {
		w.markFailed(path)
	}
}

func (w *SpoolWatcher) markDone(path string) {
	if err := os.Rename(path, path+".done"); err != nil {
		w.logger.Warn("watch.mark.failed", "file", path, "error", err)
	}
}

func (w *SpoolWatcher) markFailed(path string) {
	if err := os.Rename(path, path+".failed"); err != nil {
		w.logger.Warn("watch.mark.failed", "file", path, "error", err)
	}
}

// Close stops the watcher.
func (w *SpoolWatcher) Close() error {
	return w.watcher.Close()
}

// isSpoolFile reports whether a path looks like a link file rather than a
// processed marker or hidden file.
func isSpoolFile(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch filepath.Ext(name) {
	case ".txt", ".url", ".links":
		return true
	}
	return false
}

// ParseLinkFile reads a spool file and returns the post URLs it contains,
// one per line; blank lines and # comments are skipped, lines that are
// not recognized links are ignored.
func ParseLinkFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if model.IsValidReelURL(line) {
			urls = append(urls, line)
		}
	}
	return urls, scanner.Err()
}
