// Package watcher keeps the index current with a source tree. It ingests every
// supported file once, then re-ingests files as they are created or written.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driving"
	"github.com/custodia-labs/testctx/internal/logger"
)

// DefaultDebounce is the quiet period before a changed file is re-ingested.
const DefaultDebounce = 300 * time.Millisecond

// skipDirs are never descended into, in addition to hidden directories.
var skipDirs = map[string]struct{}{
	"node_modules": {},
	"vendor":       {},
	"__pycache__":  {},
	"target":       {},
	"build":        {},
	"dist":         {},
}

// Config holds watcher configuration.
type Config struct {
	// Root is the directory to watch. Document paths are relative to it.
	Root string

	// Module is attached to every ingested document.
	Module string

	// Debounce is the per-path quiet period (default 300ms).
	Debounce time.Duration

	// MaxFileSize skips larger files (default domain.MaxFileSize).
	MaxFileSize int64
}

// IngestFunc observes the outcome of each watched ingestion.
type IngestFunc func(path string, result *domain.IngestResult, err error)

// Watcher ingests a directory tree and follows its changes.
type Watcher struct {
	ingest   driving.IngestService
	cfg      Config
	onIngest IngestFunc
	ready    chan struct{}

	mu      sync.Mutex
	timers  map[string]*time.Timer
	closed  bool
	pending sync.WaitGroup
}

// New creates a watcher for cfg.Root.
func New(ingest driving.IngestService, cfg Config) (*Watcher, error) {
	if ingest == nil {
		return nil, errors.New("watcher: ingest service is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("reading root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, root)
	}
	cfg.Root = root
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = domain.MaxFileSize
	}

	return &Watcher{
		ingest: ingest,
		cfg:    cfg,
		ready:  make(chan struct{}),
		timers: make(map[string]*time.Timer),
	}, nil
}

// OnIngest registers a callback invoked after every watched ingestion.
// It must be set before Run.
func (w *Watcher) OnIngest(fn IngestFunc) {
	w.onIngest = fn
}

// Ready is closed once Run has registered its watches.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Scan ingests every supported file under the root through IngestBatch.
func (w *Watcher) Scan(ctx context.Context) ([]*domain.IngestResult, error) {
	var reqs []domain.IngestRequest
	err := w.walk(w.cfg.Root, func(path string) {
		req, ok := w.request(path)
		if ok {
			reqs = append(reqs, req)
		}
	})
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	logger.Debug("watcher: scanning %d files under %s", len(reqs), w.cfg.Root)
	return w.ingest.IngestBatch(ctx, reqs)
}

// Run scans the tree and then re-ingests changed files until ctx is
// cancelled. Pending debounced ingestions are dropped on shutdown.
// A Watcher runs at most once.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.walkDirs(w.cfg.Root, fsw.Add); err != nil {
		return fmt.Errorf("watching %s: %w", w.cfg.Root, err)
	}
	close(w.ready)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := w.Scan(gctx)
		if err != nil {
			// Per-file failures are joined; the watch keeps running.
			logger.L().Warn("initial scan", zap.Error(err))
		}
		logger.L().Info("initial scan complete", zap.Int("files", len(results)))
		return nil
	})
	g.Go(func() error {
		return w.loop(gctx, fsw)
	})

	err = g.Wait()
	w.stop()
	return err
}

// loop dispatches fsnotify events until ctx is done.
func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.L().Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if w.ignored(ev.Name) {
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		// Removed before we got to it.
		return
	}
	if info.IsDir() {
		if !ev.Has(fsnotify.Create) || skipDir(filepath.Base(ev.Name)) {
			return
		}
		// Files may land in a new directory before its watch exists.
		if err := w.walkDirs(ev.Name, fsw.Add); err != nil {
			logger.L().Warn("watching new directory", zap.String("path", ev.Name), zap.Error(err))
		}
		_ = w.walk(ev.Name, func(path string) { w.schedule(ctx, path) })
		return
	}
	if domain.IsSupported(ev.Name) {
		w.schedule(ctx, ev.Name)
	}
}

// schedule (re)starts the debounce timer of path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if t, ok := w.timers[path]; ok && t.Stop() {
		w.pending.Done()
	}
	w.pending.Add(1)

	var timer *time.Timer
	timer = time.AfterFunc(w.cfg.Debounce, func() {
		defer w.pending.Done()
		w.mu.Lock()
		if w.timers[path] == timer {
			delete(w.timers, path)
		}
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		w.ingestFile(ctx, path)
	})
	w.timers[path] = timer
}

// stop cancels pending timers and waits for running ingestions.
func (w *Watcher) stop() {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.timers {
		if t.Stop() {
			w.pending.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()

	w.pending.Wait()
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	req, ok := w.request(path)
	if !ok {
		return
	}

	result, err := w.ingest.Ingest(ctx, req)
	if err != nil {
		logger.L().Warn("re-ingest failed", zap.String("path", req.Path), zap.Error(err))
	} else {
		logger.L().Debug("re-ingested",
			zap.String("path", req.Path),
			zap.Int("version", result.Version),
			zap.Bool("created", result.Created),
		)
	}
	if w.onIngest != nil {
		w.onIngest(req.Path, result, err)
	}
}

// request reads path into an ingest request. Unreadable, oversized and
// out-of-root files are skipped.
func (w *Watcher) request(path string) (domain.IngestRequest, bool) {
	rel, err := filepath.Rel(w.cfg.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return domain.IngestRequest{}, false
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Debug("watcher: skipping %s: %v", rel, err)
		return domain.IngestRequest{}, false
	}
	if info.Size() > w.cfg.MaxFileSize {
		logger.Warn("watcher: skipping %s: %d bytes exceeds limit", rel, info.Size())
		return domain.IngestRequest{}, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Debug("watcher: skipping %s: %v", rel, err)
		return domain.IngestRequest{}, false
	}

	return domain.IngestRequest{
		Path:   filepath.ToSlash(rel),
		Module: w.cfg.Module,
		Text:   string(data),
	}, true
}

// walk calls fn for every supported file under dir.
func (w *Watcher) walk(dir string, fn func(path string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if isHidden(d.Name()) || !domain.IsSupported(path) {
			return nil
		}
		fn(path)
		return nil
	})
}

// walkDirs calls add for dir and every non-skipped directory below it.
func (w *Watcher) walkDirs(dir string, add func(string) error) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return add(path)
	})
}

// ignored reports whether any path element below the root is hidden or skipped.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.cfg.Root, path)
	if err != nil {
		return true
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, part := range parts {
		if isHidden(part) {
			return true
		}
		if i < len(parts)-1 && skipDir(part) {
			return true
		}
	}
	return false
}

func skipDir(name string) bool {
	if isHidden(name) {
		return true
	}
	_, ok := skipDirs[name]
	return ok
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
