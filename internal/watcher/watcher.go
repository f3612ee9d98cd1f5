package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"clypse/internal/filesystem"
	"clypse/internal/logging"
	"clypse/internal/media"
	"clypse/internal/metrics"
	"clypse/internal/upload"
)

// DefaultDebounce is the landing write-settle window.
const DefaultDebounce = 2 * time.Second

// Enqueuer accepts settled landing files.
type Enqueuer interface {
	Enqueue(path string) bool
}

// Remover deletes the catalog entry for a published file name.
type Remover interface {
	RemoveByFilename(ctx context.Context, fileName string) (bool, error)
}

// Config configures a Watcher.
type Config struct {
	UploadsDir    string
	VideosDir     string
	ThumbnailsDir string
	Debounce      time.Duration
}

// Watcher watches the landing and published directories.
type Watcher struct {
	cfg      Config
	enqueuer Enqueuer
	remover  Remover
	fsw      *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer

	ctx       context.Context
	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// IsArtifact reports whether a landing file name must never be ingested.
func IsArtifact(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") || upload.IsArtifact(base) || media.IsFaststartTemp(base)
}

// New creates a Watcher over cfg.UploadsDir and cfg.VideosDir. Both must
// exist.
func New(cfg Config, enqueuer Enqueuer, remover Remover) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	cfg.UploadsDir = filepath.Clean(cfg.UploadsDir)
	cfg.VideosDir = filepath.Clean(cfg.VideosDir)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	for _, dir := range []string{cfg.UploadsDir, cfg.VideosDir} {
		if err := fsw.Add(dir); err != nil {
			metrics.WatcherErrors.Inc()
			if closeErr := fsw.Close(); closeErr != nil {
				logging.Error("failed to close file watcher: %v", closeErr)
			}
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	return &Watcher{
		cfg:      cfg,
		enqueuer: enqueuer,
		remover:  remover,
		fsw:      fsw,
		timers:   make(map[string]*time.Timer),
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins processing events in the background.
func (w *Watcher) Start(ctx context.Context) error {
	w.startOnce.Do(func() {
		w.ctx = ctx
		w.wg.Add(1)
		go w.processEvents()
		logging.Info("Watching %s (landing) and %s (published)", w.cfg.UploadsDir, w.cfg.VideosDir)
	})
	return nil
}

// Stop cancels pending debounce timers and closes the underlying watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		if err := w.fsw.Close(); err != nil {
			logging.Error("failed to close file watcher: %v", err)
		}
		w.wg.Wait()

		w.mu.Lock()
		for path, t := range w.timers {
			t.Stop()
			delete(w.timers, path)
		}
		w.mu.Unlock()
	})
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			return
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	dir := filepath.Dir(event.Name)
	name := filepath.Base(event.Name)

	switch dir {
	case w.cfg.UploadsDir:
		metrics.WatcherEventsTotal.WithLabelValues("uploads", eventType(event.Op)).Inc()
		if IsArtifact(name) {
			return
		}
		if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
			w.schedule(event.Name)
		}
	case w.cfg.VideosDir:
		metrics.WatcherEventsTotal.WithLabelValues("videos", eventType(event.Op)).Inc()
		if IsArtifact(name) {
			return
		}
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			w.handleRemoved(event.Name)
		}
	}
}

// schedule (re)starts the settle timer for a landing path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.stopChan:
		return
	default:
	}

	if t, ok := w.timers[path]; ok {
		t.Reset(w.cfg.Debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() { w.settled(path) })
}

func (w *Watcher) settled(path string) {
	w.mu.Lock()
	delete(w.timers, path)
	w.mu.Unlock()

	select {
	case <-w.stopChan:
		return
	default:
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	logging.Debug("Landing file settled: %s", path)
	w.enqueuer.Enqueue(path)
}

func (w *Watcher) handleRemoved(path string) {
	// A rename onto the same name leaves the file in place.
	if ok, err := filesystem.Exists(path); ok || err != nil {
		return
	}

	if w.cfg.ThumbnailsDir != "" && filepath.Clean(path) == filepath.Clean(w.cfg.ThumbnailsDir) {
		return
	}

	name := filepath.Base(path)
	removed, err := w.remover.RemoveByFilename(w.ctx, name)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("Failed to remove %s from catalog: %v", name, err)
		return
	}
	if removed {
		logging.Info("Published file %s deleted, catalog entry removed", name)
	}
}

// eventType returns a string representation of the fsnotify operation
func eventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}
