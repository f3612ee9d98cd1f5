package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clypse/internal/database"
	"clypse/internal/filesystem"
	"clypse/internal/library"
	"clypse/internal/logging"
	"clypse/internal/media"
	"clypse/internal/mediatypes"
	"clypse/internal/metrics"
	"clypse/internal/upload"
)

// EventVideoAdded is published after a new entry is cataloged.
const EventVideoAdded = "video:added"

// DefaultQueueSize is used when Config.QueueSize is not positive.
const DefaultQueueSize = 1024

// ThumbnailURLPrefix is the public path thumbnails are served under.
const ThumbnailURLPrefix = "/videos/thumbnails/"

// Prober runs the external media tools.
type Prober interface {
	Metadata(ctx context.Context, path string) (media.Metadata, error)
	Thumbnail(ctx context.Context, path, outDir, outName string, duration float64) error
	Faststart(ctx context.Context, path string) error
}

// Catalog is the subset of the catalog store the worker writes to.
type Catalog interface {
	Create(ctx context.Context, v *database.Video) error
	ExistsByFilename(ctx context.Context, fileName string) (bool, error)
}

// Notifier receives realtime events.
type Notifier interface {
	Publish(eventType string, payload interface{})
}

// Config configures a Queue.
type Config struct {
	VideosDir         string
	ThumbnailsDir     string
	QueueSize         int
	AllowedExtensions map[string]bool
	// Gate, when set, is consulted before each file is processed.
	Gate Gate
}

// Gate holds the worker back while resources are short. WaitIfPaused
// returns false when the worker should give up on the current file.
type Gate interface {
	WaitIfPaused(ctx context.Context) bool
}

// Queue is a bounded FIFO of staged file paths with a single worker.
type Queue struct {
	cfg      Config
	prober   Prober
	catalog  Catalog
	notifier Notifier

	items chan string

	mu      sync.Mutex
	pending map[string]struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// New creates a Queue. notifier may be nil.
func New(cfg Config, prober Prober, catalog Catalog, notifier Notifier) *Queue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.ThumbnailsDir == "" {
		cfg.ThumbnailsDir = filepath.Join(cfg.VideosDir, "thumbnails")
	}
	return &Queue{
		cfg:      cfg,
		prober:   prober,
		catalog:  catalog,
		notifier: notifier,
		items:    make(chan string, cfg.QueueSize),
		pending:  make(map[string]struct{}),
		stopChan: make(chan struct{}),
	}
}

// Enqueue schedules path for ingestion. It returns false when the path is
// already queued or being processed, or when the queue is full.
func (q *Queue) Enqueue(path string) bool {
	key := filepath.Clean(path)

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[key]; ok {
		metrics.IngestEnqueuedTotal.WithLabelValues("duplicate").Inc()
		logging.Debug("Already queued: %s", key)
		return false
	}

	select {
	case q.items <- key:
		q.pending[key] = struct{}{}
		metrics.IngestEnqueuedTotal.WithLabelValues("queued").Inc()
		metrics.IngestQueueDepth.Set(float64(len(q.items)))
		logging.Info("Queued for processing: %s", filepath.Base(key))
		return true
	default:
		metrics.IngestEnqueuedTotal.WithLabelValues("full").Inc()
		logging.Warn("Ingest queue full (%d), dropping %s", cap(q.items), key)
		return false
	}
}

// Len returns the number of paths waiting or in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Start launches the worker. Calling it more than once has no effect.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		q.wg.Add(1)
		go q.run(ctx)
	})
}

// Stop signals the worker and waits for the current item to finish.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopChan)
	})
	q.wg.Wait()
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopChan:
			return
		case path := <-q.items:
			metrics.IngestQueueDepth.Set(float64(len(q.items)))
			if q.cfg.Gate != nil && !q.cfg.Gate.WaitIfPaused(ctx) {
				logging.Warn("Ingestion interrupted, leaving %s for the next start", filepath.Base(path))
				q.mu.Lock()
				delete(q.pending, path)
				q.mu.Unlock()
				return
			}
			q.process(ctx, path)

			q.mu.Lock()
			delete(q.pending, path)
			q.mu.Unlock()
		}
	}
}

// stageError tags a pipeline failure with the step that produced it.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func fail(stage string, err error) error {
	return &stageError{stage: stage, err: err}
}

func (q *Queue) process(ctx context.Context, path string) {
	start := time.Now()
	metrics.IngestInProgress.Inc()
	defer metrics.IngestInProgress.Dec()

	entry, err := q.ingest(ctx, path)
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	log := logging.WithFields(logging.Fields{"file": filepath.Base(path)})
	if err != nil {
		var se *stageError
		stage := "unknown"
		if errors.As(err, &se) {
			stage = se.stage
		}
		switch stage {
		case "missing":
			log.Warn("Skipped, file no longer exists")
		case "interrupted":
			log.Warn("Interrupted by shutdown, left staged for the next start: %v", err)
		default:
			log.Error("Processing failed: %v", err)
		}
		metrics.IngestFailuresTotal.WithLabelValues(stage).Inc()
		return
	}

	metrics.IngestProcessedTotal.Inc()
	log.Info("Published %q as %s (%dx%d) in %v", entry.Title, entry.FileName, entry.Width, entry.Height, time.Since(start).Round(time.Millisecond))

	if q.notifier != nil {
		q.notifier.Publish(EventVideoAdded, library.NewEntry(entry))
	}
}

// ingest runs the per-item pipeline and returns the created entry.
func (q *Queue) ingest(ctx context.Context, path string) (*database.Video, error) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		upload.ConsumeTitle(path)
		return nil, fail("missing", fmt.Errorf("stat %s: %w", path, os.ErrNotExist))
	}

	original := filepath.Base(path)
	if !mediatypes.IsAllowed(original, q.cfg.AllowedExtensions) {
		discard(path)
		return nil, fail("extension", fmt.Errorf("%s: extension %q not allowed", original, mediatypes.Ext(original)))
	}

	md, err := q.prober.Metadata(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fail("interrupted", err)
		}
		discard(path)
		return nil, fail("probe", err)
	}

	name, err := q.storageName(ctx, publishName(original))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fail("interrupted", err)
		}
		discard(path)
		return nil, fail("filename", err)
	}

	published := filepath.Join(q.cfg.VideosDir, name)
	if err := filesystem.Move(path, published); err != nil {
		if ctx.Err() != nil {
			return nil, fail("interrupted", err)
		}
		discard(path)
		return nil, fail("move", err)
	}

	if err := q.prober.Faststart(ctx, published); err != nil {
		logging.Warn("Faststart skipped for %s: %v", name, err)
	}

	thumbName := media.ThumbnailName(name)
	if err := q.prober.Thumbnail(ctx, published, q.cfg.ThumbnailsDir, thumbName, md.Duration); err != nil {
		if ctx.Err() != nil {
			q.restore(path, published, thumbName)
			return nil, fail("interrupted", err)
		}
		q.rollback(path, published, thumbName)
		return nil, fail("thumbnail", err)
	}

	title, ok := upload.ReadTitle(path)
	if !ok {
		title = upload.TitleFromFilename(path)
	}
	entry := &database.Video{
		UUID:             uuid.New().String(),
		Title:            title,
		FileName:         name,
		OriginalFileName: original,
		Thumbnail:        ThumbnailURLPrefix + thumbName,
		Width:            md.Width,
		Height:           md.Height,
	}
	if err := q.catalog.Create(ctx, entry); err != nil {
		if ctx.Err() != nil {
			q.restore(path, published, thumbName)
			return nil, fail("interrupted", err)
		}
		q.rollback(path, published, thumbName)
		return nil, fail("catalog", err)
	}
	if err := filesystem.RemoveIfExists(upload.TitleFile(path)); err != nil {
		logging.Warn("Failed to remove title file for %s: %v", path, err)
	}
	return entry, nil
}

// publishName sanitizes a landing file name the same way uploads are. Names
// that sanitize to nothing or to a dotfile get a "video" stem.
func publishName(original string) string {
	name := upload.Sanitize(original)
	if name == "" || strings.HasPrefix(name, ".") {
		name = "video" + mediatypes.Ext(original)
	}
	return name
}

// storageName picks a published name that is free both on disk and in the
// catalog. Each candidate is checked fresh.
func (q *Queue) storageName(ctx context.Context, original string) (string, error) {
	onDisk := filesystem.InDir(q.cfg.VideosDir)
	return filesystem.UniqueName(original, func(candidate string) (bool, error) {
		if used, err := onDisk(candidate); used || err != nil {
			return used, err
		}
		return q.catalog.ExistsByFilename(ctx, candidate)
	})
}

// discard deletes a staged file that will not be published, with its title
// side file.
func discard(path string) {
	if err := filesystem.RemoveIfExists(path); err != nil {
		logging.Warn("Failed to delete staged file %s: %v", path, err)
	}
	if err := filesystem.RemoveIfExists(upload.TitleFile(path)); err != nil {
		logging.Warn("Failed to delete title file for %s: %v", path, err)
	}
}

// restore moves a published file back to its landing path after a shutdown
// cut the pipeline short, so the next start's reconcile pass requeues it.
// The title side file is kept.
func (q *Queue) restore(staged, published, thumbName string) {
	if err := filesystem.RemoveIfExists(filepath.Join(q.cfg.ThumbnailsDir, thumbName)); err != nil {
		logging.Warn("Failed to delete thumbnail %s: %v", thumbName, err)
	}
	if err := filesystem.Move(published, staged); err != nil {
		logging.Error("Failed to return %s to %s: %v", published, staged, err)
	}
}

// rollback removes everything a failed publish left behind.
func (q *Queue) rollback(staged, published, thumbName string) {
	discard(published)
	if err := filesystem.RemoveIfExists(filepath.Join(q.cfg.ThumbnailsDir, thumbName)); err != nil {
		logging.Warn("Failed to delete thumbnail %s: %v", thumbName, err)
	}
	if err := filesystem.RemoveIfExists(upload.TitleFile(staged)); err != nil {
		logging.Warn("Failed to delete title file for %s: %v", staged, err)
	}
}
