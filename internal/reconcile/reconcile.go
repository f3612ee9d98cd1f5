package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"clypse/internal/filesystem"
	"clypse/internal/library"
	"clypse/internal/logging"
	"clypse/internal/media"
	"clypse/internal/metrics"
	"clypse/internal/upload"
)

const (
	// DefaultSweepInterval is how often stale artifacts are swept.
	DefaultSweepInterval = time.Hour
	// DefaultMaxAge is the age after which an artifact is considered abandoned.
	DefaultMaxAge = time.Hour
)

// Catalog lists entries and removes them with their cascade.
type Catalog interface {
	List(ctx context.Context) ([]library.Entry, error)
	RemoveByFilename(ctx context.Context, fileName string) (bool, error)
}

// Enqueuer accepts landing files for ingestion.
type Enqueuer interface {
	Enqueue(path string) bool
}

// Config configures a Reconciler.
type Config struct {
	UploadsDir    string
	VideosDir     string
	ThumbnailsDir string
	SweepInterval time.Duration
	MaxAge        time.Duration
	// DryRun reports what would be removed without touching anything.
	DryRun bool
}

// Report summarizes one reconciliation pass.
type Report struct {
	OrphansRemoved   int
	ArtifactsRemoved int
	Requeued         int
	Orphans          []string
	Artifacts        []string
	Errors           []error
}

// Reconciler runs startup reconciliation and the periodic artifact sweep.
type Reconciler struct {
	cfg      Config
	catalog  Catalog
	enqueuer Enqueuer

	sweepMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Reconciler. enqueuer may be nil, in which case landing files
// are left in place.
func New(cfg Config, catalog Catalog, enqueuer Enqueuer) *Reconciler {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.ThumbnailsDir == "" {
		cfg.ThumbnailsDir = filepath.Join(cfg.VideosDir, "thumbnails")
	}
	return &Reconciler{cfg: cfg, catalog: catalog, enqueuer: enqueuer}
}

// EnsureDirectories creates the landing, published and thumbnail
// directories.
func (r *Reconciler) EnsureDirectories() error {
	for _, dir := range []string{r.cfg.UploadsDir, r.cfg.VideosDir, r.cfg.ThumbnailsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Run performs the startup pass.
func (r *Reconciler) Run(ctx context.Context) Report {
	var rep Report
	start := time.Now()

	if err := r.EnsureDirectories(); err != nil {
		rep.Errors = append(rep.Errors, err)
		logging.Error("Reconcile: %v", err)
	}

	orphans, err := r.removeOrphans(ctx)
	rep.Orphans = orphans
	if !r.cfg.DryRun {
		rep.OrphansRemoved = len(orphans)
	}
	if err != nil {
		rep.Errors = append(rep.Errors, err)
		logging.Error("Reconcile: orphan check failed: %v", err)
	}

	artifacts, requeued, err := r.scanLanding()
	rep.Artifacts = artifacts
	if !r.cfg.DryRun {
		rep.ArtifactsRemoved = len(artifacts)
	}
	rep.Requeued = requeued
	if err != nil {
		rep.Errors = append(rep.Errors, err)
		logging.Error("Reconcile: landing scan failed: %v", err)
	}

	temps, err := r.removeFaststartTemps()
	rep.Artifacts = append(rep.Artifacts, temps...)
	if !r.cfg.DryRun {
		rep.ArtifactsRemoved += len(temps)
	}
	if err != nil {
		rep.Errors = append(rep.Errors, err)
		logging.Error("Reconcile: published scan failed: %v", err)
	}

	logging.Info("Reconcile complete in %v: %d orphan entries, %d artifacts, %d requeued, %d errors",
		time.Since(start).Round(time.Millisecond), len(rep.Orphans), len(rep.Artifacts), rep.Requeued, len(rep.Errors))
	return rep
}

// removeOrphans deletes every entry whose published file is missing and
// returns their file names.
func (r *Reconciler) removeOrphans(ctx context.Context) ([]string, error) {
	entries, err := r.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}

	var orphans []string
	var errs []error
	for _, e := range entries {
		path := filepath.Join(r.cfg.VideosDir, filepath.Base(e.FileName))
		ok, err := filesystem.Exists(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			continue
		}

		if r.cfg.DryRun {
			orphans = append(orphans, e.FileName)
			continue
		}
		if _, err := r.catalog.RemoveByFilename(ctx, e.FileName); err != nil {
			errs = append(errs, err)
			continue
		}
		orphans = append(orphans, e.FileName)
		metrics.ReconcileRemovedTotal.WithLabelValues("orphan_entry").Inc()
		logging.Info("Removed orphan catalog entry %s (%s)", e.FileName, e.UUID)
	}
	return orphans, errors.Join(errs...)
}

// scanLanding deletes abandoned artifacts and enqueues the remaining files.
// A title side file whose staged file still exists is kept for the ingest
// worker.
func (r *Reconciler) scanLanding() ([]string, int, error) {
	entries, err := filesystem.ReadDirWithRetry(r.cfg.UploadsDir, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", r.cfg.UploadsDir, err)
	}

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.Name()] = true
	}

	var artifacts []string
	var errs []error
	requeued := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		path := filepath.Join(r.cfg.UploadsDir, name)

		switch {
		case upload.IsChunkOrTemp(name):
			// removed below
		case upload.IsTitleFile(name):
			if present[strings.TrimSuffix(name, filepath.Ext(name))] {
				continue
			}
		default:
			if !e.Type().IsRegular() || strings.HasPrefix(name, ".") {
				continue
			}
			if r.enqueuer != nil && r.enqueuer.Enqueue(path) {
				requeued++
				metrics.ReconcileRequeuedTotal.Inc()
			}
			continue
		}

		if r.cfg.DryRun {
			artifacts = append(artifacts, name)
			continue
		}
		if err := filesystem.RemoveIfExists(path); err != nil {
			errs = append(errs, err)
			continue
		}
		artifacts = append(artifacts, name)
		metrics.ReconcileRemovedTotal.WithLabelValues("artifact").Inc()
		logging.Debug("Removed upload artifact %s", name)
	}
	return artifacts, requeued, errors.Join(errs...)
}

// removeFaststartTemps deletes faststart outputs an interrupted ffmpeg left
// in the published directory.
func (r *Reconciler) removeFaststartTemps() ([]string, error) {
	entries, err := filesystem.ReadDirWithRetry(r.cfg.VideosDir, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.cfg.VideosDir, err)
	}

	var removed []string
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !media.IsFaststartTemp(name) {
			continue
		}
		if r.cfg.DryRun {
			removed = append(removed, name)
			continue
		}
		if err := filesystem.RemoveIfExists(filepath.Join(r.cfg.VideosDir, name)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, name)
		metrics.ReconcileRemovedTotal.WithLabelValues("artifact").Inc()
		logging.Debug("Removed faststart temp %s", name)
	}
	return removed, errors.Join(errs...)
}

// Sweep removes chunk and temp artifacts last modified before now minus
// MaxAge and returns how many were removed. Concurrent calls are serialized.
func (r *Reconciler) Sweep(now time.Time) (int, error) {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	entries, err := os.ReadDir(r.cfg.UploadsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", r.cfg.UploadsDir, err)
	}

	cutoff := now.Add(-r.cfg.MaxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !upload.IsChunkOrTemp(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(r.cfg.UploadsDir, e.Name())
		if r.cfg.DryRun {
			logging.Info("Would remove stale artifact %s (modified %s)", e.Name(), info.ModTime().Format(time.RFC3339))
			removed++
			continue
		}
		if err := filesystem.RemoveIfExists(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
		metrics.ReconcileRemovedTotal.WithLabelValues("swept_artifact").Inc()
	}

	metrics.ReconcileLastSweepTimestamp.Set(float64(now.Unix()))
	if removed > 0 {
		logging.Info("Swept %d stale upload artifacts", removed)
	}
	return removed, errors.Join(errs...)
}

// StartSweeper runs Sweep every SweepInterval until ctx ends or Stop is
// called.
func (r *Reconciler) StartSweeper(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if _, err := r.Sweep(now); err != nil {
					logging.Error("Artifact sweep failed: %v", err)
				}
			}
		}
	}()

	logging.Info("Artifact sweeper started (interval %v, max age %v)", r.cfg.SweepInterval, r.cfg.MaxAge)
}

// Stop ends the sweeper and waits for a running sweep to finish.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}
