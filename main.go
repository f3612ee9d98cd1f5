package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"clypse/internal/database"
	"clypse/internal/filesystem"
	"clypse/internal/handlers"
	"clypse/internal/ingest"
	"clypse/internal/library"
	"clypse/internal/logging"
	"clypse/internal/media"
	"clypse/internal/memory"
	"clypse/internal/metrics"
	"clypse/internal/middleware"
	"clypse/internal/notify"
	"clypse/internal/reconcile"
	"clypse/internal/startup"
	"clypse/internal/upload"
	"clypse/internal/watcher"
)

const (
	shutdownTimeout   = 30 * time.Second
	collectorInterval = time.Minute
	publicDir         = "public"
)

func main() {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	memory.ConfigureFromEnv()
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"data":    config.DataDir,
		"uploads": config.UploadsDir,
		"videos":  config.VideosDir,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.InitializeMetrics()
	metrics.AppInfo.WithLabelValues(startup.Version, startup.Commit, startup.GoVersion).Set(1)

	// Catalog
	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error("Failed to close database: %v", err)
		}
	}()
	count, err := db.Count(ctx)
	if err != nil {
		logging.Warn("Failed to count catalog entries: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart), count)
	if info, err := os.Stat(config.DatabasePath); err == nil {
		logging.Info("  Database size: %s", humanize.IBytes(uint64(info.Size())))
	}

	startup.LogToolsInit("ffmpeg", "ffprobe")

	hub := notify.NewHub()
	lib := library.New(db, config.VideosDir, config.ThumbnailsDir, hub)

	runner := media.NewExecRunner()
	probe := media.NewProbe(media.ProbeConfig{Timeout: config.ToolTimeout, Runner: runner})

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	queue := ingest.New(ingest.Config{
		VideosDir:     config.VideosDir,
		ThumbnailsDir: config.ThumbnailsDir,
		QueueSize:     config.QueueSize,
		Gate:          monitor,
	}, probe, db, hub)

	assembler := upload.NewAssembler(upload.Config{
		UploadsDir:  config.UploadsDir,
		MaxFileSize: config.MaxUploadSize,
		OnAssembled: func(path string) { queue.Enqueue(path) },
	})

	// Reconcile before anything watches the directories
	rec := reconcile.New(reconcile.Config{
		UploadsDir:    config.UploadsDir,
		VideosDir:     config.VideosDir,
		ThumbnailsDir: config.ThumbnailsDir,
		SweepInterval: config.CleanupInterval,
		MaxAge:        config.CleanupMaxAge,
	}, lib, queue)
	if err := rec.EnsureDirectories(); err != nil {
		startup.LogFatal("Failed to prepare directories: %v", err)
	}
	report := rec.Run(ctx)
	startup.LogReconcile(report.OrphansRemoved, report.ArtifactsRemoved, report.Requeued, len(report.Errors))

	queue.Start(ctx)

	startup.LogWatcherInit(config.WatchDebounce, config.UploadsDir, config.VideosDir)
	fsw, err := watcher.New(watcher.Config{
		UploadsDir:    config.UploadsDir,
		VideosDir:     config.VideosDir,
		ThumbnailsDir: config.ThumbnailsDir,
		Debounce:      config.WatchDebounce,
	}, queue, lib)
	if err != nil {
		startup.LogFatal("Failed to create watcher: %v", err)
	}
	if err := fsw.Start(ctx); err != nil {
		startup.LogFatal("Failed to start watcher: %v", err)
	}

	rec.StartSweeper(ctx)

	collector := metrics.NewCollector(catalogStats{db: db, queue: queue}, config.DatabasePath, collectorInterval)
	collector.WatchDir("uploads", config.UploadsDir)
	collector.WatchDir("videos", config.VideosDir)
	collector.WatchDir("thumbnails", config.ThumbnailsDir)
	collector.Start()

	h := handlers.New(handlers.Config{
		Catalog:        lib,
		Uploads:        assembler,
		DB:             db,
		Queue:          queue,
		MaxUploadSize:  config.MaxUploadSize,
		MaxUploadCount: config.MaxUploadCount,
	})

	router := setupRouter(h, hub, config)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(
		middleware.Logger(loggingConfig)(router),
	)

	// WriteTimeout stays 0: streams manage per-write deadlines themselves
	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		startup.LogServerStarted(startup.ServerConfig{
			Port:            config.Port,
			MetricsEnabled:  config.MetricsEnabled,
			StartupDuration: time.Since(startTime),
		})
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdown(srv, fsw, rec, queue, monitor, collector, hub, runner)
		return nil
	})

	if err := g.Wait(); err != nil {
		startup.LogFatal("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers, hub *notify.Hub, config *startup.Config) *mux.Router {
	r := mux.NewRouter()

	if config.MetricsEnabled {
		r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
		r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	}

	// Health and version
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// API
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/config", h.GetConfig).Methods("GET")
	api.HandleFunc("/upload", h.UploadChunk).Methods("POST")
	api.HandleFunc("/upload-cancel", h.CancelUpload).Methods("POST")
	api.HandleFunc("/videos", h.ListVideos).Methods("GET")
	api.HandleFunc("/videos/{uuid}", h.GetVideo).Methods("GET")

	// Playback and sharing
	r.HandleFunc("/s/{uuid}", h.StreamVideo).Methods("GET", "HEAD")
	r.HandleFunc("/share/{uuid}", h.SharePage).Methods("GET")
	r.PathPrefix("/videos/thumbnails/").Handler(handlers.StaticFiles("/videos/thumbnails", config.ThumbnailsDir)).Methods("GET", "HEAD")

	// Realtime notifications
	r.HandleFunc("/ws", hub.ServeWS)

	// Web client
	r.PathPrefix("/").Handler(handlers.StaticFiles("", publicDir)).Methods("GET", "HEAD")

	return r
}

func shutdown(srv *http.Server, fsw *watcher.Watcher, rec *reconcile.Reconciler, queue *ingest.Queue,
	monitor *memory.Monitor, collector *metrics.Collector, hub *notify.Hub, runner *media.ExecRunner) {
	startup.LogShutdownInitiated("signal")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Stopping watcher")
	fsw.Stop()
	startup.LogShutdownStepComplete("Watcher stopped")

	startup.LogShutdownStep("Stopping sweeper")
	rec.Stop()
	startup.LogShutdownStepComplete("Sweeper stopped")

	startup.LogShutdownStep("Stopping ingest worker")
	runner.Cleanup()
	monitor.Stop()
	queue.Stop()
	startup.LogShutdownStepComplete("Ingest worker stopped")

	collector.Stop()
	hub.Close()

	startup.LogShutdownComplete()
}

// catalogStats feeds the metrics collector.
type catalogStats struct {
	db    *database.Database
	queue *ingest.Queue
}

func (s catalogStats) GetStats() metrics.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := s.db.Count(ctx)
	if err != nil {
		logging.Debug("Failed to count catalog entries: %v", err)
	}
	return metrics.Stats{TotalVideos: n, QueueDepth: s.queue.Len()}
}
