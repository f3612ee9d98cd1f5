package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clypse_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clypse_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Catalog (sqlite) metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_db_queries_total",
			Help: "Total number of catalog queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clypse_db_query_duration_seconds",
			Help:    "Catalog query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clypse_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)

	DirectoryBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clypse_directory_bytes",
			Help: "Total size of regular files directly inside a working directory",
		},
		[]string{"dir"}, // "uploads", "videos", "thumbnails"
	)

	CatalogVideosTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clypse_catalog_videos_total",
			Help: "Number of published videos in the catalog",
		},
	)
)

// Upload metrics
var (
	UploadChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clypse_upload_chunks_total",
			Help: "Total number of upload chunks persisted",
		},
	)

	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clypse_upload_bytes_total",
			Help: "Total bytes received in upload chunks",
		},
	)

	UploadAssembliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_upload_assemblies_total",
			Help: "Total number of upload assembly attempts by outcome",
		},
		[]string{"status"}, // "success", "missing_chunk", "error"
	)

	UploadRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_upload_rejected_total",
			Help: "Total number of rejected upload chunks by reason",
		},
		[]string{"reason"},
	)

	UploadCancelsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clypse_upload_cancels_total",
			Help: "Total number of upload cancellations",
		},
	)
)

// Ingest queue metrics
var (
	IngestQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clypse_ingest_queue_depth",
			Help: "Number of files waiting for ingestion",
		},
	)

	IngestInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clypse_ingest_in_progress",
			Help: "1 while the ingest worker is processing a file",
		},
	)

	IngestEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_ingest_enqueued_total",
			Help: "Total enqueue attempts by result",
		},
		[]string{"result"}, // "queued", "duplicate", "full"
	)

	IngestProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clypse_ingest_processed_total",
			Help: "Total number of files published to the catalog",
		},
	)

	IngestFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_ingest_failures_total",
			Help: "Total number of ingest failures by pipeline stage",
		},
		[]string{"stage"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clypse_ingest_duration_seconds",
			Help:    "Time to take one file from landing to catalog",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)
)

// External tool metrics
var (
	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_tool_invocations_total",
			Help: "Total number of external media tool invocations",
		},
		[]string{"operation", "status"}, // status: "success", "error", "timeout"
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clypse_tool_duration_seconds",
			Help:    "External media tool invocation duration",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"operation"},
	)

	ThumbnailAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_thumbnail_attempts_total",
			Help: "Thumbnail capture attempts by result",
		},
		[]string{"result"}, // "success", "empty", "error"
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_watcher_events_total",
			Help: "Total filesystem events observed by directory and type",
		},
		[]string{"dir", "type"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clypse_watcher_errors_total",
			Help: "Total filesystem watcher errors",
		},
	)
)

// Reconciler metrics
var (
	ReconcileRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_reconcile_removed_total",
			Help: "Items removed by reconciliation by kind",
		},
		[]string{"kind"}, // "orphan_entry", "artifact", "swept_artifact"
	)

	ReconcileRequeuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clypse_reconcile_requeued_total",
			Help: "Files requeued for ingestion at startup",
		},
	)

	ReconcileLastSweepTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clypse_reconcile_last_sweep_timestamp_seconds",
			Help: "Unix timestamp of the last temp artifact sweep",
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clypse_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clypse_memory_paused",
			Help: "Whether ingestion is paused for memory pressure (1) or running (0)",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clypse_memory_pauses_total",
			Help: "Times ingestion was paused for memory pressure",
		},
	)
)

// Streaming metrics
var (
	StreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_stream_requests_total",
			Help: "Video stream requests by response status",
		},
		[]string{"status"},
	)

	StreamBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clypse_stream_bytes_total",
			Help: "Total bytes written to video streams",
		},
	)

	StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clypse_streams_active",
			Help: "Number of video streams currently being written",
		},
	)
)

// Realtime channel metrics
var (
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clypse_websocket_clients",
			Help: "Number of connected realtime clients",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_notifications_total",
			Help: "Realtime events published by type",
		},
		[]string{"type"},
	)

	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clypse_notifications_dropped_total",
			Help: "Realtime events dropped for slow subscribers",
		},
	)
)

// Filesystem metrics
var (
	FilesystemMoves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_filesystem_moves_total",
			Help: "File moves by method",
		},
		[]string{"method"}, // "rename", "copy"
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_filesystem_retry_attempts_total",
			Help: "Retry attempts on stale file handles",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_filesystem_retry_success_total",
			Help: "Operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clypse_filesystem_stale_errors_total",
			Help: "ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clypse_filesystem_retry_duration_seconds",
			Help:    "Total duration of retried filesystem operations",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation", "volume"},
	)
)

// Application info
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clypse_app_info",
			Help: "Application build information",
		},
		[]string{"version", "commit", "go_version"},
	)
)
