// Package metrics provides Prometheus instrumentation for clypse.
//
// All metrics are registered with promauto at package init and prefixed with
// "clypse_". They are exposed on /metrics when METRICS_ENABLED is true.
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight
//
// ## Catalog Metrics
//   - DBQueryTotal, DBQueryDuration: per catalog operation
//   - DBSizeBytes: sqlite main, WAL and SHM file sizes (sampled by [Collector])
//   - CatalogVideosTotal: published entry count (sampled by [Collector])
//
// ## Upload Metrics
//   - UploadChunksTotal, UploadBytesTotal
//   - UploadAssembliesTotal: assembly outcome (success, missing_chunk, error)
//   - UploadRejectedTotal: chunk rejection reason
//   - UploadCancelsTotal
//
// ## Ingest Metrics
//   - IngestQueueDepth, IngestInProgress
//   - IngestEnqueuedTotal: queued, duplicate, full
//   - IngestProcessedTotal, IngestFailuresTotal (by stage), IngestDuration
//
// ## Media Tool Metrics
//   - ToolInvocationsTotal, ToolDuration: probe, thumbnail and faststart runs
//   - ThumbnailAttemptsTotal: per-timestamp capture result
//
// ## Watcher and Reconciler Metrics
//   - WatcherEventsTotal, WatcherErrors
//   - ReconcileRemovedTotal, ReconcileRequeuedTotal, ReconcileLastSweepTimestamp
//
// ## Streaming and Realtime Metrics
//   - StreamRequestsTotal, StreamBytesTotal, StreamsActive
//   - WebsocketClients, NotificationsTotal, NotificationsDropped
//
// ## Filesystem Metrics
//   - FilesystemMoves: rename vs cross-device copy
//   - FilesystemRetry*: ESTALE retry behavior per operation and volume
//
// [InitializeMetrics] pre-populates label combinations so dashboards have
// series from the first scrape.
package metrics
