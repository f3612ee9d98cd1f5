// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is loaded from environment variables via [LoadConfig]. A .env
// file in the working directory is read first when present; variables already
// set in the environment take precedence.
//
//   - PORT: HTTP server port (default: 3000)
//   - DATA_DIR: Database directory (default: data, or /data in a container)
//   - UPLOADS_DIR: Landing directory for uploads (default: uploads, or /uploads)
//   - VIDEOS_DIR: Published videos directory (default: videos, or /videos)
//   - MAX_UPLOAD_SIZE: Per-file limit such as 500M or 2G (default: unlimited)
//   - MAX_UPLOAD_COUNT: Files per upload request (default: unlimited)
//   - WATCH_DEBOUNCE: Settle window for landing files (default: 2s)
//   - CLEANUP_INTERVAL: Stale chunk sweep interval (default: 1h)
//   - CLEANUP_MAX_AGE: Age at which chunks are stale (default: 1h)
//   - TOOL_TIMEOUT: Timeout for each ffmpeg/ffprobe invocation (default: 5m)
//   - QUEUE_SIZE: Ingest queue capacity (default: 1024)
//   - METRICS_ENABLED: Serve /metrics (default: true)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_FORMAT: text or json (default: text)
//   - LOG_STATIC_FILES: Log static file requests (default: false)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//   - MEMORY_LIMIT, MEMORY_RATIO: Container limit used to derive GOMEMLIMIT
//     (see package memory)
//
// A container deployment is detected by the presence of /data, in which case
// the directory defaults become absolute root-level paths. Thumbnails live in
// VIDEOS_DIR/thumbnails and the catalog in DATA_DIR/clypse.db.
//
// # Directory Setup
//
// Every working directory is created when missing and probed for write
// access. Any failure is returned from [LoadConfig] and is fatal.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup
