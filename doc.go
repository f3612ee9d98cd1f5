// Package main is the clypse server: a self-hosted drop box that turns
// uploaded video files into shareable, streamable links.
//
// # Pipeline
//
// Browsers upload files in chunks to /api/upload. Once the last chunk
// arrives the chunks are assembled into the landing directory and the file
// is queued. Files copied into the landing directory by other means are
// picked up by a filesystem watcher and queued the same way.
//
// A single ingest worker then, for each queued file:
//
//  1. probes it with ffprobe for width and height
//  2. remuxes it with ffmpeg so the moov atom comes first (best effort)
//  3. moves it into the published directory under a unique name
//  4. captures a PNG thumbnail with ffmpeg
//  5. records it in the SQLite catalog and notifies websocket clients
//
// # Startup
//
//  1. Configuration: environment variables and an optional .env file
//  2. Memory: GOMEMLIMIT from MEMORY_LIMIT and the ingest backpressure monitor
//  3. Catalog: SQLite database under DATA_DIR
//  4. Reconciliation: drop catalog entries whose file is gone, delete
//     abandoned upload fragments, requeue staged files
//  5. Ingest worker, filesystem watcher and fragment sweeper
//  6. HTTP server with logging, compression and metrics middleware
//
// SIGINT and SIGTERM stop the HTTP server first, then the watcher, the
// sweeper and the ingest worker, so no file is left half-published.
//
// # Endpoints
//
//	POST /api/upload            chunked upload
//	POST /api/upload-cancel     discard an upload session
//	GET  /api/config            upload limits
//	GET  /api/videos            catalog listing
//	GET  /api/videos/{uuid}     single catalog entry
//	GET  /s/{uuid}              video stream with Range support
//	GET  /share/{uuid}          share page with Open Graph tags
//	GET  /videos/thumbnails/    thumbnail images
//	GET  /ws                    catalog change notifications
//	GET  /health, /livez, /readyz, /version, /metrics
//
// See package startup for the configuration variables and the
// clypse-reconcile command for offline repair.
package main
