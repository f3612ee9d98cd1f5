// Package handlers provides the HTTP handlers of the clypse server.
//
// It includes handlers for:
//   - Chunked uploads and upload cancellation
//   - Catalog listing and single entry lookup
//   - Byte-range video streaming and share pages
//   - Client upload limits
//   - Health checks, version and metrics
package handlers
