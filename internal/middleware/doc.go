// Package middleware provides HTTP middleware for the clypse server.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labelled by route template
//   - Gzip compression for text and JSON responses
//
// Video bodies, byte-range responses and websocket upgrades are never
// compressed, and the wrapped writers expose Unwrap so handlers can
// use http.ResponseController for per-write deadlines.
package middleware
