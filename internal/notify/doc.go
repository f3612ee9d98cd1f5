// Package notify fans catalog events out to realtime subscribers.
//
// A Hub accepts events from the ingest worker and the deletion cascade and
// delivers them to every subscriber without blocking the publisher. A
// subscriber that falls behind loses events rather than slowing the
// pipeline. ServeWS exposes the hub over a websocket, one JSON frame per
// event:
//
//	{"type": "video:added", "payload": {...}}
package notify
