// Package media wraps the external ffprobe and ffmpeg tools used by the
// ingest pipeline.
//
// The Probe type provides the three operations a staged video goes through:
//   - Metadata: width, height and duration from ffprobe, with defaults for
//     missing fields
//   - Faststart: in-place container rewrite that moves the moov atom to the
//     front so playback can start before the download completes
//   - Thumbnail: a 320x180 PNG still, retried at several timestamps
//
// Every invocation is bounded by a timeout and goes through a Runner so tests
// can substitute the tools.
package media
