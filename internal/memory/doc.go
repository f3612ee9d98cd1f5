// Package memory keeps the server inside its container memory limit.
//
// [ConfigureFromEnv] derives GOMEMLIMIT from MEMORY_LIMIT (bytes, or a
// humanized size such as "2GiB") scaled by MEMORY_RATIO, leaving headroom
// for the ffmpeg and ffprobe child processes. An explicit GOMEMLIMIT wins.
//
// A [Monitor] samples the heap against that limit. Once usage crosses the
// pause ratio, [Monitor.WaitIfPaused] blocks until it drops below the resume
// ratio. The ingest worker calls it before starting each file so uploads
// keep landing while processing waits.
package memory
