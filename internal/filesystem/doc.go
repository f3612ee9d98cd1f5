/*
Package filesystem provides the file operations shared by the upload, ingest
and streaming paths.

# Retry

[StatWithRetry], [OpenWithRetry] and [ReadDirWithRetry] wrap the os calls with
exponential backoff on ESTALE (stale NFS file handle). Any other error fails
immediately. Defaults are 3 retries starting at 50ms and capped at 500ms.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

Retry metrics are labeled with a volume name resolved from the configured
directories via [VolumeResolver].

# Moves

[Move] renames a file and falls back to copy, sync and unlink when the source
and destination sit on different devices (EXDEV). This is how assembled
uploads leave the landing directory and how staged files are published.
*/
package filesystem
