/*
Package streaming serves published videos over HTTP with byte-range support
and protection against slow or vanished clients.

# Range requests

ServeVideo answers three shapes of request:

  - no Range header: 200 with the whole file
  - "bytes=start-end" or "bytes=start-": 206 with Content-Range and exactly
    that span; an end past the file is clamped
  - a start at or past the file size: 416 with a plain text body naming the
    offending start and the size

A malformed header is treated as absent. A catalog row whose file is gone
returns ErrSourceMissing before anything is written, so callers can answer
with their own 404.

# Timeout protection

Bytes are copied through a bounded buffer into a TimeoutWriter. Each chunk is
written under a connection write deadline and flushed, and a stream with no
successful write for IdleTimeout is canceled:

	tw := streaming.NewTimeoutWriter(r.Context(), w, streaming.DefaultTimeoutWriterConfig())
	defer tw.Close()
	_, err := io.Copy(tw, src)
	if streaming.IsQuietError(err) {
		return // client left or was too slow
	}

ErrClientGone, ErrWriteTimeout and ErrStreamCanceled end a stream without
being reported as server errors.
*/
package streaming
