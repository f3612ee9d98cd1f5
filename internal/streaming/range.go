package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"clypse/internal/filesystem"
	"clypse/internal/logging"
	"clypse/internal/mediatypes"
	"clypse/internal/metrics"
)

var (
	// ErrSourceMissing means the catalog references a file that is not on disk.
	ErrSourceMissing = errors.New("video source file is missing")

	// ErrUnsatisfiableRange means the requested start is at or past the end.
	ErrUnsatisfiableRange = errors.New("range not satisfiable")
)

// copyBufferSize bounds how much of a file is held in memory per stream.
const copyBufferSize = 256 * 1024

// Range is an inclusive byte span.
type Range struct {
	Start int64
	End   int64
}

// Length returns the number of bytes in the span.
func (r Range) Length() int64 { return r.End - r.Start + 1 }

// ParseRange parses a "bytes=start-end" header against a file of size bytes.
// It returns ok=false when the header is absent or malformed, in which case
// the whole file should be served. A start at or beyond size returns
// ErrUnsatisfiableRange with Start set. An end past the file is clamped.
func ParseRange(header string, size int64) (Range, bool, error) {
	byteRange, found := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !found {
		return Range{}, false, nil
	}
	// Only the first span of a multi-range request is honored.
	if i := strings.IndexByte(byteRange, ','); i >= 0 {
		byteRange = byteRange[:i]
	}
	startStr, endStr, found := strings.Cut(strings.TrimSpace(byteRange), "-")
	if !found {
		return Range{}, false, nil
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		// Suffix form: the last N bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return Range{}, false, nil
		}
		if size == 0 {
			return Range{Start: 0}, true, ErrUnsatisfiableRange
		}
		if n > size {
			n = size
		}
		return Range{Start: size - n, End: size - 1}, true, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return Range{}, false, nil
	}
	if start >= size {
		return Range{Start: start, End: size - 1}, true, ErrUnsatisfiableRange
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return Range{}, false, nil
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return Range{Start: start, End: end}, true, nil
}

// ServeVideo writes the file at path to w, honoring the request's Range
// header. A missing file returns ErrSourceMissing with nothing written.
// Client disconnects and slow-client timeouts end the stream and return nil.
func ServeVideo(ctx context.Context, w http.ResponseWriter, r *http.Request, path string, cfg TimeoutWriterConfig) error {
	retry := filesystem.DefaultRetryConfig()

	info, err := filesystem.StatWithRetry(path, retry)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			metrics.StreamRequestsTotal.WithLabelValues("404").Inc()
			return ErrSourceMissing
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return ErrSourceMissing
	}
	size := info.Size()

	rng, partial, err := ParseRange(r.Header.Get("Range"), size)
	if errors.Is(err, ErrUnsatisfiableRange) {
		metrics.StreamRequestsTotal.WithLabelValues("416").Inc()
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		_, _ = fmt.Fprintf(w, "Requested range not satisfiable\n%d >= %d", rng.Start, size)
		return nil
	}
	if !partial {
		rng = Range{Start: 0, End: size - 1}
	}

	f, err := filesystem.OpenWithRetry(path, retry)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			metrics.StreamRequestsTotal.WithLabelValues("404").Inc()
			return ErrSourceMissing
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Debug("Failed to close %s: %v", path, err)
		}
	}()

	h := w.Header()
	h.Set("Content-Type", mediatypes.VideoMimeType)
	h.Set("Accept-Ranges", "bytes")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Length", strconv.FormatInt(rng.Length(), 10))

	status := http.StatusOK
	if partial {
		status = http.StatusPartialContent
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, size))
	}
	metrics.StreamRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	w.WriteHeader(status)

	if r.Method == http.MethodHead || rng.Length() <= 0 {
		return nil
	}

	metrics.StreamsActive.Inc()
	defer metrics.StreamsActive.Dec()

	tw := NewTimeoutWriter(ctx, w, cfg)
	defer func() {
		if err := tw.Close(); err != nil {
			logging.Warn("Failed to close timeout writer: %v", err)
		}
	}()

	buf := make([]byte, copyBufferSize)
	_, err = io.CopyBuffer(tw, io.NewSectionReader(f, rng.Start, rng.Length()), buf)

	written, duration := tw.Stats()
	logging.Debug("Stream of %s ended: %d of %d bytes in %v", path, written, rng.Length(), duration)

	if err != nil {
		if IsQuietError(err) {
			return nil
		}
		return fmt.Errorf("stream %s: %w", path, err)
	}
	return nil
}
