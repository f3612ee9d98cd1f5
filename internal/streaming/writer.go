package streaming

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"clypse/internal/logging"
	"clypse/internal/metrics"
)

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates that a write exceeded the configured timeout.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates that the client disconnected before the stream
	// completed.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamCanceled indicates that the writer was closed or hit its idle
	// limit.
	ErrStreamCanceled = errors.New("stream canceled")
)

// TimeoutWriterConfig configures the timeout writer behavior
type TimeoutWriterConfig struct {
	// WriteTimeout bounds a single chunk write.
	WriteTimeout time.Duration
	// IdleTimeout is the longest gap allowed between successful writes.
	IdleTimeout time.Duration
	// ChunkSize splits large writes; each chunk is flushed. 0 writes as received.
	ChunkSize int
}

// DefaultTimeoutWriterConfig returns the settings used for video streams.
func DefaultTimeoutWriterConfig() TimeoutWriterConfig {
	return TimeoutWriterConfig{
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ChunkSize:    64 * 1024,
	}
}

// TimeoutWriter wraps an http.ResponseWriter so stalled or vanished clients
// release the handler instead of holding it open.
type TimeoutWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	config  TimeoutWriterConfig
	started time.Time

	mu           sync.Mutex
	lastWrite    time.Time
	bytesWritten int64
	closed       bool
	deadlines    bool
}

// NewTimeoutWriter creates a writer bound to ctx, normally the request
// context.
func NewTimeoutWriter(ctx context.Context, w http.ResponseWriter, config TimeoutWriterConfig) *TimeoutWriter {
	writerCtx, cancel := context.WithCancel(ctx)
	now := time.Now()

	tw := &TimeoutWriter{
		w:         w,
		rc:        http.NewResponseController(w),
		parent:    ctx,
		ctx:       writerCtx,
		cancel:    cancel,
		config:    config,
		started:   now,
		lastWrite: now,
		deadlines: config.WriteTimeout > 0,
	}

	go tw.idleChecker()
	return tw
}

// Write implements io.Writer.
func (tw *TimeoutWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		if err := tw.check(); err != nil {
			return written, err
		}

		n := len(p)
		if tw.config.ChunkSize > 0 && n > tw.config.ChunkSize {
			n = tw.config.ChunkSize
		}

		m, err := tw.writeChunk(p[:n])
		written += m
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}

func (tw *TimeoutWriter) check() error {
	tw.mu.Lock()
	closed := tw.closed
	tw.mu.Unlock()
	if closed {
		return ErrStreamCanceled
	}

	select {
	case <-tw.ctx.Done():
		return tw.contextError()
	default:
		return nil
	}
}

// writeChunk writes p under a connection write deadline and flushes it.
// Writers without deadline support (tests, some middleware) write directly.
func (tw *TimeoutWriter) writeChunk(p []byte) (int, error) {
	if tw.deadlines {
		if err := tw.rc.SetWriteDeadline(time.Now().Add(tw.config.WriteTimeout)); err != nil {
			tw.deadlines = false
		}
	}

	n, err := tw.w.Write(p)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			tw.cancel()
			return n, ErrWriteTimeout
		}
		if tw.parent.Err() != nil {
			return n, ErrClientGone
		}
		return n, err
	}
	if err := tw.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return n, err
	}

	tw.mu.Lock()
	tw.lastWrite = time.Now()
	tw.bytesWritten += int64(n)
	tw.mu.Unlock()
	metrics.StreamBytesTotal.Add(float64(n))

	return n, nil
}

type timeout interface{ Timeout() bool }

func isTimeout(err error) bool {
	var t timeout
	return errors.As(err, &t) && t.Timeout()
}

// idleChecker cancels the stream when no write succeeds within IdleTimeout.
func (tw *TimeoutWriter) idleChecker() {
	if tw.config.IdleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(tw.config.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tw.mu.Lock()
			idle := time.Since(tw.lastWrite)
			closed := tw.closed
			tw.mu.Unlock()

			if closed {
				return
			}
			if idle > tw.config.IdleTimeout {
				logging.Warn("Stream idle timeout exceeded: %v", idle)
				tw.cancel()
				return
			}

		case <-tw.ctx.Done():
			return
		}
	}
}

// contextError distinguishes a client disconnect from an internal cancel.
func (tw *TimeoutWriter) contextError() error {
	if tw.parent.Err() != nil {
		return ErrClientGone
	}
	return ErrStreamCanceled
}

// Close marks the writer as closed and stops the idle checker.
func (tw *TimeoutWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return nil
	}
	tw.closed = true
	tw.cancel()
	return nil
}

// Stats returns bytes written and time since the writer was created.
func (tw *TimeoutWriter) Stats() (bytesWritten int64, duration time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.bytesWritten, time.Since(tw.started)
}

// IsQuietError reports whether err only means the client went away or was
// too slow, which ends a stream without being a server fault.
func IsQuietError(err error) bool {
	return errors.Is(err, ErrClientGone) || errors.Is(err, ErrWriteTimeout) || errors.Is(err, ErrStreamCanceled)
}
