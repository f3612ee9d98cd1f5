package handlers

import (
	"context"
	"io"
	"time"

	"clypse/internal/database"
	"clypse/internal/library"
	"clypse/internal/streaming"
	"clypse/internal/upload"
)

// Catalog is the read side of the video library.
type Catalog interface {
	List(ctx context.Context) ([]library.Entry, error)
	Get(ctx context.Context, id string) (*database.Video, error)
	VideoPath(v *database.Video) string
}

// Uploader stores upload chunks and cancels sessions.
type Uploader interface {
	WriteChunk(ctx context.Context, req upload.ChunkRequest, body io.Reader) (upload.Result, error)
	Cancel(sessionID string) (int, error)
}

// Pinger reports catalog reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueDepth reports how many files wait for ingestion.
type QueueDepth interface {
	Len() int
}

// Config wires the handlers to their collaborators.
type Config struct {
	Catalog Catalog
	Uploads Uploader
	DB      Pinger
	Queue   QueueDepth

	// MaxUploadSize is the per-file limit in bytes, 0 for unlimited.
	MaxUploadSize int64
	// MaxUploadCount is the per-request file count, 0 for unlimited.
	MaxUploadCount int
	// MaxChunkSize caps a single request body.
	MaxChunkSize int64
	Stream       streaming.TimeoutWriterConfig
}

// DefaultMaxChunkSize is the largest accepted chunk body.
const DefaultMaxChunkSize = 100 << 20

type Handlers struct {
	cfg     Config
	started time.Time
}

func New(cfg Config) *Handlers {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = DefaultMaxChunkSize
	}
	if cfg.Stream == (streaming.TimeoutWriterConfig{}) {
		cfg.Stream = streaming.DefaultTimeoutWriterConfig()
	}
	return &Handlers{cfg: cfg, started: time.Now()}
}
