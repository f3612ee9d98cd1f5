package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"clypse/internal/filesystem"
	"clypse/internal/logging"
	"clypse/internal/mediatypes"
	"clypse/internal/metrics"
)

var (
	// ErrInvalidRequest reports missing or malformed upload coordinates.
	ErrInvalidRequest = errors.New("invalid upload request")
	// ErrDisallowedExtension reports a file type outside the allow-list.
	ErrDisallowedExtension = errors.New("file type not allowed")
	// ErrFileTooLarge reports a declared size or chunk body above the limit.
	ErrFileTooLarge = errors.New("file size exceeds the limit")
	// ErrMissingChunk reports a gap in the chunk sequence at assembly time.
	ErrMissingChunk = errors.New("missing chunk")
)

// copyBufferSize is the buffer used when concatenating chunks.
const copyBufferSize = 1 << 20

// Status is the outcome of a chunk write.
type Status int

const (
	// StatusReceived means the chunk was stored and more are expected.
	StatusReceived Status = iota
	// StatusAssembled means the final chunk completed the file.
	StatusAssembled
)

// ChunkRequest addresses one chunk of an upload session.
type ChunkRequest struct {
	SessionID   string
	Index       int
	TotalChunks int
	FileSize    int64
	FileName    string
	// Title is optional and only meaningful on the final chunk.
	Title string
}

// Result describes a successful chunk write.
type Result struct {
	Status     Status
	StagedPath string
	Title      string
}

// Config configures an Assembler.
type Config struct {
	UploadsDir string
	// MaxFileSize is the largest accepted declared size, 0 for unlimited.
	MaxFileSize       int64
	AllowedExtensions map[string]bool
	// OnAssembled is called with the staged path after a successful assembly.
	OnAssembled func(stagedPath string)
}

// Assembler persists upload chunks in the landing directory and reassembles
// them when the final chunk arrives.
type Assembler struct {
	cfg      Config
	sessions *keyedMutex
	// stageMu serializes landing-name selection across sessions.
	stageMu sync.Mutex
}

// NewAssembler creates an Assembler writing into cfg.UploadsDir.
func NewAssembler(cfg Config) *Assembler {
	if cfg.AllowedExtensions == nil {
		cfg.AllowedExtensions = mediatypes.AllowedVideoExtensions
	}
	return &Assembler{
		cfg:      cfg,
		sessions: newKeyedMutex(),
	}
}

// Validate checks a request before any bytes are written.
func (a *Assembler) Validate(req ChunkRequest) error {
	if !validSessionID(req.SessionID) || req.FileName == "" {
		return fmt.Errorf("%w: missing upload headers", ErrInvalidRequest)
	}
	if req.TotalChunks <= 0 || req.Index < 0 || req.Index >= req.TotalChunks {
		return fmt.Errorf("%w: chunk %d of %d", ErrInvalidRequest, req.Index, req.TotalChunks)
	}
	if req.FileSize < 0 {
		return fmt.Errorf("%w: negative file size", ErrInvalidRequest)
	}

	name := stagedName(req.FileName)
	if name == "" {
		return fmt.Errorf("%w: unusable file name %q", ErrInvalidRequest, req.FileName)
	}
	if !mediatypes.IsAllowed(name, a.cfg.AllowedExtensions) {
		return fmt.Errorf("%w. Received: %s", ErrDisallowedExtension, mediatypes.Ext(name))
	}
	if a.cfg.MaxFileSize > 0 && req.FileSize > a.cfg.MaxFileSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, req.FileSize, a.cfg.MaxFileSize)
	}
	return nil
}

// WriteChunk stores body as chunk req.Index of req.SessionID. Re-sending an
// index overwrites it. When req.Index is the last index the session is
// assembled and handed to OnAssembled.
func (a *Assembler) WriteChunk(ctx context.Context, req ChunkRequest, body io.Reader) (Result, error) {
	if err := a.Validate(req); err != nil {
		metrics.UploadRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		return Result{}, err
	}

	if err := a.storeChunk(req, body); err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			metrics.UploadRejectedTotal.WithLabelValues("too_large").Inc()
		}
		return Result{}, err
	}

	if req.Index != req.TotalChunks-1 {
		return Result{Status: StatusReceived}, nil
	}

	staged, title, err := a.assemble(ctx, req)
	if err != nil {
		status := "error"
		if errors.Is(err, ErrMissingChunk) {
			status = "missing_chunk"
		}
		metrics.UploadAssembliesTotal.WithLabelValues(status).Inc()
		return Result{}, err
	}
	metrics.UploadAssembliesTotal.WithLabelValues("success").Inc()

	logging.WithFields(logging.Fields{"uploadId": req.SessionID, "file": filepath.Base(staged)}).
		Info("Upload assembled (%d chunks)", req.TotalChunks)

	if a.cfg.OnAssembled != nil {
		a.cfg.OnAssembled(staged)
	}
	return Result{Status: StatusAssembled, StagedPath: staged, Title: title}, nil
}

// storeChunk writes the chunk through a .part file so a concurrent assembly
// never reads a half-written chunk.
func (a *Assembler) storeChunk(req ChunkRequest, body io.Reader) error {
	final := filepath.Join(a.cfg.UploadsDir, ChunkFileName(req.SessionID, req.Index))
	part := final + partSuffix

	f, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create chunk: %w", err)
	}

	// A single chunk can never be larger than the whole file.
	limit := req.FileSize
	if a.cfg.MaxFileSize > 0 && (limit == 0 || limit > a.cfg.MaxFileSize) {
		limit = a.cfg.MaxFileSize
	}
	var src io.Reader = body
	if limit > 0 {
		src = io.LimitReader(body, limit+1)
	}

	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && limit > 0 && n > limit {
		err = fmt.Errorf("%w: chunk body exceeds %d bytes", ErrFileTooLarge, limit)
	}
	if err != nil {
		_ = os.Remove(part)
		if errors.Is(err, ErrFileTooLarge) {
			return err
		}
		return fmt.Errorf("write chunk: %w", err)
	}

	if err := os.Rename(part, final); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("commit chunk: %w", err)
	}

	metrics.UploadChunksTotal.Inc()
	metrics.UploadBytesTotal.Add(float64(n))
	return nil
}

func (a *Assembler) assemble(ctx context.Context, req ChunkRequest) (string, string, error) {
	unlock := a.sessions.Lock(req.SessionID)
	defer unlock()

	dir := a.cfg.UploadsDir
	tempPath := filepath.Join(dir, TempFileName(req.SessionID))

	chunkPaths := make([]string, req.TotalChunks)
	for i := range chunkPaths {
		chunkPaths[i] = filepath.Join(dir, ChunkFileName(req.SessionID, i))
		if _, err := os.Stat(chunkPaths[i]); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", "", fmt.Errorf("%w %d for upload %s", ErrMissingChunk, i, req.SessionID)
			}
			return "", "", fmt.Errorf("stat chunk %d: %w", i, err)
		}
	}

	written, err := concatenate(ctx, tempPath, chunkPaths)
	if err != nil {
		_ = os.Remove(tempPath)
		return "", "", err
	}
	if req.FileSize > 0 && written != req.FileSize {
		logging.Warn("Assembled size %d differs from declared size %d for upload %s", written, req.FileSize, req.SessionID)
	}

	title := cleanTitle(req.Title)
	staged, err := a.stage(tempPath, stagedName(req.FileName), title)
	if err != nil {
		_ = os.Remove(tempPath)
		return "", "", err
	}

	for _, p := range chunkPaths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Failed to cleanup chunk file %s: %v", p, err)
		}
	}

	if title == "" {
		title = TitleFromFilename(staged)
	}
	return staged, title, nil
}

// concatenate writes chunkPaths in order into dst.
func concatenate(ctx context.Context, dst string, chunkPaths []string) (int64, error) {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	buf := make([]byte, copyBufferSize)
	var total int64
	for i, p := range chunkPaths {
		if err := ctx.Err(); err != nil {
			_ = out.Close()
			return total, err
		}

		in, err := os.Open(p)
		if err != nil {
			_ = out.Close()
			if errors.Is(err, os.ErrNotExist) {
				return total, fmt.Errorf("%w %d", ErrMissingChunk, i)
			}
			return total, fmt.Errorf("open chunk %d: %w", i, err)
		}
		n, err := io.CopyBuffer(out, in, buf)
		_ = in.Close()
		total += n
		if err != nil {
			_ = out.Close()
			return total, fmt.Errorf("append chunk %d: %w", i, err)
		}
	}

	if err := out.Sync(); err != nil {
		_ = out.Close()
		return total, fmt.Errorf("sync temp file: %w", err)
	}
	if err := out.Close(); err != nil {
		return total, fmt.Errorf("close temp file: %w", err)
	}
	return total, nil
}

// stage moves the assembled temp file to a collision-free landing name. The
// title side file is written first so whoever picks up the staged file sees it.
func (a *Assembler) stage(tempPath, name, title string) (string, error) {
	a.stageMu.Lock()
	defer a.stageMu.Unlock()

	dir := a.cfg.UploadsDir
	landing, err := filesystem.UniqueName(name, func(c string) (bool, error) {
		if ok, err := filesystem.Exists(filepath.Join(dir, c)); ok || err != nil {
			return ok, err
		}
		return filesystem.Exists(TitleFile(filepath.Join(dir, c)))
	})
	if err != nil {
		return "", err
	}
	staged := filepath.Join(dir, landing)

	if title != "" {
		if err := os.WriteFile(TitleFile(staged), []byte(title), 0o644); err != nil {
			logging.Warn("Failed to write title file for %s: %v", staged, err)
		}
	}

	if err := filesystem.Move(tempPath, staged); err != nil {
		_ = filesystem.RemoveIfExists(TitleFile(staged))
		return "", fmt.Errorf("move assembled file: %w", err)
	}
	return staged, nil
}

// Cancel deletes every fragment and partial file belonging to sessionID and
// returns how many were removed. Unknown sessions are a no-op.
func (a *Assembler) Cancel(sessionID string) (int, error) {
	if !validSessionID(sessionID) {
		return 0, nil
	}

	unlock := a.sessions.Lock(sessionID)
	defer unlock()

	entries, err := os.ReadDir(a.cfg.UploadsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read uploads directory: %w", err)
	}

	prefix := sessionID + artifactMarker
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if err := filesystem.RemoveIfExists(filepath.Join(a.cfg.UploadsDir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	metrics.UploadCancelsTotal.Inc()
	if removed > 0 {
		logging.WithFields(logging.Fields{"uploadId": sessionID}).Info("Cancelled upload and cleaned up %d temp files", removed)
	}
	return removed, errors.Join(errs...)
}

// ReadTitle returns the caller-declared title stored beside stagedPath.
func ReadTitle(stagedPath string) (string, bool) {
	data, err := os.ReadFile(TitleFile(stagedPath))
	if err != nil {
		return "", false
	}
	title := cleanTitle(string(data))
	return title, title != ""
}

// ConsumeTitle reads and deletes the title side file, falling back to a
// filename-derived title.
func ConsumeTitle(stagedPath string) string {
	title, ok := ReadTitle(stagedPath)
	if err := filesystem.RemoveIfExists(TitleFile(stagedPath)); err != nil {
		logging.Warn("Failed to remove title file for %s: %v", stagedPath, err)
	}
	if !ok {
		title = TitleFromFilename(stagedPath)
	}
	return title
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrDisallowedExtension):
		return "extension"
	case errors.Is(err, ErrFileTooLarge):
		return "too_large"
	default:
		return "invalid_request"
	}
}
