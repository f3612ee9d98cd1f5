package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"clypse/internal/logging"
	"clypse/internal/startup"
	"clypse/internal/upload"
)

// Upload request headers.
const (
	headerUploadID    = "X-Upload-Id"
	headerChunkIndex  = "X-Chunk-Index"
	headerTotalChunks = "X-Total-Chunks"
	headerFileName    = "X-File-Name"
	headerFileSize    = "X-File-Size"
	headerFileTitle   = "X-File-Title"
)

var errMissingHeaders = errors.New("missing upload headers")

// chunkRequest reads the upload coordinates from the request headers.
func chunkRequest(r *http.Request) (upload.ChunkRequest, error) {
	h := r.Header
	id := h.Get(headerUploadID)
	index := h.Get(headerChunkIndex)
	total := h.Get(headerTotalChunks)
	name := h.Get(headerFileName)
	size := h.Get(headerFileSize)
	if id == "" || index == "" || total == "" || name == "" || size == "" {
		return upload.ChunkRequest{}, errMissingHeaders
	}

	req := upload.ChunkRequest{SessionID: id}
	var err error
	if req.Index, err = strconv.Atoi(index); err != nil {
		return req, fmt.Errorf("invalid %s: %q", headerChunkIndex, index)
	}
	if req.TotalChunks, err = strconv.Atoi(total); err != nil {
		return req, fmt.Errorf("invalid %s: %q", headerTotalChunks, total)
	}
	if req.FileSize, err = strconv.ParseInt(size, 10, 64); err != nil {
		return req, fmt.Errorf("invalid %s: %q", headerFileSize, size)
	}
	req.FileName = name

	if raw := h.Get(headerFileTitle); raw != "" {
		title, err := url.PathUnescape(raw)
		if err != nil {
			logging.Warn("Ignoring undecodable upload title for %s: %v", id, err)
		} else {
			req.Title = title
		}
	}
	return req, nil
}

// UploadChunk stores one chunk of a chunked upload. The final chunk
// assembles the file and queues it for ingestion.
func (h *Handlers) UploadChunk(w http.ResponseWriter, r *http.Request) {
	req, err := chunkRequest(r)
	if err != nil {
		writeJSONError(w, sentence(err.Error()), http.StatusBadRequest)
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.cfg.MaxChunkSize)
	defer body.Close()

	result, err := h.cfg.Uploads.WriteChunk(r.Context(), req, body)
	if err != nil {
		h.uploadError(w, req, err)
		return
	}

	if result.Status == upload.StatusReceived {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "Chunk received")
		return
	}

	writeJSONStatusCode(w, http.StatusCreated, map[string]string{
		"status":  statusSuccess,
		"message": result.Title + " has been uploaded and is queued for processing!",
	})
}

func (h *Handlers) uploadError(w http.ResponseWriter, req upload.ChunkRequest, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		writeJSONError(w, fmt.Sprintf("Chunk exceeds the limit of %s.", startup.FormatSize(maxBytes.Limit)), http.StatusRequestEntityTooLarge)
	case errors.Is(err, upload.ErrFileTooLarge) && h.cfg.MaxUploadSize > 0:
		writeJSONError(w, fmt.Sprintf("File size exceeds the limit of %s.", startup.FormatSize(h.cfg.MaxUploadSize)), http.StatusRequestEntityTooLarge)
	case errors.Is(err, upload.ErrFileTooLarge):
		writeJSONError(w, sentence(err.Error()), http.StatusRequestEntityTooLarge)
	case errors.Is(err, upload.ErrInvalidRequest), errors.Is(err, upload.ErrDisallowedExtension):
		writeJSONError(w, sentence(err.Error()), http.StatusBadRequest)
	case errors.Is(err, upload.ErrMissingChunk):
		logging.Warn("Upload %s: %v", req.SessionID, err)
		writeJSONError(w, sentence(err.Error()), http.StatusInternalServerError)
	default:
		logging.Error("Upload %s chunk %d failed: %v", req.SessionID, req.Index, err)
		writeJSONError(w, "Failed to assemble file", http.StatusInternalServerError)
	}
}

type cancelRequest struct {
	UploadID string `json:"uploadId"`
}

// CancelUpload discards every fragment of an upload session. Unknown
// sessions succeed.
func (h *Handlers) CancelUpload(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSONError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if _, err := h.cfg.Uploads.Cancel(req.UploadID); err != nil {
		logging.Warn("Cancel of upload %s incomplete: %v", req.UploadID, err)
	}
	writeJSONStatus(w, statusSuccess)
}
