package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"clypse/internal/database"
	"clypse/internal/library"
	"clypse/internal/logging"
	"clypse/internal/streaming"
)

// validUUID accepts RFC 4122 version 4 identifiers only.
func validUUID(s string) bool {
	id, err := uuid.Parse(s)
	return err == nil && id.Version() == 4 && id.Variant() == uuid.RFC4122
}

// lookup resolves the {uuid} route variable, writing the error response
// itself when it returns nil.
func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) *database.Video {
	id := mux.Vars(r)["uuid"]
	if !validUUID(id) {
		writeJSONError(w, "Invalid UUID format", http.StatusBadRequest)
		return nil
	}

	v, err := h.cfg.Catalog.Get(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Video not found", http.StatusNotFound)
		return nil
	}
	if err != nil {
		logging.Error("Failed to load video %s: %v", id, err)
		writeJSONError(w, "Database query failed", http.StatusInternalServerError)
		return nil
	}
	return v
}

// ListVideos returns the whole catalog, newest first.
func (h *Handlers) ListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.cfg.Catalog.List(r.Context())
	if err != nil {
		logging.Error("Failed to list videos: %v", err)
		writeJSONError(w, "Database query failed", http.StatusInternalServerError)
		return
	}

	writeJSONStatusCode(w, http.StatusOK, map[string]interface{}{
		"status": statusSuccess,
		"data":   map[string]interface{}{"videos": videos},
	})
}

// GetVideo returns a single catalog entry.
func (h *Handlers) GetVideo(w http.ResponseWriter, r *http.Request) {
	v := h.lookup(w, r)
	if v == nil {
		return
	}

	writeJSONStatusCode(w, http.StatusOK, map[string]interface{}{
		"status": statusSuccess,
		"data":   map[string]interface{}{"video": library.NewEntry(v)},
	})
}

// StreamVideo serves the published file with byte-range support.
func (h *Handlers) StreamVideo(w http.ResponseWriter, r *http.Request) {
	v := h.lookup(w, r)
	if v == nil {
		return
	}

	path := h.cfg.Catalog.VideoPath(v)
	err := streaming.ServeVideo(r.Context(), w, r, path, h.cfg.Stream)
	switch {
	case err == nil:
	case errors.Is(err, streaming.ErrSourceMissing):
		logging.Error("Video source missing for %s: %s", v.UUID, path)
		writeJSONError(w, "Video source file is missing from disk.", http.StatusNotFound)
	default:
		logging.Error("Failed to stream %s: %v", v.UUID, err)
		// Range headers are only set once the body is committed
		if w.Header().Get("Accept-Ranges") == "" {
			writeJSONError(w, "Failed to stream video", http.StatusInternalServerError)
		}
	}
}
