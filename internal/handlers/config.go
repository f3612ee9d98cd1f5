package handlers

import (
	"net/http"

	"clypse/internal/startup"
)

// AppConfig is the client-facing upload policy. Unlimited values are null.
type AppConfig struct {
	MaxUploadCount      *int   `json:"maxUploadCount"`
	MaxUploadSize       *int64 `json:"maxUploadSize"`
	MaxUploadSizeString string `json:"maxUploadSizeString"`
}

// GetConfig returns the upload limits the client should enforce.
func (h *Handlers) GetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := AppConfig{MaxUploadSizeString: startup.FormatSize(h.cfg.MaxUploadSize)}
	if h.cfg.MaxUploadCount > 0 {
		n := h.cfg.MaxUploadCount
		cfg.MaxUploadCount = &n
	}
	if h.cfg.MaxUploadSize > 0 {
		n := h.cfg.MaxUploadSize
		cfg.MaxUploadSize = &n
	}

	writeJSONStatusCode(w, http.StatusOK, map[string]interface{}{
		"status": statusSuccess,
		"data":   cfg,
	})
}
