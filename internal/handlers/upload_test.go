package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"clypse/internal/upload"
)

type uploadEnv struct {
	dir    string
	h      *Handlers
	mu     sync.Mutex
	queued []string
}

func newUploadEnv(t *testing.T, maxSize int64) *uploadEnv {
	t.Helper()
	env := &uploadEnv{dir: t.TempDir()}
	assembler := upload.NewAssembler(upload.Config{
		UploadsDir:  env.dir,
		MaxFileSize: maxSize,
		OnAssembled: func(path string) {
			env.mu.Lock()
			defer env.mu.Unlock()
			env.queued = append(env.queued, path)
		},
	})
	env.h = New(Config{Uploads: assembler, MaxUploadSize: maxSize})
	return env
}

type chunkHeaders struct {
	id, name, title string
	index, total    int
	size            int64
}

func (env *uploadEnv) send(t *testing.T, hdr chunkHeaders, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Upload-Id", hdr.id)
	req.Header.Set("X-Chunk-Index", strconv.Itoa(hdr.index))
	req.Header.Set("X-Total-Chunks", strconv.Itoa(hdr.total))
	req.Header.Set("X-File-Name", hdr.name)
	req.Header.Set("X-File-Size", strconv.FormatInt(hdr.size, 10))
	if hdr.title != "" {
		req.Header.Set("X-File-Title", hdr.title)
	}
	w := httptest.NewRecorder()
	env.h.UploadChunk(w, req)
	return w
}

func TestUploadChunkedFlow(t *testing.T) {
	t.Parallel()

	env := newUploadEnv(t, 0)
	hdr := chunkHeaders{id: "u1", name: "My Clip.mp4", title: "Ace%20%F0%9F%8E%AF", total: 2, size: 10}

	w := env.send(t, hdr, "hello")
	if w.Code != http.StatusOK || w.Body.String() != "Chunk received" {
		t.Fatalf("Expected 200 Chunk received, got %d %q", w.Code, w.Body.String())
	}

	hdr.index = 1
	w = env.send(t, hdr, "world")
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["message"] != "Ace 🎯 has been uploaded and is queued for processing!" {
		t.Errorf("Unexpected message: %v", body["message"])
	}

	staged := filepath.Join(env.dir, "My_Clip.mp4")
	data, err := os.ReadFile(staged)
	if err != nil {
		t.Fatalf("Expected staged file: %v", err)
	}
	if string(data) != "helloworld" {
		t.Errorf("Expected helloworld, got %q", data)
	}
	if title, ok := upload.ReadTitle(staged); !ok || title != "Ace 🎯" {
		t.Errorf("Expected title side file, got %q %v", title, ok)
	}
	if len(env.queued) != 1 || env.queued[0] != staged {
		t.Errorf("Expected %s to be queued, got %v", staged, env.queued)
	}
}

func TestUploadDerivedTitleMessage(t *testing.T) {
	t.Parallel()

	env := newUploadEnv(t, 0)
	w := env.send(t, chunkHeaders{id: "u2", name: "best_round_ever.webm", total: 1, size: 3}, "abc")
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["message"] != "best round ever has been uploaded and is queued for processing!" {
		t.Errorf("Unexpected message: %v", body["message"])
	}
}

func TestUploadRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		hdr      chunkHeaders
		body     string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "missing headers",
			hdr:      chunkHeaders{name: "a.mp4", total: 1, size: 1},
			wantCode: http.StatusBadRequest,
			wantMsg:  "Missing upload headers",
		},
		{
			name:     "disallowed extension",
			hdr:      chunkHeaders{id: "u3", name: "evil.exe", total: 1, size: 1},
			wantCode: http.StatusBadRequest,
			wantMsg:  "File type not allowed. Received: .exe",
		},
		{
			name:     "index out of range",
			hdr:      chunkHeaders{id: "u4", name: "a.mp4", index: 3, total: 2, size: 1},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "declared size over limit",
			hdr:      chunkHeaders{id: "u5", name: "a.mp4", total: 1, size: 2048},
			wantCode: http.StatusRequestEntityTooLarge,
			wantMsg:  "File size exceeds the limit of 1 KB.",
		},
		{
			name:     "missing chunk",
			hdr:      chunkHeaders{id: "u6", name: "a.mp4", index: 1, total: 2, size: 2},
			body:     "b",
			wantCode: http.StatusInternalServerError,
			wantMsg:  "Missing chunk 0 for upload u6",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newUploadEnv(t, 1024)
			w := env.send(t, tt.hdr, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			body := decodeBody(t, w)
			if body["status"] != "error" {
				t.Errorf("Expected error status, got %v", body["status"])
			}
			if tt.wantMsg != "" && body["message"] != tt.wantMsg {
				t.Errorf("Expected message %q, got %v", tt.wantMsg, body["message"])
			}
		})
	}
}

func TestUploadChunkBodyLimit(t *testing.T) {
	t.Parallel()

	env := newUploadEnv(t, 0)
	env.h.cfg.MaxChunkSize = 4
	w := env.send(t, chunkHeaders{id: "u7", name: "a.mp4", total: 2, size: 100}, "too many bytes")

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected status 413, got %d", w.Code)
	}
	if _, err := os.Stat(filepath.Join(env.dir, upload.ChunkFileName("u7", 0))); !os.IsNotExist(err) {
		t.Error("Expected oversized chunk to be discarded")
	}
}

func TestCancelUpload(t *testing.T) {
	t.Parallel()

	env := newUploadEnv(t, 0)
	env.send(t, chunkHeaders{id: "u8", name: "a.mp4", total: 3, size: 3}, "a")

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"known session", `{"uploadId":"u8"}`, http.StatusOK},
		{"unknown session", `{"uploadId":"nope"}`, http.StatusOK},
		{"empty id", `{}`, http.StatusOK},
		{"malformed json", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		env.h.CancelUpload(w, httptest.NewRequest(http.MethodPost, "/api/upload-cancel", strings.NewReader(tt.body)))
		if w.Code != tt.wantCode {
			t.Errorf("%s: expected status %d, got %d", tt.name, tt.wantCode, w.Code)
		}
	}

	if _, err := os.Stat(filepath.Join(env.dir, upload.ChunkFileName("u8", 0))); !os.IsNotExist(err) {
		t.Error("Expected chunk to be removed by cancel")
	}
}
