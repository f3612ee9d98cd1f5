package middleware

import (
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// CompressionConfig controls which responses are gzipped.
type CompressionConfig struct {
	// MinSize is the smallest body worth compressing.
	MinSize int
	// Level is a gzip level from gzip.BestSpeed to gzip.BestCompression.
	Level int
	// CompressibleTypes are media types eligible for compression.
	CompressibleTypes []string
	// SkipPrefixes are request paths that are passed through untouched.
	SkipPrefixes []string
}

// DefaultCompressionConfig compresses API and web client responses and
// leaves video streams and the realtime channel alone.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
		CompressibleTypes: []string{
			"text/html",
			"text/css",
			"text/plain",
			"text/javascript",
			"application/json",
			"application/javascript",
			"application/manifest+json",
			"image/svg+xml",
		},
		SkipPrefixes: []string{"/s/", "/ws"},
	}
}

var gzipPools sync.Map // level -> *sync.Pool

func gzipPool(level int) *sync.Pool {
	if p, ok := gzipPools.Load(level); ok {
		return p.(*sync.Pool)
	}
	p, _ := gzipPools.LoadOrStore(level, &sync.Pool{
		New: func() interface{} {
			w, err := gzip.NewWriterLevel(io.Discard, level)
			if err != nil {
				w = gzip.NewWriter(io.Discard)
			}
			return w
		},
	})
	return p.(*sync.Pool)
}

type encodeState int

const (
	stateBuffering encodeState = iota
	statePlain
	stateGzip
)

// gzipResponseWriter holds the body back until MinSize bytes or the end of
// the handler, then commits to plain or gzip output.
type gzipResponseWriter struct {
	http.ResponseWriter
	config     CompressionConfig
	types      map[string]bool
	state      encodeState
	statusCode int
	buffer     []byte
	gz         *gzip.Writer
}

func newGzipResponseWriter(w http.ResponseWriter, config CompressionConfig) *gzipResponseWriter {
	types := make(map[string]bool, len(config.CompressibleTypes))
	for _, t := range config.CompressibleTypes {
		types[t] = true
	}
	return &gzipResponseWriter{
		ResponseWriter: w,
		config:         config,
		types:          types,
		statusCode:     http.StatusOK,
		buffer:         make([]byte, 0, config.MinSize+1),
	}
}

func (g *gzipResponseWriter) WriteHeader(statusCode int) {
	if g.state == stateBuffering {
		g.statusCode = statusCode
	}
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	switch g.state {
	case stateGzip:
		return g.gz.Write(data)
	case statePlain:
		return g.ResponseWriter.Write(data)
	}

	g.buffer = append(g.buffer, data...)
	if len(g.buffer) > g.config.MinSize {
		if err := g.commit(); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

// compressible reports whether the buffered response qualifies. Range
// offsets refer to the identity encoding, so partial content never does.
func (g *gzipResponseWriter) compressible() bool {
	if len(g.buffer) < g.config.MinSize {
		return false
	}
	if g.statusCode == http.StatusPartialContent || g.Header().Get("Content-Range") != "" {
		return false
	}
	if g.Header().Get("Content-Encoding") != "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(g.Header().Get("Content-Type"))
	if err != nil || strings.HasPrefix(mediaType, "video/") {
		return false
	}
	return g.types[mediaType]
}

func (g *gzipResponseWriter) commit() error {
	if g.state != stateBuffering {
		return nil
	}

	body := g.buffer
	g.buffer = nil

	if !g.compressible() {
		g.state = statePlain
		g.ResponseWriter.WriteHeader(g.statusCode)
		_, err := g.ResponseWriter.Write(body)
		return err
	}

	g.state = stateGzip
	h := g.Header()
	h.Del("Content-Length")
	h.Set("Content-Encoding", "gzip")
	h.Add("Vary", "Accept-Encoding")

	g.gz = gzipPool(g.config.Level).Get().(*gzip.Writer)
	g.gz.Reset(g.ResponseWriter)

	g.ResponseWriter.WriteHeader(g.statusCode)
	_, err := g.gz.Write(body)
	return err
}

// Close flushes anything still buffered and returns the gzip writer to its
// pool.
func (g *gzipResponseWriter) Close() error {
	err := g.commit()
	if g.gz != nil {
		if cerr := g.gz.Close(); err == nil {
			err = cerr
		}
		gzipPool(g.config.Level).Put(g.gz)
		g.gz = nil
	}
	return err
}

func (g *gzipResponseWriter) Flush() {
	_ = g.commit()
	if g.gz != nil {
		g.gz.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (g *gzipResponseWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}

// Compression gzips eligible responses for clients that accept it. Upgrade
// requests, Range requests and SkipPrefixes pass straight through.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !acceptsGzip(r) ||
				r.Header.Get("Upgrade") != "" ||
				r.Header.Get("Range") != "" ||
				hasAnyPrefix(r.URL.Path, config.SkipPrefixes) {
				next.ServeHTTP(w, r)
				return
			}

			gzw := newGzipResponseWriter(w, config)
			defer gzw.Close()
			next.ServeHTTP(gzw, r)
		})
	}
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "gzip") {
			continue
		}
		return strings.ReplaceAll(strings.TrimSpace(params), " ", "") != "q=0"
	}
	return false
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
