package handlers

import (
	"html/template"
	"net/http"
	"strings"

	"clypse/internal/library"
	"clypse/internal/logging"
	"clypse/internal/media"
)

var shareTemplate = template.Must(template.New("share").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <meta name="twitter:card" content="player">
    <meta name="twitter:title" content="{{.Title}}">
    <meta name="twitter:player" content="{{.VideoURL}}">
    <meta name="twitter:player:width" content="{{.Width}}">
    <meta name="twitter:player:height" content="{{.Height}}">
    <meta name="twitter:image" content="{{.ThumbnailURL}}">
    <meta property="og:type" content="video.other">
    <meta property="og:description" content="Watch this clip on Clypse!">
    <meta property="og:title" content="{{.Title}}">
    <meta property="og:url" content="{{.ShareURL}}">
    <meta property="og:image" content="{{.ThumbnailURL}}">
    <meta property="og:video" content="{{.VideoURL}}">
    <meta property="og:video:secure_url" content="{{.VideoURL}}">
    <meta property="og:video:type" content="video/mp4">
    <meta property="og:video:width" content="{{.Width}}">
    <meta property="og:video:height" content="{{.Height}}">
    <style>
        html, body { background-color: #000; margin: 0; width: 100%; height: 100%; display: flex; justify-content: center; align-items: center; }
        video { width: 100%; height: 100%; object-fit: contain; }
    </style>
</head>
<body>
    <video controls autoplay playsinline src="{{.VideoURL}}"></video>
</body>
</html>
`))

type sharePage struct {
	Title        string
	VideoURL     string
	ThumbnailURL string
	ShareURL     string
	Width        int
	Height       int
}

// baseURL is the externally visible origin, honoring a reverse proxy's
// X-Forwarded-Proto.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host
}

// SharePage renders an embeddable player page with social preview metadata.
func (h *Handlers) SharePage(w http.ResponseWriter, r *http.Request) {
	v := h.lookup(w, r)
	if v == nil {
		return
	}

	base := baseURL(r)
	page := sharePage{
		Title:        v.Title,
		VideoURL:     base + library.StreamingURL(v.UUID),
		ThumbnailURL: base + v.Thumbnail,
		ShareURL:     base + library.ShareURL(v.UUID),
		Width:        v.Width,
		Height:       v.Height,
	}
	if page.Width <= 0 {
		page.Width = media.DefaultWidth
	}
	if page.Height <= 0 {
		page.Height = media.DefaultHeight
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := shareTemplate.Execute(w, page); err != nil {
		logging.Error("Failed to render share page for %s: %v", v.UUID, err)
	}
}
