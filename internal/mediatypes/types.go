package mediatypes

import (
	"path/filepath"
	"sort"
	"strings"
)

// VideoMimeType is the content type every published video is served with.
const VideoMimeType = "video/mp4"

// ThumbnailExtension is the extension of generated still images.
const ThumbnailExtension = ".png"

// AllowedVideoExtensions maps the container formats accepted for upload.
var AllowedVideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".mov":  true,
	".avi":  true,
	".webm": true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
	".png":  "image/png",
}

// Ext returns the lowercase extension of name, including the leading dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// IsAllowedVideo reports whether name carries an accepted video extension.
func IsAllowedVideo(name string) bool {
	return AllowedVideoExtensions[Ext(name)]
}

// IsAllowed reports whether name's extension is present in the allow-list.
// A nil list falls back to AllowedVideoExtensions.
func IsAllowed(name string, allowed map[string]bool) bool {
	if allowed == nil {
		allowed = AllowedVideoExtensions
	}
	return allowed[Ext(name)]
}

// GetMimeType returns the MIME type for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".mp4").
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// ExtensionList returns the allowed extensions sorted, for logging and the
// client configuration endpoint.
func ExtensionList(allowed map[string]bool) []string {
	if allowed == nil {
		allowed = AllowedVideoExtensions
	}
	exts := make([]string, 0, len(allowed))
	for ext, ok := range allowed {
		if ok {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}
