package upload

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	disallowedRe  = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
	maxTitleRunes = 200
)

// Sanitize collapses whitespace runs to a single underscore and strips every
// character outside [A-Za-z0-9_.-]. It is idempotent.
func Sanitize(name string) string {
	s := whitespaceRe.ReplaceAllString(name, "_")
	return disallowedRe.ReplaceAllString(s, "")
}

// TitleFromFilename derives a display title from a storage or upload name:
// sanitized, extension stripped, underscores turned back into spaces.
func TitleFromFilename(name string) string {
	s := Sanitize(filepath.Base(name))
	s = strings.TrimSuffix(s, filepath.Ext(s))
	return strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
}

// stagedName turns a client-declared file name into the landing file name.
// Names that sanitize to nothing, or to a dotfile, get a "video" stem so the
// watcher does not treat them as hidden.
func stagedName(declared string) string {
	s := Sanitize(filepath.Base(declared))
	if s == "" || s == "." || s == ".." {
		return ""
	}
	if strings.HasPrefix(s, ".") {
		s = "video" + s
	}
	return s
}

// cleanTitle trims a caller-declared title and caps its length.
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes])
	}
	return title
}
