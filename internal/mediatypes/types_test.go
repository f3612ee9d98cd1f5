package mediatypes

import (
	"reflect"
	"testing"
)

func TestIsAllowedVideo(t *testing.T) {
	tests := []struct {
		name string
		file string
		want bool
	}{
		{name: "MP4 video", file: "clip.mp4", want: true},
		{name: "Uppercase extension", file: "CLIP.MOV", want: true},
		{name: "WebM video", file: "a.b.webm", want: true},
		{name: "MKV video", file: "show.mkv", want: true},
		{name: "AVI video", file: "old.avi", want: true},
		{name: "WMV is not accepted", file: "clip.wmv", want: false},
		{name: "Image", file: "photo.png", want: false},
		{name: "No extension", file: "README", want: false},
		{name: "Empty", file: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAllowedVideo(tt.file); got != tt.want {
				t.Errorf("IsAllowedVideo(%q) = %v, want %v", tt.file, got, tt.want)
			}
		})
	}
}

func TestIsAllowedCustomList(t *testing.T) {
	allowed := map[string]bool{".mp4": true}
	if !IsAllowed("a.mp4", allowed) {
		t.Error("Expected .mp4 to be allowed")
	}
	if IsAllowed("a.mkv", allowed) {
		t.Error("Expected .mkv to be rejected by a custom list")
	}
	if !IsAllowed("a.mkv", nil) {
		t.Error("Expected nil list to fall back to the default allow-list")
	}
}

func TestGetMimeType(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".mp4", "video/mp4"},
		{".webm", "video/webm"},
		{".png", "image/png"},
		{".xyz", "application/octet-stream"},
		{"", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			if got := GetMimeType(tt.ext); got != tt.want {
				t.Errorf("GetMimeType(%q) = %q, want %q", tt.ext, got, tt.want)
			}
		})
	}
}

func TestExtensionList(t *testing.T) {
	got := ExtensionList(nil)
	want := []string{".avi", ".mkv", ".mov", ".mp4", ".webm"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
