package filesystem

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestMove_SameDevice(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mp4")
	dst := filepath.Join(dir, "sub", "b.mp4")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Move(src, dst); err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("Expected source to be gone, stat err = %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("Expected destination to exist: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("Expected payload, got %q", data)
	}
}

func TestMove_MissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := Move(filepath.Join(dir, "nope"), filepath.Join(dir, "dst")); err == nil {
		t.Error("Expected error for missing source")
	}
}

func TestCopyFile_PreservesMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	if err := os.WriteFile(src, []byte("0123456789"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile() error = %v", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}
	if info.Size() != 10 {
		t.Errorf("Expected 10 bytes, got %d", info.Size())
	}
	if _, err := os.Stat(src); err != nil {
		t.Errorf("CopyFile should leave the source in place: %v", err)
	}
}

func TestIsCrossDevice(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "bare EXDEV", err: syscall.EXDEV, want: true},
		{name: "link error EXDEV", err: &os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EXDEV}, want: true},
		{name: "link error ENOENT", err: &os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.ENOENT}, want: false},
		{name: "other", err: os.ErrPermission, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isCrossDevice(tt.err); got != tt.want {
				t.Errorf("isCrossDevice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRemoveIfExistsAndExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thumb.png")

	if err := RemoveIfExists(path); err != nil {
		t.Errorf("Expected nil for missing file, got %v", err)
	}

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	ok, err := Exists(path)
	if err != nil || !ok {
		t.Errorf("Expected Exists=true, got %v (err %v)", ok, err)
	}

	if err := RemoveIfExists(path); err != nil {
		t.Errorf("RemoveIfExists() error = %v", err)
	}
	ok, err = Exists(path)
	if err != nil || ok {
		t.Errorf("Expected Exists=false after removal, got %v (err %v)", ok, err)
	}
}
