package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"clypse/internal/logging"
	"clypse/internal/metrics"
)

// Move renames src to dst. When the two paths live on different devices the
// file is stream-copied, synced, and the source unlinked. On a failed copy the
// partial destination is removed and src is left in place.
func Move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		metrics.FilesystemMoves.WithLabelValues("rename").Inc()
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("rename %s: %w", src, err)
	}

	logging.Debug("Cross-device move detected for %s, falling back to copy", src)
	if err := CopyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	metrics.FilesystemMoves.WithLabelValues("copy").Inc()
	return nil
}

// CopyFile copies src to dst, preserving the source file mode.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("sync destination: %w", err)
	}
	return out.Close()
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether path names an existing filesystem entry.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		err = linkErr.Err
	}
	return errors.Is(err, syscall.EXDEV)
}
