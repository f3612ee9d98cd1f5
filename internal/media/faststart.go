package media

import (
	"context"
	"fmt"
	"os"
	"strings"

	"clypse/internal/filesystem"
	"clypse/internal/logging"
)

const faststartSuffix = ".faststart.mp4"

// Faststart rewrites path in place with the moov atom at the front of the
// container. Streams are copied, not re-encoded. On failure the original file
// is left untouched.
func (p *Probe) Faststart(ctx context.Context, path string) error {
	tmp := path + faststartSuffix

	_, err := run(ctx, p.runner, p.timeout, "faststart", p.ffmpeg,
		"-i", path,
		"-c", "copy",
		"-movflags", "+faststart",
		"-y", tmp,
	)
	if err != nil {
		removeTemp(tmp)
		return fmt.Errorf("faststart %s: %w", path, err)
	}

	info, err := os.Stat(tmp)
	if err != nil || info.Size() == 0 {
		removeTemp(tmp)
		return fmt.Errorf("faststart %s: no output produced", path)
	}

	if err := os.Rename(tmp, path); err != nil {
		removeTemp(tmp)
		return fmt.Errorf("faststart %s: replace original: %w", path, err)
	}

	logging.Debug("Faststart applied to %s", path)
	return nil
}

func removeTemp(path string) {
	if err := filesystem.RemoveIfExists(path); err != nil {
		logging.Warn("Failed to remove %s: %v", path, err)
	}
}

// IsFaststartTemp reports whether name is an in-progress faststart output.
func IsFaststartTemp(name string) bool {
	return strings.HasSuffix(name, faststartSuffix)
}
