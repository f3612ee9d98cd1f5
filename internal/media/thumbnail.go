package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"clypse/internal/logging"
	"clypse/internal/mediatypes"
	"clypse/internal/metrics"
)

// ErrThumbnail reports that no attempt produced a usable still.
var ErrThumbnail = errors.New("thumbnail generation failed")

// ThumbnailSize is the WxH passed to ffmpeg for stills.
const ThumbnailSize = "320x180"

// ThumbnailTimestamps returns the capture offsets in seconds, tried in order.
// Short clips only get the first second; longer ones also try 5s and 10% of
// the duration.
func ThumbnailTimestamps(duration float64) []float64 {
	ts := []float64{1}
	if duration > 5 {
		ts = append(ts, 5)
	}
	if duration > 10 {
		ts = append(ts, duration*0.1)
	}
	return ts
}

// ThumbnailName is the still's file name for a published video file.
func ThumbnailName(videoFile string) string {
	base := filepath.Base(videoFile)
	return strings.TrimSuffix(base, filepath.Ext(base)) + mediatypes.ThumbnailExtension
}

// formatTimestamp renders seconds as HH:MM:SS.mmm.
func formatTimestamp(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Millisecond)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d:%02d.%03d", int64(h), int64(m), int64(s), int64(d/time.Millisecond))
}

// Thumbnail captures a still of path into outDir/outName. Each timestamp is
// tried until one produces a non-empty image that decodes.
func (p *Probe) Thumbnail(ctx context.Context, path, outDir, outName string, duration float64) error {
	out := filepath.Join(outDir, outName)

	var lastErr error
	for _, ts := range ThumbnailTimestamps(duration) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrThumbnail, err)
		}

		stamp := formatTimestamp(ts)
		err := p.captureFrame(ctx, path, out, stamp)
		if err == nil {
			logging.Debug("Thumbnail for %s captured at %s", path, stamp)
			return nil
		}

		logging.Debug("Thumbnail attempt at %s for %s failed: %v", stamp, path, err)
		lastErr = err
		removeTemp(out)
	}

	return fmt.Errorf("%w: %s: %w", ErrThumbnail, path, lastErr)
}

func (p *Probe) captureFrame(ctx context.Context, path, out, stamp string) error {
	_, err := run(ctx, p.runner, p.timeout, "thumbnail", p.ffmpeg,
		"-ss", stamp,
		"-i", path,
		"-vframes", "1",
		"-s", ThumbnailSize,
		"-y", out,
	)
	if err != nil {
		metrics.ThumbnailAttemptsTotal.WithLabelValues("error").Inc()
		return err
	}

	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		metrics.ThumbnailAttemptsTotal.WithLabelValues("empty").Inc()
		return errors.New("no image produced")
	}

	if _, err := imaging.Open(out); err != nil {
		metrics.ThumbnailAttemptsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("decode still: %w", err)
	}

	metrics.ThumbnailAttemptsTotal.WithLabelValues("success").Inc()
	return nil
}
