package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrMetadata reports that a file's metadata could not be read.
var ErrMetadata = errors.New("metadata probe failed")

const (
	// DefaultWidth is used when the video stream has no width.
	DefaultWidth = 1280
	// DefaultHeight is used when the video stream has no height.
	DefaultHeight = 720
	// DefaultTimeout bounds each tool invocation when none is configured.
	DefaultTimeout = 5 * time.Minute
)

// Metadata holds the properties of a video the catalog records.
type Metadata struct {
	Width    int
	Height   int
	Duration float64
}

// ProbeConfig configures a Probe.
type ProbeConfig struct {
	FFmpegPath  string
	FFprobePath string
	Timeout     time.Duration
	Runner      Runner
}

// Probe runs metadata, thumbnail and faststart operations against video
// files.
type Probe struct {
	ffmpeg  string
	ffprobe string
	timeout time.Duration
	runner  Runner
}

// NewProbe creates a Probe. Empty fields fall back to the tools on PATH, the
// default timeout and an ExecRunner.
func NewProbe(cfg ProbeConfig) *Probe {
	p := &Probe{
		ffmpeg:  cfg.FFmpegPath,
		ffprobe: cfg.FFprobePath,
		timeout: cfg.Timeout,
		runner:  cfg.Runner,
	}
	if p.ffmpeg == "" {
		p.ffmpeg = "ffmpeg"
	}
	if p.ffprobe == "" {
		p.ffprobe = "ffprobe"
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.runner == nil {
		p.runner = NewExecRunner()
	}
	return p
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Duration string `json:"duration"`
}

// Metadata reads the first video stream's width, height and duration.
func (p *Probe) Metadata(ctx context.Context, path string) (Metadata, error) {
	out, err := run(ctx, p.runner, p.timeout, "probe", p.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %s: %w", ErrMetadata, path, err)
	}
	return parseProbeOutput(out)
}

func parseProbeOutput(out []byte) (Metadata, error) {
	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Metadata{}, fmt.Errorf("%w: decode ffprobe output: %w", ErrMetadata, err)
	}

	md := Metadata{Width: DefaultWidth, Height: DefaultHeight}
	if len(parsed.Streams) == 0 {
		return md, nil
	}

	stream := parsed.Streams[0]
	if stream.Width > 0 {
		md.Width = stream.Width
	}
	if stream.Height > 0 {
		md.Height = stream.Height
	}
	if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil && d > 0 {
		md.Duration = d
	}
	return md, nil
}
