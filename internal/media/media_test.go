package media

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

// fakeRunner records invocations and delegates to fn.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fn    func(name string, args []string) ([]byte, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(name, args)
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := imaging.New(4, 4, color.NRGBA{R: 255, A: 255})
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("Failed to write png: %v", err)
	}
}

func TestMetadataParsing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		want   Metadata
	}{
		{
			name:   "full stream",
			output: `{"streams":[{"width":1920,"height":1080,"duration":"12.500000"}]}`,
			want:   Metadata{Width: 1920, Height: 1080, Duration: 12.5},
		},
		{
			name:   "no stream",
			output: `{"streams":[]}`,
			want:   Metadata{Width: 1280, Height: 720, Duration: 0},
		},
		{
			name:   "missing fields",
			output: `{"streams":[{}]}`,
			want:   Metadata{Width: 1280, Height: 720, Duration: 0},
		},
		{
			name:   "unparsable duration",
			output: `{"streams":[{"width":640,"height":480,"duration":"N/A"}]}`,
			want:   Metadata{Width: 640, Height: 480, Duration: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runner := &fakeRunner{fn: func(string, []string) ([]byte, error) {
				return []byte(tt.output), nil
			}}
			p := NewProbe(ProbeConfig{Runner: runner})

			got, err := p.Metadata(context.Background(), "/videos/clip.mp4")
			if err != nil {
				t.Fatalf("Metadata() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestMetadataArguments(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{fn: func(string, []string) ([]byte, error) {
		return []byte(`{"streams":[]}`), nil
	}}
	p := NewProbe(ProbeConfig{FFprobePath: "/opt/ffprobe", Runner: runner})

	if _, err := p.Metadata(context.Background(), "in.mp4"); err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}

	want := []string{"/opt/ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height,duration", "-of", "json", "in.mp4"}
	if !reflect.DeepEqual(runner.calls[0], want) {
		t.Errorf("Expected args %v, got %v", want, runner.calls[0])
	}
}

func TestMetadataErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func(string, []string) ([]byte, error)
	}{
		{"tool failure", func(string, []string) ([]byte, error) {
			return nil, &ToolError{Tool: "ffprobe", Stderr: "moov atom not found", Err: errors.New("exit status 1")}
		}},
		{"bad json", func(string, []string) ([]byte, error) {
			return []byte("not json"), nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewProbe(ProbeConfig{Runner: &fakeRunner{fn: tt.fn}})
			_, err := p.Metadata(context.Background(), "broken.mp4")
			if !errors.Is(err, ErrMetadata) {
				t.Errorf("Expected ErrMetadata, got %v", err)
			}
		})
	}
}

func TestMetadataTimeout(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p := NewProbe(ProbeConfig{Runner: runner, Timeout: 20 * time.Millisecond})

	_, err := p.Metadata(context.Background(), "slow.mp4")
	if !errors.Is(err, ErrMetadata) {
		t.Errorf("Expected ErrMetadata, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded in chain, got %v", err)
	}
}

type runnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func (f runnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}

func TestThumbnailTimestamps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		duration float64
		want     []float64
	}{
		{0, []float64{1}},
		{5, []float64{1}},
		{8, []float64{1, 5}},
		{10, []float64{1, 5}},
		{120, []float64{1, 5, 12}},
	}

	for _, tt := range tests {
		got := ThumbnailTimestamps(tt.duration)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ThumbnailTimestamps(%v): expected %v, got %v", tt.duration, tt.want, got)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	t.Parallel()

	tests := map[float64]string{
		1:      "00:00:01.000",
		5:      "00:00:05.000",
		12.345: "00:00:12.345",
		3725.5: "01:02:05.500",
	}
	for in, want := range tests {
		if got := formatTimestamp(in); got != want {
			t.Errorf("formatTimestamp(%v): expected %q, got %q", in, want, got)
		}
	}
}

func TestThumbnailName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"clip.mp4":             "clip.png",
		"/videos/clip (1).mkv": "clip (1).png",
		"archive.tar.mov":      "archive.tar.png",
	}
	for in, want := range tests {
		if got := ThumbnailName(in); got != want {
			t.Errorf("ThumbnailName(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestThumbnailFallsBackToLaterTimestamp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	runner := &fakeRunner{}
	runner.fn = func(_ string, args []string) ([]byte, error) {
		out := args[len(args)-1]
		switch args[1] {
		case "00:00:01.000":
			// Produces an empty file.
			return nil, os.WriteFile(out, nil, 0o644)
		case "00:00:05.000":
			return nil, errors.New("exit status 1")
		default:
			writePNG(t, out)
			return nil, nil
		}
	}

	p := NewProbe(ProbeConfig{Runner: runner})
	if err := p.Thumbnail(context.Background(), "clip.mp4", dir, "clip.png", 60); err != nil {
		t.Fatalf("Thumbnail() error = %v", err)
	}
	if runner.callCount() != 3 {
		t.Errorf("Expected 3 attempts, got %d", runner.callCount())
	}
	if runner.calls[2][2] != "00:00:06.000" {
		t.Errorf("Expected third attempt at 00:00:06.000, got %s", runner.calls[2][2])
	}
	if _, err := os.Stat(filepath.Join(dir, "clip.png")); err != nil {
		t.Errorf("Expected thumbnail to exist: %v", err)
	}
}

func TestThumbnailAllAttemptsFail(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	runner := &fakeRunner{fn: func(_ string, args []string) ([]byte, error) {
		// Not a decodable image.
		return nil, os.WriteFile(args[len(args)-1], []byte("garbage"), 0o644)
	}}

	p := NewProbe(ProbeConfig{Runner: runner})
	err := p.Thumbnail(context.Background(), "clip.mp4", dir, "clip.png", 30)
	if !errors.Is(err, ErrThumbnail) {
		t.Fatalf("Expected ErrThumbnail, got %v", err)
	}
	if runner.callCount() != 3 {
		t.Errorf("Expected 3 attempts, got %d", runner.callCount())
	}
	if _, err := os.Stat(filepath.Join(dir, "clip.png")); !os.IsNotExist(err) {
		t.Errorf("Expected no thumbnail left behind, got %v", err)
	}
}

func TestFaststart(t *testing.T) {
	t.Parallel()

	t.Run("replaces original", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, "clip.mp4")
		if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
			t.Fatal(err)
		}

		runner := &fakeRunner{fn: func(_ string, args []string) ([]byte, error) {
			return nil, os.WriteFile(args[len(args)-1], []byte("optimized"), 0o644)
		}}
		p := NewProbe(ProbeConfig{Runner: runner})

		if err := p.Faststart(context.Background(), path); err != nil {
			t.Fatalf("Faststart() error = %v", err)
		}

		want := []string{"ffmpeg", "-i", path, "-c", "copy", "-movflags", "+faststart", "-y", path + ".faststart.mp4"}
		if !reflect.DeepEqual(runner.calls[0], want) {
			t.Errorf("Expected args %v, got %v", want, runner.calls[0])
		}

		data, _ := os.ReadFile(path)
		if string(data) != "optimized" {
			t.Errorf("Expected optimized content, got %q", data)
		}
		if _, err := os.Stat(path + ".faststart.mp4"); !os.IsNotExist(err) {
			t.Errorf("Expected temp output to be gone, got %v", err)
		}
	})

	t.Run("failure keeps original", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, "clip.mp4")
		if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
			t.Fatal(err)
		}

		runner := &fakeRunner{fn: func(_ string, args []string) ([]byte, error) {
			_ = os.WriteFile(args[len(args)-1], []byte("partial"), 0o644)
			return nil, errors.New("exit status 1")
		}}
		p := NewProbe(ProbeConfig{Runner: runner})

		if err := p.Faststart(context.Background(), path); err == nil {
			t.Fatal("Expected error")
		}

		data, _ := os.ReadFile(path)
		if string(data) != "original" {
			t.Errorf("Expected original content, got %q", data)
		}
		if _, err := os.Stat(path + ".faststart.mp4"); !os.IsNotExist(err) {
			t.Errorf("Expected temp output to be removed, got %v", err)
		}
	})
}

func TestToolErrorMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("exit status 1")
	err := &ToolError{Tool: "ffmpeg", Stderr: "line one\nInvalid data found\n", Err: cause}

	want := "ffmpeg failed: exit status 1, stderr: Invalid data found"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("Expected ToolError to unwrap to its cause")
	}
}

func TestCheckTools(t *testing.T) {
	t.Parallel()

	statuses := CheckTools("clypse-no-such-tool")
	if len(statuses) != 1 {
		t.Fatalf("Expected 1 status, got %d", len(statuses))
	}
	if statuses[0].Available {
		t.Error("Expected missing tool to be unavailable")
	}
}

func TestExecRunnerCleanupWithNothingRunning(t *testing.T) {
	t.Parallel()

	r := NewExecRunner()
	r.Cleanup()
	if r.Running() != 0 {
		t.Errorf("Expected 0 running, got %d", r.Running())
	}
}
