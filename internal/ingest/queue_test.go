package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clypse/internal/database"
	"clypse/internal/media"
	"clypse/internal/upload"
)

type fakeProber struct {
	mu            sync.Mutex
	probed        []string
	metadataErr   error
	thumbnailErr  error
	faststartErr  error
	faststartRuns int

	// delay is slept inside Metadata and Thumbnail.
	delay time.Duration
	// thumbnailStarted, when set, makes Thumbnail signal it and then block
	// until its context is done.
	thumbnailStarted chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeProber) enter() {
	n := f.inFlight.Add(1)
	for {
		highest := f.maxInFlight.Load()
		if n <= highest || f.maxInFlight.CompareAndSwap(highest, n) {
			return
		}
	}
}

func (f *fakeProber) leave() { f.inFlight.Add(-1) }

func (f *fakeProber) Metadata(_ context.Context, path string) (media.Metadata, error) {
	f.enter()
	defer f.leave()
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, path)
	if f.metadataErr != nil {
		return media.Metadata{}, f.metadataErr
	}
	return media.Metadata{Width: 1920, Height: 1080, Duration: 30}, nil
}

func (f *fakeProber) Thumbnail(ctx context.Context, _, outDir, outName string, _ float64) error {
	f.enter()
	defer f.leave()
	time.Sleep(f.delay)

	if f.thumbnailStarted != nil {
		f.thumbnailStarted <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}

	f.mu.Lock()
	err := f.thumbnailErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, outName), []byte("png"), 0o644)
}

func (f *fakeProber) Faststart(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faststartRuns++
	return f.faststartErr
}

func (f *fakeProber) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.probed)
}

type fakeCatalog struct {
	mu      sync.Mutex
	entries []*database.Video
}

func (c *fakeCatalog) Create(_ context.Context, v *database.Video) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.FileName == v.FileName {
			return database.ErrConflict
		}
	}
	c.entries = append(c.entries, v)
	return nil
}

func (c *fakeCatalog) ExistsByFilename(_ context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.FileName == name {
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeCatalog) list() []*database.Video {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*database.Video(nil), c.entries...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Publish(eventType string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
}

type testEnv struct {
	uploads  string
	videos   string
	thumbs   string
	prober   *fakeProber
	catalog  *fakeCatalog
	notifier *fakeNotifier
	queue    *Queue
}

func newTestEnv(t *testing.T, queueSize int) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		uploads:  filepath.Join(root, "uploads"),
		videos:   filepath.Join(root, "videos"),
		thumbs:   filepath.Join(root, "videos", "thumbnails"),
		prober:   &fakeProber{},
		catalog:  &fakeCatalog{},
		notifier: &fakeNotifier{},
	}
	for _, dir := range []string{env.uploads, env.thumbs} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}
	env.queue = New(Config{
		VideosDir:     env.videos,
		ThumbnailsDir: env.thumbs,
		QueueSize:     queueSize,
	}, env.prober, env.catalog, env.notifier)
	t.Cleanup(env.queue.Stop)
	return env
}

func (e *testEnv) stage(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to stage %s: %v", path, err)
	}
	return path
}

func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for e.queue.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Queue did not drain, %d pending", e.queue.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestEnqueueDeduplicates(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)
	path := env.stage(t, env.uploads, "clip.mp4", "data")

	if !env.queue.Enqueue(path) {
		t.Fatal("Expected first enqueue to succeed")
	}
	if env.queue.Enqueue(path) {
		t.Error("Expected second enqueue of the same path to be a no-op")
	}
	if env.queue.Enqueue(filepath.Join(env.uploads, ".", "clip.mp4")) {
		t.Error("Expected unclean variant of the same path to be a no-op")
	}

	env.queue.Start(context.Background())
	env.drain(t)

	if n := env.prober.probeCount(); n != 1 {
		t.Errorf("Expected exactly 1 processing pass, got %d", n)
	}
	if n := len(env.catalog.list()); n != 1 {
		t.Errorf("Expected 1 catalog entry, got %d", n)
	}
}

func TestEnqueueFullQueue(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 1)

	a := env.stage(t, env.uploads, "a.mp4", "a")
	b := env.stage(t, env.uploads, "b.mp4", "b")

	if !env.queue.Enqueue(a) {
		t.Fatal("Expected first enqueue to succeed")
	}
	if env.queue.Enqueue(b) {
		t.Error("Expected enqueue on a full queue to return false")
	}
	if env.queue.Len() != 1 {
		t.Errorf("Expected 1 pending, got %d", env.queue.Len())
	}
}

func TestSameNameGetsSuffix(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)

	first := env.stage(t, filepath.Join(env.uploads, "a"), "clip.mp4", "first")
	second := env.stage(t, filepath.Join(env.uploads, "b"), "clip.mp4", "second")

	env.queue.Enqueue(first)
	env.queue.Enqueue(second)
	env.queue.Start(context.Background())
	env.drain(t)

	entries := env.catalog.list()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].FileName != "clip.mp4" {
		t.Errorf("Expected clip.mp4, got %s", entries[0].FileName)
	}
	if entries[1].FileName != "clip (1).mp4" {
		t.Errorf("Expected clip (1).mp4, got %s", entries[1].FileName)
	}
	if entries[1].Thumbnail != ThumbnailURLPrefix+"clip (1).png" {
		t.Errorf("Expected thumbnail for suffixed name, got %s", entries[1].Thumbnail)
	}
	if entries[0].UUID == entries[1].UUID {
		t.Error("Expected distinct identifiers")
	}

	data, err := os.ReadFile(filepath.Join(env.videos, "clip (1).mp4"))
	if err != nil || string(data) != "second" {
		t.Errorf("Expected second file published as clip (1).mp4, got %q (%v)", data, err)
	}
}

func TestSuffixAvoidsCatalogOnlyName(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)
	env.catalog.entries = append(env.catalog.entries, &database.Video{UUID: "x", FileName: "clip.mp4"})

	env.queue.Enqueue(env.stage(t, env.uploads, "clip.mp4", "data"))
	env.queue.Start(context.Background())
	env.drain(t)

	entries := env.catalog.list()
	if len(entries) != 2 || entries[1].FileName != "clip (1).mp4" {
		t.Fatalf("Expected new entry clip (1).mp4, got %+v", entries)
	}
}

func TestThumbnailFailureIsTerminal(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)
	env.prober.thumbnailErr = media.ErrThumbnail

	staged := env.stage(t, env.uploads, "clip.mp4", "data")
	env.queue.Enqueue(staged)
	env.queue.Start(context.Background())
	env.drain(t)

	if n := len(env.catalog.list()); n != 0 {
		t.Errorf("Expected no catalog entry, got %d", n)
	}
	if exists(filepath.Join(env.videos, "clip.mp4")) {
		t.Error("Expected published file to be rolled back")
	}
	if exists(staged) {
		t.Error("Expected staged file to be gone")
	}
	if len(env.notifier.events) != 0 {
		t.Errorf("Expected no notifications, got %v", env.notifier.events)
	}
}

func TestProbeFailureDeletesStagedFile(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)
	env.prober.metadataErr = media.ErrMetadata

	staged := env.stage(t, env.uploads, "broken.mp4", "data")
	if err := os.WriteFile(upload.TitleFile(staged), []byte("Broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	env.queue.Enqueue(staged)
	env.queue.Start(context.Background())
	env.drain(t)

	if exists(staged) {
		t.Error("Expected staged file to be deleted")
	}
	if exists(upload.TitleFile(staged)) {
		t.Error("Expected title file to be deleted")
	}
	if exists(filepath.Join(env.videos, "broken.mp4")) {
		t.Error("Expected nothing published")
	}
	if n := len(env.catalog.list()); n != 0 {
		t.Errorf("Expected no catalog entry, got %d", n)
	}
}

func TestDisallowedExtensionDeleted(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)

	staged := env.stage(t, env.uploads, "notes.txt", "text")
	env.queue.Enqueue(staged)
	env.queue.Start(context.Background())
	env.drain(t)

	if exists(staged) {
		t.Error("Expected disallowed file to be deleted")
	}
	if env.prober.probeCount() != 0 {
		t.Error("Expected disallowed file not to be probed")
	}
}

func TestMissingFileSkipped(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)

	env.queue.Enqueue(filepath.Join(env.uploads, "gone.mp4"))
	env.queue.Start(context.Background())
	env.drain(t)

	if env.prober.probeCount() != 0 {
		t.Error("Expected vanished file not to be probed")
	}
}

func TestFaststartFailureStillPublishes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)
	env.prober.faststartErr = errors.New("ffmpeg failed")

	env.queue.Enqueue(env.stage(t, env.uploads, "clip.mp4", "data"))
	env.queue.Start(context.Background())
	env.drain(t)

	if n := len(env.catalog.list()); n != 1 {
		t.Fatalf("Expected 1 entry, got %d", n)
	}
	if !exists(filepath.Join(env.videos, "clip.mp4")) {
		t.Error("Expected unoptimized file to be published")
	}
}

func TestPublishedEntry(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)

	staged := env.stage(t, env.uploads, "my_trip.mp4", "data")
	if err := os.WriteFile(upload.TitleFile(staged), []byte("  Summer <Trip>  "), 0o644); err != nil {
		t.Fatal(err)
	}
	plain := env.stage(t, env.uploads, "road_home.mp4", "data")

	env.queue.Enqueue(staged)
	env.queue.Enqueue(plain)
	env.queue.Start(context.Background())
	env.drain(t)

	entries := env.catalog.list()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	e := entries[0]
	if e.Title != "Summer <Trip>" {
		t.Errorf("Expected declared title, got %q", e.Title)
	}
	if e.Width != 1920 || e.Height != 1080 {
		t.Errorf("Expected 1920x1080, got %dx%d", e.Width, e.Height)
	}
	if e.OriginalFileName != "my_trip.mp4" {
		t.Errorf("Expected original name my_trip.mp4, got %s", e.OriginalFileName)
	}
	if exists(upload.TitleFile(staged)) {
		t.Error("Expected title file to be consumed")
	}
	if !exists(filepath.Join(env.thumbs, "my_trip.png")) {
		t.Error("Expected thumbnail file")
	}

	if entries[1].Title != "road home" {
		t.Errorf("Expected derived title %q, got %q", "road home", entries[1].Title)
	}

	env.notifier.mu.Lock()
	defer env.notifier.mu.Unlock()
	if len(env.notifier.events) != 2 || env.notifier.events[0] != EventVideoAdded {
		t.Errorf("Expected two %s events, got %v", EventVideoAdded, env.notifier.events)
	}
}

func TestProcessingOrderIsFIFO(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)

	names := []string{"c.mp4", "a.mp4", "b.mp4"}
	for _, n := range names {
		env.queue.Enqueue(env.stage(t, env.uploads, n, n))
	}
	env.queue.Start(context.Background())
	env.drain(t)

	entries := env.catalog.list()
	if len(entries) != len(names) {
		t.Fatalf("Expected %d entries, got %d", len(names), len(entries))
	}
	for i, n := range names {
		if entries[i].FileName != n {
			t.Errorf("Position %d: expected %s, got %s", i, n, entries[i].FileName)
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)
	env.queue.Start(context.Background())
	env.queue.Stop()
	env.queue.Stop()
}

type closedGate struct {
	calls chan struct{}
}

func (g *closedGate) WaitIfPaused(context.Context) bool {
	g.calls <- struct{}{}
	return false
}

func TestGateInterruptLeavesFileStaged(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)
	gate := &closedGate{calls: make(chan struct{}, 1)}
	env.queue.cfg.Gate = gate

	path := env.stage(t, env.uploads, "clip.mp4", "data")
	env.queue.Enqueue(path)
	env.queue.Start(context.Background())

	select {
	case <-gate.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected the worker to consult the gate")
	}
	env.queue.Stop()

	if !exists(path) {
		t.Error("Expected staged file to remain after an interrupted wait")
	}
	if n := len(env.catalog.list()); n != 0 {
		t.Errorf("Expected no entries, got %d", n)
	}
	if n := env.queue.Len(); n != 0 {
		t.Errorf("Expected no pending items after an interrupted wait, got %d", n)
	}
}

func TestLandingNameIsSanitized(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)

	env.queue.Enqueue(env.stage(t, env.uploads, "my clip!!.mp4", "data"))
	env.queue.Start(context.Background())
	env.drain(t)

	entries := env.catalog.list()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.FileName != "my_clip.mp4" {
		t.Errorf("Expected my_clip.mp4, got %s", e.FileName)
	}
	if e.OriginalFileName != "my clip!!.mp4" {
		t.Errorf("Expected original name kept, got %s", e.OriginalFileName)
	}
	if e.Thumbnail != ThumbnailURLPrefix+"my_clip.png" {
		t.Errorf("Expected thumbnail for sanitized name, got %s", e.Thumbnail)
	}
	if !exists(filepath.Join(env.videos, "my_clip.mp4")) {
		t.Error("Expected file published under the sanitized name")
	}
}

func TestPublishName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"clip.mp4", "clip.mp4"},
		{"my clip!!.mp4", "my_clip.mp4"},
		{"日本.mp4", "video.mp4"},
		{"!!.MOV", "video.mov"},
		{"a  b\tc.webm", "a_b_c.webm"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := publishName(tt.input); got != tt.want {
				t.Errorf("publishName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestShutdownMidThumbnailKeepsUpload(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)
	env.prober.thumbnailStarted = make(chan struct{}, 1)

	staged := env.stage(t, env.uploads, "clip.mp4", "data")
	if err := os.WriteFile(upload.TitleFile(staged), []byte("Clip"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.queue.Enqueue(staged)
	env.queue.Start(ctx)

	select {
	case <-env.prober.thumbnailStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected the worker to reach the thumbnail step")
	}
	cancel()
	env.queue.Stop()

	if !exists(staged) {
		t.Error("Expected staged file to be back in the landing directory")
	}
	if exists(filepath.Join(env.videos, "clip.mp4")) {
		t.Error("Expected nothing left in the published directory")
	}
	if !exists(upload.TitleFile(staged)) {
		t.Error("Expected title file to be kept for the next start")
	}
	if n := len(env.catalog.list()); n != 0 {
		t.Errorf("Expected no catalog entry, got %d", n)
	}
}

func TestShutdownDuringMetadataKeepsUpload(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)
	env.prober.metadataErr = context.Canceled

	staged := env.stage(t, env.uploads, "clip.mp4", "data")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := env.queue.ingest(ctx, staged); err == nil {
		t.Fatal("Expected an error from a cancelled ingest")
	}
	if !exists(staged) {
		t.Error("Expected staged file to survive a cancelled metadata read")
	}
}

func TestConcurrentProducersSingleWorker(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)
	env.prober.delay = 2 * time.Millisecond

	const files = 6
	const producers = 8
	var paths []string
	for i := 0; i < files; i++ {
		paths = append(paths, env.stage(t, env.uploads, fmt.Sprintf("clip%d.mp4", i), "data"))
	}

	env.queue.Start(context.Background())

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, path := range paths {
				env.queue.Enqueue(path)
			}
		}()
	}
	wg.Wait()
	env.drain(t)

	if highest := env.prober.maxInFlight.Load(); highest != 1 {
		t.Errorf("Expected at most 1 file in flight, got %d", highest)
	}

	env.prober.mu.Lock()
	counts := make(map[string]int)
	for _, p := range env.prober.probed {
		counts[p]++
	}
	env.prober.mu.Unlock()
	for _, path := range paths {
		if counts[path] != 1 {
			t.Errorf("Expected exactly 1 pass for %s, got %d", filepath.Base(path), counts[path])
		}
	}
	if n := len(env.catalog.list()); n != files {
		t.Errorf("Expected %d entries, got %d", files, n)
	}
}
