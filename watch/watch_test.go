package watch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

// fakeOptimizer answers every job straight away with a stub result.
type fakeOptimizer struct {
	mu    sync.Mutex
	saved []string
	names []string
}

func (f *fakeOptimizer) Submit(job core.Job) error {
	data, _ := io.ReadAll(job.Source.Reader)
	f.mu.Lock()
	f.names = append(f.names, job.Source.Name)
	f.mu.Unlock()
	go func() {
		job.ResultCh <- core.JobResult{JobID: job.ID, Result: &core.RecodeResult{
			Filename:     "out.webp",
			OriginalName: job.Source.Name,
			OriginalSize: int64(len(data)),
			NewSize:      1,
			Blob:         []byte{0},
		}}
	}()
	return nil
}

func (f *fakeOptimizer) Save(_ context.Context, r *core.RecodeResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, r.Filename)
	return nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func startWatcher(t *testing.T, opt Optimizer) (string, <-chan Result) {
	t.Helper()
	dir := t.TempDir()
	w, err := New(Config{Dir: dir, Debounce: 50 * time.Millisecond, Quality: 80}, opt, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	results := make(chan Result, 8)
	w.OnResult(func(r Result) { results <- r })

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	return dir, results
}

func waitResult(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for result")
		return Result{}
	}
}

func TestWatcher_RecodesDroppedImage(t *testing.T) {
	opt := &fakeOptimizer{}
	dir, results := startWatcher(t, opt)

	path := filepath.Join(dir, "Holiday Pic.png")
	if err := os.WriteFile(path, pngBytes(t), 0o644); err != nil {
		t.Fatal(err)
	}

	r := waitResult(t, results)
	if r.Err != nil {
		t.Fatalf("result error: %v", r.Err)
	}
	if r.Path != path || r.JobID == "" {
		t.Errorf("result: %+v", r)
	}
	if r.Output.OriginalName != "Holiday Pic.png" {
		t.Errorf("original name: %q", r.Output.OriginalName)
	}

	opt.mu.Lock()
	defer opt.mu.Unlock()
	if len(opt.saved) != 1 {
		t.Errorf("saved: %v", opt.saved)
	}
	if len(opt.names) != 1 {
		t.Errorf("debounce submitted %d jobs, want 1", len(opt.names))
	}
}

func TestWatcher_RejectsNonImage(t *testing.T) {
	opt := &fakeOptimizer{}
	dir, results := startWatcher(t, opt)

	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("just text"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := waitResult(t, results)
	if !errors.Is(r.Err, apperrors.ErrNotAnImage) {
		t.Fatalf("got %v, want ErrNotAnImage", r.Err)
	}
	if apperrors.FileOf(r.Err) != "readme.txt" {
		t.Errorf("file: %q", apperrors.FileOf(r.Err))
	}
}

func TestWatcher_IgnoresHidden(t *testing.T) {
	opt := &fakeOptimizer{}
	dir, results := startWatcher(t, opt)

	if err := os.WriteFile(filepath.Join(dir, ".partial.png"), pngBytes(t), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-results:
		t.Fatalf("hidden file picked up: %+v", r)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_IgnoresDirectories(t *testing.T) {
	opt := &fakeOptimizer{}
	dir, results := startWatcher(t, opt)

	if err := os.MkdirAll(filepath.Join(dir, "optimized"), 0o755); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-results:
		t.Fatalf("directory picked up: %+v", r)
	case <-time.After(300 * time.Millisecond):
	}

	// The watcher keeps working after the directory event.
	path := filepath.Join(dir, "after.png")
	if err := os.WriteFile(path, pngBytes(t), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := waitResult(t, results); r.Err != nil || r.Path != path {
		t.Fatalf("result: %+v", r)
	}
}

func TestNew_RequiresDir(t *testing.T) {
	if _, err := New(Config{}, &fakeOptimizer{}, nil); err == nil {
		t.Fatal("expected error")
	}
}
