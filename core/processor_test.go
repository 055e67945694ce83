package core_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Skryldev/image-optimizer/config"
	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
	"github.com/Skryldev/image-optimizer/pipeline"
)

// pngDecoder decodes with the standard library.
type pngDecoder struct{}

func (pngDecoder) CanDecode(f core.Format) bool { return f == core.FormatPNG }
func (pngDecoder) Decode(_ context.Context, r io.Reader) (*core.ImageData, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "png.decode", err)
	}
	b := img.Bounds()
	return &core.ImageData{Image: img, Format: core.FormatPNG,
		Meta: core.Metadata{Width: b.Dx(), Height: b.Dy(), Format: core.FormatPNG}}, nil
}

// sizeEncoder emits one byte per pixel row plus the quality, so output size
// is deterministic, and counts calls.
type sizeEncoder struct {
	calls atomic.Int64
	delay time.Duration
}

func (*sizeEncoder) CanEncode(f core.Format) bool { return f == core.FormatWebP }
func (e *sizeEncoder) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "stub", ctx.Err())
		}
	}
	return bytes.Repeat([]byte{byte(opts.Quality)}, img.Meta.Height), nil
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func src(name string, data []byte) core.Source {
	return core.Source{Reader: bytes.NewReader(data), Name: name, Size: int64(len(data))}
}

func newProcessor(t *testing.T, enc *sizeEncoder, mutate func(*config.Config)) *core.Processor {
	t.Helper()
	cfg := config.Default()
	cfg.WorkerCount = 2
	cfg.QueueSize = 1
	if mutate != nil {
		mutate(&cfg)
	}
	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatPNG, pngDecoder{})
	reg.RegisterEncoder(core.FormatWebP, enc)
	return core.New(cfg, reg, pipeline.RecodePlan(reg, cfg.Method))
}

func TestRecode(t *testing.T) {
	enc := &sizeEncoder{}
	p := newProcessor(t, enc, nil)
	raw := pngOf(t, 10, 7)

	res, err := p.Recode(context.Background(), src("Scan 01.PNG", raw), 33)
	if err != nil {
		t.Fatalf("Recode: %v", err)
	}
	if res.Filename != "scan-01.webp" || res.OriginalName != "Scan 01.PNG" {
		t.Errorf("names: %q %q", res.Filename, res.OriginalName)
	}
	if res.Width != 10 || res.Height != 7 {
		t.Errorf("dimensions: %dx%d", res.Width, res.Height)
	}
	if res.NewSize != 7 || res.Blob[0] != 33 {
		t.Errorf("quality not passed verbatim: size=%d blob=%v", res.NewSize, res.Blob)
	}
	if res.OriginalSize != int64(len(raw)) {
		t.Errorf("original size: %d", res.OriginalSize)
	}
	if _, ok := res.StepTimings["encode"]; !ok {
		t.Errorf("step timings: %v", res.StepTimings)
	}
}

func TestRecode_DefaultQuality(t *testing.T) {
	p := newProcessor(t, &sizeEncoder{}, func(c *config.Config) { c.Quality = 55 })
	res, err := p.Recode(context.Background(), src("a.png", pngOf(t, 1, 1)), 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Blob[0] != 55 {
		t.Errorf("quality: got %d, want 55", res.Blob[0])
	}
}

func TestRecode_ContentTypeHint(t *testing.T) {
	p := newProcessor(t, &sizeEncoder{}, nil)
	// Unknown bytes with a PNG hint reach the PNG decoder and fail there.
	s := src("x", []byte("????????????????"))
	s.ContentType = "image/png"
	_, err := p.Recode(context.Background(), s, 80)
	if !apperrors.IsCategory(err, apperrors.CategoryDecode) || errors.Is(err, apperrors.ErrUnsupportedFormat) {
		t.Fatalf("got %v, want decode error from the PNG decoder", err)
	}
}

func TestRecode_Errors(t *testing.T) {
	p := newProcessor(t, &sizeEncoder{}, func(c *config.Config) { c.MaxImageBytes = 1024 })
	tests := []struct {
		name string
		src  core.Source
		q    int
		cat  apperrors.Category
		want error
	}{
		{"quality low", src("a.png", pngOf(t, 1, 1)), -3, apperrors.CategoryValidation, apperrors.ErrInvalidQuality},
		{"quality high", src("a.png", pngOf(t, 1, 1)), 101, apperrors.CategoryValidation, apperrors.ErrInvalidQuality},
		{"nil reader", core.Source{Name: "a.png"}, 80, apperrors.CategoryInput, apperrors.ErrEmptyInput},
		{"too large", src("a.png", make([]byte, 2048)), 80, apperrors.CategoryValidation, apperrors.ErrTooLarge},
		{"unsupported", src("a.gif", []byte("GIF89a......")), 80, apperrors.CategoryDecode, apperrors.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Recode(context.Background(), tt.src, tt.q)
			if !apperrors.IsCategory(err, tt.cat) || !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %s / %v", err, tt.cat, tt.want)
			}
			if apperrors.FileOf(err) != tt.src.Name {
				t.Errorf("file: %q", apperrors.FileOf(err))
			}
		})
	}
	if _, failed := p.ProcessedCount(), p.ErrorCount(); failed != int64(len(tests)) {
		t.Errorf("error count: %d", failed)
	}
}

func TestBatch_OrderAndIsolation(t *testing.T) {
	p := newProcessor(t, &sizeEncoder{}, nil)
	sources := []core.Source{
		src("a.png", pngOf(t, 1, 3)),
		src("b.png", []byte("\x89PNG\r\n\x1a\nbad")),
		src("c.png", pngOf(t, 1, 5)),
		src("d.png", pngOf(t, 1, 2)),
	}
	report := p.Batch(context.Background(), sources, 80)

	var names []string
	for _, r := range report.Results {
		names = append(names, r.OriginalName)
	}
	if len(names) != 3 || names[0] != "a.png" || names[1] != "c.png" || names[2] != "d.png" {
		t.Errorf("results: %v", names)
	}
	if len(report.Failures) != 1 || report.Failures[0].Index != 1 {
		t.Fatalf("failures: %+v", report.Failures)
	}
	if report.Summary.Count != 3 || report.Summary.NewTotal != 10 {
		t.Errorf("summary: %+v", report.Summary)
	}
}

func TestBatch_FailFastSkipsRemaining(t *testing.T) {
	enc := &sizeEncoder{}
	p := newProcessor(t, enc, func(c *config.Config) {
		c.FailFast = true
		c.WorkerCount = 1
	})
	sources := []core.Source{
		src("ok.png", pngOf(t, 1, 1)),
		src("bad.png", []byte("\x89PNG\r\n\x1a\nbad")),
		src("late1.png", pngOf(t, 1, 1)),
		src("late2.png", pngOf(t, 1, 1)),
	}
	report := p.Batch(context.Background(), sources, 80)

	if len(report.Results) != 1 || report.Results[0].OriginalName != "ok.png" {
		t.Errorf("results: %+v", report.Results)
	}
	if len(report.Failures) != 3 {
		t.Fatalf("failures: %+v", report.Failures)
	}
	if !apperrors.IsCategory(report.Failures[0].Err, apperrors.CategoryDecode) {
		t.Errorf("first failure: %v", report.Failures[0].Err)
	}
	for _, f := range report.Failures[1:] {
		if !errors.Is(f.Err, apperrors.ErrSkipped) || apperrors.FileOf(f.Err) != f.OriginalName {
			t.Errorf("%s: %v", f.OriginalName, f.Err)
		}
	}
	if enc.calls.Load() != 1 {
		t.Errorf("encoder calls: %d, want 1", enc.calls.Load())
	}
}

func TestBatch_CallerCancel(t *testing.T) {
	p := newProcessor(t, &sizeEncoder{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := p.Batch(ctx, []core.Source{src("a.png", pngOf(t, 1, 1))}, 80)
	if len(report.Failures) != 1 || !errors.Is(report.Failures[0].Err, context.Canceled) {
		t.Errorf("failures: %+v", report.Failures)
	}
}

func TestSubmit(t *testing.T) {
	p := newProcessor(t, &sizeEncoder{}, nil)
	p.Start()
	t.Cleanup(p.Stop)

	out := make(chan core.JobResult, 1)
	if err := p.Submit(core.Job{ID: "j1", Source: src("a.png", pngOf(t, 2, 2)), Quality: 80, ResultCh: out}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case r := <-out:
		if r.Err != nil || r.JobID != "j1" || r.Result.Height != 2 {
			t.Errorf("result: %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	// No workers started, queue size 1.
	p := newProcessor(t, &sizeEncoder{}, nil)
	job := core.Job{ID: "x", Source: src("a.png", pngOf(t, 1, 1))}
	if err := p.Submit(job); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if err := p.Submit(job); !errors.Is(err, apperrors.ErrWorkerPoolFull) {
		t.Fatalf("got %v, want ErrWorkerPoolFull", err)
	}
}

func TestJobTimeout(t *testing.T) {
	enc := &sizeEncoder{delay: time.Second}
	p := newProcessor(t, enc, func(c *config.Config) { c.JobTimeout = 20 * time.Millisecond })
	p.Start()
	t.Cleanup(p.Stop)

	out := make(chan core.JobResult, 1)
	if err := p.Submit(core.Job{ID: "slow", Source: src("a.png", pngOf(t, 1, 1)), ResultCh: out}); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-out:
		if !errors.Is(r.Err, context.DeadlineExceeded) {
			t.Errorf("got %v, want deadline exceeded", r.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
}

func TestValidateQuality(t *testing.T) {
	for _, q := range []int{1, 50, 100} {
		if err := core.ValidateQuality(q); err != nil {
			t.Errorf("ValidateQuality(%d): %v", q, err)
		}
	}
	for _, q := range []int{0, -1, 101} {
		if err := core.ValidateQuality(q); err == nil {
			t.Errorf("ValidateQuality(%d) accepted", q)
		}
	}
}
