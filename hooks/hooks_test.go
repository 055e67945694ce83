package hooks

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

func TestLoggingHook(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	h := NewLoggingHook(logger)

	img := &core.ImageData{Data: []byte("RIFF"), Format: core.FormatWebP,
		Meta: core.Metadata{Width: 100, Height: 50, SizeBytes: 4}}
	h.BeforeStep(context.Background(), "encode", img)
	h.AfterStep(context.Background(), "encode", img, 3*time.Millisecond, nil)
	h.AfterStep(context.Background(), "decode", nil, time.Millisecond,
		apperrors.New(apperrors.CategoryDecode, "decode", errors.New("bad header")))

	out := buf.String()
	for _, want := range []string{
		"recode.step.start", "recode.step.done", "output=\"100x50 webp 4B\"",
		"recode.step.error", "category=decode", "bad header",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestMetricsHook(t *testing.T) {
	m := NewInMemoryMetrics()
	h := NewMetricsHook(m)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.AfterStep(ctx, "decode", &core.ImageData{Data: make([]byte, 1000)}, time.Millisecond, nil)
			h.AfterStep(ctx, "encode", &core.ImageData{Data: make([]byte, 100)}, 2*time.Millisecond, nil)
		}()
	}
	wg.Wait()
	h.AfterStep(ctx, "encode", nil, time.Millisecond, apperrors.New(apperrors.CategoryEncode, "encode", errors.New("x")))
	h.AfterStep(ctx, "decode", nil, time.Millisecond, errors.New("plain"))

	snap := m.Snapshot()
	if snap.StepCalls["encode"] != 11 || snap.StepCalls["decode"] != 11 {
		t.Errorf("calls: %v", snap.StepCalls)
	}
	if snap.StepDurations["encode"] != 21*time.Millisecond {
		t.Errorf("encode duration: %v", snap.StepDurations["encode"])
	}
	if snap.TotalThroughputB != 1000 {
		t.Errorf("throughput: got %d, want 1000", snap.TotalThroughputB)
	}
	if snap.ErrorsByCategory["encode"] != 1 || snap.ErrorsByCategory["pipeline"] != 1 {
		t.Errorf("errors by category: %v", snap.ErrorsByCategory)
	}

	// Snapshots are copies.
	snap.StepCalls["encode"] = 0
	if m.Snapshot().StepCalls["encode"] != 11 {
		t.Error("snapshot aliases internal state")
	}
}
