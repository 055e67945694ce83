package core

import (
	"context"
	"io"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatBMP     Format = "bmp"
	FormatWebP    Format = "webp"
	FormatUnknown Format = "unknown"
)

// ColorSpace represents the image colour model.
type ColorSpace string

const (
	ColorSpaceRGB     ColorSpace = "rgb"
	ColorSpaceRGBA    ColorSpace = "rgba"
	ColorSpaceCMYK    ColorSpace = "cmyk"
	ColorSpaceGray    ColorSpace = "gray"
	ColorSpaceIndexed ColorSpace = "indexed"
)

// Metadata holds information extracted while decoding.
type Metadata struct {
	Width      int
	Height     int
	Format     Format
	ColorSpace ColorSpace
	HasAlpha   bool
	SizeBytes  int64
}

// ImageData is the in-memory representation passed through a pipeline.
// Data holds encoded bytes; Image holds the decoded pixel surface.
type ImageData struct {
	// Encoded bytes: the raw input before encode, the output after.
	Data   []byte
	Format Format

	// Decoded pixel surface.  image.Image for the native backend, a
	// backend-specific handle (e.g. *vips.VipsImage) otherwise.
	Image interface{}

	// Metadata extracted during decode.  Width and Height always describe
	// the decoded source and are never touched by encoding.
	Meta Metadata

	// Size of the raw input.
	OriginalSize int64
}

// Source abstracts where raw bytes come from.
type Source struct {
	Reader      io.Reader
	ContentType string // optional hint
	Name        string // original filename
	Size        int64  // -1 if unknown
}

// RecodeResult is the outcome of recoding one source.  NewSize always equals
// len(Blob).  The caller owns Blob exclusively.
type RecodeResult struct {
	Blob         []byte
	Filename     string // normalized output filename
	OriginalName string
	OriginalSize int64
	NewSize      int64
	Width        int
	Height       int

	// Observability.
	SourceFormat   Format
	ProcessingTime time.Duration
	StepTimings    map[string]time.Duration
}

// FileFailure reports one source that could not be recoded.
type FileFailure struct {
	Index        int // position in the request
	OriginalName string
	Err          error
}

// BatchReport collects the outcome of a batch in request order.
type BatchReport struct {
	Results  []*RecodeResult
	Failures []FileFailure
	Summary  Summary
}

// OK reports whether every file in the batch succeeded.
func (b *BatchReport) OK() bool { return len(b.Failures) == 0 }

// Job encapsulates a single unit of work for the worker pool.
type Job struct {
	ID      string
	Ctx     context.Context //nolint:containedctx // intentional for async jobs
	Source  Source
	Quality int
	// Result channel; nil for fire-and-forget.
	ResultCh chan<- JobResult
}

// JobResult wraps the outcome of an async job.
type JobResult struct {
	JobID  string
	Result *RecodeResult
	Err    error
}

// Step is the fundamental pipeline building block.  Each Step transforms an
// *ImageData value and must be safe for concurrent use across goroutines.
type Step interface {
	Name() string
	Execute(ctx context.Context, img *ImageData) (*ImageData, error)
}

// Hook is an optional observer invoked around pipeline steps.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, img *ImageData)
	AfterStep(ctx context.Context, stepName string, img *ImageData, d time.Duration, err error)
}
