// Package imageoptimizer recodes images to WebP, gives them SEO-friendly
// filenames and saves them one by one or bundled in a ZIP archive.
package imageoptimizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/Skryldev/image-optimizer/adapters/decoder"
	"github.com/Skryldev/image-optimizer/adapters/encoder"
	"github.com/Skryldev/image-optimizer/adapters/storage"
	"github.com/Skryldev/image-optimizer/archive"
	"github.com/Skryldev/image-optimizer/config"
	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
	"github.com/Skryldev/image-optimizer/hooks"
	"github.com/Skryldev/image-optimizer/pipeline"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	GIF  = core.FormatGIF
	BMP  = core.FormatBMP
	WebP = core.FormatWebP
)

// DefaultConfig returns the default configuration.
func DefaultConfig() config.Config { return config.Default() }

// Option customises an Optimizer at construction.
type Option func(*Optimizer)

// WithSaver replaces the local-directory saver.
func WithSaver(s core.Saver) Option { return func(o *Optimizer) { o.saver = s } }

// WithLogger attaches a structured logger.
func WithLogger(l core.Logger) Option { return func(o *Optimizer) { o.logger = l } }

// WithCodecs runs register against the registry after the built-in codecs
// are in place, so it can override any of them (e.g. vips.Register).
func WithCodecs(register func(core.Registry)) Option {
	return func(o *Optimizer) { o.codecs = append(o.codecs, register) }
}

// Optimizer is the primary entry point.  It is safe for concurrent use.
type Optimizer struct {
	inner  *core.Processor
	reg    *core.DefaultRegistry
	cfg    config.Config
	logger core.Logger
	codecs []func(core.Registry)

	saver     core.Saver
	saverOnce func() (core.Saver, error)
}

// New creates an Optimizer with JPEG, PNG, GIF, BMP and WebP decoders and the
// pure-Go WebP encoder registered.
func New(cfg config.Config, opts ...Option) (*Optimizer, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "new", err)
	}

	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterDecoder(core.FormatGIF, decoder.NewGIF())
	reg.RegisterDecoder(core.FormatBMP, decoder.NewBMP())
	reg.RegisterDecoder(core.FormatWebP, decoder.NewWebP())
	reg.RegisterEncoder(core.FormatWebP, encoder.NewWebP(cfg.Quality, cfg.Method))

	o := &Optimizer{reg: reg, cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	for _, register := range o.codecs {
		register(reg)
	}

	o.inner = core.New(cfg, reg, pipeline.RecodePlan(reg, cfg.Method))
	if o.logger != nil {
		o.inner.SetLogger(o.logger)
	}
	o.saverOnce = sync.OnceValues(func() (core.Saver, error) {
		if o.saver != nil {
			return o.saver, nil
		}
		l, err := storage.NewLocal(cfg.OutputDir, os.FileMode(cfg.Permissions))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryStorage, "saver", err)
		}
		return l, nil
	})
	return o, nil
}

// Config returns the configuration the Optimizer was built with.
func (o *Optimizer) Config() config.Config { return o.cfg }

// Inner exposes the underlying core.Processor for advanced use.
func (o *Optimizer) Inner() *core.Processor { return o.inner }

// RegisterDecoder registers a custom decoder for the given format.
func (o *Optimizer) RegisterDecoder(f core.Format, d core.Decoder) { o.reg.RegisterDecoder(f, d) }

// RegisterEncoder registers a custom encoder for the given format.
func (o *Optimizer) RegisterEncoder(f core.Format, e core.Encoder) { o.reg.RegisterEncoder(f, e) }

// AddHook registers an observer for step events.
func (o *Optimizer) AddHook(h core.Hook) { o.inner.AddHook(h) }

// SetMetrics feeds step events into m.
func (o *Optimizer) SetMetrics(m core.MetricsCollector) { o.inner.AddHook(hooks.NewMetricsHook(m)) }

// Start starts the background worker pool used by Submit.
func (o *Optimizer) Start() { o.inner.Start() }

// Stop shuts down the worker pool.
func (o *Optimizer) Stop() { o.inner.Stop() }

// Submit enqueues an async recode job.
func (o *Optimizer) Submit(job core.Job) error { return o.inner.Submit(job) }

// Stats returns lightweight processing statistics.
func (o *Optimizer) Stats() (processed, failed int64) {
	return o.inner.ProcessedCount(), o.inner.ErrorCount()
}

// Recode converts one image to WebP at quality (0 = configured default).
func (o *Optimizer) Recode(ctx context.Context, src core.Source, quality int) (*core.RecodeResult, error) {
	return o.inner.Recode(ctx, src, quality)
}

// Batch recodes every source and reports results and failures per file.
func (o *Optimizer) Batch(ctx context.Context, sources []core.Source, quality int) *core.BatchReport {
	return o.inner.Batch(ctx, sources, quality)
}

// ── Boundary validation ───────────────────────────────────────────────────────

// InputFile is a user-selected file before it has been accepted as an image.
type InputFile struct {
	Name        string
	Data        []byte
	ContentType string // filled in by FilterImages
}

// Source wraps the file for recoding.
func (f InputFile) Source() core.Source {
	return core.Source{
		Reader:      bytes.NewReader(f.Data),
		ContentType: f.ContentType,
		Name:        f.Name,
		Size:        int64(len(f.Data)),
	}
}

// FilterImages keeps the files whose content sniffs as image/*.  Every other
// file is rejected with a validation error naming it.  When no file is
// accepted the returned error wraps ErrNoImages.
func FilterImages(files []InputFile) (accepted []InputFile, rejected []core.FileFailure, err error) {
	for i, f := range files {
		mt := mimetype.Detect(f.Data)
		if !strings.HasPrefix(mt.String(), "image/") {
			rejected = append(rejected, core.FileFailure{
				Index:        i,
				OriginalName: f.Name,
				Err: &apperrors.ProcessingError{
					Category: apperrors.CategoryValidation,
					Op:       "filter",
					File:     f.Name,
					Err:      fmt.Errorf("%w: %s", apperrors.ErrNotAnImage, mt.String()),
				},
			})
			continue
		}
		f.ContentType = mt.String()
		accepted = append(accepted, f)
	}
	if len(accepted) == 0 {
		return nil, rejected, apperrors.New(apperrors.CategoryValidation, "filter", apperrors.ErrNoImages)
	}
	return accepted, rejected, nil
}

// Sources converts accepted files into recode sources.
func Sources(files []InputFile) []core.Source {
	out := make([]core.Source, len(files))
	for i, f := range files {
		out[i] = f.Source()
	}
	return out
}

// ── Output ────────────────────────────────────────────────────────────────────

// BundleResults packs results into one ZIP archive in the given order and
// returns it together with its <prefix>-<unixMillis>.zip name.
func (o *Optimizer) BundleResults(ctx context.Context, results []*core.RecodeResult) (string, []byte, error) {
	data, err := archive.Bundle(ctx, entries(results))
	if err != nil {
		return "", nil, err
	}
	return archive.Name(o.cfg.ArchivePrefix, time.Now()), data, nil
}

func entries(results []*core.RecodeResult) []archive.Entry {
	out := make([]archive.Entry, 0, len(results))
	for _, r := range results {
		out = append(out, archive.Entry{Name: r.Filename, Data: r.Blob})
	}
	return out
}

// Save hands one result to the saver under its normalized filename.
func (o *Optimizer) Save(ctx context.Context, r *core.RecodeResult) error {
	s, err := o.saverOnce()
	if err != nil {
		return err
	}
	if err := s.Save(ctx, r.Filename, bytes.NewReader(r.Blob)); err != nil {
		return apperrors.WithFile(err, r.Filename, apperrors.CategoryStorage)
	}
	return nil
}

// SaveAll saves every result individually.  It keeps going after a failed
// save and returns all failures joined.
func (o *Optimizer) SaveAll(ctx context.Context, results []*core.RecodeResult) error {
	var errs []error
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			errs = append(errs, apperrors.Wrap(apperrors.CategoryStorage, "save_all", err))
			break
		}
		if err := o.Save(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveBundle writes all results as one ZIP archive through the saver and
// returns the archive name.  Nothing is saved if bundling fails.
func (o *Optimizer) SaveBundle(ctx context.Context, results []*core.RecodeResult) (string, error) {
	name, data, err := o.BundleResults(ctx, results)
	if err != nil {
		return "", err
	}
	s, err := o.saverOnce()
	if err != nil {
		return "", err
	}
	if err := s.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return "", apperrors.WithFile(err, name, apperrors.CategoryStorage)
	}
	return name, nil
}

// ── Source constructors ────────────────────────────────────────────────────────

// FromReader creates a Source from an io.Reader.
func FromReader(r io.Reader, name string) core.Source {
	return core.Source{Reader: r, Name: name, Size: -1}
}

// FromReaderWithMeta creates a Source with known size and content-type hints.
func FromReaderWithMeta(r io.Reader, size int64, contentType, name string) core.Source {
	return core.Source{Reader: r, Size: size, ContentType: contentType, Name: name}
}

// FromBytes creates a Source over an in-memory file.
func FromBytes(name string, data []byte) core.Source {
	return InputFile{Name: name, Data: data}.Source()
}
