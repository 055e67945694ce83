// Package vips provides a libvips-backed Decoder and WebP Encoder.
package vips

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
	"github.com/Skryldev/image-optimizer/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	DefaultQuality int
	Effort         int // WebP reduction effort 0-6
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
}

// Backend is a unified libvips-powered Decoder and WebP Encoder.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 80
	}
	if cfg.Effort < 0 || cfg.Effort > 6 {
		cfg.Effort = 4
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.LoggingSettings(nil, govips.LogLevelWarning)
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatGIF, core.FormatWebP:
		return true
	}
	return false
}

func (b *Backend) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}

	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.drain", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	runtime.SetFinalizer(ref, func(r *govips.ImageRef) { r.Close() })

	format := vipsFormatToCore(ref.Format())
	return &core.ImageData{
		Data:   raw,
		Format: format,
		Image:  &VipsImage{ref: ref},
		Meta: core.Metadata{
			Width:      ref.Width(),
			Height:     ref.Height(),
			Format:     format,
			ColorSpace: vipsInterpretationToColorSpace(ref.Interpretation()),
			HasAlpha:   ref.HasAlpha(),
		},
	}, nil
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanEncode(f core.Format) bool { return f == core.FormatWebP }

// Encode exports the surface as WebP with all metadata stripped.  Surfaces
// decoded by a native decoder are imported into libvips first.
func (b *Backend) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode", err)
	}

	ref, release, err := refFor(img)
	if err != nil {
		return nil, err
	}
	defer release()
	if ref.Width() <= 0 || ref.Height() <= 0 {
		return nil, apperrors.New(apperrors.CategoryEncode, "vips.encode", apperrors.ErrInvalidDimensions)
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = b.cfg.DefaultQuality
	}
	effort := b.cfg.Effort
	if opts.Method > 0 {
		effort = opts.Method
	}

	ep := govips.NewWebpExportParams()
	ep.Quality = quality
	ep.Lossless = opts.Lossless
	ep.StripMetadata = true
	ep.ReductionEffort = effort
	out, _, err := ref.ExportWebp(ep)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.webp", err)
	}
	return out, nil
}

// refFor returns a libvips handle for img.  Native surfaces are bridged
// through a lossless PNG; the returned release func closes that temporary.
func refFor(img *core.ImageData) (*govips.ImageRef, func(), error) {
	switch v := img.Image.(type) {
	case *VipsImage:
		if v == nil || v.ref == nil {
			break
		}
		return v.ref, func() {}, nil
	case image.Image:
		if v == nil {
			break
		}
		b := v.Bounds()
		if b.Dx() <= 0 || b.Dy() <= 0 {
			return nil, nil, apperrors.New(apperrors.CategoryEncode, "vips.encode", apperrors.ErrInvalidDimensions)
		}
		var buf bytes.Buffer
		if err := (&png.Encoder{CompressionLevel: png.NoCompression}).Encode(&buf, v); err != nil {
			return nil, nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.import", err)
		}
		ref, err := govips.NewImageFromBuffer(buf.Bytes())
		if err != nil {
			return nil, nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.import", err)
		}
		return ref, ref.Close, nil
	}
	return nil, nil, apperrors.New(apperrors.CategoryEncode, "vips.encode",
		fmt.Errorf("%w: no decoded surface", apperrors.ErrEmptyInput))
}

// ─── VipsImage ────────────────────────────────────────────────────────────────

// VipsImage wraps a *govips.ImageRef for storage in core.ImageData.Image.
type VipsImage struct {
	ref *govips.ImageRef
}

func (v *VipsImage) Width() int            { return v.ref.Width() }
func (v *VipsImage) Height() int           { return v.ref.Height() }
func (v *VipsImage) Ref() *govips.ImageRef { return v.ref }
func (v *VipsImage) Close()                { v.ref.Close() }

// ─── Register ─────────────────────────────────────────────────────────────────

// Register makes b the decoder for every format libvips loads natively and
// the WebP encoder.  BMP keeps whatever decoder is already registered.
func Register(reg core.Registry, b *Backend) {
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatGIF, core.FormatWebP} {
		reg.RegisterDecoder(f, b)
	}
	reg.RegisterEncoder(core.FormatWebP, b)
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeGIF:
		return core.FormatGIF
	case govips.ImageTypeBMP:
		return core.FormatBMP
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	default:
		return core.FormatUnknown
	}
}

func vipsInterpretationToColorSpace(i govips.Interpretation) core.ColorSpace {
	switch i {
	case govips.InterpretationSRGB, govips.InterpretationRGB16:
		return core.ColorSpaceRGB
	case govips.InterpretationBW, govips.InterpretationGrey16:
		return core.ColorSpaceGray
	case govips.InterpretationCMYK:
		return core.ColorSpaceCMYK
	default:
		return core.ColorSpaceRGB
	}
}

// compile-time interface checks
var _ core.Decoder = (*Backend)(nil)
var _ core.Encoder = (*Backend)(nil)
