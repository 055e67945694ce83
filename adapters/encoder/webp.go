// Package encoder provides output encoders.
package encoder

import (
	"bytes"
	"context"
	"image"

	"github.com/gen2brain/webp"

	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

// WebP encodes images to lossy (or lossless) WebP with
// github.com/gen2brain/webp, which runs libwebp without CGO.
type WebP struct {
	DefaultQuality int // used when EncodeOptions.Quality == 0
	DefaultMethod  int
}

func NewWebP(defaultQuality, defaultMethod int) *WebP {
	if defaultQuality <= 0 {
		defaultQuality = 80
	}
	if defaultMethod < 0 || defaultMethod > 6 {
		defaultMethod = 4
	}
	return &WebP{DefaultQuality: defaultQuality, DefaultMethod: defaultMethod}
}

func (w *WebP) CanEncode(format core.Format) bool { return format == core.FormatWebP }

func (w *WebP) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "webp.encode", err)
	}

	src, ok := img.Image.(image.Image)
	if !ok || src == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, "webp.encode", apperrors.ErrEmptyInput)
	}
	if b := src.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, apperrors.New(apperrors.CategoryEncode, "webp.encode", apperrors.ErrInvalidDimensions)
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = w.DefaultQuality
	}
	method := opts.Method
	if method <= 0 {
		method = w.DefaultMethod
	}

	var buf bytes.Buffer
	err := webp.Encode(&buf, src, webp.Options{
		Quality:  quality,
		Method:   method,
		Lossless: opts.Lossless,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "webp.encode", err)
	}
	if buf.Len() == 0 {
		return nil, apperrors.New(apperrors.CategoryEncode, "webp.encode", apperrors.ErrEmptyInput)
	}
	return buf.Bytes(), nil
}
