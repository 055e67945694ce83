package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

// ── Decode ────────────────────────────────────────────────────────────────────

// DecodeStep decodes raw bytes in img.Data into a pixel surface.
type DecodeStep struct {
	Registry core.Registry
}

func (s *DecodeStep) Name() string { return "decode" }

func (s *DecodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Image != nil {
		return img, nil // already decoded
	}
	if len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(), apperrors.ErrEmptyInput)
	}
	dec, ok := s.Registry.DecoderFor(img.Format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, img.Format))
	}

	decoded, err := dec.Decode(ctx, bytes.NewReader(img.Data))
	if err != nil {
		return nil, ensure(apperrors.CategoryDecode, s.Name(), err)
	}
	// Preserve the raw data bytes alongside the decoded representation.
	decoded.Data = img.Data
	decoded.OriginalSize = img.OriginalSize
	decoded.Meta.SizeBytes = img.OriginalSize
	return decoded, nil
}

// ── Encode ────────────────────────────────────────────────────────────────────

// EncodeStep serialises the decoded surface into Format using the registry.
// Width and Height are left as decoded; the surface is released once the
// output bytes exist.
type EncodeStep struct {
	Registry core.Registry
	Format   core.Format
	Options  core.EncodeOptions
}

func (s *EncodeStep) Name() string { return "encode" }

func (s *EncodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(), apperrors.ErrEmptyInput)
	}
	if img.Meta.Width <= 0 || img.Meta.Height <= 0 {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(), apperrors.ErrInvalidDimensions)
	}
	enc, ok := s.Registry.EncoderFor(s.Format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, s.Format))
	}

	data, err := enc.Encode(ctx, img, s.Options)
	if err != nil {
		return nil, ensure(apperrors.CategoryEncode, s.Name(), err)
	}
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(), apperrors.ErrEmptyInput)
	}

	out := *img
	out.Data = data
	out.Format = s.Format
	out.Image = nil
	out.Meta.SizeBytes = int64(len(data))
	return &out, nil
}

// ensure categorises adapter errors that did not come back as a
// ProcessingError already.
func ensure(cat apperrors.Category, op string, err error) error {
	var pe *apperrors.ProcessingError
	if errors.As(err, &pe) {
		return err
	}
	return apperrors.Wrap(cat, op, err)
}
