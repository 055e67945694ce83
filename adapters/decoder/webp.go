package decoder

import (
	"context"
	"io"

	"golang.org/x/image/webp"

	"github.com/Skryldev/image-optimizer/core"
)

// WebP decodes still WebP images (lossy and lossless) using
// golang.org/x/image/webp.  Animated WebP is not supported.
type WebP struct{}

func NewWebP() *WebP { return &WebP{} }

func (w *WebP) CanDecode(format core.Format) bool {
	return format == core.FormatWebP
}

func (w *WebP) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	return decode(ctx, "webp.decode", core.FormatWebP, r, webp.Decode)
}
