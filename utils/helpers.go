package utils

import "github.com/gabriel-vasile/mimetype"

const formatUnknown = "unknown"

// mimeFormats maps detected MIME types to format names.  mimetype.MIME.Is
// also matches aliases such as image/x-ms-bmp.
var mimeFormats = []struct {
	mime   string
	format string
}{
	{"image/jpeg", "jpeg"},
	{"image/png", "png"},
	{"image/gif", "gif"},
	{"image/bmp", "bmp"},
	{"image/webp", "webp"},
}

// DetectFormat sniffs the leading bytes of data and returns the image format.
func DetectFormat(data []byte) string {
	if len(data) == 0 {
		return formatUnknown
	}
	mt := mimetype.Detect(data)
	for _, m := range mimeFormats {
		if mt.Is(m.mime) {
			return m.format
		}
	}
	return formatUnknown
}

// CloneBytes returns a copy of b (safe for use after the source buffer is released).
func CloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
