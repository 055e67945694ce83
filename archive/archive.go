// Package archive bundles recoded images into a single ZIP file.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	apperrors "github.com/Skryldev/image-optimizer/errors"
)

// Entry is one file inside a bundle.
type Entry struct {
	Name string
	Data []byte
}

// ErrEmptyName is returned for entries without a filename.
var ErrEmptyName = errors.New("entry name is empty")

// Bundle serialises entries into one ZIP archive held in memory.  Entries
// keep the caller's order and duplicate names are written as separate
// entries.  An empty entry list yields a valid archive with no entries.
// On failure nothing is returned.
func Bundle(ctx context.Context, entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(ctx, &buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the archive for entries into w.  Entries are stored
// uncompressed since WebP payloads do not deflate further.
func Write(ctx context.Context, w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	modified := time.Now()
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return apperrors.Wrap(apperrors.CategoryArchive, "zip.write", err)
		}
		if e.Name == "" {
			return apperrors.New(apperrors.CategoryArchive, "zip.create",
				fmt.Errorf("entry %d: %w", i, ErrEmptyName))
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.Name,
			Method:   zip.Store,
			Modified: modified,
		})
		if err != nil {
			return archiveErr("zip.create", e.Name, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			return archiveErr("zip.write", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return apperrors.Wrap(apperrors.CategoryArchive, "zip.close", err)
	}
	return nil
}

func archiveErr(op, name string, err error) error {
	return &apperrors.ProcessingError{Category: apperrors.CategoryArchive, Op: op, File: name, Err: err}
}

// Name returns the bundle filename <prefix>-<unixMillis>.zip.
func Name(prefix string, t time.Time) string {
	return fmt.Sprintf("%s-%d.zip", prefix, t.UnixMilli())
}
