// Package storage provides Saver implementations.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/Skryldev/image-optimizer/errors"
)

// Local saves files into a directory on the local filesystem.
type Local struct {
	rootDir     string
	permissions os.FileMode
}

// NewLocal creates a Local saver rooted at dir.
func NewLocal(dir string, perm os.FileMode) (*Local, error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: mkdir %s: %w", dir, err)
	}
	return &Local{rootDir: dir, permissions: perm}, nil
}

// Dir returns the directory files are saved into.
func (l *Local) Dir() string { return l.rootDir }

// Path returns where name would be saved.
func (l *Local) Path(name string) string { return filepath.Join(l.rootDir, name) }

// Save writes r to name inside the root directory.  The file appears
// atomically: content goes to a temporary file that is renamed on success.
// An existing file with the same name is replaced.
func (l *Local) Save(ctx context.Context, name string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.save", err)
	}
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return &apperrors.ProcessingError{Category: apperrors.CategoryStorage, Op: "local.save", File: name,
			Err: fmt.Errorf("invalid file name")}
	}

	tmp, err := os.CreateTemp(l.rootDir, "."+name+".*.tmp")
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.save.create", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err = io.Copy(tmp, r); err != nil {
		tmp.Close()
		return apperrors.Wrap(apperrors.CategoryStorage, "local.save.copy", err)
	}
	if err = tmp.Close(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.save.close", err)
	}
	if err = os.Chmod(tmpName, l.permissions); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.save.chmod", err)
	}
	if err = os.Rename(tmpName, l.Path(name)); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.save.rename", err)
	}
	return nil
}
