package errors

import (
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and reporting.
type Category string

const (
	CategoryDecode     Category = "decode"
	CategoryEncode     Category = "encode"
	CategoryArchive    Category = "archive"
	CategoryValidation Category = "validation"
	CategoryPipeline   Category = "pipeline"
	CategoryStorage    Category = "storage"
	CategoryConfig     Category = "config"
	CategoryInput      Category = "input"
)

// ProcessingError is the structured error type used throughout the module.
// File is the original filename the failure belongs to, when there is one.
type ProcessingError struct {
	Category Category
	Op       string // operation name
	File     string
	Err      error
}

func (e *ProcessingError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("[%s] %s %q: %v", e.Category, e.Op, e.File, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a ProcessingError.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err}
}

// Wrap wraps an existing error with context.  A nil err stays nil.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, err)
}

// WithFile attaches the original filename to err.  A ProcessingError that
// already names a file is left untouched; any other error is wrapped in the
// fallback category.
func WithFile(err error, file string, fallback Category) error {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		if pe.File != "" {
			return err
		}
		cp := *pe
		cp.File = file
		return &cp
	}
	return &ProcessingError{Category: fallback, Op: "file", File: file, Err: err}
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// CategoryOf returns the category of err, or "" when err is not a
// ProcessingError.
func CategoryOf(err error) Category {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// FileOf returns the filename recorded on err, if any.
func FileOf(err error) string {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.File
	}
	return ""
}

// Sentinel errors for common failure modes.
var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrInvalidDimensions = errors.New("invalid dimensions")
	ErrEmptyInput        = errors.New("empty input")
	ErrInvalidQuality    = errors.New("quality must be between 1 and 100")
	ErrNotAnImage        = errors.New("not an image file")
	ErrNoImages          = errors.New("only image files can be processed")
	ErrTooLarge          = errors.New("image exceeds size limit")
	ErrWorkerPoolFull    = errors.New("worker pool queue full")
	ErrSkipped           = errors.New("skipped after earlier failure")
)
