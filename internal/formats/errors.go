package formats

import (
	"errors"
	"fmt"
)

// Errors returned while reading or writing resources.
//
// ParseError and SaveError wrap one of these, so callers can tell a
// missing file from a corrupt one:
//
//	if errors.Is(err, formats.ErrNotFound) {
//	    // file does not exist
//	}
var (
	// ErrNotFound is returned when a resource file does not exist.
	ErrNotFound = errors.New("resource file not found")

	// ErrDecode is returned when a resource file exists but cannot be
	// decoded in its format.
	ErrDecode = errors.New("resource file could not be decoded")

	// ErrNoSource is returned when saving a resource that was not parsed
	// against a source file.
	ErrNoSource = errors.New("resource has no source file")

	// ErrUnsupported is returned for files no codec handles.
	ErrUnsupported = errors.New("unsupported resource format")
)

// ParseError reports a resource that could not be parsed. The sync pass
// skips the resource and continues.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SaveError reports a resource that could not be written.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// DecodeErrorf builds an error wrapping ErrDecode.
func DecodeErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}
