package project

import (
	"errors"
	"fmt"
)

// ErrMissingSourceDirectory is matched by *MissingSourceDirectoryError.
var ErrMissingSourceDirectory = errors.New("missing source directory")

// ErrNoSourceRepository is returned when a project has no checkout with
// the source role.
var ErrNoSourceRepository = errors.New("project has no source repository")

// MissingSourceDirectoryError reports a checkout in which no directory
// qualifies as the source directory.
type MissingSourceDirectoryError struct {
	Root string
}

func (e *MissingSourceDirectoryError) Error() string {
	return fmt.Sprintf("no source directory found in %s (looked for %s)", e.Root, candidateList())
}

func (e *MissingSourceDirectoryError) Is(target error) bool {
	return target == ErrMissingSourceDirectory
}
