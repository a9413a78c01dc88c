package vcs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// detectOrder is the order metadata directories are probed in. A git
// checkout nested inside an svn working copy is reported as git.
var detectOrder = []Type{TypeGit, TypeHg, TypeSVN}

// DetectionResult contains information about the detected VCS
type DetectionResult struct {
	// Type is the detected VCS type
	Type Type

	// RepoRoot is the working copy root directory path
	RepoRoot string

	// VCSDir is the VCS metadata directory path (.git, .hg or .svn)
	VCSDir string
}

// Detect identifies the working copy containing path by walking up parent
// directories until a .git, .hg or .svn entry is found.
//
// Returns ErrNotInVCS if no VCS is found.
func Detect(path string) (*DetectionResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	current := absPath
	for {
		for _, t := range detectOrder {
			dir := filepath.Join(current, t.MetadataDir())
			// .git may be a file for worktrees and submodules
			if _, err := os.Stat(dir); err == nil {
				return &DetectionResult{Type: t, RepoRoot: current, VCSDir: dir}, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return nil, ErrNotInVCS
		}
		current = parent
	}
}

// IsWorkingCopy reports whether dir is itself the root of a working copy of
// type t.
func IsWorkingCopy(dir string, t Type) bool {
	_, err := os.Stat(filepath.Join(dir, t.MetadataDir()))
	return err == nil
}

// Verify checks that dir holds a working copy of type t. A directory that
// does not exist yet, or is not inside any working copy, passes; it will be
// created by the first pull. A working copy of a different type fails with
// ErrTypeMismatch.
func Verify(dir string, t Type) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	result, err := Detect(dir)
	if err != nil {
		return nil
	}
	if result.Type != t {
		return fmt.Errorf("%w: %s is a %s working copy, expected %s", ErrTypeMismatch, result.RepoRoot, result.Type, t)
	}
	return nil
}

// IsAvailable checks if the client binary for t is available on the system.
func IsAvailable(t Type) bool {
	pathEnv := os.Getenv("PATH")
	if pathEnv == "" {
		return false
	}
	for _, dir := range strings.Split(pathEnv, string(os.PathListSeparator)) {
		if dir == "" {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, t.Binary()))
		if err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return true
		}
	}
	return false
}
