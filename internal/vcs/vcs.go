// Package vcs provides the repository backend interface used by the sync
// engine.
//
// A sync pass only needs a handful of operations from a repository: bring a
// working copy up to date with its remote, commit and push the files it
// wrote, and answer which files changed since the last synced revision.
// Backends for git, Mercurial and Subversion live in sub-packages and
// register themselves on import:
//
//	import _ "github.com/steveyegge/locsync/internal/vcs/git"
//
//	v, err := vcs.New(vcs.TypeGit)
//	if err != nil {
//	    return err
//	}
//	err = v.Pull(ctx, vcs.PullOptions{Source: url, Target: dir})
//
// Repository types are always explicit. Detect exists to check that a
// working copy on disk matches the type it was declared with, never to
// guess one.
package vcs

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Type represents the VCS backend type
type Type string

const (
	// TypeGit is a git repository.
	TypeGit Type = "git"

	// TypeHg is a Mercurial repository.
	TypeHg Type = "hg"

	// TypeSVN is a Subversion repository.
	TypeSVN Type = "svn"
)

// String returns the string representation of the VCS type
func (t Type) String() string {
	return string(t)
}

// Binary returns the name of the command-line client for the type.
func (t Type) Binary() string {
	return string(t)
}

// MetadataDir returns the name of the directory that marks a working copy
// of this type.
func (t Type) MetadataDir() string {
	return "." + string(t)
}

// ParseType parses a repository type name.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeGit, TypeHg, TypeSVN:
		return t, nil
	case "mercurial":
		return TypeHg, nil
	case "subversion":
		return TypeSVN, nil
	}
	return "", fmt.Errorf("%w: unknown repository type %q", ErrNotSupported, s)
}

// VCS is a repository backend.
//
// Implementations must be safe to use from several goroutines as long as
// they operate on different working copies. Blocking operations honor the
// context; callers bound them with a deadline.
type VCS interface {
	// Name returns the VCS type.
	Name() Type

	// Pull clones opts.Source into opts.Target, or brings an existing
	// working copy in line with the remote, discarding local changes.
	// Failures are returned as *PullError.
	Pull(ctx context.Context, opts PullOptions) error

	// Commit records every change under opts.Path and pushes it. It returns
	// ErrNothingToCommit when the working copy is clean, and *CommitError
	// on failure.
	Commit(ctx context.Context, opts CommitOptions) error

	// Revision returns the revision the working copy at path is at, or ""
	// when it has none yet.
	Revision(ctx context.Context, path string) (string, error)

	// ChangedFiles returns the files that changed between revision since
	// and the current revision of the working copy at path. It returns nil
	// when the answer is unknown, for example because since is empty or no
	// longer exists; callers then treat every file as changed.
	ChangedFiles(ctx context.Context, path, since string) (*Changes, error)
}

// PullOptions configures Pull.
type PullOptions struct {
	// Source is the remote URL to pull from.
	Source string

	// Target is the local working copy directory.
	Target string

	// Branch is the branch to check out. Empty means the remote default.
	Branch string
}

// CommitOptions configures Commit.
type CommitOptions struct {
	// Path is the working copy directory.
	Path string

	// Message is the full commit message.
	Message string

	// Author is the commit author in "Name <email>" form.
	Author string

	// Branch is the branch to push to. Empty means the current one.
	Branch string

	// RemoteURL is the URL to push to. Empty means the configured remote.
	RemoteURL string

	// Files limits the commit to these paths, relative to Path. Empty
	// commits every change in the working copy.
	Files []string
}

// Pathspec returns the paths a commit covers.
func (o CommitOptions) Pathspec() []string {
	if len(o.Files) == 0 {
		return []string{"."}
	}
	return o.Files
}

// Changes lists files changed between two revisions. Paths are
// slash-separated and relative to the working copy root.
type Changes struct {
	// Modified holds added and modified files.
	Modified []string

	// Removed holds deleted files. A renamed file appears as removed under
	// its old name and modified under the new one.
	Removed []string
}

// Normalize sorts both lists and drops duplicates.
func (c *Changes) Normalize() {
	slices.Sort(c.Modified)
	c.Modified = slices.Compact(c.Modified)
	slices.Sort(c.Removed)
	c.Removed = slices.Compact(c.Removed)
}

// Empty reports whether nothing changed.
func (c *Changes) Empty() bool {
	return c != nil && len(c.Modified) == 0 && len(c.Removed) == 0
}

// Touches reports whether path was modified or removed.
func (c *Changes) Touches(path string) bool {
	return slices.Contains(c.Modified, path) || slices.Contains(c.Removed, path)
}
