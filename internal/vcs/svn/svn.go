// Package svn provides a Subversion implementation of the vcs.VCS interface.
//
// Subversion has no local history: Commit publishes directly, and an
// out-of-date working copy is the closest thing to a rejected push.
package svn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/steveyegge/locsync/internal/vcs"
)

func init() {
	vcs.Register(vcs.TypeSVN, func() (vcs.VCS, error) {
		return New(), nil
	})
}

// SVN implements the VCS interface for Subversion working copies.
type SVN struct {
	// Timeout bounds each svn invocation.
	Timeout time.Duration
}

// New creates a Subversion backend.
func New() *SVN {
	return &SVN{}
}

// Name returns the VCS type (svn)
func (s *SVN) Name() vcs.Type {
	return vcs.TypeSVN
}

func (s *SVN) exec(ctx context.Context, dir string, args ...string) ([]byte, error) {
	args = append([]string{"--non-interactive"}, args...)
	return vcs.ExecContext(ctx, s.Timeout, dir, "svn", args...)
}

// Pull checks out opts.Source, or reverts local changes and updates an
// existing working copy to HEAD. Branches are part of the URL in
// Subversion, so opts.Branch is ignored.
func (s *SVN) Pull(ctx context.Context, opts vcs.PullOptions) error {
	if err := s.pull(ctx, opts); err != nil {
		return &vcs.PullError{Type: vcs.TypeSVN, Source: opts.Source, Target: opts.Target, Err: err}
	}
	return nil
}

func (s *SVN) pull(ctx context.Context, opts vcs.PullOptions) error {
	target, err := filepath.Abs(opts.Target)
	if err != nil {
		return err
	}

	if !vcs.IsWorkingCopy(target, vcs.TypeSVN) {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		_, err := s.exec(ctx, filepath.Dir(target), "checkout", opts.Source, target)
		return err
	}

	if _, err := s.exec(ctx, target, "revert", "--recursive", "."); err != nil {
		return err
	}
	_, err = s.exec(ctx, target, "update", "--accept", "theirs-full", "-r", "HEAD")
	return err
}

// Commit schedules new files for addition and commits. The author is
// recorded as a revision property because the committing user is the one
// whose credentials the client holds.
func (s *SVN) Commit(ctx context.Context, opts vcs.CommitOptions) error {
	if opts.Message == "" {
		return fmt.Errorf("commit message is required")
	}
	fail := func(err error) error {
		return &vcs.CommitError{
			Type:     vcs.TypeSVN,
			Path:     opts.Path,
			Rejected: vcs.ContainsAny(err, "out of date", "out-of-date"),
			Err:      err,
		}
	}

	add := append([]string{"add", "--force", "--parents", "--depth", "infinity"}, opts.Pathspec()...)
	if _, err := s.exec(ctx, opts.Path, add...); err != nil {
		return fail(err)
	}
	status, err := s.exec(ctx, opts.Path, append([]string{"status", "--quiet"}, opts.Pathspec()...)...)
	if err != nil {
		return fail(err)
	}
	if len(vcs.ParseLines(status)) == 0 {
		return vcs.ErrNothingToCommit
	}

	args := []string{"commit", "--message", opts.Message}
	if opts.Author != "" {
		args = append(args, "--with-revprop", "author="+opts.Author)
	}
	args = append(args, opts.Pathspec()...)
	if _, err := s.exec(ctx, opts.Path, args...); err != nil {
		return fail(err)
	}
	return nil
}

// Revision returns the working copy's revision number, or "" for a
// repository without commits.
func (s *SVN) Revision(ctx context.Context, path string) (string, error) {
	output, err := s.exec(ctx, path, "info", "--show-item", "revision")
	if err != nil {
		if vcs.ContainsAny(err, "is not a working copy") {
			return "", fmt.Errorf("%w: %s", vcs.ErrNotInVCS, path)
		}
		return "", err
	}
	rev := vcs.FirstWord(output)
	if rev == "0" {
		return "", nil
	}
	return rev, nil
}

// ChangedFiles summarizes the diff between revision since and HEAD.
func (s *SVN) ChangedFiles(ctx context.Context, path, since string) (*vcs.Changes, error) {
	if since == "" {
		return nil, nil
	}
	output, err := s.exec(ctx, path, "diff", "--summarize", "-r", since+":BASE", ".")
	if err != nil {
		if vcs.ContainsAny(err, "no such revision", "unable to find repository location") {
			return nil, nil
		}
		return nil, err
	}
	return parseSummary(output), nil
}

// parseSummary parses "svn diff --summarize" output. Directory entries
// carry no trailing slash, so they are reported like files; callers only
// look for resource paths.
func parseSummary(output []byte) *vcs.Changes {
	changes := vcs.ParseStatusLines(output, "D")
	trim := func(paths []string) []string {
		for i, p := range paths {
			paths[i] = strings.TrimPrefix(p, "./")
		}
		return paths
	}
	changes.Modified = trim(changes.Modified)
	changes.Removed = trim(changes.Removed)
	return changes
}
