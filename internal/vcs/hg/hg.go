// Package hg provides a Mercurial implementation of the vcs.VCS interface.
//
// Every operation shells out to the hg binary with HGPLAIN set, so output
// is stable regardless of user configuration.
package hg

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
	vcs.Register(vcs.TypeHg, func() (vcs.VCS, error) {
		return New(), nil
	})
}

// Hg implements the VCS interface for Mercurial repositories.
type Hg struct {
	// Timeout bounds each hg invocation.
	Timeout time.Duration
}

// New creates a Mercurial backend.
func New() *Hg {
	return &Hg{}
}

// Name returns the VCS type (hg)
func (h *Hg) Name() vcs.Type {
	return vcs.TypeHg
}

func (h *Hg) exec(ctx context.Context, dir string, args ...string) ([]byte, error) {
	return vcs.ExecContext(ctx, h.Timeout, dir, "hg", args...)
}

// Pull clones or pulls opts.Source and updates the working copy, discarding
// local changes.
func (h *Hg) Pull(ctx context.Context, opts vcs.PullOptions) error {
	if err := h.pull(ctx, opts); err != nil {
		return &vcs.PullError{Type: vcs.TypeHg, Source: opts.Source, Target: opts.Target, Err: err}
	}
	return nil
}

func (h *Hg) pull(ctx context.Context, opts vcs.PullOptions) error {
	target, err := filepath.Abs(opts.Target)
	if err != nil {
		return err
	}

	if !vcs.IsWorkingCopy(target, vcs.TypeHg) {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		args := []string{"clone"}
		if opts.Branch != "" {
			args = append(args, "--updaterev", opts.Branch)
		}
		args = append(args, opts.Source, target)
		_, err := h.exec(ctx, filepath.Dir(target), args...)
		return err
	}

	args := []string{"pull"}
	if opts.Source != "" {
		args = append(args, opts.Source)
	}
	if _, err := h.exec(ctx, target, args...); err != nil {
		return err
	}

	args = []string{"update", "--clean"}
	if opts.Branch != "" {
		args = append(args, "--rev", opts.Branch)
	}
	if _, err := h.exec(ctx, target, args...); err != nil {
		return err
	}
	_, err = h.exec(ctx, target, "purge", "--config", "extensions.purge=")
	return err
}

// Commit adds new files, records removed ones, commits and pushes.
func (h *Hg) Commit(ctx context.Context, opts vcs.CommitOptions) error {
	if opts.Message == "" {
		return fmt.Errorf("commit message is required")
	}
	fail := func(err error) error {
		return &vcs.CommitError{Type: vcs.TypeHg, Path: opts.Path, Rejected: isRejected(err), Err: err}
	}

	status, err := h.exec(ctx, opts.Path, append([]string{"status"}, opts.Pathspec()...)...)
	if err != nil {
		return fail(err)
	}
	if len(vcs.ParseLines(status)) == 0 {
		return vcs.ErrNothingToCommit
	}

	if _, err := h.exec(ctx, opts.Path, append([]string{"addremove"}, opts.Pathspec()...)...); err != nil {
		return fail(err)
	}
	args := []string{"commit", "--message", opts.Message}
	if opts.Author != "" {
		args = append(args, "--user", opts.Author)
	}
	args = append(args, opts.Pathspec()...)
	if _, err := h.exec(ctx, opts.Path, args...); err != nil {
		return fail(err)
	}

	args = []string{"push"}
	if opts.Branch != "" {
		args = append(args, "--branch", opts.Branch)
	}
	if opts.RemoteURL != "" {
		args = append(args, opts.RemoteURL)
	}
	if _, err := h.exec(ctx, opts.Path, args...); err != nil {
		// hg push exits 1 when there was nothing to push
		if vcs.GetExitCode(err) == 1 && vcs.ContainsAny(err, "no changes found") {
			return nil
		}
		return fail(err)
	}
	return nil
}

// isRejected reports whether a push failed because it would create a new
// remote head, Mercurial's equivalent of a non-fast-forward push.
func isRejected(err error) bool {
	return vcs.ContainsAny(err, "push creates new remote head", "creates new remote head")
}

// Revision returns the full changeset id of the working copy parent, or ""
// in an empty repository.
func (h *Hg) Revision(ctx context.Context, path string) (string, error) {
	output, err := h.exec(ctx, path, "identify", "--id", "--debug")
	if err != nil {
		if vcs.ContainsAny(err, "no repository found") {
			return "", fmt.Errorf("%w: %s", vcs.ErrNotInVCS, path)
		}
		return "", err
	}
	return parseIdentify(output), nil
}

// parseIdentify extracts the changeset id from "hg identify --id" output.
// A trailing "+" marks uncommitted changes and the all-zero id means no
// commits.
func parseIdentify(output []byte) string {
	id := strings.TrimSuffix(vcs.FirstWord(output), "+")
	if strings.Trim(id, "0") == "" {
		return ""
	}
	return id
}

// ChangedFiles runs "hg status" between since and the working copy parent.
func (h *Hg) ChangedFiles(ctx context.Context, path, since string) (*vcs.Changes, error) {
	if since == "" {
		return nil, nil
	}
	output, err := h.exec(ctx, path, "status", "--rev", since, "--rev", ".", "--modified", "--added", "--removed")
	if err != nil {
		if vcs.ContainsAny(err, "unknown revision") {
			return nil, nil
		}
		return nil, err
	}
	return h.relativeTo(ctx, path, vcs.ParseStatusLines(output, "R")), nil
}

// relativeTo rewrites repository-relative status paths to be relative to
// path when path is below the repository root. Paths outside it are
// dropped.
func (h *Hg) relativeTo(ctx context.Context, path string, changes *vcs.Changes) *vcs.Changes {
	root, err := h.exec(ctx, path, "root")
	if err != nil {
		return changes
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return changes
	}
	prefix, err := filepath.Rel(vcs.TrimOutput(root), abs)
	if err != nil || prefix == "." {
		return changes
	}
	prefix = filepath.ToSlash(prefix) + "/"

	out := &vcs.Changes{}
	for _, p := range changes.Modified {
		if rel, ok := strings.CutPrefix(p, prefix); ok {
			out.Modified = append(out.Modified, rel)
		}
	}
	for _, p := range changes.Removed {
		if rel, ok := strings.CutPrefix(p, prefix); ok {
			out.Removed = append(out.Removed, rel)
		}
	}
	return out
}
