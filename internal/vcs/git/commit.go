package git

import (
	"context"
	"fmt"

	"github.com/steveyegge/locsync/internal/vcs"
)

// Commit stages every change in the working copy, commits it with the
// given author and pushes the result.
func (g *Git) Commit(ctx context.Context, opts vcs.CommitOptions) error {
	if opts.Message == "" {
		return fmt.Errorf("commit message is required")
	}

	changed, err := g.hasChanges(ctx, opts.Path, opts.Pathspec())
	if err != nil {
		return &vcs.CommitError{Type: vcs.TypeGit, Path: opts.Path, Err: err}
	}
	if !changed {
		return vcs.ErrNothingToCommit
	}

	if _, err := g.exec(ctx, opts.Path, append([]string{"add", "-A", "--"}, opts.Pathspec()...)...); err != nil {
		return &vcs.CommitError{Type: vcs.TypeGit, Path: opts.Path, Err: err}
	}

	args := []string{"commit", "-m", opts.Message}
	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}
	args = append(append(args, "--"), opts.Pathspec()...)
	if _, err := g.exec(ctx, opts.Path, args...); err != nil {
		return &vcs.CommitError{Type: vcs.TypeGit, Path: opts.Path, Err: err}
	}

	if err := g.push(ctx, opts); err != nil {
		return &vcs.CommitError{
			Type:     vcs.TypeGit,
			Path:     opts.Path,
			Rejected: isRejected(err),
			Err:      err,
		}
	}
	return nil
}

// hasChanges returns true if there are uncommitted changes under paths.
func (g *Git) hasChanges(ctx context.Context, dir string, paths []string) (bool, error) {
	output, err := g.exec(ctx, dir, append([]string{"status", "--porcelain", "--"}, paths...)...)
	if err != nil {
		return false, err
	}
	return len(vcs.ParseLines(output)) > 0, nil
}

func (g *Git) push(ctx context.Context, opts vcs.CommitOptions) error {
	remote := opts.RemoteURL
	if remote == "" {
		remote = defaultRemote
	}
	refspec := "HEAD"
	if opts.Branch != "" {
		refspec = "HEAD:" + opts.Branch
	}
	_, err := g.exec(ctx, opts.Path, "push", remote, refspec)
	return err
}

// isRejected reports whether a push failed because the remote has commits
// the local branch lacks.
func isRejected(err error) bool {
	return vcs.ContainsAny(err, "non-fast-forward", "[rejected]", "fetch first")
}
