package git

import (
	"context"
	"os"
	"path/filepath"

	"github.com/steveyegge/locsync/internal/vcs"
)

// Pull clones opts.Source into opts.Target, or fetches and hard-resets an
// existing clone to the remote branch. The origin URL is updated first so
// a repository that moved is followed.
func (g *Git) Pull(ctx context.Context, opts vcs.PullOptions) error {
	if err := g.pull(ctx, opts); err != nil {
		return &vcs.PullError{Type: vcs.TypeGit, Source: opts.Source, Target: opts.Target, Err: err}
	}
	return nil
}

func (g *Git) pull(ctx context.Context, opts vcs.PullOptions) error {
	target, err := filepath.Abs(opts.Target)
	if err != nil {
		return err
	}
	opts.Target = target

	if !vcs.IsWorkingCopy(target, vcs.TypeGit) {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		args := []string{"clone"}
		if opts.Branch != "" {
			args = append(args, "--branch", opts.Branch)
		}
		args = append(args, "--", opts.Source, target)
		_, err := g.exec(ctx, filepath.Dir(target), args...)
		return err
	}

	if opts.Source != "" {
		if _, err := g.exec(ctx, opts.Target, "remote", "set-url", defaultRemote, opts.Source); err != nil {
			return err
		}
	}
	if _, err := g.exec(ctx, opts.Target, "fetch", "--all", "--prune"); err != nil {
		return err
	}

	if opts.Branch != "" {
		// Local changes are discarded; the remote branch wins
		ref := defaultRemote + "/" + opts.Branch
		if _, err := g.exec(ctx, opts.Target, "checkout", "--force", "-B", opts.Branch, ref); err != nil {
			return err
		}
	} else if _, err := g.exec(ctx, opts.Target, "reset", "--hard", "@{upstream}"); err != nil {
		return err
	}
	_, err = g.exec(ctx, opts.Target, "clean", "-fd")
	return err
}
