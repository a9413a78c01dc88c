package git

import (
	"context"
	"time"

	"github.com/steveyegge/locsync/internal/vcs"
)

// defaultRemote is the remote name git clone creates.
const defaultRemote = "origin"

// Git implements the VCS interface for git repositories.
type Git struct {
	// Timeout bounds each git invocation. Zero leaves only the caller's
	// context deadline.
	Timeout time.Duration
}

// New creates a git backend.
func New() *Git {
	return &Git{}
}

// Name returns the VCS type (git)
func (g *Git) Name() vcs.Type {
	return vcs.TypeGit
}

// exec runs git in dir.
func (g *Git) exec(ctx context.Context, dir string, args ...string) ([]byte, error) {
	return vcs.ExecContext(ctx, g.Timeout, dir, "git", args...)
}
