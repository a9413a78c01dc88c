// Package git provides a git implementation of the vcs.VCS interface.
//
// Network and working-copy operations shell out to the git binary so they
// honor the user's credential helpers and ssh configuration. Read-only
// history queries (Revision, ChangedFiles) go through go-git and need no
// binary at all.
//
// Usage:
//
//	import _ "github.com/steveyegge/locsync/internal/vcs/git" // Auto-registers via init()
package git

import "github.com/steveyegge/locsync/internal/vcs"

// init registers the git VCS implementation.
// This is called automatically when the package is imported.
func init() {
	vcs.Register(vcs.TypeGit, func() (vcs.VCS, error) {
		return New(), nil
	})
}
