package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/steveyegge/locsync/internal/vcs"
)

// open opens the repository containing path and returns it together with
// path's slash-separated location inside the repository ("" at the root).
func open(path string) (*gogit.Repository, string, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, "", fmt.Errorf("%w: %s", vcs.ErrNotInVCS, path)
		}
		return nil, "", err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, "", err
	}
	root, err := filepath.EvalSymlinks(wt.Filesystem.Root())
	if err != nil {
		return nil, "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return nil, "", err
	}
	if rel == "." {
		rel = ""
	}
	return repo, filepath.ToSlash(rel), nil
}

// Revision returns the commit hash HEAD points to, or "" in a repository
// without commits.
func (g *Git) Revision(_ context.Context, path string) (string, error) {
	repo, _, err := open(path)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("git: resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// ChangedFiles diffs the tree of commit since against HEAD.
func (g *Git) ChangedFiles(ctx context.Context, path, since string) (*vcs.Changes, error) {
	if since == "" {
		return nil, nil
	}
	repo, prefix, err := open(path)
	if err != nil {
		return nil, err
	}

	from, err := repo.CommitObject(plumbing.NewHash(since))
	if err != nil {
		// Unknown after a force push or history rewrite
		return nil, nil
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("git: resolve HEAD: %w", err)
	}
	to, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("git: read HEAD commit: %w", err)
	}

	fromTree, err := from.Tree()
	if err != nil {
		return nil, err
	}
	toTree, err := to.Tree()
	if err != nil {
		return nil, err
	}
	diff, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("git: diff %s..%s: %w", since, head.Hash(), err)
	}

	changes := &vcs.Changes{}
	for _, ch := range diff {
		action, err := ch.Action()
		if err != nil {
			return nil, err
		}
		switch action {
		case merkletrie.Delete:
			changes.Removed = appendRel(changes.Removed, prefix, ch.From.Name)
		case merkletrie.Insert:
			changes.Modified = appendRel(changes.Modified, prefix, ch.To.Name)
		case merkletrie.Modify:
			if ch.From.Name != ch.To.Name {
				changes.Removed = appendRel(changes.Removed, prefix, ch.From.Name)
			}
			changes.Modified = appendRel(changes.Modified, prefix, ch.To.Name)
		}
	}
	changes.Normalize()
	return changes, nil
}

// appendRel appends name relative to prefix, skipping names outside it.
func appendRel(list []string, prefix, name string) []string {
	if prefix == "" {
		return append(list, name)
	}
	if rel, ok := strings.CutPrefix(name, prefix+"/"); ok {
		return append(list, rel)
	}
	return list
}
