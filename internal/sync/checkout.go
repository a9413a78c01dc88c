package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/project"
	"github.com/steveyegge/locsync/internal/store"
	"github.com/steveyegge/locsync/internal/vcs"
)

// checkout is one working copy of a pass. Per-locale repositories have one
// checkout per locale.
type checkout struct {
	repo   *store.Repository
	locale string
	url    string
	path   string

	// before is the revision recorded by the last pass.
	before string

	err          error
	commitFailed bool
}

func (c *checkout) key() string {
	if c.locale != "" {
		return fmt.Sprintf("%d/%s", c.repo.ID, c.locale)
	}
	return fmt.Sprint(c.repo.ID)
}

// checkouts lays out the working copies of a project's repositories.
func (e *Engine) checkouts(p *store.Project, repos []*store.Repository, locales []*l10n.Locale) ([]*checkout, error) {
	var out []*checkout
	for _, r := range repos {
		dir := r.CheckoutPath
		if dir == "" {
			dir = filepath.Join(e.Options.CheckoutsDir, p.Slug, fmt.Sprintf("%s-%d", r.Role, r.ID))
		}
		dir, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}

		if !r.MultiLocale() {
			out = append(out, &checkout{repo: r, url: r.URL, path: dir})
			continue
		}
		for _, l := range locales {
			out = append(out, &checkout{
				repo:   r,
				locale: l.Code,
				url:    r.URLFor(l.Code),
				path:   filepath.Join(dir, l.Code),
			})
		}
	}
	return out, nil
}

// CheckoutDirs returns the working copy directories of a project, source
// first. They exist once a pass has pulled them.
func (e *Engine) CheckoutDirs(ctx context.Context, slug string) ([]string, error) {
	p, err := e.Store.Project(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to load project %s: %w", slug, err)
	}
	repos, err := e.Store.Repositories(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load repositories: %w", err)
	}
	locales, err := e.Store.Locales(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load locales: %w", err)
	}
	cs, err := e.checkouts(p, repos, locales)
	if err != nil {
		return nil, err
	}
	dirs := make([]string, len(cs))
	for i, c := range cs {
		dirs[i] = c.path
	}
	return dirs, nil
}

// pullAll brings every working copy up to date. A failed pull of the source
// repository aborts the pass; a failed pull of a translation repository
// fails the locales it holds.
func (e *Engine) pullAll(ctx context.Context, ps *pass) error {
	for _, c := range ps.checkouts {
		if err := e.pull(ctx, c); err != nil {
			if c.repo.Role == store.RoleSource {
				return err
			}
			c.err = err
			e.logger.Printf("WARNING: pull of %s failed: %v", c.url, err)
			for _, code := range e.localesOf(ps, c) {
				ps.fail(code, err)
			}
			continue
		}

		before, err := e.Store.LastSyncedRevision(ctx, c.repo.ID, c.locale)
		if err != nil {
			return fmt.Errorf("failed to load synced revision of %s: %w", c.key(), err)
		}
		c.before = before
	}
	return nil
}

func (e *Engine) pull(ctx context.Context, c *checkout) error {
	backend, err := e.Backends(c.repo.Type)
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, e.Options.CommandTimeout)
	defer cancel()
	return backend.Pull(pctx, vcs.PullOptions{Source: c.url, Target: c.path, Branch: c.repo.Branch})
}

// localesOf returns the locales whose files live in c.
func (e *Engine) localesOf(ps *pass, c *checkout) []string {
	if c.locale != "" {
		return []string{c.locale}
	}
	var out []string
	for _, l := range ps.locales {
		if e.checkoutFor(ps, l.Code) == c {
			out = append(out, l.Code)
		}
	}
	return out
}

// checkoutFor returns the working copy holding a locale's files: its
// per-locale checkout, else the first shared translation repository, else
// the source repository.
func (e *Engine) checkoutFor(ps *pass, code string) *checkout {
	var shared, source *checkout
	for _, c := range ps.checkouts {
		switch {
		case c.repo.Role == store.RoleSource:
			if source == nil {
				source = c
			}
		case c.locale != "":
			if l10n.SameCode(c.locale, code) {
				return c
			}
		case shared == nil:
			shared = c
		}
	}
	if shared != nil {
		return shared
	}
	return source
}

// commitAll commits each locale's saved files, one locale at a time.
func (e *Engine) commitAll(ctx context.Context, ps *pass, vp *project.Project, runs []*localeRun) {
	for _, run := range runs {
		code := run.locale.Code
		summary := LocaleSummary{
			Code:                code,
			Pulled:              run.result.Pulled,
			Pushed:              run.result.Pushed,
			TranslationsCreated: run.result.TranslationsCreated,
			TranslationsUpdated: run.result.TranslationsUpdated,
			ChangedResources:    run.result.ChangedResources,
			SaveErrors:          run.result.SaveErrors,
		}
		if len(run.result.SaveErrors) > 0 {
			ps.fail(code, fmt.Errorf("%d resources failed to save", len(run.result.SaveErrors)))
		}

		c := e.checkoutFor(ps, code)
		if len(run.result.ChangedResources) > 0 && c != nil && c.err == nil {
			summary.CommitMessage = CommitMessage(ps.project, run.locale, run.authors)
			summary.CommitAuthor = CommitAuthor(run.contributions, e.Options.SyncUser)
			if !e.Options.DryRun {
				committed, err := e.commit(ctx, c, vp, run, summary)
				if err != nil {
					c.commitFailed = true
					e.logger.Printf("WARNING: commit of %s failed: %v", code, err)
					ps.fail(code, err)
				}
				summary.Committed = committed
			}
		}
		ps.report.Locales = append(ps.report.Locales, summary)
	}
}

func (e *Engine) commit(ctx context.Context, c *checkout, vp *project.Project, run *localeRun, summary LocaleSummary) (bool, error) {
	var files []string
	for _, path := range run.result.ChangedResources {
		lr := vp.Resources[path].Locales[run.locale.Code]
		rel, err := filepath.Rel(c.path, lr.Path)
		if err != nil || !vcs.IsSubPath(c.path, lr.Path) {
			return false, fmt.Errorf("%s is outside working copy %s", lr.Path, c.path)
		}
		files = append(files, filepath.ToSlash(rel))
	}

	backend, err := e.Backends(c.repo.Type)
	if err != nil {
		return false, err
	}
	cctx, cancel := context.WithTimeout(ctx, e.Options.CommandTimeout)
	defer cancel()
	err = backend.Commit(cctx, vcs.CommitOptions{
		Path:    c.path,
		Message: summary.CommitMessage,
		Author:  summary.CommitAuthor,
		Branch:  c.repo.Branch,
		Files:   files,
	})
	if errors.Is(err, vcs.ErrNothingToCommit) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.logger.Printf("Committed %d files for %s in %s", len(files), run.locale.Code, c.url)
	return true, nil
}
