package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/locsync/internal/changeset"
	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/project"
	"github.com/steveyegge/locsync/internal/store"
	"github.com/steveyegge/locsync/internal/vcs"
)

const (
	defaultWorkers        = 4
	defaultCommandTimeout = 5 * time.Minute
	lockRetryDelay        = 250 * time.Millisecond
)

// DefaultSyncUser is the identity commits are authored with when no
// translator contributed.
var DefaultSyncUser = store.User{Name: "locsync", Email: "locsync@localhost"}

// ErrLocked is returned when another pass holds the project's lock until
// the context ends.
var ErrLocked = errors.New("project is being synced by another process")

// Options configures an Engine.
type Options struct {
	// Workers bounds parallel file parsing and locale changesets.
	Workers int

	// FullScan reconciles every resource regardless of what changed.
	FullScan bool

	// DryRun plans the pass and reports it without writing to the store,
	// the working copies or the repositories.
	DryRun bool

	// CheckoutsDir holds working copies of repositories without an
	// explicit checkout path, and the per-project lock files.
	CheckoutsDir string

	// CommandTimeout bounds each pull and commit.
	CommandTimeout time.Duration

	// SyncUser authors commits nobody else contributed to.
	SyncUser store.User

	// HTTPClient downloads remote project configuration.
	HTTPClient *resty.Client

	// Clock returns the current time. It defaults to time.Now in UTC.
	Clock func() time.Time
}

// Engine runs sync passes against a store.
type Engine struct {
	Store store.Store

	// Backends returns the backend of a repository type.
	Backends func(vcs.Type) (vcs.VCS, error)

	Options Options
	logger  *log.Logger
}

// New creates an Engine. Backends default to the registered ones; the
// caller imports the backend packages it needs.
//
// If logger is nil, a default logger writing to stderr is used.
func New(st store.Store, opts Options, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.SyncUser.Email == "" {
		opts.SyncUser = DefaultSyncUser
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.CheckoutsDir == "" {
		opts.CheckoutsDir = filepath.Join(os.TempDir(), "locsync")
	}
	return &Engine{Store: st, Backends: vcs.New, Options: opts, logger: logger}
}

// SyncAll runs a pass for every project in the store. A failing project
// does not stop the others; their errors are joined.
func (e *Engine) SyncAll(ctx context.Context) ([]*Report, error) {
	projects, err := e.Store.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	var (
		reports []*Report
		errs    []error
	)
	for _, p := range projects {
		report, err := e.SyncProject(ctx, p.Slug)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Slug, err))
			continue
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

// pass holds the state of one SyncProject call.
type pass struct {
	project   *store.Project
	locales   []*l10n.Locale
	checkouts []*checkout
	report    *Report

	mu sync.Mutex
}

func (p *pass) fail(code string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.report.FailedLocales[code]; !ok {
		p.report.FailedLocales[code] = err
	}
}

func (p *pass) failed(code string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.report.FailedLocales[code]
	return ok
}

func (p *pass) commitFailed() bool {
	return slices.ContainsFunc(p.checkouts, func(c *checkout) bool { return c.commitFailed })
}

// SyncProject runs one pass of the project with the given slug.
func (e *Engine) SyncProject(ctx context.Context, slug string) (*Report, error) {
	started := e.Options.Clock()

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
	if !slices.ContainsFunc(repos, func(r *store.Repository) bool { return r.Role == store.RoleSource }) {
		return nil, project.ErrNoSourceRepository
	}

	unlock, err := e.lock(ctx, p.Slug)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ps := &pass{
		project: p,
		locales: locales,
		report: &Report{
			Project:       p.Slug,
			Started:       started,
			DryRun:        e.Options.DryRun,
			FailedLocales: make(map[string]error),
		},
	}
	ps.checkouts, err = e.checkouts(p, repos, locales)
	if err != nil {
		return nil, err
	}

	e.logger.Printf("Syncing %s: %d repositories, %d locales", p.Slug, len(repos), len(locales))
	if err := e.pullAll(ctx, ps); err != nil {
		return nil, err
	}

	vp, err := e.build(ctx, ps)
	if err != nil {
		return nil, err
	}
	ps.report.SkippedResources = vp.SkippedResources
	ps.report.AddedLocales = vp.AddedLocales

	now := e.Options.Clock()
	wrote := false

	if !e.Options.DryRun {
		for _, code := range vp.AddedLocales {
			if err := e.Store.EnableLocale(ctx, p.ID, code, now); err != nil {
				return nil, fmt.Errorf("failed to enable locale %s: %w", code, err)
			}
			wrote = true
		}
	}

	entities, err := e.Store.Entities(ctx, p.ID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}
	cs := changeset.New(p, vp, now, nil)
	cs.Logger = e.logger
	changeset.PlanEntities(cs, entities, vp, vp.Scope)
	entityResult, err := e.execute(ctx, cs)
	if err != nil {
		return nil, fmt.Errorf("failed to sync entities: %w", err)
	}
	ps.report.Entities = entityResult
	wrote = wrote || entityResult.Changed()

	runs, err := e.syncLocales(ctx, ps, vp, now)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		wrote = wrote || run.result.Changed()
	}

	if !e.Options.DryRun {
		upserted, err := e.mergeResources(ctx, p.ID, vp)
		if err != nil {
			return nil, err
		}
		wrote = wrote || upserted
	}

	e.commitAll(ctx, ps, vp, runs)

	moved := false
	if !e.Options.DryRun {
		if moved, err = e.recordRevisions(ctx, ps); err != nil {
			return nil, err
		}
		// A failed commit leaves LastSyncedAt behind, so the store edits it
		// carried count as changed again on the next pass.
		if (wrote || moved) && !ps.commitFailed() {
			if err := e.Store.SetLastSynced(ctx, p.ID, now); err != nil {
				return nil, fmt.Errorf("failed to advance last synced time: %w", err)
			}
		}
	}

	report := ps.report
	report.NoOp = !wrote && !moved && len(report.FailedLocales) == 0 && len(report.SkippedResources) == 0
	report.Duration = e.Options.Clock().Sub(started)

	if !e.Options.DryRun && !report.NoOp {
		if err := e.recordLog(ctx, p.ID, report); err != nil {
			return nil, err
		}
	}

	e.logger.Printf("Synced %s: %s", p.Slug, report.Summary())
	return report, nil
}

// lock takes the project's cross-process lock, waiting until ctx ends.
func (e *Engine) lock(ctx context.Context, slug string) (func(), error) {
	if err := os.MkdirAll(e.Options.CheckoutsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkouts directory: %w", err)
	}
	lock := flock.New(e.lockPath(slug))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", ErrLocked, slug)
		}
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", slug, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, slug)
	}
	return func() { _ = lock.Unlock() }, nil
}

func (e *Engine) lockPath(slug string) string {
	return filepath.Join(e.Options.CheckoutsDir, "."+slug+".lock")
}

// build pulls the project model out of the working copies.
func (e *Engine) build(ctx context.Context, ps *pass) (*project.Project, error) {
	var (
		checkouts []project.Checkout
		locales   []*l10n.Locale
		permalink = ps.project.Permalink
	)
	for _, c := range ps.checkouts {
		if c.err != nil {
			continue
		}
		if c.repo.Role == store.RoleSource && c.repo.Permalink != "" {
			permalink = c.repo.Permalink
		}
		checkouts = append(checkouts, project.Checkout{
			RepositoryID: c.repo.ID,
			Type:         c.repo.Type,
			Role:         c.repo.Role,
			Path:         c.path,
			Locale:       c.locale,
			LastRevision: c.before,
		})
	}
	for _, l := range ps.locales {
		if !ps.failed(l.Code) {
			locales = append(locales, l)
		}
	}

	b := &project.Builder{
		ProjectID:  ps.project.ID,
		Checkouts:  checkouts,
		Locales:    locales,
		ConfigFile: ps.project.ConfigFile,
		Permalink:  permalink,
		HTTPClient: e.Options.HTTPClient,
		Store:      e.Store,
		Since:      ps.project.LastSyncedAt,
		Backends:   e.Backends,
		FullScan:   e.Options.FullScan,
		Workers:    e.Options.Workers,
		Logger:     e.logger,
	}
	vp, err := b.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build project %s: %w", ps.project.Slug, err)
	}
	return vp, nil
}

// execute runs a changeset, or only reports its plan in a dry run.
func (e *Engine) execute(ctx context.Context, cs *changeset.ChangeSet) (changeset.Result, error) {
	if e.Options.DryRun {
		return cs.Planned(), nil
	}
	result, err := cs.Execute(ctx, e.Store)
	if err != nil {
		return changeset.Result{}, err
	}
	return *result, nil
}

// localeRun is the outcome of one locale's changeset.
type localeRun struct {
	locale        *l10n.Locale
	result        changeset.Result
	contributions []*store.User
	authors       []*store.User
}

// syncLocales runs the locale changesets in parallel. A failing locale is
// recorded and does not stop the others; only cancellation does.
func (e *Engine) syncLocales(ctx context.Context, ps *pass, vp *project.Project, now time.Time) ([]*localeRun, error) {
	var active []*l10n.Locale
	for _, l := range vp.Locales {
		if !ps.failed(l.Code) {
			active = append(active, l)
		}
	}

	var saveMu sync.Mutex
	runs := make([]*localeRun, len(active))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Options.Workers)
	for i, locale := range active {
		g.Go(func() error {
			run, err := e.syncLocale(gctx, ps.project, vp, locale, now, &saveMu)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.logger.Printf("WARNING: locale %s failed: %v", locale.Code, err)
				ps.fail(locale.Code, err)
				return nil
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.DeleteFunc(runs, func(r *localeRun) bool { return r == nil }), nil
}

func (e *Engine) syncLocale(ctx context.Context, p *store.Project, vp *project.Project, locale *l10n.Locale, now time.Time, saveMu *sync.Mutex) (*localeRun, error) {
	entities, err := e.Store.Entities(ctx, p.ID, locale.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}
	changed, err := e.Store.ChangedEntities(ctx, p.ID, locale.Code, p.LastSyncedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load changed entities: %w", err)
	}

	cs := changeset.New(p, vp, now, locale)
	cs.SaveLock = saveMu
	cs.Logger = e.logger
	changeset.PlanTranslations(cs, locale, entities, vp, changed)
	result, err := e.execute(ctx, cs)
	if err != nil {
		return nil, err
	}
	return &localeRun{
		locale:        locale,
		result:        result,
		contributions: cs.Contributions(locale.Code),
		authors:       cs.CommitAuthors(locale.Code),
	}, nil
}

// mergeResources stores the metadata of parsed resources that changed. It
// runs once, after every locale worker finished.
func (e *Engine) mergeResources(ctx context.Context, projectID int64, vp *project.Project) (bool, error) {
	existing, err := e.Store.Resources(ctx, projectID)
	if err != nil {
		return false, fmt.Errorf("failed to load resources: %w", err)
	}
	byPath := make(map[string]*store.Resource, len(existing))
	for _, r := range existing {
		byPath[r.Path] = r
	}

	var upserts []*store.Resource
	for _, res := range vp.SortedResources() {
		r := &store.Resource{ProjectID: projectID, Path: res.Path, Format: res.Format, TotalStrings: len(res.Entities)}
		if old := byPath[res.Path]; old != nil && old.Format == r.Format && old.TotalStrings == r.TotalStrings {
			continue
		}
		upserts = append(upserts, r)
	}
	if len(upserts) == 0 {
		return false, nil
	}
	if err := e.Store.UpsertResources(ctx, projectID, upserts); err != nil {
		return false, fmt.Errorf("failed to update resources: %w", err)
	}
	return true, nil
}

// recordRevisions stores the revision of every working copy that moved.
// Working copies with a failed pull or commit keep their old revision so
// the next pass looks at them again.
func (e *Engine) recordRevisions(ctx context.Context, ps *pass) (bool, error) {
	moved := false
	for _, c := range ps.checkouts {
		if c.err != nil || c.commitFailed {
			continue
		}
		backend, err := e.Backends(c.repo.Type)
		if err != nil {
			return moved, err
		}
		rev, err := backend.Revision(ctx, c.path)
		if err != nil {
			e.logger.Printf("WARNING: failed to read revision of %s: %v", c.path, err)
			continue
		}
		if rev == "" || rev == c.before {
			continue
		}
		if err := e.Store.RecordSyncedRevision(ctx, c.repo.ID, c.locale, rev); err != nil {
			return moved, fmt.Errorf("failed to record revision: %w", err)
		}
		moved = true
	}
	return moved, nil
}

func (e *Engine) recordLog(ctx context.Context, projectID int64, report *Report) error {
	failed := make(map[string]string, len(report.FailedLocales))
	for code, err := range report.FailedLocales {
		failed[code] = err.Error()
	}
	entry := &store.SyncLog{
		ID:               uuid.NewString(),
		ProjectID:        projectID,
		StartedAt:        report.Started,
		FinishedAt:       report.Started.Add(report.Duration),
		SkippedResources: report.SkippedResources,
		FailedLocales:    failed,
		Summary:          report.Summary(),
	}
	if err := e.Store.RecordSyncLog(ctx, entry); err != nil {
		return fmt.Errorf("failed to record sync log: %w", err)
	}
	report.SyncLogID = entry.ID
	return nil
}
