package project

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/project/l10nconfig"
	"github.com/steveyegge/locsync/internal/store"
	"github.com/steveyegge/locsync/internal/vcs"
)

// Checkout is one working copy of a project repository.
type Checkout struct {
	RepositoryID int64
	Type         vcs.Type
	Role         store.Role
	Path         string

	// Locale is set for the checkouts of per-locale repositories.
	Locale string

	// LastRevision is the revision recorded by the last sync, or empty.
	LastRevision string
}

// PendingSource reports resources with store-side changes.
type PendingSource interface {
	PendingResources(ctx context.Context, projectID int64, since time.Time) ([]string, error)
}

// Builder builds a Project. A Builder is used for one pass.
type Builder struct {
	ProjectID int64
	Checkouts []Checkout

	// Locales are the locales enabled for the project.
	Locales []*l10n.Locale

	// ConfigFile is the configuration path in the source checkout; empty
	// selects directory-convention discovery. When the file is not in the
	// checkout it is downloaded from Permalink.
	ConfigFile string
	Permalink  string
	HTTPClient *resty.Client

	// Store and Since widen the change scope to resources with
	// store-side changes after Since.
	Store PendingSource
	Since time.Time

	// Backends resolves the backend that answers ChangedFiles. Without
	// it every resource counts as changed.
	Backends func(vcs.Type) (vcs.VCS, error)

	FullScan bool
	Workers  int
	Logger   *log.Logger
}

// resourceFiles locates one resource on disk.
type resourceFiles struct {
	path       string
	sourcePath string
	// locales maps a locale code to its file; codes without an entry have
	// no file for this resource.
	locales map[string]string
}

// Build discovers, scopes and parses the project. Discovery and
// configuration errors are returned; unparseable files are recorded in
// SkippedResources.
func (b *Builder) Build(ctx context.Context) (*Project, error) {
	logger := b.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[project] ", log.LstdFlags)
	}

	source, err := b.sourceCheckout()
	if err != nil {
		return nil, err
	}
	for _, c := range b.Checkouts {
		if err := vcs.Verify(c.Path, c.Type); err != nil {
			return nil, err
		}
	}

	p := &Project{
		Root:      source.Path,
		Locales:   slices.Clone(b.Locales),
		Resources: make(map[string]*Resource),
		skipped:   make(map[string]bool),
	}

	if b.ConfigFile != "" {
		if err := b.loadConfig(ctx, p); err != nil {
			return nil, err
		}
	} else if p.SourceDir, err = DetectSourceDirectory(source.Path); err != nil {
		return nil, err
	}

	files, err := b.listResources(p)
	if err != nil {
		return nil, err
	}

	if err := b.scope(ctx, p, source, files); err != nil {
		return nil, err
	}

	if err := b.parse(ctx, p, files, logger); err != nil {
		return nil, err
	}

	slices.Sort(p.SkippedResources)
	logger.Printf("Built %s: %d resources parsed, %d skipped", p.Root, len(p.Resources), len(p.SkippedResources))
	return p, nil
}

func (b *Builder) sourceCheckout() (Checkout, error) {
	for _, c := range b.Checkouts {
		if c.Role == store.RoleSource {
			return c, nil
		}
	}
	return Checkout{}, ErrNoSourceRepository
}

func (b *Builder) loadConfig(ctx context.Context, p *Project) error {
	var (
		cfg *l10nconfig.Config
		err error
	)
	if fileExists(filepath.Join(p.Root, filepath.FromSlash(b.ConfigFile))) {
		cfg, err = l10nconfig.LoadLocal(ctx, p.Root, b.ConfigFile, b.HTTPClient)
	} else {
		cfg, err = l10nconfig.LoadRemote(ctx, b.HTTPClient, b.Permalink, b.ConfigFile)
		if cfg != nil {
			cfg.Root = p.Root
		}
	}
	if err != nil {
		return err
	}
	p.Config = cfg

	for _, code := range cfg.Locales() {
		known := slices.ContainsFunc(p.Locales, func(l *l10n.Locale) bool { return l10n.SameCode(l.Code, code) })
		if !known {
			p.AddedLocales = append(p.AddedLocales, code)
			p.Locales = append(p.Locales, l10n.NewLocale(code, code))
		}
	}
	return nil
}

// localeRoot returns the checkout holding the files of locale code and
// whether it is a per-locale checkout.
func (b *Builder) localeRoot(code, sourceRoot string) (string, bool) {
	shared := ""
	for _, c := range b.Checkouts {
		if c.Role != store.RoleTarget {
			continue
		}
		if c.Locale != "" && l10n.SameCode(c.Locale, code) {
			return c.Path, true
		}
		if c.Locale == "" && shared == "" {
			shared = c.Path
		}
	}
	if shared != "" {
		return shared, false
	}
	return sourceRoot, false
}

// listResources locates every resource's source and locale files.
func (b *Builder) listResources(p *Project) (map[string]*resourceFiles, error) {
	files := make(map[string]*resourceFiles)

	if p.Config != nil {
		refs, err := p.Config.References()
		if err != nil {
			return nil, err
		}
		bySource := make(map[string]*resourceFiles, len(refs))
		for _, ref := range refs {
			rf := &resourceFiles{
				path:       formats.LocalePath(ref),
				sourcePath: filepath.Join(p.Root, filepath.FromSlash(ref)),
				locales:    make(map[string]string),
			}
			files[rf.path] = rf
			bySource[ref] = rf
		}
		for _, loc := range p.Locales {
			root, _ := b.localeRoot(loc.Code, p.Root)
			pairs, err := p.Config.ResourcePairs(loc.Code)
			if err != nil {
				return nil, err
			}
			for _, pair := range pairs {
				if rf := bySource[pair.Reference]; rf != nil {
					rf.locales[loc.Code] = filepath.Join(root, filepath.FromSlash(pair.Localized))
				}
			}
		}
		return files, nil
	}

	rels, err := RelativeResourcePaths(p.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources in %s: %w", p.SourceDir, err)
	}
	dirs := make(map[string]string, len(p.Locales))
	for _, loc := range p.Locales {
		root, perLocale := b.localeRoot(loc.Code, p.Root)
		dirs[loc.Code] = LocaleDirectory(root, p.SourceDir, loc.Code, perLocale)
	}
	for _, rel := range rels {
		rf := &resourceFiles{
			path:       rel,
			sourcePath: SourcePathFor(p.SourceDir, rel),
			locales:    make(map[string]string, len(dirs)),
		}
		for code, dir := range dirs {
			rf.locales[code] = filepath.Join(dir, filepath.FromSlash(rel))
		}
		files[rel] = rf
	}
	return files, nil
}

// scope computes Project.Scope from the checkouts' changed files and the
// store's pending resources.
func (b *Builder) scope(ctx context.Context, p *Project, source Checkout, files map[string]*resourceFiles) error {
	if b.FullScan || len(p.AddedLocales) > 0 {
		return nil
	}

	index := make(map[string]string)
	for key, rf := range files {
		index[rf.sourcePath] = key
		for _, f := range rf.locales {
			index[f] = key
		}
	}

	scope := make(map[string]bool)
	for _, c := range b.Checkouts {
		changes := b.changedFiles(ctx, c)
		if changes == nil {
			return nil
		}
		for _, rel := range append(slices.Clone(changes.Modified), changes.Removed...) {
			if c.Role == store.RoleSource && b.ConfigFile != "" && rel == filepath.ToSlash(filepath.Clean(b.ConfigFile)) {
				return nil
			}
			abs := filepath.Join(c.Path, filepath.FromSlash(rel))
			if key, ok := index[abs]; ok {
				scope[key] = true
			}
		}
		if c.Role == store.RoleSource {
			for _, rel := range changes.Removed {
				if key, ok := removedSource(p, c.Path, rel); ok {
					scope[key] = true
					p.RemovedPaths = append(p.RemovedPaths, key)
				}
			}
		}
	}

	if b.Store != nil {
		pending, err := b.Store.PendingResources(ctx, b.ProjectID, b.Since)
		if err != nil {
			return fmt.Errorf("failed to load pending resources: %w", err)
		}
		for _, key := range pending {
			scope[key] = true
		}
	}

	slices.Sort(p.RemovedPaths)
	p.RemovedPaths = slices.Compact(p.RemovedPaths)
	p.Scope = scope
	return nil
}

// changedFiles returns the checkout's changes since its last revision, or
// nil when they are unknown.
func (b *Builder) changedFiles(ctx context.Context, c Checkout) *vcs.Changes {
	if b.Backends == nil || c.LastRevision == "" {
		return nil
	}
	backend, err := b.Backends(c.Type)
	if err != nil {
		return nil
	}
	changes, err := backend.ChangedFiles(ctx, c.Path, c.LastRevision)
	if err != nil {
		return nil
	}
	return changes
}

// removedSource maps a deleted file of the source checkout to the
// resource it was the source of.
func removedSource(p *Project, root, rel string) (string, bool) {
	if !formats.IsResource(rel) {
		return "", false
	}
	if p.Config != nil {
		for _, spec := range p.Config.Paths {
			if spec.Match(rel) {
				return formats.LocalePath(rel), true
			}
		}
		return "", false
	}
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if !vcs.IsSubPath(p.SourceDir, abs) {
		return "", false
	}
	r, err := filepath.Rel(p.SourceDir, abs)
	if err != nil {
		return "", false
	}
	return formats.LocalePath(filepath.ToSlash(r)), true
}

// parse parses the resources in scope in parallel.
func (b *Builder) parse(ctx context.Context, p *Project, files map[string]*resourceFiles, logger *log.Logger) error {
	cache := formats.NewCache()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if b.Workers > 0 {
		g.SetLimit(b.Workers)
	}

	for key, rf := range files {
		if p.Scope != nil && !p.Scope[key] {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, skipped := b.parseResource(p, cache, rf, logger)

			mu.Lock()
			defer mu.Unlock()
			p.SkippedResources = append(p.SkippedResources, skipped...)
			if res == nil {
				p.skipped[key] = true
				return nil
			}
			p.Resources[key] = res
			return nil
		})
	}
	return g.Wait()
}

// parseResource parses one resource's source and locale files. It returns
// nil when the source file fails to parse.
func (b *Builder) parseResource(p *Project, cache *formats.Cache, rf *resourceFiles, logger *log.Logger) (*Resource, []string) {
	var skipped []string
	src, err := formats.ParseWithCache(cache, rf.sourcePath, "", nil)
	if err != nil {
		logger.Printf("WARNING: skipping %s: %v", rf.path, err)
		return nil, append(skipped, b.displayPath(rf.sourcePath))
	}

	res := &Resource{
		Path:       rf.path,
		Format:     src.Format,
		SourcePath: rf.sourcePath,
		Source:     src,
		Locales:    make(map[string]*formats.Resource),
		Entities:   make(map[string]*Entity, len(src.Translations)),
	}
	for _, u := range src.Translations {
		res.Entities[u.Key] = newEntity(res, u)
	}

	for _, loc := range p.Locales {
		path, ok := rf.locales[loc.Code]
		if !ok {
			continue
		}
		lr, err := formats.ParseWithCache(cache, path, rf.sourcePath, loc)
		if err != nil {
			var perr *formats.ParseError
			if !errors.As(err, &perr) {
				perr = &formats.ParseError{Path: path, Err: err}
			}
			logger.Printf("WARNING: skipping %s for %s: %v", rf.path, loc.Code, perr)
			skipped = append(skipped, b.displayPath(path))
			continue
		}
		res.Locales[loc.Code] = lr
		for key, e := range res.Entities {
			if u := lr.Translation(key); u != nil {
				e.Translations[loc.Code] = u
			}
		}
	}
	return res, skipped
}

// displayPath renders path relative to the checkout containing it.
func (b *Builder) displayPath(path string) string {
	for _, c := range b.Checkouts {
		if vcs.IsSubPath(c.Path, path) {
			if rel, err := filepath.Rel(c.Path, path); err == nil {
				return filepath.ToSlash(rel)
			}
		}
	}
	return strings.TrimPrefix(filepath.ToSlash(path), "/")
}
