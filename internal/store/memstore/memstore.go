// Package memstore is an in-memory store.Store. It backs engine tests and
// dry runs, and counts writes so callers can assert a pass wrote nothing.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/store"
)

type revisionKey struct {
	repoID int64
	locale string
}

type projectLocale struct {
	code      string
	enabledAt time.Time
}

// Store is an in-memory store.Store. Records are copied on the way in and
// out, so callers never share memory with it.
type Store struct {
	mu     sync.Mutex
	nextID int64
	writes int

	projects     map[int64]*store.Project
	repositories map[int64]*store.Repository
	locales      map[string]*l10n.Locale
	enabled      map[int64][]projectLocale
	resources    map[int64]*store.Resource
	entities     map[int64]*store.Entity
	translations map[int64]*store.Translation
	users        map[int64]*store.User
	revisions    map[revisionKey]string
	logs         []*store.SyncLog
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		projects:     make(map[int64]*store.Project),
		repositories: make(map[int64]*store.Repository),
		locales:      make(map[string]*l10n.Locale),
		enabled:      make(map[int64][]projectLocale),
		resources:    make(map[int64]*store.Resource),
		entities:     make(map[int64]*store.Entity),
		translations: make(map[int64]*store.Translation),
		users:        make(map[int64]*store.User),
		revisions:    make(map[revisionKey]string),
	}
}

// Writes returns the number of mutating calls made so far.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) Project(ctx context.Context, slug string) (*store.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.Slug == slug {
			c := *p
			return &c, nil
		}
	}
	return nil, fmt.Errorf("project %q: %w", slug, store.ErrNotFound)
}

func (s *Store) Projects(ctx context.Context) ([]*store.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Project
	for _, p := range s.projects {
		c := *p
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *store.Project) int { return cmp.Compare(a.Slug, b.Slug) })
	return out, nil
}

func (s *Store) Repositories(ctx context.Context, projectID int64) ([]*store.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Repository
	for _, r := range s.repositories {
		if r.ProjectID == projectID {
			c := *r
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, compareRepositories)
	return out, nil
}

// compareRepositories puts source repositories first, then orders by ID.
func compareRepositories(a, b *store.Repository) int {
	if (a.Role == store.RoleSource) != (b.Role == store.RoleSource) {
		if a.Role == store.RoleSource {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.ID, b.ID)
}

func (s *Store) Locales(ctx context.Context, projectID int64) ([]*l10n.Locale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*l10n.Locale
	for _, pl := range s.enabled[projectID] {
		if l, ok := s.locales[pl.code]; ok {
			c := *l
			c.CLDRPlurals = slices.Clone(l.CLDRPlurals)
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *l10n.Locale) int { return cmp.Compare(a.Code, b.Code) })
	return out, nil
}

func (s *Store) Resources(ctx context.Context, projectID int64) ([]*store.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Resource
	for _, r := range s.resources {
		if r.ProjectID == projectID {
			c := *r
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *store.Resource) int { return cmp.Compare(a.Path, b.Path) })
	return out, nil
}

func (s *Store) Entities(ctx context.Context, projectID int64, locale string) ([]*store.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*store.Entity
	for _, e := range s.entities {
		res := s.resources[e.ResourceID]
		if res == nil || res.ProjectID != projectID {
			continue
		}
		c := e.Clone()
		c.ResourcePath = res.Path
		c.Translations = nil
		if locale != "" {
			for _, t := range s.translations {
				if t.EntityID == e.ID && t.Locale == locale {
					c.Translations = append(c.Translations, t.Clone())
				}
			}
			slices.SortFunc(c.Translations, func(a, b *store.Translation) int { return cmp.Compare(a.ID, b.ID) })
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *store.Entity) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func changedAfter(t *store.Translation, since time.Time) bool {
	for _, d := range []time.Time{t.Date, t.ApprovedDate, t.RejectedDate, t.UnapprovedDate} {
		if d.After(since) {
			return true
		}
	}
	return false
}

func (s *Store) ChangedEntities(ctx context.Context, projectID int64, locale string, since time.Time) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]bool)
	for _, t := range s.translations {
		if t.Locale != locale || !changedAfter(t, since) {
			continue
		}
		if e := s.entities[t.EntityID]; e != nil {
			if res := s.resources[e.ResourceID]; res != nil && res.ProjectID == projectID {
				out[e.ID] = true
			}
		}
	}
	return out, nil
}

func (s *Store) PendingResources(ctx context.Context, projectID int64, since time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := false
	for _, pl := range s.enabled[projectID] {
		if pl.enabledAt.After(since) {
			all = true
		}
	}

	paths := make(map[string]bool)
	for _, res := range s.resources {
		if res.ProjectID == projectID && all {
			paths[res.Path] = true
		}
	}
	if !all {
		for _, t := range s.translations {
			if !changedAfter(t, since) {
				continue
			}
			if e := s.entities[t.EntityID]; e != nil {
				if res := s.resources[e.ResourceID]; res != nil && res.ProjectID == projectID {
					paths[res.Path] = true
				}
			}
		}
	}
	return slices.Sorted(maps.Keys(paths)), nil
}

func (s *Store) LastSyncedRevision(ctx context.Context, repoID int64, locale string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revisions[revisionKey{repoID, locale}], nil
}

func (s *Store) SyncLogs(ctx context.Context, projectID int64, limit int) ([]*store.SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.SyncLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].ProjectID != projectID {
			continue
		}
		c := *s.logs[i]
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Apply writes the batch. Every referenced record is checked before the
// first write, so a failing batch leaves the store untouched.
func (s *Store) Apply(ctx context.Context, batch *store.ChangeBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range batch.UpdateEntities {
		if s.entities[e.ID] == nil {
			return fmt.Errorf("update entity %d: %w", e.ID, store.ErrNotFound)
		}
	}
	for _, t := range batch.UpdateTranslations {
		if s.translations[t.ID] == nil {
			return fmt.Errorf("update translation %d: %w", t.ID, store.ErrNotFound)
		}
	}
	for _, t := range batch.CreateTranslations {
		if s.entities[t.EntityID] == nil {
			return fmt.Errorf("create translation for entity %d: %w", t.EntityID, store.ErrNotFound)
		}
	}
	if batch.Empty() {
		return nil
	}
	s.writes++

	for _, e := range batch.CreateEntities {
		if e.ResourceID == 0 {
			e.ResourceID = s.resourceID(batch.ProjectID, e.ResourcePath)
		}
		e.ID = s.id()
		c := e.Clone()
		c.Translations = nil
		s.entities[e.ID] = c
	}
	for _, e := range batch.UpdateEntities {
		c := e.Clone()
		c.Translations = nil
		c.ResourceID = s.entities[e.ID].ResourceID
		s.entities[e.ID] = c
	}
	for _, t := range batch.CreateTranslations {
		t.ID = s.id()
		s.translations[t.ID] = t.Clone()
	}
	for _, t := range batch.UpdateTranslations {
		s.translations[t.ID] = t.Clone()
	}
	return nil
}

// resourceID returns the ID of the resource at path, creating it.
func (s *Store) resourceID(projectID int64, path string) int64 {
	for _, r := range s.resources {
		if r.ProjectID == projectID && r.Path == path {
			return r.ID
		}
	}
	r := &store.Resource{ID: s.id(), ProjectID: projectID, Path: path}
	s.resources[r.ID] = r
	return r.ID
}

func (s *Store) RecordSyncedRevision(ctx context.Context, repoID int64, locale, revision string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.revisions[revisionKey{repoID, locale}] = revision
	return nil
}

func (s *Store) SetLastSynced(ctx context.Context, projectID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.projects[projectID]
	if p == nil {
		return fmt.Errorf("project %d: %w", projectID, store.ErrNotFound)
	}
	s.writes++
	p.LastSyncedAt = at
	return nil
}

func (s *Store) UpsertResources(ctx context.Context, projectID int64, resources []*store.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(resources) == 0 {
		return nil
	}
	s.writes++
	for _, r := range resources {
		id := s.resourceID(projectID, r.Path)
		stored := s.resources[id]
		stored.Format = r.Format
		stored.TotalStrings = r.TotalStrings
		r.ID = id
		r.ProjectID = projectID
	}
	return nil
}

func (s *Store) EnableLocale(ctx context.Context, projectID int64, code string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pl := range s.enabled[projectID] {
		if pl.code == code {
			return nil
		}
	}
	s.writes++
	if _, ok := s.locales[code]; !ok {
		s.locales[code] = l10n.NewLocale(code, code)
	}
	s.enabled[projectID] = append(s.enabled[projectID], projectLocale{code: code, enabledAt: at})
	return nil
}

func (s *Store) RecordSyncLog(ctx context.Context, log *store.SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	c := *log
	c.SkippedResources = slices.Clone(log.SkippedResources)
	c.FailedLocales = maps.Clone(log.FailedLocales)
	s.logs = append(s.logs, &c)
	return nil
}

func (s *Store) CreateProject(ctx context.Context, p *store.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.projects {
		if existing.Slug == p.Slug {
			return fmt.Errorf("project %q: %w", p.Slug, store.ErrExists)
		}
	}
	s.writes++
	p.ID = s.id()
	c := *p
	s.projects[p.ID] = &c
	return nil
}

func (s *Store) CreateRepository(ctx context.Context, r *store.Repository) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projects[r.ProjectID] == nil {
		return fmt.Errorf("project %d: %w", r.ProjectID, store.ErrNotFound)
	}
	s.writes++
	r.ID = s.id()
	c := *r
	s.repositories[r.ID] = &c
	return nil
}

func (s *Store) CreateLocale(ctx context.Context, l *l10n.Locale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locales[l.Code]; ok {
		return fmt.Errorf("locale %q: %w", l.Code, store.ErrExists)
	}
	s.writes++
	c := *l
	c.CLDRPlurals = slices.Clone(l.CLDRPlurals)
	s.locales[l.Code] = &c
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	u.ID = s.id()
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *Store) Close() error { return nil }

// Translations returns every stored translation of an entity in a locale,
// ordered by ID. It is an inspection helper for tests.
func (s *Store) Translations(entityID int64, locale string) []*store.Translation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Translation
	for _, t := range s.translations {
		if t.EntityID == entityID && t.Locale == locale {
			out = append(out, t.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *store.Translation) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
