// Package store defines the persistent side of a sync pass: the records the
// changeset engine reads and writes, and the Store contract that keeps
// them.
//
// Every Store method is atomic on its own. The sync engine never relies on
// a transaction spanning two calls; Apply is the one write that carries a
// whole changeset and must commit all of it or none.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/vcs"
)

// LocalePlaceholder is replaced by a locale code in the URL of a
// per-locale repository.
const LocalePlaceholder = "{locale_code}"

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when creating a record whose unique key is
	// already taken.
	ErrExists = errors.New("already exists")
)

// Role tells whether a repository holds source strings or translations.
type Role string

const (
	RoleSource Role = "source"
	RoleTarget Role = "target"
)

// Project is a localization project.
type Project struct {
	ID   int64
	Slug string
	Name string

	// ConfigFile is the path of the project configuration inside the source
	// repository, or empty for directory-convention discovery.
	ConfigFile string

	// Permalink is the URL prefix remote configuration files are fetched
	// from.
	Permalink string

	// LastSyncedAt is the logical timestamp of the last pass that changed
	// something. Store-side edits after it are pushed to files.
	LastSyncedAt time.Time
}

// Repository is one VCS repository of a project.
type Repository struct {
	ID        int64
	ProjectID int64
	Type      vcs.Type
	Role      Role
	URL       string
	Branch    string

	// Permalink overrides Project.Permalink for this repository.
	Permalink string

	// CheckoutPath is the working copy directory. Empty means a directory
	// derived from the project slug under the configured checkouts root.
	CheckoutPath string
}

// MultiLocale reports whether the repository has one URL per locale.
func (r *Repository) MultiLocale() bool {
	return strings.Contains(r.URL, LocalePlaceholder)
}

// URLFor returns the repository URL for a locale.
func (r *Repository) URLFor(code string) string {
	return strings.ReplaceAll(r.URL, LocalePlaceholder, code)
}

// Resource is a localization file known to the store, by path relative to
// the locale directory.
type Resource struct {
	ID           int64
	ProjectID    int64
	Path         string
	Format       formats.Format
	TotalStrings int
}

// Entity is the durable record of one source string of a resource.
type Entity struct {
	ID         int64
	ResourceID int64

	// ResourcePath identifies the resource for entities not yet stored;
	// Apply creates the resource on demand.
	ResourcePath string

	Key          string
	Context      string
	String       string
	StringPlural string

	Comments         []string
	GroupComments    []string
	ResourceComments []string
	Source           []string

	Order    int
	Obsolete bool

	DateCreated time.Time

	// Translations holds the entity's translations in the locale it was
	// loaded for.
	Translations []*Translation
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Comments = slices.Clone(e.Comments)
	c.GroupComments = slices.Clone(e.GroupComments)
	c.ResourceComments = slices.Clone(e.ResourceComments)
	c.Source = slices.Clone(e.Source)
	c.Translations = make([]*Translation, len(e.Translations))
	for i, t := range e.Translations {
		c.Translations[i] = t.Clone()
	}
	return &c
}

// Translation is one locale's rendering of one plural form of an entity.
type Translation struct {
	ID       int64
	EntityID int64
	Locale   string

	// PluralForm is l10n.NoPlural for entities without plurals.
	PluralForm int
	String     string

	Approved bool
	Fuzzy    bool
	Rejected bool

	Date           time.Time
	ApprovedDate   time.Time
	RejectedDate   time.Time
	UnapprovedDate time.Time

	// User is the translator, or nil for translations made by the sync
	// process.
	User *User
}

// Active reports whether the translation is the one files should carry.
func (t *Translation) Active() bool {
	return t.Approved || t.Fuzzy
}

// Clone returns a copy of t. The user is shared.
func (t *Translation) Clone() *Translation {
	c := *t
	return &c
}

// User is a translator.
type User struct {
	ID    int64
	Name  string
	Email string
}

// Signature renders the user as "Name <email>" for commit authorship.
func (u *User) Signature() string {
	name := u.Name
	if name == "" {
		name, _, _ = strings.Cut(u.Email, "@")
	}
	return fmt.Sprintf("%s <%s>", name, u.Email)
}

// SyncLog records one sync pass that did something.
type SyncLog struct {
	ID               string
	ProjectID        int64
	StartedAt        time.Time
	FinishedAt       time.Time
	SkippedResources []string
	FailedLocales    map[string]string
	Summary          string
}

// ChangeBatch is the set of writes one changeset executes. Apply commits
// it atomically.
type ChangeBatch struct {
	ProjectID int64

	// CreateEntities are inserted and receive their IDs.
	CreateEntities []*Entity

	// UpdateEntities overwrite stored entities by ID, including the
	// Obsolete flag.
	UpdateEntities []*Entity

	// CreateTranslations are inserted and receive their IDs.
	CreateTranslations []*Translation

	// UpdateTranslations overwrite stored translations by ID.
	UpdateTranslations []*Translation
}

// Len returns the number of records in the batch.
func (b *ChangeBatch) Len() int {
	return len(b.CreateEntities) + len(b.UpdateEntities) + len(b.CreateTranslations) + len(b.UpdateTranslations)
}

// Empty reports whether the batch writes nothing.
func (b *ChangeBatch) Empty() bool {
	return b.Len() == 0
}

// Store is the persistent-store contract of the sync engine.
type Store interface {
	// Project returns the project with the given slug, or ErrNotFound.
	Project(ctx context.Context, slug string) (*Project, error)

	// Projects returns every project, ordered by slug.
	Projects(ctx context.Context) ([]*Project, error)

	// Repositories returns the project's repositories, source first.
	Repositories(ctx context.Context, projectID int64) ([]*Repository, error)

	// Locales returns the locales enabled for the project, ordered by code.
	Locales(ctx context.Context, projectID int64) ([]*l10n.Locale, error)

	// Resources returns the project's resources, ordered by path.
	Resources(ctx context.Context, projectID int64) ([]*Resource, error)

	// Entities returns every entity of the project, obsolete ones
	// included, with their translations in locale. An empty locale loads
	// no translations.
	Entities(ctx context.Context, projectID int64, locale string) ([]*Entity, error)

	// ChangedEntities returns the IDs of entities whose translations in
	// locale were created, approved, rejected or unapproved after since.
	ChangedEntities(ctx context.Context, projectID int64, locale string, since time.Time) (map[int64]bool, error)

	// PendingResources returns resource paths with store-side changes after
	// since: resources with changed translations, or every resource when a
	// locale was enabled after since.
	PendingResources(ctx context.Context, projectID int64, since time.Time) ([]string, error)

	// LastSyncedRevision returns the revision recorded for a repository and
	// locale ("" for single-URL repositories), or "" when none is.
	LastSyncedRevision(ctx context.Context, repoID int64, locale string) (string, error)

	// SyncLogs returns the most recent sync logs of a project, newest first.
	SyncLogs(ctx context.Context, projectID int64, limit int) ([]*SyncLog, error)

	// Apply writes a changeset atomically.
	Apply(ctx context.Context, batch *ChangeBatch) error

	RecordSyncedRevision(ctx context.Context, repoID int64, locale, revision string) error
	SetLastSynced(ctx context.Context, projectID int64, at time.Time) error

	// UpsertResources creates or updates resources by (project, path).
	UpsertResources(ctx context.Context, projectID int64, resources []*Resource) error

	// EnableLocale enables a locale for a project, creating the locale
	// record when it is unknown.
	EnableLocale(ctx context.Context, projectID int64, code string, at time.Time) error

	RecordSyncLog(ctx context.Context, log *SyncLog) error

	CreateProject(ctx context.Context, p *Project) error
	CreateRepository(ctx context.Context, r *Repository) error
	CreateLocale(ctx context.Context, l *l10n.Locale) error
	CreateUser(ctx context.Context, u *User) error

	Close() error
}

// Validate checks a repository before it is stored.
func (r *Repository) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("repository url is required")
	}
	if _, err := vcs.ParseType(string(r.Type)); err != nil {
		return err
	}
	if r.Role != RoleSource && r.Role != RoleTarget {
		return fmt.Errorf("repository role must be %q or %q, got %q", RoleSource, RoleTarget, r.Role)
	}
	return nil
}
