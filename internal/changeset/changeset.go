// Package changeset reconciles the in-memory project model with the store.
//
// A ChangeSet accumulates the writes of one reconciliation step: either the
// entity-level step, which keeps store entities in line with source
// strings, or one locale's step, which moves translations between the
// locale files and the store. Nothing is written until Execute, which sends
// every queued store write in one atomic batch and then saves the locale
// files the step changed.
//
// A ChangeSet is used once:
//
//	cs := changeset.New(dbProject, vcsProject, now, locale)
//	changeset.PlanTranslations(cs, locale, entities, vcsProject, changed)
//	result, err := cs.Execute(ctx, st)
package changeset

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/project"
	"github.com/steveyegge/locsync/internal/store"
)

// ErrReused is the panic value of a second Execute.
var ErrReused = errors.New("changeset: executed twice")

// Result summarizes an executed changeset.
type Result struct {
	// Entity-level counts.
	Created   int
	Revived   int
	Updated   int
	Obsoleted int

	TranslationsCreated int
	TranslationsUpdated int

	// Pulled counts entities whose store translations changed to match
	// the locale file; Pushed counts entities whose locale unit changed to
	// match the store.
	Pulled int
	Pushed int

	// ChangedResources lists the saved locale files by resource path.
	ChangedResources []string

	// SaveErrors holds the resources that failed to save.
	SaveErrors map[string]error
}

// Changed reports whether executing wrote anything.
func (r *Result) Changed() bool {
	return r.Created+r.Revived+r.Updated+r.Obsoleted+r.TranslationsCreated+r.TranslationsUpdated > 0 ||
		len(r.ChangedResources) > 0
}

type entityKey struct {
	path string
	key  string
}

// ChangeSet accumulates the writes of one reconciliation step.
type ChangeSet struct {
	project *store.Project
	vcs     *project.Project
	now     time.Time
	locale  *l10n.Locale

	// SaveLock, when set, is held while locale files are written.
	SaveLock sync.Locker
	Logger   *log.Logger

	batch   store.ChangeBatch
	known   map[entityKey]*store.Entity
	queued  map[*store.Translation]bool
	changed map[string]bool
	authors map[string][]*store.User
	result  Result

	executed bool
}

// New returns an empty changeset. A nil locale makes the entity-level
// changeset, which never writes files.
func New(p *store.Project, vcsProject *project.Project, now time.Time, locale *l10n.Locale) *ChangeSet {
	return &ChangeSet{
		project: p,
		vcs:     vcsProject,
		now:     now,
		locale:  locale,
		batch:   store.ChangeBatch{ProjectID: p.ID},
		known:   make(map[entityKey]*store.Entity),
		queued:  make(map[*store.Translation]bool),
		changed: make(map[string]bool),
		authors: make(map[string][]*store.User),
	}
}

// Index registers the stored entities of the project so CreateDBEntity can
// revive obsolete ones instead of duplicating them.
func (cs *ChangeSet) Index(entities []*store.Entity) {
	for _, e := range entities {
		cs.known[entityKey{e.ResourcePath, e.Key}] = e
	}
}

// Planned returns the counts of the queued writes without executing them.
func (cs *ChangeSet) Planned() Result {
	r := cs.result
	r.ChangedResources = slices.Sorted(maps.Keys(cs.changed))
	return r
}

// Len returns the number of queued store writes.
func (cs *ChangeSet) Len() int {
	return cs.batch.Len()
}

// CreateDBEntity queues the insertion of a source string. An obsolete
// stored entity with the same resource and key is revived instead.
func (cs *ChangeSet) CreateDBEntity(ve *project.Entity) {
	if db := cs.known[entityKey{ve.Resource.Path, ve.Key}]; db != nil && db.Obsolete {
		e := db.Clone()
		copySource(e, ve)
		e.Obsolete = false
		e.Translations = nil
		cs.batch.UpdateEntities = append(cs.batch.UpdateEntities, e)
		cs.result.Revived++
		return
	}

	e := &store.Entity{
		ResourcePath: ve.Resource.Path,
		Key:          ve.Key,
		DateCreated:  cs.now,
	}
	copySource(e, ve)
	cs.batch.CreateEntities = append(cs.batch.CreateEntities, e)
	cs.result.Created++
}

// UpdateDBSourceEntity queues an update of a stored entity whose source
// string metadata differs from the file.
func (cs *ChangeSet) UpdateDBSourceEntity(db *store.Entity, ve *project.Entity) {
	if sameSource(db, ve) {
		return
	}
	e := db.Clone()
	copySource(e, ve)
	e.Translations = nil
	cs.batch.UpdateEntities = append(cs.batch.UpdateEntities, e)
	cs.result.Updated++
}

// ObsoleteDBEntity queues marking a stored entity obsolete. Its
// translations are kept.
func (cs *ChangeSet) ObsoleteDBEntity(db *store.Entity) {
	if db.Obsolete {
		return
	}
	e := db.Clone()
	e.Obsolete = true
	e.Translations = nil
	cs.batch.UpdateEntities = append(cs.batch.UpdateEntities, e)
	cs.result.Obsoleted++
}

func copySource(e *store.Entity, ve *project.Entity) {
	e.Context = ve.Context
	e.String = ve.String
	e.StringPlural = ve.StringPlural
	e.Comments = slices.Clone(ve.Comments)
	e.GroupComments = slices.Clone(ve.GroupComments)
	e.ResourceComments = slices.Clone(ve.ResourceComments)
	e.Source = slices.Clone(ve.Source)
	e.Order = ve.Order
}

func sameSource(e *store.Entity, ve *project.Entity) bool {
	return e.Context == ve.Context &&
		e.String == ve.String &&
		e.StringPlural == ve.StringPlural &&
		e.Order == ve.Order &&
		slices.Equal(e.Comments, ve.Comments) &&
		slices.Equal(e.GroupComments, ve.GroupComments) &&
		slices.Equal(e.ResourceComments, ve.ResourceComments) &&
		slices.Equal(e.Source, ve.Source)
}

// UpdateDBEntity moves the locale file's translation of an entity into the
// store. Each populated plural form either confirms a stored translation
// with the same text or creates one; every other active translation in the
// locale is rejected. Unreviewed suggestions are left alone.
func (cs *ChangeSet) UpdateDBEntity(locale *l10n.Locale, db *store.Entity, ve *project.Entity) {
	vt := ve.Translations[locale.Code]
	if vt == nil {
		return
	}
	approve := !vt.Fuzzy
	matched := make(map[*store.Translation]bool)
	dirty := false

	for _, form := range vt.SortedForms() {
		text := vt.Text(form)
		i := slices.IndexFunc(db.Translations, func(t *store.Translation) bool {
			return t.Locale == locale.Code && t.PluralForm == form && t.String == text
		})
		if i < 0 {
			t := &store.Translation{
				EntityID:   db.ID,
				Locale:     locale.Code,
				PluralForm: form,
				String:     text,
				Approved:   approve,
				Fuzzy:      vt.Fuzzy,
				Date:       cs.now,
			}
			if approve {
				t.ApprovedDate = cs.now
			}
			cs.batch.CreateTranslations = append(cs.batch.CreateTranslations, t)
			cs.result.TranslationsCreated++
			dirty = true
			continue
		}

		t := db.Translations[i]
		matched[t] = true
		changed := false
		if approve && !t.Approved {
			t.Approved = true
			t.ApprovedDate = cs.now
			changed = true
		} else if !approve && t.Approved {
			t.Approved = false
			t.UnapprovedDate = cs.now
			changed = true
		}
		if t.Fuzzy != vt.Fuzzy {
			t.Fuzzy = vt.Fuzzy
			changed = true
		}
		if t.Rejected {
			t.Rejected = false
			changed = true
		}
		if changed {
			cs.updateTranslation(t)
			dirty = true
		}
	}

	for _, t := range db.Translations {
		if t.Locale != locale.Code || matched[t] || !t.Active() {
			continue
		}
		t.Approved = false
		t.Fuzzy = false
		t.Rejected = true
		t.RejectedDate = cs.now
		t.UnapprovedDate = cs.now
		cs.updateTranslation(t)
		dirty = true
	}

	if dirty {
		cs.result.Pulled++
	}
}

func (cs *ChangeSet) updateTranslation(t *store.Translation) {
	if cs.queued[t] {
		return
	}
	cs.queued[t] = true
	cs.batch.UpdateTranslations = append(cs.batch.UpdateTranslations, t)
	cs.result.TranslationsUpdated++
}

// UpdateVCSEntity writes the store's active translations of an entity into
// the locale file's unit. Approved translations win; an entity with only
// fuzzy translations is written fuzzy. The resource is saved on Execute
// when the unit changed.
func (cs *ChangeSet) UpdateVCSEntity(locale *l10n.Locale, db *store.Entity, ve *project.Entity) {
	vt := ve.Translations[locale.Code]
	if vt == nil {
		return
	}

	var approved, fuzzy []*store.Translation
	for _, t := range db.Translations {
		switch {
		case t.Locale != locale.Code:
		case t.Approved:
			approved = append(approved, t)
		case t.Fuzzy:
			fuzzy = append(fuzzy, t)
		}
	}
	active, isFuzzy := approved, false
	if len(approved) == 0 {
		active, isFuzzy = fuzzy, len(fuzzy) > 0
	}
	slices.SortStableFunc(active, func(a, b *store.Translation) int { return a.Date.Compare(b.Date) })

	next := vt.Clone()
	next.Strings = make(map[int]string)
	next.Fuzzy = isFuzzy
	var latest *store.Translation
	for _, t := range active {
		// The newest translation of a form wins.
		next.SetText(t.PluralForm, t.String)
		if latest == nil || !t.Date.Before(latest.Date) {
			latest = t
		}
	}

	if next.Equal(vt) && next.Fuzzy == vt.Fuzzy {
		return
	}

	vt.Strings = next.Strings
	vt.Fuzzy = next.Fuzzy
	if latest != nil {
		vt.LastUpdated = latest.Date
		if latest.User != nil {
			vt.LastTranslator = latest.User.Signature()
		}
	}
	cs.changed[ve.Resource.Path] = true
	cs.result.Pushed++

	for _, t := range approved {
		if t.User != nil {
			cs.authors[locale.Code] = append(cs.authors[locale.Code], t.User)
		}
	}
}

// CommitAuthors returns the users whose approved translations were pushed
// to the locale's files, in order of first contribution and without
// duplicates.
func (cs *ChangeSet) CommitAuthors(code string) []*store.User {
	var out []*store.User
	seen := make(map[string]bool)
	for _, u := range cs.authors[code] {
		id := u.Email
		if u.ID != 0 {
			id = fmt.Sprint(u.ID)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, u)
	}
	return out
}

// Contributions returns every pushed approved translation's user for the
// locale, duplicates included.
func (cs *ChangeSet) Contributions(code string) []*store.User {
	return slices.Clone(cs.authors[code])
}

// Execute writes the changeset: the queued store writes in one atomic
// Apply, then the changed locale files. A cancelled context writes
// nothing. Execute panics with ErrReused when called twice.
func (cs *ChangeSet) Execute(ctx context.Context, st store.Store) (*Result, error) {
	if cs.executed {
		panic(ErrReused)
	}
	cs.executed = true

	logger := cs.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[changeset] ", log.LstdFlags)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !cs.batch.Empty() {
		if err := st.Apply(ctx, &cs.batch); err != nil {
			return nil, fmt.Errorf("failed to apply changeset: %w", err)
		}
	}

	result := cs.result
	if cs.locale == nil || len(cs.changed) == 0 {
		return &result, nil
	}

	if cs.SaveLock != nil {
		cs.SaveLock.Lock()
		defer cs.SaveLock.Unlock()
	}
	paths := slices.Sorted(maps.Keys(cs.changed))
	for _, path := range paths {
		res := cs.vcs.Resources[path]
		if res == nil {
			continue
		}
		lr := res.Locales[cs.locale.Code]
		if lr == nil {
			continue
		}
		if err := lr.Save(cs.locale); err != nil {
			logger.Printf("WARNING: failed to save %s for %s: %v", path, cs.locale.Code, err)
			if result.SaveErrors == nil {
				result.SaveErrors = make(map[string]error)
			}
			result.SaveErrors[path] = err
			continue
		}
		result.ChangedResources = append(result.ChangedResources, path)
	}
	return &result, nil
}

// sortEntities orders stored entities by resource path, then key.
func sortEntities(entities []*store.Entity) []*store.Entity {
	out := slices.Clone(entities)
	slices.SortFunc(out, func(a, b *store.Entity) int {
		return cmp.Or(cmp.Compare(a.ResourcePath, b.ResourcePath), cmp.Compare(a.Key, b.Key))
	})
	return out
}
