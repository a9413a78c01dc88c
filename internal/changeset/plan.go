package changeset

import (
	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/project"
	"github.com/steveyegge/locsync/internal/store"
)

// PlanEntities queues the entity-level writes for the resources in scope:
// source strings new to the store are created (or revived), changed ones
// updated and vanished ones obsoleted. A nil scope covers every resource.
// Resources whose source file failed to parse are left alone.
func PlanEntities(cs *ChangeSet, dbEntities []*store.Entity, vcsProject *project.Project, scope map[string]bool) {
	cs.Index(dbEntities)

	inScope := func(path string) bool {
		if vcsProject.SourceSkipped(path) {
			return false
		}
		return scope == nil || scope[path]
	}

	for _, db := range sortEntities(dbEntities) {
		if db.Obsolete || !inScope(db.ResourcePath) {
			continue
		}
		res := vcsProject.Resources[db.ResourcePath]
		if res == nil {
			cs.ObsoleteDBEntity(db)
			continue
		}
		if ve := res.Entities[db.Key]; ve != nil {
			cs.UpdateDBSourceEntity(db, ve)
		} else {
			cs.ObsoleteDBEntity(db)
		}
	}

	for _, res := range vcsProject.SortedResources() {
		if !inScope(res.Path) {
			continue
		}
		for _, ve := range res.SortedEntities() {
			if db := cs.known[entityKey{res.Path, ve.Key}]; db == nil || db.Obsolete {
				cs.CreateDBEntity(ve)
			}
		}
	}
}

// PlanTranslations queues one locale's translation writes. Entities with
// store-side changes since the last sync are pushed to the locale file;
// otherwise a translated locale unit is pulled into the store. Untranslated
// units never overwrite stored work.
func PlanTranslations(cs *ChangeSet, locale *l10n.Locale, dbEntities []*store.Entity, vcsProject *project.Project, changed map[int64]bool) {
	byKey := make(map[entityKey]*store.Entity, len(dbEntities))
	for _, db := range dbEntities {
		if !db.Obsolete {
			byKey[entityKey{db.ResourcePath, db.Key}] = db
		}
	}

	for _, res := range vcsProject.SortedResources() {
		if !vcsProject.InScope(res.Path) {
			continue
		}
		for _, ve := range res.SortedEntities() {
			db := byKey[entityKey{res.Path, ve.Key}]
			vt := ve.Translations[locale.Code]
			if db == nil || vt == nil {
				continue
			}
			switch {
			case changed[db.ID]:
				cs.UpdateVCSEntity(locale, db, ve)
			case !vt.HasTranslation():
			default:
				cs.UpdateDBEntity(locale, db, ve)
			}
		}
	}
}
