// Package project builds the in-memory model of a localization project
// from its checkouts: which directory holds the source strings, which
// resource files exist, and what every locale's files say about each
// source string.
//
// The model is computed once per sync pass and is read-only afterwards,
// except for the per-locale translations that the changeset for that
// locale writes into before saving.
package project

import (
	"cmp"
	"maps"
	"slices"

	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/project/l10nconfig"
)

// Project is the in-memory model of one project's checkouts.
type Project struct {
	// Root is the source checkout.
	Root string

	// SourceDir is the detected source directory. It is empty in
	// configuration mode.
	SourceDir string

	// Config is the project configuration, or nil in directory mode.
	Config *l10nconfig.Config

	Locales []*l10n.Locale

	// Resources holds the parsed resources by relative path.
	Resources map[string]*Resource

	// SkippedResources lists files that failed to parse, relative to their
	// checkout.
	SkippedResources []string

	// Scope holds the resource paths that may have changed. Nil means
	// every resource.
	Scope map[string]bool

	// RemovedPaths lists resources whose source file was deleted.
	RemovedPaths []string

	// AddedLocales lists locales declared by the configuration that were
	// not enabled for the project.
	AddedLocales []string

	skipped map[string]bool
}

// InScope reports whether path should be reconciled in this pass: it is
// in the change scope and its source file did not fail to parse.
func (p *Project) InScope(path string) bool {
	if p.skipped[path] {
		return false
	}
	return p.Scope == nil || p.Scope[path]
}

// SourceSkipped reports whether the source file of path failed to parse.
func (p *Project) SourceSkipped(path string) bool {
	return p.skipped[path]
}

// SortedResources returns the resources ordered by path.
func (p *Project) SortedResources() []*Resource {
	out := slices.Collect(maps.Values(p.Resources))
	slices.SortFunc(out, func(a, b *Resource) int { return cmp.Compare(a.Path, b.Path) })
	return out
}

// Locale returns the locale with the given code, or nil.
func (p *Project) Locale(code string) *l10n.Locale {
	for _, l := range p.Locales {
		if l.Code == code {
			return l
		}
	}
	return nil
}

// Resource is one resource of the project across all locales.
type Resource struct {
	// Path is the resource path relative to the source directory, or to
	// the checkout in configuration mode, with template extensions
	// mapped to locale ones.
	Path   string
	Format formats.Format

	// SourcePath is the absolute path of the source file.
	SourcePath string

	Source *formats.Resource

	// Locales holds each locale's parsed file by locale code. A locale is
	// missing when its file failed to parse or the configuration excludes
	// it.
	Locales map[string]*formats.Resource

	// Entities holds the source strings by key.
	Entities map[string]*Entity
}

// SortedEntities returns the entities in source order.
func (r *Resource) SortedEntities() []*Entity {
	out := slices.Collect(maps.Values(r.Entities))
	slices.SortFunc(out, func(a, b *Entity) int { return cmp.Compare(a.Order, b.Order) })
	return out
}

// Entity is one source string and its translations.
type Entity struct {
	Resource *Resource

	Key          string
	Context      string
	String       string
	StringPlural string

	Comments         []string
	GroupComments    []string
	ResourceComments []string
	Source           []string

	Order int

	// Translations holds the unit of each locale file, by locale code.
	// Units are shared with Resource.Locales, so changing one changes
	// what the locale file is saved with.
	Translations map[string]*l10n.VCSTranslation
}

// HasTranslationFor reports whether the locale's file carries a unit for
// the entity, translated or not.
func (e *Entity) HasTranslationFor(code string) bool {
	return e.Translations[code] != nil
}

// newEntity builds an entity from a source unit.
func newEntity(res *Resource, u *l10n.VCSTranslation) *Entity {
	e := &Entity{
		Resource:         res,
		Key:              u.Key,
		Context:          u.Context,
		String:           u.SourceString,
		StringPlural:     u.SourceStringPlural,
		Comments:         slices.Clone(u.Comments),
		GroupComments:    slices.Clone(u.GroupComments),
		ResourceComments: slices.Clone(u.ResourceComments),
		Source:           slices.Clone(u.Source),
		Order:            u.Order,
		Translations:     make(map[string]*l10n.VCSTranslation),
	}
	if e.String == "" {
		e.String = u.Text(l10n.NoPlural)
	}
	// Monolingual plural units keep their source text in plural forms.
	if forms := u.SortedForms(); e.String == "" && len(forms) > 0 {
		e.String = u.Text(forms[0])
		if e.StringPlural == "" && len(forms) > 1 {
			e.StringPlural = u.Text(forms[len(forms)-1])
		}
	}
	return e
}
