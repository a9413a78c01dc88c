package project

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/vcs"
)

// sourceCandidates are directory names that may hold source strings, with
// their base scores.
var sourceCandidates = []struct {
	name  string
	score int
}{
	{"templates", 3},
	{"en-US", 2},
	{"en-us", 2},
	{"en_US", 2},
	{"en_us", 2},
	{"en", 1},
}

func candidateList() string {
	names := make([]string, len(sourceCandidates))
	for i, c := range sourceCandidates {
		names[i] = c.name
	}
	return strings.Join(names, ", ")
}

func baseScore(name string) (int, bool) {
	for _, c := range sourceCandidates {
		if c.name == name {
			return c.score, true
		}
	}
	return 0, false
}

// skipDir reports whether a walk should not descend into a directory.
func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}

// DetectSourceDirectory finds the directory holding source strings in a
// checkout. Directories with a conventional name score by that name, one
// more when they contain resource files and three more when every one of
// them is a template. A candidate without resource files does not qualify. Ties go
// to the directory found first in lexical walk order.
func DetectSourceDirectory(root string) (string, error) {
	best, bestScore := "", 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		score, ok := baseScore(d.Name())
		if !ok {
			return nil
		}
		hasResource, onlyTemplates := scanResources(path)
		if !hasResource {
			return nil
		}
		score++
		if onlyTemplates {
			score += 3
		}
		if score > bestScore {
			best, bestScore = path, score
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if best == "" {
		return "", &MissingSourceDirectoryError{Root: root}
	}
	return best, nil
}

// scanResources reports whether dir contains resource files, and whether
// all of them are templates.
func scanResources(dir string) (hasResource, onlyTemplates bool) {
	onlyTemplates = true
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if formats.IsResource(path) {
			hasResource = true
			if !formats.IsTemplate(path) {
				onlyTemplates = false
				return filepath.SkipAll
			}
		}
		return nil
	})
	return hasResource, hasResource && onlyTemplates
}

// RelativeResourcePaths lists the resource files under sourceDir as
// slash-separated paths relative to it, sorted. Template files are listed
// under their locale name ("app.pot" as "app.po").
func RelativeResourcePaths(sourceDir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != sourceDir && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !formats.IsResource(path) {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		paths = append(paths, formats.LocalePath(filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	return slices.Compact(paths), nil
}

// SourcePathFor returns the source file for relative resource path rel,
// preferring a template when one exists.
func SourcePathFor(sourceDir, rel string) string {
	plain := filepath.Join(sourceDir, filepath.FromSlash(rel))
	ext := filepath.Ext(rel)
	for _, f := range formats.RegisteredFormats() {
		codec, _ := formats.Lookup(f)
		sem := codec.Semantics()
		if sem.TemplateExtension == "" || sem.LocaleExtension != ext {
			continue
		}
		template := strings.TrimSuffix(plain, ext) + sem.TemplateExtension
		if fileExists(template) {
			return template
		}
	}
	return plain
}

// LocaleDirectory returns the directory holding the files of locale code.
//
// A sibling of sourceDir named after the locale in any common spelling
// wins, then such a directory anywhere in the checkout at root. Otherwise
// a per-locale checkout uses its root, and other checkouts get a new
// directory, next to sourceDir when it is in the same checkout, that is
// created on save.
func LocaleDirectory(root, sourceDir, code string, perLocale bool) string {
	variants := l10n.CodeVariants(code)
	inRoot := sourceDir != "" && vcs.IsSubPath(root, sourceDir)

	if inRoot {
		parent := filepath.Dir(sourceDir)
		for _, v := range variants {
			if dirExists(filepath.Join(parent, v)) {
				return filepath.Join(parent, v)
			}
		}
	}

	found := ""
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if path != root && slices.Contains(variants, d.Name()) {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if found != "" {
		return found
	}

	switch {
	case perLocale:
		return root
	case inRoot:
		return filepath.Join(filepath.Dir(sourceDir), code)
	}
	return filepath.Join(root, code)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
