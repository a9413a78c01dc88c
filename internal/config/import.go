package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/store"
	"github.com/steveyegge/locsync/internal/vcs"
)

// ImportResult lists what ImportProjects did, by slug.
type ImportResult struct {
	Created []string
	Skipped []string
}

// ImportProjects creates the declared projects in st, with their
// repositories and enabled locales. Projects that already exist are
// skipped untouched; now stamps the locale enablement.
func ImportProjects(ctx context.Context, st store.Store, projects []ProjectConfig, now time.Time) (*ImportResult, error) {
	result := &ImportResult{}
	for _, pc := range projects {
		p := &store.Project{
			Slug:       pc.Slug,
			Name:       pc.Name,
			ConfigFile: pc.ConfigFile,
			Permalink:  pc.Permalink,
		}
		if p.Name == "" {
			p.Name = pc.Slug
		}
		if err := st.CreateProject(ctx, p); err != nil {
			if errors.Is(err, store.ErrExists) {
				result.Skipped = append(result.Skipped, pc.Slug)
				continue
			}
			return result, fmt.Errorf("failed to create project %s: %w", pc.Slug, err)
		}

		for _, rc := range pc.Repositories {
			typ, err := vcs.ParseType(rc.Type)
			if err != nil {
				return result, err
			}
			r := &store.Repository{
				ProjectID:    p.ID,
				Type:         typ,
				Role:         store.Role(rc.Role),
				URL:          rc.URL,
				Branch:       rc.Branch,
				Permalink:    rc.Permalink,
				CheckoutPath: rc.CheckoutPath,
			}
			if err := st.CreateRepository(ctx, r); err != nil {
				return result, fmt.Errorf("failed to create repository %s: %w", rc.URL, err)
			}
		}

		for _, code := range pc.Locales {
			err := st.CreateLocale(ctx, l10n.NewLocale(code, LocaleName(code)))
			if err != nil && !errors.Is(err, store.ErrExists) {
				return result, fmt.Errorf("failed to create locale %s: %w", code, err)
			}
			if err := st.EnableLocale(ctx, p.ID, code, now); err != nil {
				return result, fmt.Errorf("failed to enable locale %s: %w", code, err)
			}
		}
		result.Created = append(result.Created, pc.Slug)
	}
	return result, nil
}

// LocaleName returns the English name of a locale code, or the code
// itself when it is not a known language tag.
func LocaleName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}
