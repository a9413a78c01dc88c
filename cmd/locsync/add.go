package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/steveyegge/locsync/internal/config"
	"github.com/steveyegge/locsync/internal/store"
	"github.com/steveyegge/locsync/internal/ui"
)

// projectInput is what "project add" asks for.
type projectInput struct {
	Slug    string
	Name    string
	Type    string
	URL     string
	Branch  string
	Locales string
}

func (in *projectInput) complete() bool {
	return in.Slug != "" && in.URL != "" && in.Locales != ""
}

// projectConfig turns the input into a validated project declaration.
func (in *projectInput) projectConfig() (*config.ProjectConfig, error) {
	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		return nil, fmt.Errorf("slug is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = slug
	}
	locales := strings.FieldsFunc(in.Locales, func(r rune) bool { return r == ',' || r == ' ' })
	if len(locales) == 0 {
		return nil, fmt.Errorf("at least one locale is required")
	}

	p := &config.ProjectConfig{
		Slug:    slug,
		Name:    name,
		Locales: locales,
		Repositories: []config.RepositoryConfig{{
			Type:   in.Type,
			Role:   string(store.RoleSource),
			URL:    strings.TrimSpace(in.URL),
			Branch: strings.TrimSpace(in.Branch),
		}},
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// ask fills the missing fields interactively.
func (in *projectInput) ask() error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Slug").Placeholder("firefox").Value(&in.Slug).Validate(required("slug")),
			huh.NewInput().Title("Name").Description("Defaults to the slug").Value(&in.Name),
		),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Repository type").
				Options(huh.NewOptions("git", "hg", "svn")...).
				Value(&in.Type),
			huh.NewInput().Title("Repository URL").Value(&in.URL).Validate(required("url")),
			huh.NewInput().Title("Branch").Description("Empty uses the default branch").Value(&in.Branch),
		),
		huh.NewGroup(
			huh.NewInput().Title("Locales").Description("Comma-separated codes, e.g. de, fr, pt-BR").
				Value(&in.Locales).Validate(required("locales")),
		),
	)
	return form.Run()
}

var projectAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a project with one source repository",
	Long: `Add a project. Missing values are asked for when stdin is a terminal.

Examples:
  locsync project add
  locsync project add --slug app --url https://example.com/app.git --locales de,fr`,
	Run: func(cmd *cobra.Command, args []string) {
		in := &projectInput{}
		in.Slug, _ = cmd.Flags().GetString("slug")
		in.Name, _ = cmd.Flags().GetString("name")
		in.Type, _ = cmd.Flags().GetString("type")
		in.URL, _ = cmd.Flags().GetString("url")
		in.Branch, _ = cmd.Flags().GetString("branch")
		in.Locales, _ = cmd.Flags().GetString("locales")

		if !in.complete() {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				fatalf("--slug, --url and --locales are required when stdin is not a terminal")
			}
			if err := in.ask(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return
				}
				fatalf("%v", err)
			}
		}

		p, err := in.projectConfig()
		if err != nil {
			fatalf("%v", err)
		}

		ctx := context.Background()
		a := openApp(ctx)
		defer a.Close()

		result, err := config.ImportProjects(ctx, a.db, []config.ProjectConfig{*p}, now())
		if err != nil {
			a.Close()
			fatalf("%v", err)
		}
		if len(result.Skipped) > 0 {
			fmt.Printf("%s %s already exists\n", ui.RenderWarn("⚠"), p.Slug)
			return
		}
		fmt.Printf("%s Created %s with %d locales\n", ui.RenderPass("✓"), p.Slug, len(p.Locales))
	},
}

func init() {
	projectAddCmd.Flags().String("slug", "", "Project slug")
	projectAddCmd.Flags().String("name", "", "Project name (default: the slug)")
	projectAddCmd.Flags().String("type", "git", "Repository type: git, hg or svn")
	projectAddCmd.Flags().String("url", "", "Source repository URL")
	projectAddCmd.Flags().String("branch", "", "Branch to sync")
	projectAddCmd.Flags().String("locales", "", "Comma-separated locale codes")
	projectCmd.AddCommand(projectAddCmd)
}
