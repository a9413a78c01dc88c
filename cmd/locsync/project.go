package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/locsync/internal/config"
	"github.com/steveyegge/locsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status [slug]",
	GroupID: "sync",
	Short:   "Show sync status",
	Long: `Show when each project was last synced, or the recent passes of one
project. --since accepts a date or phrases like "yesterday" and overrides
--limit.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx)
		defer a.Close()

		if len(args) == 0 {
			projects, err := a.db.Projects(ctx)
			if err != nil {
				fatalf("listing projects: %v", err)
			}
			ui.RenderProjects(os.Stdout, projects)
			return
		}

		p, err := a.db.Project(ctx, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetString("since")
		var from time.Time
		if since != "" {
			if from, err = parseSince(since, now()); err != nil {
				fatalf("--since: %v", err)
			}
			limit = 0
		}
		logs, err := a.db.SyncLogs(ctx, p.ID, limit)
		if err != nil {
			fatalf("loading sync logs: %v", err)
		}
		logs = logsSince(logs, from)
		ui.RenderSyncLogs(os.Stdout, p, logs)
	},
}

var projectCmd = &cobra.Command{
	Use:     "project",
	GroupID: "manage",
	Short:   "Manage projects",
}

var projectImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Create the projects declared in the config file",
	Long: `Create every project listed under "projects:" in the config file, with
its repositories and locales. Projects that already exist are left alone.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx)
		defer a.Close()

		if len(a.cfg.Projects) == 0 {
			fmt.Printf("%s No projects declared in %s\n", ui.RenderWarn("⚠"), configName(a.cfg))
			return
		}
		result, err := config.ImportProjects(ctx, a.db, a.cfg.Projects, now())
		if result != nil {
			for _, slug := range result.Created {
				fmt.Printf("%s Created %s\n", ui.RenderPass("✓"), slug)
			}
			for _, slug := range result.Skipped {
				fmt.Printf("%s %s already exists\n", ui.RenderMuted("-"), slug)
			}
		}
		if err != nil {
			a.Close()
			fatalf("%v", err)
		}
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx)
		defer a.Close()

		projects, err := a.db.Projects(ctx)
		if err != nil {
			fatalf("listing projects: %v", err)
		}
		ui.RenderProjects(os.Stdout, projects)
	},
}

func configName(cfg *config.Config) string {
	if cfg.File == "" {
		return "the configuration"
	}
	return cfg.File
}

func init() {
	statusCmd.Flags().IntP("limit", "n", 10, "Number of passes to show")
	statusCmd.Flags().String("since", "", "Show passes started after this time")
	rootCmd.AddCommand(statusCmd)

	projectCmd.AddCommand(projectImportCmd)
	projectCmd.AddCommand(projectListCmd)
	rootCmd.AddCommand(projectCmd)
}
