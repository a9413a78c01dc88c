package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	locsync "github.com/steveyegge/locsync/internal/sync"
	"github.com/steveyegge/locsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync [slug...]",
	GroupID: "sync",
	Short:   "Run one sync pass",
	Long: `Run a sync pass of the given projects, or of every project.

A pass:
  1. Pulls the source and translation repositories
  2. Imports changed source strings and translations into the database
  3. Writes translations changed in the database to the files
  4. Commits each locale's files, authored by its main contributor

Only resources whose files or translations changed since the last pass are
reconciled unless --full is given. --dry-run reports what a pass would do
without writing anything.`,
	Run: func(cmd *cobra.Command, args []string) {
		full, _ := cmd.Flags().GetBool("full")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a := openApp(ctx)
		defer a.Close()
		a.engine.Options.FullScan = full
		a.engine.Options.DryRun = dryRun

		var (
			reports []*locsync.Report
			failed  bool
		)
		if len(args) == 0 {
			var err error
			reports, err = a.engine.SyncAll(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				failed = true
			}
		}
		for _, slug := range args {
			report, err := a.engine.SyncProject(ctx, slug)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s: %v\n", slug, err)
				failed = true
				continue
			}
			reports = append(reports, report)
		}

		for _, r := range reports {
			ui.RenderReport(os.Stdout, r)
			if len(r.FailedLocales) > 0 {
				failed = true
			}
		}
		if failed {
			a.Close()
			os.Exit(1)
		}
	},
}

func init() {
	syncCmd.Flags().Bool("full", false, "Reconcile every resource, not only changed ones")
	syncCmd.Flags().Bool("dry-run", false, "Report what the pass would do without writing anything")
	rootCmd.AddCommand(syncCmd)
}
