package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/locsync/internal/daemon"
	"github.com/steveyegge/locsync/internal/dashboard"
	locsync "github.com/steveyegge/locsync/internal/sync"
	"github.com/steveyegge/locsync/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch [slug...]",
	GroupID: "sync",
	Short:   "Sync projects continuously (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon runs a pass of every watched project, then:
  1. Watches the projects' working copies for file changes
  2. Syncs a project once its files have been quiet for watch.debounce
  3. Syncs every project each watch.interval

Without arguments every project is watched. With --listen, pass results are
also streamed as JSON to WebSocket clients of /ws.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a := openApp(ctx)
		defer a.Close()

		slugs := args
		if len(slugs) == 0 {
			projects, err := a.db.Projects(ctx)
			if err != nil {
				fatalf("listing projects: %v", err)
			}
			for _, p := range projects {
				slugs = append(slugs, p.Slug)
			}
		}

		projects := make(map[string][]string, len(slugs))
		for _, slug := range slugs {
			dirs, err := a.engine.CheckoutDirs(ctx, slug)
			if err != nil {
				fatalf("%v", err)
			}
			projects[slug] = dirs
		}

		var feed *dashboard.Handler
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			origins, _ := cmd.Flags().GetStringSlice("origin")
			server := dashboard.NewServer(&dashboard.Config{
				Addr:           listen,
				OriginPatterns: origins,
				Logger:         a.logs.Logger("dashboard"),
			}, func() any { return feed.Hello() })
			feed = dashboard.NewHandler(server, slugs)
			if err := server.Start(); err != nil {
				fatalf("starting dashboard: %v", err)
			}
			defer func() { _ = server.Stop() }()
			fmt.Printf("%s Streaming passes on ws://%s/ws\n", ui.RenderAccent("●"), server.Addr())
		}

		d, err := daemon.New(a.engine, projects, &daemon.Config{
			DebounceInterval: a.cfg.Watch.Debounce,
			Interval:         a.cfg.Watch.Interval,
			Logger:           a.logs.Logger("daemon"),
			OnPass: func(slug string, r *locsync.Report, err error) {
				if err == nil && !r.NoOp {
					ui.RenderReport(os.Stdout, r)
				}
				if feed != nil {
					feed.OnPass(slug, r, err)
				}
			},
		})
		if err != nil {
			fatalf("creating daemon: %v", err)
		}

		fmt.Printf("%s Watching %d projects (debounce %v, interval %v)\n",
			ui.RenderAccent("●"), len(projects), a.cfg.Watch.Debounce, a.cfg.Watch.Interval)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := d.Run(ctx); err != nil {
			fatalf("daemon stopped: %v", err)
		}
	},
}

func init() {
	watchCmd.Flags().String("listen", "", "Stream pass results to WebSocket clients on this address (e.g. :8080)")
	watchCmd.Flags().StringSlice("origin", nil, "Browser origins allowed to connect to the stream")
	rootCmd.AddCommand(watchCmd)
}
