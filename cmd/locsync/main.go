// Command locsync keeps localization files in version control and a
// translation database in sync.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/steveyegge/locsync/internal/config"
	_ "github.com/steveyegge/locsync/internal/formats/all"
	"github.com/steveyegge/locsync/internal/store/sqlite"
	locsync "github.com/steveyegge/locsync/internal/sync"
	_ "github.com/steveyegge/locsync/internal/vcs/git"
	_ "github.com/steveyegge/locsync/internal/vcs/hg"
	_ "github.com/steveyegge/locsync/internal/vcs/svn"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "locsync",
	Short: "Sync localization files between repositories and a translation database",
	Long: `locsync reconciles localization files stored in version control with a
translation database.

Each sync pass pulls the project's repositories, imports source string and
translation changes from the files, writes translations approved in the
database back to the files and commits them, one commit per locale.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./locsync.yaml or ~/.config/locsync/locsync.yaml)")
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
		&cobra.Group{ID: "manage", Title: "Project management:"},
	)
}

// app is what a command needs: configuration, logs, the store and the
// engine.
type app struct {
	cfg    *config.Config
	logs   *config.Logs
	db     *sqlite.DB
	engine *locsync.Engine
}

// openApp loads configuration and opens the store. It exits on failure, as
// every command needs both.
func openApp(ctx context.Context) *app {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatalf("%v", err)
	}
	logs := cfg.Log.NewLogs(os.Stderr)

	db, err := sqlite.Open(ctx, cfg.Database)
	if err != nil {
		fatalf("opening database: %v", err)
	}

	opts := cfg.SyncOptions()
	opts.HTTPClient = resty.New().SetTimeout(cfg.CommandTimeout).SetHeader("User-Agent", "locsync/"+Version)
	return &app{
		cfg:    cfg,
		logs:   logs,
		db:     db,
		engine: locsync.New(db, opts, logs.Logger("sync")),
	}
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing database: %v\n", err)
	}
	_ = a.logs.Close()
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the locsync version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("locsync %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func now() time.Time {
	return time.Now().UTC()
}
