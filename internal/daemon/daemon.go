// Package daemon runs sync passes continuously.
//
// The daemon:
//  1. Runs a first pass of every project
//  2. Watches the projects' working copies for file changes
//  3. Runs a pass once a project's changes have been quiet for the
//     debounce interval, and every project on each interval tick
//  4. Handles graceful shutdown
//
// A project never has two passes running at once. Events that arrive while
// a project's pass runs are dropped with it, since that pass writes the
// working copy itself; the next interval tick covers edits made meanwhile.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	locsync "github.com/steveyegge/locsync/internal/sync"
)

// Syncer runs one pass of a project.
type Syncer interface {
	SyncProject(ctx context.Context, slug string) (*locsync.Report, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long a project's files must stay quiet
	// before a pass runs.
	DebounceInterval time.Duration

	// Interval is how often every project is synced regardless of file
	// events. Zero disables interval passes.
	Interval time.Duration

	// OnPass, when set, is called after every pass.
	OnPass func(slug string, report *locsync.Report, err error)

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 2 * time.Second,
		Interval:         5 * time.Minute,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon schedules sync passes from file events and a ticker.
type Daemon struct {
	syncer   Syncer
	projects map[string][]string
	config   *Config

	// roots maps a watched directory to its project.
	roots map[string]string

	mu      sync.Mutex
	pending map[string]time.Time // slug -> last event
	running map[string]bool
	passes  sync.WaitGroup
}

// New creates a daemon for the given projects, keyed by slug, each with
// the working copy directories to watch.
func New(syncer Syncer, projects map[string][]string, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if len(projects) == 0 {
		return nil, fmt.Errorf("no projects to watch")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	roots := make(map[string]string)
	for slug, dirs := range projects {
		for _, dir := range dirs {
			dir, err := filepath.Abs(dir)
			if err != nil {
				return nil, err
			}
			if other, ok := roots[dir]; ok && other != slug {
				return nil, fmt.Errorf("directory %s belongs to both %s and %s", dir, other, slug)
			}
			roots[dir] = slug
		}
	}

	return &Daemon{
		syncer:   syncer,
		projects: projects,
		config:   config,
		roots:    roots,
		pending:  make(map[string]time.Time),
		running:  make(map[string]bool),
	}, nil
}

// Run blocks until ctx is cancelled. In-flight passes see the
// cancellation and are waited for before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	for _, slug := range d.slugs() {
		d.trigger(ctx, slug)
	}
	d.passes.Wait()

	watcher, err := NewFileWatcher()
	if err != nil {
		return err
	}
	var dirs []string
	for dir := range d.roots {
		if _, err := os.Stat(dir); err != nil {
			d.config.Logger.Printf("WARNING: not watching %s: %v", dir, err)
			continue
		}
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)
	if err := watcher.Start(dirs...); err != nil {
		_ = watcher.Stop()
		return err
	}
	d.config.Logger.Printf("Watching %d directories", len(dirs))

	debounce := time.NewTicker(max(d.config.DebounceInterval/2, time.Millisecond))
	defer debounce.Stop()

	var interval <-chan time.Time
	if d.config.Interval > 0 {
		t := time.NewTicker(d.config.Interval)
		defer t.Stop()
		interval = t.C
	}

	for {
		select {
		case <-ctx.Done():
			d.config.Logger.Println("Shutdown signal received")
			return d.shutdown(watcher)

		case event, ok := <-watcher.Events():
			if !ok {
				return d.shutdown(watcher)
			}
			d.queue(event)

		case err, ok := <-watcher.Errors():
			if ok {
				d.config.Logger.Printf("Watcher error: %v", err)
			}

		case <-debounce.C:
			for _, slug := range d.quiet(time.Now()) {
				d.trigger(ctx, slug)
			}

		case <-interval:
			for _, slug := range d.slugs() {
				d.trigger(ctx, slug)
			}
		}
	}
}

func (d *Daemon) shutdown(watcher *FileWatcher) error {
	err := watcher.Stop()
	d.passes.Wait()
	d.config.Logger.Println("Daemon stopped")
	return err
}

func (d *Daemon) slugs() []string {
	out := make([]string, 0, len(d.projects))
	for slug := range d.projects {
		out = append(out, slug)
	}
	slices.Sort(out)
	return out
}

// queue records a file event against its project.
func (d *Daemon) queue(event FileEvent) {
	slug, ok := d.roots[event.Root]
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running[slug] {
		return
	}
	d.pending[slug] = time.Now()
}

// quiet returns the projects whose last event is older than the debounce
// interval, and forgets their events.
func (d *Daemon) quiet(now time.Time) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for slug, at := range d.pending {
		if now.Sub(at) >= d.config.DebounceInterval {
			out = append(out, slug)
			delete(d.pending, slug)
		}
	}
	slices.Sort(out)
	return out
}

// trigger starts a pass of slug unless one is running.
func (d *Daemon) trigger(ctx context.Context, slug string) {
	d.mu.Lock()
	if d.running[slug] {
		d.mu.Unlock()
		return
	}
	d.running[slug] = true
	d.mu.Unlock()

	d.passes.Add(1)
	go func() {
		defer d.passes.Done()
		d.run(ctx, slug)

		d.mu.Lock()
		defer d.mu.Unlock()
		d.running[slug] = false
		delete(d.pending, slug)
	}()
}

func (d *Daemon) run(ctx context.Context, slug string) {
	report, err := d.syncer.SyncProject(ctx, slug)
	switch {
	case err != nil && errors.Is(err, context.Canceled):
	case err != nil:
		d.config.Logger.Printf("WARNING: sync of %s failed: %v", slug, err)
	case !report.NoOp:
		d.config.Logger.Printf("Synced %s: %s", slug, report.Summary())
	}
	if d.config.OnPass != nil {
		d.config.OnPass(slug, report, err)
	}
}
