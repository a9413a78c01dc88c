// Package config loads locsync's application configuration with viper: a
// locsync.yaml file, LOCSYNC_ environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/steveyegge/locsync/internal/store"
	locsync "github.com/steveyegge/locsync/internal/sync"
	"github.com/steveyegge/locsync/internal/vcs"
)

// EnvPrefix prefixes every environment variable override, with dots in
// keys replaced by underscores: LOCSYNC_SYNC_USER_EMAIL.
const EnvPrefix = "LOCSYNC"

// Config is the application configuration.
type Config struct {
	// Database is the SQLite database path.
	Database string `mapstructure:"database"`

	// Checkouts is the directory working copies are cloned into.
	Checkouts string `mapstructure:"checkouts"`

	Workers        int           `mapstructure:"workers"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`

	SyncUser UserConfig  `mapstructure:"sync_user"`
	Watch    WatchConfig `mapstructure:"watch"`
	Log      LogConfig   `mapstructure:"log"`

	// Projects are imported into the store by "locsync project import".
	Projects []ProjectConfig `mapstructure:"projects"`

	// File is the configuration file that was read, if any.
	File string `mapstructure:"-"`
}

// UserConfig is the identity commits fall back to.
type UserConfig struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
}

// WatchConfig configures "locsync watch".
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig configures an optional rotating log file.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ProjectConfig declares a project and its repositories.
type ProjectConfig struct {
	Slug       string `mapstructure:"slug"`
	Name       string `mapstructure:"name"`
	ConfigFile string `mapstructure:"config_file"`
	Permalink  string `mapstructure:"permalink"`

	// Locales are the codes enabled for the project.
	Locales []string `mapstructure:"locales"`

	Repositories []RepositoryConfig `mapstructure:"repositories"`
}

// RepositoryConfig declares one repository of a project.
type RepositoryConfig struct {
	Type         string `mapstructure:"type"`
	Role         string `mapstructure:"role"`
	URL          string `mapstructure:"url"`
	Branch       string `mapstructure:"branch"`
	Permalink    string `mapstructure:"permalink"`
	CheckoutPath string `mapstructure:"checkout_path"`
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "locsync")

	v.SetDefault("database", filepath.Join(dataDir, "locsync.db"))
	v.SetDefault("checkouts", filepath.Join(dataDir, "checkouts"))
	v.SetDefault("workers", 4)
	v.SetDefault("command_timeout", "5m")
	v.SetDefault("sync_user.name", locsync.DefaultSyncUser.Name)
	v.SetDefault("sync_user.email", locsync.DefaultSyncUser.Email)
	v.SetDefault("watch.debounce", "2s")
	v.SetDefault("watch.interval", "5m")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Load reads the configuration. An empty path searches for locsync.yaml in
// the working directory and in $HOME/.config/locsync, and a missing file
// there is not an error; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(os.ExpandEnv(path))
	} else {
		v.SetConfigName("locsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "locsync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.expandEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandEnv expands environment variables in path fields.
func (c *Config) expandEnv() {
	c.Database = os.ExpandEnv(c.Database)
	c.Checkouts = os.ExpandEnv(c.Checkouts)
	c.Log.File = os.ExpandEnv(c.Log.File)
	for i := range c.Projects {
		for j := range c.Projects[i].Repositories {
			r := &c.Projects[i].Repositories[j]
			r.CheckoutPath = os.ExpandEnv(r.CheckoutPath)
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Checkouts == "" {
		return fmt.Errorf("checkouts is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be positive")
	}
	if c.SyncUser.Email == "" {
		return fmt.Errorf("sync_user.email is required")
	}
	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive")
	}
	if c.Watch.Interval < 0 {
		return fmt.Errorf("watch.interval must not be negative")
	}

	seen := make(map[string]bool)
	for i, p := range c.Projects {
		if p.Slug == "" {
			return fmt.Errorf("projects[%d].slug is required", i)
		}
		if seen[p.Slug] {
			return fmt.Errorf("project %s is declared twice", p.Slug)
		}
		seen[p.Slug] = true
		if err := p.Validate(); err != nil {
			return fmt.Errorf("project %s: %w", p.Slug, err)
		}
	}
	return nil
}

// Validate checks the repositories of a project.
func (p *ProjectConfig) Validate() error {
	sources := 0
	for i, r := range p.Repositories {
		if r.URL == "" {
			return fmt.Errorf("repositories[%d].url is required", i)
		}
		if _, err := vcs.ParseType(r.Type); err != nil {
			return fmt.Errorf("repositories[%d]: %w", i, err)
		}
		switch store.Role(r.Role) {
		case store.RoleSource:
			sources++
		case store.RoleTarget:
		default:
			return fmt.Errorf("repositories[%d]: invalid role %q (must be source or target)", i, r.Role)
		}
	}
	if sources != 1 {
		return fmt.Errorf("exactly one source repository is required, got %d", sources)
	}
	return nil
}

// SyncOptions returns the engine options the configuration describes.
func (c *Config) SyncOptions() locsync.Options {
	return locsync.Options{
		Workers:        c.Workers,
		CheckoutsDir:   c.Checkouts,
		CommandTimeout: c.CommandTimeout,
		SyncUser:       store.User{Name: c.SyncUser.Name, Email: c.SyncUser.Email},
	}
}
