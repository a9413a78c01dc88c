// Package l10nconfig reads project configuration files: TOML documents that
// list which reference files a project has and where each locale keeps its
// translation of them.
//
//	basepath = "."
//	locales = ["de", "fr"]
//
//	[[paths]]
//	reference = "en-US/**/*.ftl"
//	l10n = "{locale}/**/*.ftl"
//	exclude_locales = ["fr"]
//
//	[[includes]]
//	path = "mobile/l10n.toml"
//
// Patterns use '*' for one path segment and '**' for any number of them.
// The part of a file path matched from the first wildcard on is carried
// over from the reference pattern to the l10n pattern.
//
// LoadLocal reads a configuration and its includes from a checkout;
// LoadRemote downloads them from a repository permalink. Both run the same
// parser, so they produce the same Config for the same documents.
package l10nconfig

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-resty/resty/v2"
	"github.com/gobwas/glob"

	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
)

// LocalePlaceholder is replaced by the locale code in l10n patterns.
const LocalePlaceholder = "{locale}"

// AndroidLocalePlaceholder is replaced by the Android resource qualifier of
// the locale ("pt-BR" becomes "pt-rBR").
const AndroidLocalePlaceholder = "{android_locale}"

const defaultTimeout = 20 * time.Second

var (
	// ErrMissingRepositoryPermalink is returned by LoadRemote when the
	// repository has no permalink prefix to download from.
	ErrMissingRepositoryPermalink = errors.New("repository permalink is not set")

	// ErrCyclicInclude is returned when a configuration includes itself,
	// directly or through other includes.
	ErrCyclicInclude = errors.New("cyclic configuration include")

	// ErrInvalidConfig is returned for documents that parse as TOML but are
	// not valid configurations.
	ErrInvalidConfig = errors.New("invalid project configuration")
)

// document is the TOML shape of one configuration file.
type document struct {
	Basepath string   `toml:"basepath"`
	Locales  []string `toml:"locales"`
	Paths    []struct {
		Reference      string   `toml:"reference"`
		L10n           string   `toml:"l10n"`
		Locales        []string `toml:"locales"`
		ExcludeLocales []string `toml:"exclude_locales"`
	} `toml:"paths"`
	Includes []struct {
		Path string `toml:"path"`
	} `toml:"includes"`
}

// PathSpec is one [[paths]] block with patterns resolved against the
// repository root.
type PathSpec struct {
	Reference      string
	L10n           string
	Locales        []string
	ExcludeLocales []string

	ref       glob.Glob
	refPrefix string
}

// AppliesTo reports whether the block covers locale.
func (p *PathSpec) AppliesTo(locale string) bool {
	if len(p.Locales) > 0 && !slices.ContainsFunc(p.Locales, func(c string) bool { return l10n.SameCode(c, locale) }) {
		return false
	}
	return !slices.ContainsFunc(p.ExcludeLocales, func(c string) bool { return l10n.SameCode(c, locale) })
}

// Match reports whether rel, a slash-separated path relative to the
// repository root, is a reference file of this block.
func (p *PathSpec) Match(rel string) bool {
	return p.ref.Match("/" + rel)
}

// Localize returns the l10n path of reference file rel for locale.
func (p *PathSpec) Localize(rel, locale string) string {
	pattern := substituteLocale(p.L10n, locale)
	i := strings.IndexByte(pattern, '*')
	if i < 0 {
		return formats.LocalePath(pattern)
	}
	return formats.LocalePath(pattern[:i] + strings.TrimPrefix(rel, p.refPrefix))
}

// Config is a resolved project configuration, includes merged in.
type Config struct {
	// Root is the directory patterns are matched in. LoadLocal sets it to
	// the checkout; remote configurations get it from the caller.
	Root string

	Paths []*PathSpec

	locales []string

	once    sync.Once
	files   []string
	walkErr error
}

// Pair is one reference file and its localized counterpart, both relative
// to Config.Root.
type Pair struct {
	Reference string
	Localized string
}

// Locales returns every locale declared by the configuration and its
// includes, sorted.
func (c *Config) Locales() []string {
	return slices.Clone(c.locales)
}

// ResourcePairs lists the reference files under Root and where locale keeps
// each of them, sorted by reference path. The first block matching a
// reference file wins.
func (c *Config) ResourcePairs(locale string) ([]Pair, error) {
	files, err := c.referenceFiles()
	if err != nil {
		return nil, err
	}

	var pairs []Pair
	for _, rel := range files {
		for _, spec := range c.Paths {
			if !spec.Match(rel) {
				continue
			}
			if spec.AppliesTo(locale) {
				pairs = append(pairs, Pair{Reference: rel, Localized: spec.Localize(rel, locale)})
			}
			break
		}
	}
	return pairs, nil
}

// References lists every reference file under Root, sorted.
func (c *Config) References() ([]string, error) {
	files, err := c.referenceFiles()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rel := range files {
		if slices.ContainsFunc(c.Paths, func(p *PathSpec) bool { return p.Match(rel) }) {
			out = append(out, rel)
		}
	}
	return out, nil
}

// referenceFiles walks Root once and lists resource files in it.
func (c *Config) referenceFiles() ([]string, error) {
	c.once.Do(func() {
		if c.Root == "" {
			c.walkErr = fmt.Errorf("%w: configuration root is not set", ErrInvalidConfig)
			return
		}
		c.walkErr = filepath.WalkDir(c.Root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != c.Root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !formats.IsResource(p) {
				return nil
			}
			rel, err := filepath.Rel(c.Root, p)
			if err != nil {
				return err
			}
			c.files = append(c.files, filepath.ToSlash(rel))
			return nil
		})
		slices.Sort(c.files)
	})
	return c.files, c.walkErr
}

// fetchFunc returns the contents of a configuration document.
type fetchFunc func(ctx context.Context, ref string) ([]byte, error)

// resolveFunc resolves an include path against the including document.
type resolveFunc func(base, include string) string

type loader struct {
	fetch   fetchFunc
	resolve resolveFunc
	cfg     *Config
	loaded  map[string]bool
	stack   []string
}

func (l *loader) load(ctx context.Context, ref string) error {
	if slices.Contains(l.stack, ref) {
		return fmt.Errorf("%w: %s", ErrCyclicInclude, strings.Join(append(l.stack, ref), " -> "))
	}
	if l.loaded[ref] {
		return nil
	}
	l.stack = append(l.stack, ref)
	defer func() { l.stack = l.stack[:len(l.stack)-1] }()

	data, err := l.fetch(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to read configuration %s: %w", ref, err)
	}

	var doc document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, ref, err)
	}

	for _, code := range doc.Locales {
		if !slices.Contains(l.cfg.locales, code) {
			l.cfg.locales = append(l.cfg.locales, code)
		}
	}

	// basepath is relative to the directory of the declaring document.
	base := path.Clean(strings.TrimPrefix(doc.Basepath, "/"))
	if !isURL(ref) {
		base = path.Join(path.Dir(ref), base)
	}
	for i, p := range doc.Paths {
		if p.Reference == "" || p.L10n == "" {
			return fmt.Errorf("%w: %s: paths[%d] needs reference and l10n", ErrInvalidConfig, ref, i)
		}
		spec, err := newPathSpec(path.Join(base, p.Reference), path.Join(base, p.L10n))
		if err != nil {
			return fmt.Errorf("%w: %s: paths[%d]: %v", ErrInvalidConfig, ref, i, err)
		}
		spec.Locales = p.Locales
		spec.ExcludeLocales = p.ExcludeLocales
		l.cfg.Paths = append(l.cfg.Paths, spec)
	}

	for _, inc := range doc.Includes {
		if inc.Path == "" {
			return fmt.Errorf("%w: %s: include without path", ErrInvalidConfig, ref)
		}
		if err := l.load(ctx, l.resolve(ref, inc.Path)); err != nil {
			return err
		}
	}

	l.loaded[ref] = true
	return nil
}

func newPathSpec(reference, l10nPattern string) (*PathSpec, error) {
	g, err := compilePattern(reference)
	if err != nil {
		return nil, err
	}
	prefix := reference
	if i := strings.IndexByte(reference, '*'); i >= 0 {
		prefix = reference[:i]
	}
	return &PathSpec{Reference: reference, L10n: l10nPattern, ref: g, refPrefix: prefix}, nil
}

// compilePattern compiles a path pattern. Paths are matched with a leading
// slash so that "/**/" can also match a single slash.
func compilePattern(pattern string) (glob.Glob, error) {
	p := "/" + strings.TrimPrefix(pattern, "/")
	p = strings.ReplaceAll(p, "/**/", "{/,/**/}")
	return glob.Compile(p, '/')
}

func substituteLocale(pattern, locale string) string {
	pattern = strings.ReplaceAll(pattern, AndroidLocalePlaceholder, AndroidQualifier(locale))
	return strings.ReplaceAll(pattern, LocalePlaceholder, locale)
}

// AndroidQualifier returns the resource directory qualifier Android uses
// for locale: "de" stays "de", "pt-BR" becomes "pt-rBR".
func AndroidQualifier(locale string) string {
	lang, region, ok := strings.Cut(strings.ReplaceAll(locale, "_", "-"), "-")
	if !ok || len(region) != 2 {
		return locale
	}
	return lang + "-r" + strings.ToUpper(region)
}

func (l *loader) finish() *Config {
	slices.Sort(l.cfg.locales)
	return l.cfg
}

// LoadLocal reads the configuration at file, relative to root, together
// with its includes. Relative includes are read from disk; absolute URLs
// are downloaded with client, or a default client when nil.
func LoadLocal(ctx context.Context, root, file string, client *resty.Client) (*Config, error) {
	l := &loader{
		cfg:    &Config{Root: root},
		loaded: make(map[string]bool),
		fetch: func(ctx context.Context, ref string) ([]byte, error) {
			if isURL(ref) {
				return download(ctx, clientOrDefault(client), ref)
			}
			return os.ReadFile(filepath.Join(root, filepath.FromSlash(ref)))
		},
		resolve: resolveInclude,
	}
	if err := l.load(ctx, path.Clean(filepath.ToSlash(file))); err != nil {
		return nil, err
	}
	return l.finish(), nil
}

// LoadRemote downloads the configuration at file, relative to
// permalinkPrefix, and every include it references. The returned Config
// has no Root.
func LoadRemote(ctx context.Context, client *resty.Client, permalinkPrefix, file string) (*Config, error) {
	if permalinkPrefix == "" {
		return nil, ErrMissingRepositoryPermalink
	}
	prefix := strings.TrimSuffix(permalinkPrefix, "/") + "/"
	client = clientOrDefault(client)

	// Documents are keyed by repository-relative path, as LoadLocal does,
	// and only turned into URLs when fetched.
	l := &loader{
		cfg:    &Config{},
		loaded: make(map[string]bool),
		fetch: func(ctx context.Context, ref string) ([]byte, error) {
			if isURL(ref) {
				return download(ctx, client, ref)
			}
			return download(ctx, client, prefix+ref)
		},
		resolve: resolveInclude,
	}
	if err := l.load(ctx, path.Clean(strings.TrimPrefix(file, "/"))); err != nil {
		return nil, err
	}
	return l.finish(), nil
}

// resolveInclude resolves include relative to the directory of base.
func resolveInclude(base, include string) string {
	if isURL(include) {
		return include
	}
	if isURL(base) {
		u, err := url.Parse(base)
		if err != nil {
			return include
		}
		ref, err := url.Parse(include)
		if err != nil {
			return include
		}
		return u.ResolveReference(ref).String()
	}
	return path.Clean(path.Join(path.Dir(base), include))
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func clientOrDefault(c *resty.Client) *resty.Client {
	if c != nil {
		return c
	}
	return NewClient()
}

// NewClient returns the HTTP client used to download configurations.
func NewClient() *resty.Client {
	return resty.New().
		SetTimeout(defaultTimeout).
		SetRetryCount(2).
		SetHeader("User-Agent", "locsync")
}

func download(ctx context.Context, client *resty.Client, u string) ([]byte, error) {
	resp, err := client.R().SetContext(ctx).Get(u)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("GET %s: %s", u, resp.Status())
	}
	return resp.Body(), nil
}
