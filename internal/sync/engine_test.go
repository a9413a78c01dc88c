package sync

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	_ "github.com/steveyegge/locsync/internal/formats/all"
	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/store"
	"github.com/steveyegge/locsync/internal/store/memstore"
	"github.com/steveyegge/locsync/internal/vcs"
	_ "github.com/steveyegge/locsync/internal/vcs/git"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	t.Setenv("GIT_AUTHOR_NAME", "Test User")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "Test User")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@example.com")
	t.Setenv("GIT_CONFIG_GLOBAL", "/dev/null")
}

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// setupRemote creates a bare repository whose main branch holds files.
func setupRemote(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	remote := filepath.Join(root, "remote.git")
	seed := filepath.Join(root, "seed")

	git(t, root, "init", "--bare", remote)
	git(t, root, "init", seed)
	for name, content := range files {
		p := filepath.Join(seed, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	git(t, seed, "add", "-A")
	git(t, seed, "commit", "-m", "initial")
	git(t, seed, "push", remote, "HEAD:refs/heads/main")
	git(t, remote, "symbolic-ref", "HEAD", "refs/heads/main")
	return remote
}

type fixture struct {
	st      *memstore.Store
	engine  *Engine
	project *store.Project
	remote  string
	clock   time.Time
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	requireGit(t)
	ctx := context.Background()

	f := &fixture{st: memstore.New(), remote: setupRemote(t, files), clock: base}
	f.project = &store.Project{Slug: "app", Name: "App"}
	if err := f.st.CreateProject(ctx, f.project); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	repo := &store.Repository{ProjectID: f.project.ID, Type: vcs.TypeGit, Role: store.RoleSource, URL: f.remote, Branch: "main"}
	if err := f.st.CreateRepository(ctx, repo); err != nil {
		t.Fatalf("CreateRepository() failed: %v", err)
	}
	for _, l := range []*l10n.Locale{l10n.NewLocale("de", "German"), l10n.NewLocale("fr", "French")} {
		if err := f.st.CreateLocale(ctx, l); err != nil {
			t.Fatalf("CreateLocale() failed: %v", err)
		}
		if err := f.st.EnableLocale(ctx, f.project.ID, l.Code, base.Add(-time.Hour)); err != nil {
			t.Fatalf("EnableLocale() failed: %v", err)
		}
	}

	f.engine = New(f.st, Options{
		CheckoutsDir:   t.TempDir(),
		CommandTimeout: time.Minute,
		Clock:          func() time.Time { return f.clock },
	}, log.New(io.Discard, "", 0))
	return f
}

func (f *fixture) sync(t *testing.T, at time.Time) *Report {
	t.Helper()
	f.clock = at
	report, err := f.engine.SyncProject(context.Background(), "app")
	if err != nil {
		t.Fatalf("SyncProject() failed: %v", err)
	}
	return report
}

func (f *fixture) entity(t *testing.T, key string) *store.Entity {
	t.Helper()
	entities, err := f.st.Entities(context.Background(), f.project.ID, "de")
	if err != nil {
		t.Fatalf("Entities() failed: %v", err)
	}
	for _, e := range entities {
		if e.Key == key {
			return e
		}
	}
	t.Fatalf("entity %q not found", key)
	return nil
}

var appFiles = map[string]string{
	"en-US/app.properties": "hello=Hello\nbye=Bye\n",
	"de/app.properties":    "hello=Hallo\n",
}

func TestSyncProject(t *testing.T) {
	f := newFixture(t, appFiles)
	ctx := context.Background()
	t1, t2, t3 := base, base.Add(time.Hour), base.Add(2*time.Hour)

	// First pass: everything is new.
	report := f.sync(t, t1)
	if report.NoOp || report.Entities.Created != 2 {
		t.Fatalf("first pass = %+v, want 2 entities created", report)
	}
	if pulled, pushed, commits := report.Totals(); pulled != 1 || pushed != 0 || commits != 0 {
		t.Errorf("Totals() = %d, %d, %d, want one pulled translation", pulled, pushed, commits)
	}
	if tr := f.st.Translations(f.entity(t, "hello").ID, "de"); len(tr) != 1 || !tr[0].Approved || !tr[0].Date.Equal(t1) {
		t.Errorf("hello translations = %+v", tr)
	}
	p, err := f.st.Project(ctx, "app")
	if err != nil {
		t.Fatalf("Project() failed: %v", err)
	}
	if !p.LastSyncedAt.Equal(t1) {
		t.Errorf("LastSyncedAt = %v, want %v", p.LastSyncedAt, t1)
	}
	resources, err := f.st.Resources(ctx, f.project.ID)
	if err != nil || len(resources) != 1 || resources[0].TotalStrings != 2 {
		t.Errorf("Resources() = %+v, %v", resources, err)
	}

	// Second pass: nothing changed anywhere.
	writes := f.st.Writes()
	report = f.sync(t, t2)
	if !report.NoOp {
		t.Errorf("second pass = %+v, want a no-op", report)
	}
	if got := f.st.Writes(); got != writes {
		t.Errorf("no-op pass made %d store writes", got-writes)
	}
	if n := git(t, f.remote, "rev-list", "--count", "main"); n != "1" {
		t.Errorf("remote has %s commits, want 1", n)
	}
	logs, err := f.st.SyncLogs(ctx, f.project.ID, 10)
	if err != nil || len(logs) != 1 {
		t.Errorf("SyncLogs() = %d logs, %v, want only the first pass", len(logs), err)
	}

	// A translator approves a translation in the store.
	aliceUser := &store.User{Name: "Alice", Email: "alice@example.com"}
	if err := f.st.CreateUser(ctx, aliceUser); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	edit := t2.Add(time.Minute)
	err = f.st.Apply(ctx, &store.ChangeBatch{ProjectID: f.project.ID, CreateTranslations: []*store.Translation{{
		EntityID: f.entity(t, "bye").ID, Locale: "de", PluralForm: l10n.NoPlural, String: "Tschüss",
		Approved: true, Date: edit, ApprovedDate: edit, User: aliceUser,
	}}})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	// Third pass: the store change is pushed and committed.
	report = f.sync(t, t3)
	if len(report.Locales) == 0 {
		t.Fatalf("third pass = %+v, want locale summaries", report)
	}
	var de LocaleSummary
	for _, l := range report.Locales {
		if l.Code == "de" {
			de = l
		}
	}
	if !de.Committed || de.Pushed != 1 {
		t.Errorf("de summary = %+v, want one pushed entity committed", de)
	}

	head := git(t, f.remote, "log", "-1", "--format=%an <%ae>%n%B", "main")
	wantHead := "Alice <alice@example.com>\nUpdate German (de) localization of App"
	if head != wantHead {
		t.Errorf("remote head =\n%s\nwant\n%s", head, wantHead)
	}
	if got := git(t, f.remote, "show", "main:de/app.properties"); !strings.Contains(got, "bye=Tschüss") || !strings.Contains(got, "hello=Hallo") {
		t.Errorf("pushed de/app.properties =\n%s", got)
	}
	if _, err := exec.Command("git", "-C", f.remote, "cat-file", "-e", "main:fr/app.properties").CombinedOutput(); err == nil {
		t.Error("fr/app.properties should not be committed")
	}

	// Fourth pass: the pushed commit comes back as a change that matches the
	// store, so nothing is written.
	writes = f.st.Writes()
	report = f.sync(t, t3.Add(time.Hour))
	if n := report.Entities; n.Created+n.Updated+n.Obsoleted != 0 {
		t.Errorf("fourth pass changed entities: %+v", n)
	}
	if pulled, _, commits := report.Totals(); pulled != 0 || commits != 0 {
		t.Errorf("fourth pass pulled %d and committed %d", pulled, commits)
	}
	if got := f.st.Writes() - writes; got > 2 {
		t.Errorf("fourth pass made %d store writes, want at most the checkpoint", got)
	}
}

func TestSyncProjectCommitFailureKeepsStoreEdits(t *testing.T) {
	f := newFixture(t, appFiles)
	ctx := context.Background()
	t1, t2, t3 := base, base.Add(time.Hour), base.Add(2*time.Hour)
	f.sync(t, t1)

	alice := &store.User{Name: "Alice", Email: "alice@example.com"}
	if err := f.st.CreateUser(ctx, alice); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	edit := t1.Add(time.Minute)
	err := f.st.Apply(ctx, &store.ChangeBatch{ProjectID: f.project.ID, CreateTranslations: []*store.Translation{{
		EntityID: f.entity(t, "bye").ID, Locale: "de", PluralForm: l10n.NoPlural, String: "Tschüss",
		Approved: true, Date: edit, ApprovedDate: edit, User: alice,
	}}})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	// The remote refuses every push.
	hook := filepath.Join(f.remote, "hooks", "pre-receive")
	if err := os.MkdirAll(filepath.Dir(hook), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(hook, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	report := f.sync(t, t2)
	if !errors.Is(report.FailedLocales["de"], vcs.ErrCommitFailed) {
		t.Fatalf("de error = %v, want ErrCommitFailed", report.FailedLocales["de"])
	}
	p, err := f.st.Project(ctx, "app")
	if err != nil {
		t.Fatalf("Project() failed: %v", err)
	}
	if !p.LastSyncedAt.Equal(t1) {
		t.Errorf("LastSyncedAt = %v, want %v after a failed commit", p.LastSyncedAt, t1)
	}

	// The remote accepts pushes again and someone edits the German file.
	if err := os.Remove(hook); err != nil {
		t.Fatal(err)
	}
	clone := filepath.Join(t.TempDir(), "clone")
	git(t, filepath.Dir(clone), "clone", "--branch", "main", f.remote, clone)
	if err := os.WriteFile(filepath.Join(clone, "de", "app.properties"), []byte("hello=Servus\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	git(t, clone, "commit", "-am", "Update hello")
	git(t, clone, "push", "origin", "HEAD:main")

	report = f.sync(t, t3)
	if len(report.FailedLocales) != 0 {
		t.Fatalf("FailedLocales = %v, want none", report.FailedLocales)
	}
	got := git(t, f.remote, "show", "main:de/app.properties")
	for _, want := range []string{"hello=Servus", "bye=Tschüss"} {
		if !strings.Contains(got, want) {
			t.Errorf("pushed de/app.properties missing %q:\n%s", want, got)
		}
	}
	approved := false
	for _, tr := range f.st.Translations(f.entity(t, "bye").ID, "de") {
		if tr.String == "Tschüss" && tr.Approved {
			approved = true
		}
	}
	if !approved {
		t.Error("the approved store edit was lost after the failed commit")
	}
	if p, err = f.st.Project(ctx, "app"); err != nil {
		t.Fatalf("Project() failed: %v", err)
	}
	if !p.LastSyncedAt.Equal(t3) {
		t.Errorf("LastSyncedAt = %v, want %v", p.LastSyncedAt, t3)
	}
}

func TestSyncProjectDryRun(t *testing.T) {
	f := newFixture(t, appFiles)
	f.engine.Options.DryRun = true
	writes := f.st.Writes()

	report := f.sync(t, base)
	if !report.DryRun || report.Entities.Created != 2 {
		t.Errorf("dry run = %+v, want 2 planned entities", report)
	}
	if got := f.st.Writes(); got != writes {
		t.Errorf("dry run made %d store writes", got-writes)
	}
}

func TestSyncProjectSourcePullFailure(t *testing.T) {
	f := newFixture(t, appFiles)
	ctx := context.Background()
	repos, err := f.st.Repositories(ctx, f.project.ID)
	if err != nil {
		t.Fatalf("Repositories() failed: %v", err)
	}
	// Point a fresh project at a repository that does not exist.
	p := &store.Project{Slug: "broken", Name: "Broken"}
	if err := f.st.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	bad := *repos[0]
	bad.ProjectID, bad.URL = p.ID, filepath.Join(t.TempDir(), "missing.git")
	if err := f.st.CreateRepository(ctx, &bad); err != nil {
		t.Fatalf("CreateRepository() failed: %v", err)
	}

	writes := f.st.Writes()
	_, err = f.engine.SyncProject(ctx, "broken")
	if !errors.Is(err, vcs.ErrPullFailed) {
		t.Fatalf("SyncProject() error = %v, want ErrPullFailed", err)
	}
	if f.st.Writes() != writes {
		t.Error("an aborted pass wrote to the store")
	}
}

func TestSyncProjectTargetPullFailure(t *testing.T) {
	f := newFixture(t, appFiles)
	ctx := context.Background()
	target := &store.Repository{ProjectID: f.project.ID, Type: vcs.TypeGit, Role: store.RoleTarget,
		URL: filepath.Join(t.TempDir(), "missing-{locale_code}.git"), Branch: "main"}
	if err := f.st.CreateRepository(ctx, target); err != nil {
		t.Fatalf("CreateRepository() failed: %v", err)
	}

	report := f.sync(t, base)
	if got := report.Failed(); len(got) != 2 || got[0] != "de" || got[1] != "fr" {
		t.Errorf("Failed() = %v, want de and fr", got)
	}
	if report.Entities.Created != 2 {
		t.Errorf("entities created = %d, want the source still synced", report.Entities.Created)
	}
	if !errors.Is(report.FailedLocales["de"], vcs.ErrPullFailed) {
		t.Errorf("de error = %v, want ErrPullFailed", report.FailedLocales["de"])
	}
	if report.SyncLogID == "" {
		t.Error("a pass with failures should be logged")
	}
}

func TestSyncProjectLocked(t *testing.T) {
	f := newFixture(t, appFiles)
	lock := flock.New(f.engine.lockPath("app"))
	if ok, err := lock.TryLock(); !ok || err != nil {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, err := f.engine.SyncProject(ctx, "app"); !errors.Is(err, ErrLocked) {
		t.Errorf("SyncProject() error = %v, want ErrLocked", err)
	}
}

func TestSyncProjectUnknown(t *testing.T) {
	f := newFixture(t, appFiles)
	if _, err := f.engine.SyncProject(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SyncProject() error = %v, want ErrNotFound", err)
	}
}
