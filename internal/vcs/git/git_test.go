package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/steveyegge/locsync/internal/vcs"
)

func requireGit(t *testing.T) {
	t.Helper()
	if !vcs.IsAvailable(vcs.TypeGit) {
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

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// setupRemote creates a bare repository with one commit on main and returns
// its path.
func setupRemote(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	remote := filepath.Join(root, "remote.git")
	seed := filepath.Join(root, "seed")

	git(t, root, "init", "--bare", remote)
	git(t, root, "init", seed)
	writeFile(t, filepath.Join(seed, "en-US", "app.po"), "msgid \"Hello\"\nmsgstr \"\"\n")
	writeFile(t, filepath.Join(seed, "de", "app.po"), "msgid \"Hello\"\nmsgstr \"Hallo\"\n")
	git(t, seed, "add", "-A")
	git(t, seed, "commit", "-m", "initial")
	git(t, seed, "push", remote, "HEAD:refs/heads/main")
	git(t, remote, "symbolic-ref", "HEAD", "refs/heads/main")
	return remote
}

func TestName(t *testing.T) {
	if New().Name() != vcs.TypeGit {
		t.Errorf("Name() = %v, want %v", New().Name(), vcs.TypeGit)
	}
}

func TestRegistered(t *testing.T) {
	v, err := vcs.New(vcs.TypeGit)
	if err != nil {
		t.Fatalf("vcs.New() failed: %v", err)
	}
	if _, ok := v.(*Git); !ok {
		t.Errorf("vcs.New(git) = %T, want *Git", v)
	}
}

func TestPullClonesAndResets(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := setupRemote(t)
	target := filepath.Join(t.TempDir(), "checkouts", "app")
	g := New()

	if err := g.Pull(ctx, vcs.PullOptions{Source: remote, Target: target, Branch: "main"}); err != nil {
		t.Fatalf("Pull() clone failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "de", "app.po")); err != nil {
		t.Fatalf("cloned file missing: %v", err)
	}

	// Local edits are discarded by the next pull.
	writeFile(t, filepath.Join(target, "de", "app.po"), "garbage")
	writeFile(t, filepath.Join(target, "stray.txt"), "x")
	if err := g.Pull(ctx, vcs.PullOptions{Source: remote, Target: target, Branch: "main"}); err != nil {
		t.Fatalf("Pull() update failed: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(target, "de", "app.po"))
	if !strings.Contains(string(data), "Hallo") {
		t.Errorf("local edit survived pull: %q", data)
	}
	if _, err := os.Stat(filepath.Join(target, "stray.txt")); !os.IsNotExist(err) {
		t.Error("untracked file survived pull")
	}
}

func TestPullFailure(t *testing.T) {
	requireGit(t)
	err := New().Pull(context.Background(), vcs.PullOptions{
		Source: filepath.Join(t.TempDir(), "does-not-exist"),
		Target: filepath.Join(t.TempDir(), "app"),
	})
	var perr *vcs.PullError
	if !errors.As(err, &perr) || !errors.Is(err, vcs.ErrPullFailed) {
		t.Fatalf("Pull() err = %v, want *PullError", err)
	}
}

func TestCommitAndChangedFiles(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := setupRemote(t)
	target := filepath.Join(t.TempDir(), "app")
	g := New()

	if err := g.Pull(ctx, vcs.PullOptions{Source: remote, Target: target, Branch: "main"}); err != nil {
		t.Fatalf("Pull() failed: %v", err)
	}
	before, err := g.Revision(ctx, target)
	if err != nil || before == "" {
		t.Fatalf("Revision() = %q, %v", before, err)
	}

	err = g.Commit(ctx, vcs.CommitOptions{Path: target, Message: "noop", Branch: "main"})
	if !errors.Is(err, vcs.ErrNothingToCommit) {
		t.Fatalf("Commit() on clean tree: err = %v, want ErrNothingToCommit", err)
	}

	writeFile(t, filepath.Join(target, "de", "app.po"), "msgid \"Hello\"\nmsgstr \"Hallo!\"\n")
	writeFile(t, filepath.Join(target, "fr", "app.po"), "msgid \"Hello\"\nmsgstr \"Bonjour\"\n")
	if err := os.Remove(filepath.Join(target, "en-US", "app.po")); err != nil {
		t.Fatal(err)
	}
	err = g.Commit(ctx, vcs.CommitOptions{
		Path:    target,
		Message: "Update German (de) localization of App",
		Author:  "Jane Doe <jane@example.com>",
		Branch:  "main",
	})
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	if got := git(t, remote, "log", "-1", "--format=%an <%ae>|%s", "main"); got != "Jane Doe <jane@example.com>|Update German (de) localization of App" {
		t.Errorf("remote head = %q", got)
	}

	after, err := g.Revision(ctx, target)
	if err != nil || after == before {
		t.Fatalf("Revision() after commit = %q, %v", after, err)
	}

	changes, err := g.ChangedFiles(ctx, target, before)
	if err != nil {
		t.Fatalf("ChangedFiles() failed: %v", err)
	}
	want := &vcs.Changes{Modified: []string{"de/app.po", "fr/app.po"}, Removed: []string{"en-US/app.po"}}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Errorf("ChangedFiles() mismatch (-want +got):\n%s", diff)
	}

	// Scoped to a subdirectory, paths are relative to it.
	sub, err := g.ChangedFiles(ctx, filepath.Join(target, "de"), before)
	if err != nil {
		t.Fatalf("ChangedFiles() of subdirectory failed: %v", err)
	}
	if diff := cmp.Diff([]string{"app.po"}, sub.Modified); diff != "" {
		t.Errorf("subdirectory changes mismatch (-want +got):\n%s", diff)
	}
}

func TestChangedFilesUnknownRevision(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := setupRemote(t)
	target := filepath.Join(t.TempDir(), "app")
	g := New()
	if err := g.Pull(ctx, vcs.PullOptions{Source: remote, Target: target}); err != nil {
		t.Fatalf("Pull() failed: %v", err)
	}

	for _, since := range []string{"", strings.Repeat("a", 40)} {
		changes, err := g.ChangedFiles(ctx, target, since)
		if err != nil || changes != nil {
			t.Errorf("ChangedFiles(%q) = %v, %v, want nil, nil", since, changes, err)
		}
	}
}

func TestRevisionEmptyRepository(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	git(t, dir, "init")
	rev, err := New().Revision(context.Background(), dir)
	if err != nil || rev != "" {
		t.Errorf("Revision() = %q, %v, want empty", rev, err)
	}

	if _, err := New().Revision(context.Background(), t.TempDir()); !errors.Is(err, vcs.ErrNotInVCS) {
		t.Errorf("Revision() outside a repository: err = %v, want ErrNotInVCS", err)
	}
}

func TestPushRejected(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := setupRemote(t)
	first := filepath.Join(t.TempDir(), "first")
	second := filepath.Join(t.TempDir(), "second")
	g := New()

	for _, dir := range []string{first, second} {
		if err := g.Pull(ctx, vcs.PullOptions{Source: remote, Target: dir, Branch: "main"}); err != nil {
			t.Fatalf("Pull() failed: %v", err)
		}
	}

	writeFile(t, filepath.Join(first, "de", "app.po"), "first")
	if err := g.Commit(ctx, vcs.CommitOptions{Path: first, Message: "first", Branch: "main"}); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	writeFile(t, filepath.Join(second, "de", "app.po"), "second")
	err := g.Commit(ctx, vcs.CommitOptions{Path: second, Message: "second", Branch: "main"})
	if !errors.Is(err, vcs.ErrPushRejected) || !errors.Is(err, vcs.ErrCommitFailed) {
		t.Fatalf("Commit() err = %v, want rejected push", err)
	}
	var cerr *vcs.CommitError
	if !errors.As(err, &cerr) || !cerr.Rejected {
		t.Errorf("CommitError.Rejected not set: %#v", err)
	}
	if !vcs.IsRetryable(err) {
		t.Error("rejected push should be retryable")
	}

	// The next pull drops the unpushed commit.
	if err := g.Pull(ctx, vcs.PullOptions{Source: remote, Target: second, Branch: "main"}); err != nil {
		t.Fatalf("Pull() failed: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(second, "de", "app.po"))
	if string(data) != "first" {
		t.Errorf("after pull de/app.po = %q, want first", data)
	}
}

func TestCommitLimitedToFiles(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	remote := setupRemote(t)
	target := filepath.Join(t.TempDir(), "app")
	g := New()

	if err := g.Pull(ctx, vcs.PullOptions{Source: remote, Target: target, Branch: "main"}); err != nil {
		t.Fatalf("Pull() failed: %v", err)
	}
	writeFile(t, filepath.Join(target, "de", "app.po"), "msgid \"Hello\"\nmsgstr \"Servus\"\n")
	writeFile(t, filepath.Join(target, "fr", "app.po"), "msgid \"Hello\"\nmsgstr \"Salut\"\n")

	err := g.Commit(ctx, vcs.CommitOptions{Path: target, Message: "de only", Branch: "main", Files: []string{"de/app.po"}})
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	if got := git(t, remote, "show", "--name-only", "--format=", "main"); got != "de/app.po" {
		t.Errorf("committed files = %q, want de/app.po", got)
	}
	if got := git(t, target, "status", "--porcelain"); !strings.Contains(got, "fr/") {
		t.Errorf("fr/app.po should stay uncommitted, status = %q", got)
	}

	err = g.Commit(ctx, vcs.CommitOptions{Path: target, Message: "de again", Branch: "main", Files: []string{"de/app.po"}})
	if !errors.Is(err, vcs.ErrNothingToCommit) {
		t.Errorf("Commit() of clean files: err = %v, want ErrNothingToCommit", err)
	}
}
