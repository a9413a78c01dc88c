package hg

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/steveyegge/locsync/internal/vcs"
)

func TestParseIdentify(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{"clean", "8a2f1c0e9b7d6a5f4e3d2c1b0a9f8e7d6c5b4a39 tip\n", "8a2f1c0e9b7d6a5f4e3d2c1b0a9f8e7d6c5b4a39"},
		{"dirty", "8a2f1c0e9b7d6a5f4e3d2c1b0a9f8e7d6c5b4a39+\n", "8a2f1c0e9b7d6a5f4e3d2c1b0a9f8e7d6c5b4a39"},
		{"empty repository", "0000000000000000000000000000000000000000 tip\n", ""},
		{"no output", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseIdentify([]byte(tt.output)); got != tt.want {
				t.Errorf("parseIdentify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusParsing(t *testing.T) {
	output := []byte("M locales/de/app.po\nA locales/fr/app.po\nR locales/en-US/old.po\n")
	got := vcs.ParseStatusLines(output, "R")
	want := &vcs.Changes{
		Modified: []string{"locales/de/app.po", "locales/fr/app.po"},
		Removed:  []string{"locales/en-US/old.po"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseStatusLines() mismatch (-want +got):\n%s", diff)
	}
}

func TestRejectedPush(t *testing.T) {
	err := errors.New("hg push: exit status 255: abort: push creates new remote head 3f2a1b!")
	if !isRejected(err) {
		t.Error("new remote head should be reported as rejected")
	}
	if isRejected(errors.New("abort: HTTP Error 500")) {
		t.Error("server error reported as rejected")
	}
}

func TestRoundTrip(t *testing.T) {
	if !vcs.IsAvailable(vcs.TypeHg) {
		t.Skip("hg not installed")
	}
	t.Setenv("HGUSER", "Test User <test@example.com>")
	ctx := context.Background()
	root := t.TempDir()
	remote := filepath.Join(root, "remote")
	if out, err := exec.Command("hg", "init", remote).CombinedOutput(); err != nil {
		t.Fatalf("hg init failed: %v\n%s", err, out)
	}

	h := New()
	target := filepath.Join(root, "checkout")
	if err := h.Pull(ctx, vcs.PullOptions{Source: remote, Target: target}); err != nil {
		t.Fatalf("Pull() failed: %v", err)
	}
	if rev, err := h.Revision(ctx, target); err != nil || rev != "" {
		t.Fatalf("Revision() of empty repository = %q, %v", rev, err)
	}

	if err := os.WriteFile(filepath.Join(target, "app.po"), []byte("msgid \"a\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := h.Commit(ctx, vcs.CommitOptions{Path: target, Message: "first", Author: "Jane Doe <jane@example.com>"})
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	first, err := h.Revision(ctx, target)
	if err != nil || first == "" {
		t.Fatalf("Revision() = %q, %v", first, err)
	}

	if err := os.WriteFile(filepath.Join(target, "app.po"), []byte("msgid \"b\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := h.Commit(ctx, vcs.CommitOptions{Path: target, Message: "second"}); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	changes, err := h.ChangedFiles(ctx, target, first)
	if err != nil {
		t.Fatalf("ChangedFiles() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"app.po"}, changes.Modified); diff != "" {
		t.Errorf("ChangedFiles() mismatch (-want +got):\n%s", diff)
	}

	if err := h.Commit(ctx, vcs.CommitOptions{Path: target, Message: "noop"}); !errors.Is(err, vcs.ErrNothingToCommit) {
		t.Errorf("Commit() on clean working copy: err = %v, want ErrNothingToCommit", err)
	}
}
