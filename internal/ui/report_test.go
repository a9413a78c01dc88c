package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/steveyegge/locsync/internal/changeset"
	"github.com/steveyegge/locsync/internal/store"
	locsync "github.com/steveyegge/locsync/internal/sync"
)

func init() {
	SetColor(false)
}

func TestRenderReport(t *testing.T) {
	r := &locsync.Report{
		Project:          "app",
		Entities:         changeset.Result{Created: 2},
		SkippedResources: []string{"broken.json"},
		FailedLocales:    map[string]error{"it": errors.New("pull failed")},
		Locales: []locsync.LocaleSummary{
			{Code: "de", Pulled: 1, Pushed: 1, Committed: true, CommitAuthor: "Alice <a@x>"},
			{Code: "fr"},
		},
		Duration: 1500 * time.Millisecond,
	}

	var b strings.Builder
	RenderReport(&b, r)

	want := strings.Join([]string{
		"⚠ app: entities +2 ~0 -0, pulled 1, pushed 1, 1 commits, 1 skipped, failed: it",
		"   locale  pulled  pushed  commit",
		"   de      1       1       Alice <a@x>",
		"   ✗ it: pull failed",
		"   ⚠ skipped broken.json",
		"   took 1.5s",
		"",
	}, "\n")
	if diff := cmp.Diff(want, b.String()); diff != "" {
		t.Errorf("RenderReport() mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderReportNoOp(t *testing.T) {
	var b strings.Builder
	RenderReport(&b, &locsync.Report{Project: "app", NoOp: true})
	if got := b.String(); got != "✓ app: nothing to do\n" {
		t.Errorf("RenderReport() = %q", got)
	}
}

func TestRenderProjects(t *testing.T) {
	var b strings.Builder
	RenderProjects(&b, []*store.Project{
		{Slug: "firefox", Name: "Firefox", LastSyncedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{Slug: "app", Name: "App"},
	})
	want := "   slug     name     last synced\n" +
		"   firefox  Firefox  2024-03-01 12:00:00Z\n" +
		"   app      App      never\n"
	if diff := cmp.Diff(want, b.String()); diff != "" {
		t.Errorf("RenderProjects() mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderSyncLogs(t *testing.T) {
	p := &store.Project{Slug: "app"}
	logs := []*store.SyncLog{
		{StartedAt: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), Summary: "entities +0 ~1 -0", FailedLocales: map[string]string{"fr": "x"}},
		{StartedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Summary: "entities +2 ~0 -0"},
	}
	var b strings.Builder
	RenderSyncLogs(&b, p, logs)
	want := "● app (last synced never)\n" +
		"   ⚠ 2024-03-02 00:00:00Z  entities +0 ~1 -0\n" +
		"   ✓ 2024-03-01 00:00:00Z  entities +2 ~0 -0\n"
	if diff := cmp.Diff(want, b.String()); diff != "" {
		t.Errorf("RenderSyncLogs() mismatch (-want +got):\n%s", diff)
	}
}

func TestColorToggle(t *testing.T) {
	if got := RenderPass("ok"); got != "ok" {
		t.Errorf("RenderPass() with colour off = %q", got)
	}
}
