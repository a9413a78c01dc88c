// Package storetest holds behavior tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/store"
	"github.com/steveyegge/locsync/internal/vcs"
)

// Factory returns a fresh, empty store. The store is closed by the tests.
type Factory func(t *testing.T) store.Store

// Run runs the shared suite against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Projects", testProjects},
		{"Repositories", testRepositories},
		{"Locales", testLocales},
		{"ApplyCreatesEntitiesAndResources", testApplyCreates},
		{"ApplyUpdates", testApplyUpdates},
		{"ApplyUnknownTranslationIsAtomic", testApplyAtomic},
		{"ChangedEntities", testChangedEntities},
		{"PendingResources", testPendingResources},
		{"SyncedRevisions", testSyncedRevisions},
		{"UpsertResources", testUpsertResources},
		{"SyncLogs", testSyncLogs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seedProject(t *testing.T, s store.Store) *store.Project {
	t.Helper()
	p := &store.Project{Slug: "firefox", Name: "Firefox"}
	if err := s.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	if p.ID == 0 {
		t.Fatal("CreateProject() did not assign an ID")
	}
	return p
}

func seedEntity(t *testing.T, s store.Store, projectID int64, path, key string) *store.Entity {
	t.Helper()
	e := &store.Entity{
		ResourcePath: path,
		Key:          key,
		String:       "Hello " + key,
		Comments:     []string{"greeting"},
		Source:       []string{"main.c:12"},
		DateCreated:  base,
	}
	batch := &store.ChangeBatch{ProjectID: projectID, CreateEntities: []*store.Entity{e}}
	if err := s.Apply(context.Background(), batch); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	return e
}

func testProjects(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)

	got, err := s.Project(ctx, "firefox")
	if err != nil {
		t.Fatalf("Project() failed: %v", err)
	}
	if got.ID != p.ID || got.Name != "Firefox" || !got.LastSyncedAt.IsZero() {
		t.Errorf("Project() = %+v", got)
	}

	if _, err := s.Project(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Project(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.CreateProject(ctx, &store.Project{Slug: "firefox"}); !errors.Is(err, store.ErrExists) {
		t.Errorf("duplicate CreateProject() error = %v, want ErrExists", err)
	}

	if err := s.SetLastSynced(ctx, p.ID, base); err != nil {
		t.Fatalf("SetLastSynced() failed: %v", err)
	}
	if err := s.CreateProject(ctx, &store.Project{Slug: "aurora", Name: "Aurora"}); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}

	all, err := s.Projects(ctx)
	if err != nil {
		t.Fatalf("Projects() failed: %v", err)
	}
	if len(all) != 2 || all[0].Slug != "aurora" || all[1].Slug != "firefox" {
		t.Fatalf("Projects() = %+v, want aurora then firefox", all)
	}
	if !all[1].LastSyncedAt.Equal(base) {
		t.Errorf("LastSyncedAt = %v, want %v", all[1].LastSyncedAt, base)
	}
}

func testRepositories(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)

	target := &store.Repository{ProjectID: p.ID, Type: vcs.TypeGit, Role: store.RoleTarget, URL: "https://example.com/l10n/{locale_code}"}
	source := &store.Repository{ProjectID: p.ID, Type: vcs.TypeHg, Role: store.RoleSource, URL: "https://example.com/src", Branch: "default"}
	for _, r := range []*store.Repository{target, source} {
		if err := s.CreateRepository(ctx, r); err != nil {
			t.Fatalf("CreateRepository() failed: %v", err)
		}
	}

	bad := &store.Repository{ProjectID: p.ID, Type: "cvs", Role: store.RoleSource, URL: "x"}
	if err := s.CreateRepository(ctx, bad); err == nil {
		t.Error("CreateRepository() with unknown type should fail")
	}

	repos, err := s.Repositories(ctx, p.ID)
	if err != nil {
		t.Fatalf("Repositories() failed: %v", err)
	}
	want := []*store.Repository{source, target}
	if diff := cmp.Diff(want, repos); diff != "" {
		t.Errorf("Repositories() mismatch (-want +got):\n%s", diff)
	}
}

func testLocales(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)

	sl := &l10n.Locale{Code: "sl", Name: "Slovenian", CLDRPlurals: []int{l10n.CLDROne, l10n.CLDRTwo, l10n.CLDRFew, l10n.CLDROther}, Direction: "ltr"}
	if err := s.CreateLocale(ctx, sl); err != nil {
		t.Fatalf("CreateLocale() failed: %v", err)
	}
	if err := s.CreateLocale(ctx, sl); !errors.Is(err, store.ErrExists) {
		t.Errorf("duplicate CreateLocale() error = %v, want ErrExists", err)
	}

	for _, code := range []string{"sl", "de", "sl"} {
		if err := s.EnableLocale(ctx, p.ID, code, base); err != nil {
			t.Fatalf("EnableLocale(%s) failed: %v", code, err)
		}
	}

	locales, err := s.Locales(ctx, p.ID)
	if err != nil {
		t.Fatalf("Locales() failed: %v", err)
	}
	if len(locales) != 2 {
		t.Fatalf("Locales() returned %d locales, want 2", len(locales))
	}
	if locales[0].Code != "de" || locales[0].NPlurals() != 2 {
		t.Errorf("locales[0] = %+v, want de with 2 plural forms", locales[0])
	}
	if diff := cmp.Diff(sl, locales[1]); diff != "" {
		t.Errorf("locales[1] mismatch (-want +got):\n%s", diff)
	}
}

func testApplyCreates(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)
	user := &store.User{Name: "Ana", Email: "ana@example.com"}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}

	e := seedEntity(t, s, p.ID, "app.po", "hello")
	if e.ID == 0 || e.ResourceID == 0 {
		t.Fatalf("Apply() did not assign IDs: %+v", e)
	}

	tr := &store.Translation{EntityID: e.ID, Locale: "de", PluralForm: l10n.NoPlural, String: "Hallo", Approved: true, Date: base, ApprovedDate: base, User: user}
	if err := s.Apply(ctx, &store.ChangeBatch{ProjectID: p.ID, CreateTranslations: []*store.Translation{tr}}); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if tr.ID == 0 {
		t.Fatal("Apply() did not assign a translation ID")
	}

	entities, err := s.Entities(ctx, p.ID, "de")
	if err != nil {
		t.Fatalf("Entities() failed: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("Entities() returned %d entities, want 1", len(entities))
	}
	got := entities[0]
	if got.ResourcePath != "app.po" || got.Key != "hello" || !got.DateCreated.Equal(base) {
		t.Errorf("entity = %+v", got)
	}
	if diff := cmp.Diff([]string{"greeting"}, got.Comments); diff != "" {
		t.Errorf("Comments mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]*store.Translation{tr}, got.Translations); diff != "" {
		t.Errorf("Translations mismatch (-want +got):\n%s", diff)
	}

	other, err := s.Entities(ctx, p.ID, "fr")
	if err != nil {
		t.Fatalf("Entities(fr) failed: %v", err)
	}
	if len(other[0].Translations) != 0 {
		t.Errorf("Entities(fr) loaded %d translations, want 0", len(other[0].Translations))
	}

	resources, err := s.Resources(ctx, p.ID)
	if err != nil {
		t.Fatalf("Resources() failed: %v", err)
	}
	if len(resources) != 1 || resources[0].Path != "app.po" || resources[0].ID != e.ResourceID {
		t.Errorf("Resources() = %+v", resources)
	}
}

func testApplyUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)
	e := seedEntity(t, s, p.ID, "app.po", "hello")

	tr := &store.Translation{EntityID: e.ID, Locale: "de", PluralForm: l10n.NoPlural, String: "Hallo", Approved: true, Date: base}
	if err := s.Apply(ctx, &store.ChangeBatch{ProjectID: p.ID, CreateTranslations: []*store.Translation{tr}}); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	later := base.Add(time.Hour)
	e.Obsolete = true
	e.String = "Hello there"
	tr.Approved = false
	tr.Rejected = true
	tr.RejectedDate = later
	tr.UnapprovedDate = later
	batch := &store.ChangeBatch{ProjectID: p.ID, UpdateEntities: []*store.Entity{e}, UpdateTranslations: []*store.Translation{tr}}
	if err := s.Apply(ctx, batch); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	entities, err := s.Entities(ctx, p.ID, "de")
	if err != nil {
		t.Fatalf("Entities() failed: %v", err)
	}
	got := entities[0]
	if !got.Obsolete || got.String != "Hello there" {
		t.Errorf("entity not updated: %+v", got)
	}
	if diff := cmp.Diff([]*store.Translation{tr}, got.Translations); diff != "" {
		t.Errorf("Translations mismatch (-want +got):\n%s", diff)
	}
}

func testApplyAtomic(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)
	e := seedEntity(t, s, p.ID, "app.po", "hello")

	batch := &store.ChangeBatch{
		ProjectID:          p.ID,
		CreateTranslations: []*store.Translation{{EntityID: e.ID, Locale: "de", PluralForm: l10n.NoPlural, String: "Hallo", Approved: true, Date: base}},
		UpdateTranslations: []*store.Translation{{ID: 99999, EntityID: e.ID, Locale: "de", String: "x"}},
	}
	if err := s.Apply(ctx, batch); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Apply() error = %v, want ErrNotFound", err)
	}

	entities, err := s.Entities(ctx, p.ID, "de")
	if err != nil {
		t.Fatalf("Entities() failed: %v", err)
	}
	if n := len(entities[0].Translations); n != 0 {
		t.Errorf("failed Apply() left %d translations behind", n)
	}
}

func testChangedEntities(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)
	old := seedEntity(t, s, p.ID, "app.po", "old")
	fresh := seedEntity(t, s, p.ID, "app.po", "fresh")
	rejected := seedEntity(t, s, p.ID, "app.po", "rejected")

	since := base.Add(time.Minute)
	later := since.Add(time.Second)
	batch := &store.ChangeBatch{ProjectID: p.ID, CreateTranslations: []*store.Translation{
		{EntityID: old.ID, Locale: "de", PluralForm: l10n.NoPlural, String: "a", Approved: true, Date: base},
		{EntityID: fresh.ID, Locale: "de", PluralForm: l10n.NoPlural, String: "b", Approved: true, Date: later},
		{EntityID: rejected.ID, Locale: "de", PluralForm: l10n.NoPlural, String: "c", Rejected: true, Date: base, RejectedDate: later},
		{EntityID: old.ID, Locale: "fr", PluralForm: l10n.NoPlural, String: "d", Approved: true, Date: later},
	}}
	if err := s.Apply(ctx, batch); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	changed, err := s.ChangedEntities(ctx, p.ID, "de", since)
	if err != nil {
		t.Fatalf("ChangedEntities() failed: %v", err)
	}
	want := map[int64]bool{fresh.ID: true, rejected.ID: true}
	if diff := cmp.Diff(want, changed); diff != "" {
		t.Errorf("ChangedEntities() mismatch (-want +got):\n%s", diff)
	}

	all, err := s.ChangedEntities(ctx, p.ID, "de", time.Time{})
	if err != nil {
		t.Fatalf("ChangedEntities() failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ChangedEntities(zero) = %v, want all three", all)
	}
}

func testPendingResources(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)
	a := seedEntity(t, s, p.ID, "a.po", "a")
	seedEntity(t, s, p.ID, "b.po", "b")
	if err := s.EnableLocale(ctx, p.ID, "de", base); err != nil {
		t.Fatalf("EnableLocale() failed: %v", err)
	}

	since := base.Add(time.Minute)
	batch := &store.ChangeBatch{ProjectID: p.ID, CreateTranslations: []*store.Translation{
		{EntityID: a.ID, Locale: "de", PluralForm: l10n.NoPlural, String: "x", Approved: true, Date: since.Add(time.Second)},
	}}
	if err := s.Apply(ctx, batch); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	pending, err := s.PendingResources(ctx, p.ID, since)
	if err != nil {
		t.Fatalf("PendingResources() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a.po"}, pending); diff != "" {
		t.Errorf("PendingResources() mismatch (-want +got):\n%s", diff)
	}

	// A newly enabled locale makes every resource pending.
	if err := s.EnableLocale(ctx, p.ID, "fr", since.Add(time.Minute)); err != nil {
		t.Fatalf("EnableLocale() failed: %v", err)
	}
	pending, err = s.PendingResources(ctx, p.ID, since)
	if err != nil {
		t.Fatalf("PendingResources() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a.po", "b.po"}, pending); diff != "" {
		t.Errorf("PendingResources() after enabling mismatch (-want +got):\n%s", diff)
	}
}

func testSyncedRevisions(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)
	r := &store.Repository{ProjectID: p.ID, Type: vcs.TypeGit, Role: store.RoleSource, URL: "https://example.com/src"}
	if err := s.CreateRepository(ctx, r); err != nil {
		t.Fatalf("CreateRepository() failed: %v", err)
	}

	if rev, err := s.LastSyncedRevision(ctx, r.ID, ""); err != nil || rev != "" {
		t.Fatalf("LastSyncedRevision() = %q, %v; want empty", rev, err)
	}
	for _, rev := range []string{"abc", "def"} {
		if err := s.RecordSyncedRevision(ctx, r.ID, "", rev); err != nil {
			t.Fatalf("RecordSyncedRevision() failed: %v", err)
		}
	}
	if err := s.RecordSyncedRevision(ctx, r.ID, "de", "123"); err != nil {
		t.Fatalf("RecordSyncedRevision() failed: %v", err)
	}

	if rev, _ := s.LastSyncedRevision(ctx, r.ID, ""); rev != "def" {
		t.Errorf("LastSyncedRevision() = %q, want def", rev)
	}
	if rev, _ := s.LastSyncedRevision(ctx, r.ID, "de"); rev != "123" {
		t.Errorf("LastSyncedRevision(de) = %q, want 123", rev)
	}
}

func testUpsertResources(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)
	e := seedEntity(t, s, p.ID, "app.po", "hello")

	resources := []*store.Resource{
		{Path: "app.po", Format: "po", TotalStrings: 1},
		{Path: "menu.ftl", Format: "ftl", TotalStrings: 4},
	}
	if err := s.UpsertResources(ctx, p.ID, resources); err != nil {
		t.Fatalf("UpsertResources() failed: %v", err)
	}
	if resources[0].ID != e.ResourceID {
		t.Errorf("existing resource got ID %d, want %d", resources[0].ID, e.ResourceID)
	}

	got, err := s.Resources(ctx, p.ID)
	if err != nil {
		t.Fatalf("Resources() failed: %v", err)
	}
	if diff := cmp.Diff(resources, got); diff != "" {
		t.Errorf("Resources() mismatch (-want +got):\n%s", diff)
	}
}

func testSyncLogs(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)

	first := &store.SyncLog{ID: "first", ProjectID: p.ID, StartedAt: base, FinishedAt: base.Add(time.Second), Summary: "1 entity"}
	second := &store.SyncLog{
		ID:               "second",
		ProjectID:        p.ID,
		StartedAt:        base.Add(time.Hour),
		FinishedAt:       base.Add(time.Hour + time.Second),
		SkippedResources: []string{"broken.po"},
		FailedLocales:    map[string]string{"fr": "push rejected"},
		Summary:          "2 translations",
	}
	for _, l := range []*store.SyncLog{first, second} {
		if err := s.RecordSyncLog(ctx, l); err != nil {
			t.Fatalf("RecordSyncLog() failed: %v", err)
		}
	}

	logs, err := s.SyncLogs(ctx, p.ID, 1)
	if err != nil {
		t.Fatalf("SyncLogs() failed: %v", err)
	}
	if diff := cmp.Diff([]*store.SyncLog{second}, logs); diff != "" {
		t.Errorf("SyncLogs() mismatch (-want +got):\n%s", diff)
	}

	logs, err = s.SyncLogs(ctx, p.ID, 0)
	if err != nil {
		t.Fatalf("SyncLogs() failed: %v", err)
	}
	if len(logs) != 2 || logs[1].ID != "first" {
		t.Errorf("SyncLogs(0) = %+v, want both, newest first", logs)
	}
}
