package changeset

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	_ "github.com/steveyegge/locsync/internal/formats/all"
	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/project"
	"github.com/steveyegge/locsync/internal/store"
	"github.com/steveyegge/locsync/internal/store/memstore"
	"github.com/steveyegge/locsync/internal/vcs"
)

var (
	base  = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now   = base.Add(24 * time.Hour)
	quiet = log.New(io.Discard, "", 0)
)

func german() *l10n.Locale { return l10n.NewLocale("de", "German") }

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// fixture is a project on disk plus a store holding it.
type fixture struct {
	root    string
	st      *memstore.Store
	project *store.Project
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	f := &fixture{root: t.TempDir(), st: memstore.New()}
	writeTree(t, f.root, files)
	f.project = &store.Project{Slug: "app", Name: "App"}
	if err := f.st.CreateProject(context.Background(), f.project); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	return f
}

func (f *fixture) build(t *testing.T) *project.Project {
	t.Helper()
	b := &project.Builder{
		Checkouts: []project.Checkout{{Type: vcs.TypeGit, Role: store.RoleSource, Path: f.root}},
		Locales:   []*l10n.Locale{german()},
		Logger:    quiet,
	}
	p, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return p
}

func (f *fixture) entities(t *testing.T) []*store.Entity {
	t.Helper()
	entities, err := f.st.Entities(context.Background(), f.project.ID, "de")
	if err != nil {
		t.Fatalf("Entities() failed: %v", err)
	}
	return entities
}

// syncEntities runs the entity-level changeset and returns the reloaded
// entities.
func (f *fixture) syncEntities(t *testing.T, vp *project.Project) []*store.Entity {
	t.Helper()
	cs := New(f.project, vp, now, nil)
	cs.Logger = quiet
	PlanEntities(cs, f.entities(t), vp, vp.Scope)
	if _, err := cs.Execute(context.Background(), f.st); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	return f.entities(t)
}

func (f *fixture) apply(t *testing.T, batch *store.ChangeBatch) {
	t.Helper()
	batch.ProjectID = f.project.ID
	if err := f.st.Apply(context.Background(), batch); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
}

func (f *fixture) user(t *testing.T, name string) *store.User {
	t.Helper()
	u := &store.User{Name: name, Email: strings.ToLower(name) + "@example.com"}
	if err := f.st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return u
}

// pull plans and executes the de changeset with the store's changes since
// base.
func (f *fixture) pull(t *testing.T, vp *project.Project) (*ChangeSet, *Result) {
	t.Helper()
	changed, err := f.st.ChangedEntities(context.Background(), f.project.ID, "de", base)
	if err != nil {
		t.Fatalf("ChangedEntities() failed: %v", err)
	}
	cs := New(f.project, vp, now, vp.Locale("de"))
	cs.Logger = quiet
	PlanTranslations(cs, vp.Locale("de"), f.entities(t), vp, changed)
	result, err := cs.Execute(context.Background(), f.st)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	return cs, result
}

func byKey(entities []*store.Entity, key string) *store.Entity {
	for _, e := range entities {
		if e.Key == key {
			return e
		}
	}
	return nil
}

func TestPlanEntities(t *testing.T) {
	f := newFixture(t, map[string]string{
		"en-US/app.properties": "# Greeting\nhello=Hello\nbye=Bye\n",
	})
	f.apply(t, &store.ChangeBatch{CreateEntities: []*store.Entity{
		{ResourcePath: "app.properties", Key: "hello", String: "Hi", DateCreated: base},
		{ResourcePath: "app.properties", Key: "gone", String: "Gone", DateCreated: base},
		{ResourcePath: "app.properties", Key: "bye", String: "Bye", Order: 1, Obsolete: true, DateCreated: base},
		{ResourcePath: "menu.properties", Key: "file", String: "File", DateCreated: base},
	}})
	gone := byKey(f.entities(t), "gone")
	f.apply(t, &store.ChangeBatch{CreateTranslations: []*store.Translation{
		{EntityID: gone.ID, Locale: "de", PluralForm: l10n.NoPlural, String: "Weg", Approved: true, Date: base},
	}})

	vp := f.build(t)
	cs := New(f.project, vp, now, nil)
	PlanEntities(cs, f.entities(t), vp, vp.Scope)
	result, err := cs.Execute(context.Background(), f.st)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	want := Result{Revived: 1, Updated: 1, Obsoleted: 2}
	if diff := cmp.Diff(want, *result); diff != "" {
		t.Errorf("Result mismatch (-want +got):\n%s", diff)
	}

	entities := f.entities(t)
	if len(entities) != 4 {
		t.Fatalf("store holds %d entities, want 4", len(entities))
	}
	hello := byKey(entities, "hello")
	if hello.String != "Hello" || hello.Obsolete {
		t.Errorf("hello = %+v, want updated source", hello)
	}
	if diff := cmp.Diff([]string{"Greeting"}, hello.Comments); diff != "" {
		t.Errorf("hello comments mismatch (-want +got):\n%s", diff)
	}
	if bye := byKey(entities, "bye"); bye.Obsolete {
		t.Error("bye should be revived")
	}
	for _, key := range []string{"gone", "file"} {
		if !byKey(entities, key).Obsolete {
			t.Errorf("%s should be obsolete", key)
		}
	}

	// Obsoleting leaves translation history alone.
	if got := f.st.Translations(gone.ID, "de"); len(got) != 1 || !got[0].Approved {
		t.Errorf("translations of obsolete entity = %+v, want the approved one kept", got)
	}

	// A second pass over the same state queues nothing.
	writes := f.st.Writes()
	cs = New(f.project, vp, now, nil)
	PlanEntities(cs, f.entities(t), vp, vp.Scope)
	if cs.Len() != 0 {
		t.Errorf("second plan queued %d writes, want 0", cs.Len())
	}
	if _, err := cs.Execute(context.Background(), f.st); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if f.st.Writes() != writes {
		t.Error("an empty changeset wrote to the store")
	}
}

func TestPlanEntitiesCreates(t *testing.T) {
	f := newFixture(t, map[string]string{
		"en-US/app.properties": "hello=Hello\nbye=Bye\n",
	})
	vp := f.build(t)
	entities := f.syncEntities(t, vp)

	if len(entities) != 2 {
		t.Fatalf("store holds %d entities, want 2", len(entities))
	}
	bye := byKey(entities, "bye")
	if bye.String != "Bye" || bye.Order != 1 || bye.ResourcePath != "app.properties" || !bye.DateCreated.Equal(now) {
		t.Errorf("bye = %+v", bye)
	}
}

func TestPlanEntitiesScope(t *testing.T) {
	f := newFixture(t, map[string]string{
		"en-US/app.properties": "hello=Hello\n",
		"en-US/broken.json":    `{"a": `,
	})
	f.apply(t, &store.ChangeBatch{CreateEntities: []*store.Entity{
		{ResourcePath: "menu.properties", Key: "file", String: "File", DateCreated: base},
		{ResourcePath: "broken.json", Key: "a", String: "A", DateCreated: base},
	}})
	vp := f.build(t)

	cs := New(f.project, vp, now, nil)
	PlanEntities(cs, f.entities(t), vp, map[string]bool{"app.properties": true})
	if _, err := cs.Execute(context.Background(), f.st); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if byKey(f.entities(t), "file").Obsolete {
		t.Error("out-of-scope entity was obsoleted")
	}

	cs = New(f.project, vp, now, nil)
	PlanEntities(cs, f.entities(t), vp, nil)
	if _, err := cs.Execute(context.Background(), f.st); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	entities := f.entities(t)
	if !byKey(entities, "file").Obsolete {
		t.Error("entity of a removed resource should be obsolete in a full pass")
	}
	if byKey(entities, "a").Obsolete {
		t.Error("entity of an unparseable source was obsoleted")
	}
}

const potTemplate = `msgid ""
msgstr ""
"Content-Type: text/plain; charset=UTF-8\n"

msgid "Hello"
msgstr ""

msgid "One file"
msgid_plural "%d files"
msgstr[0] ""
msgstr[1] ""
`

const poGerman = `msgid ""
msgstr ""
"Content-Type: text/plain; charset=UTF-8\n"
"Language: de\n"
"Plural-Forms: nplurals=2; plural=(n != 1);\n"

msgid "Hello"
msgstr "Hallo"

msgid "One file"
msgid_plural "%d files"
msgstr[0] "Eine Datei"
msgstr[1] "%d Dateien"
`

func TestPullCreatesApprovedTranslationPerForm(t *testing.T) {
	f := newFixture(t, map[string]string{
		"templates/messages.pot": potTemplate,
		"de/messages.po":         poGerman,
	})
	vp := f.build(t)
	entities := f.syncEntities(t, vp)

	_, result := f.pull(t, vp)
	if result.TranslationsCreated != 3 || result.Pulled != 2 || len(result.ChangedResources) != 0 {
		t.Errorf("Result = %+v, want 3 translations created over 2 entities", result)
	}

	files := byKey(entities, "One file")
	if files.StringPlural != "%d files" {
		t.Errorf("StringPlural = %q", files.StringPlural)
	}
	got := f.st.Translations(files.ID, "de")
	if len(got) != 2 {
		t.Fatalf("got %d translations, want one per plural form", len(got))
	}
	forms := map[int]string{}
	for _, tr := range got {
		if !tr.Approved || tr.Fuzzy || tr.User != nil || !tr.Date.Equal(now) || !tr.ApprovedDate.Equal(now) {
			t.Errorf("translation = %+v, want approved by the sync process at now", tr)
		}
		forms[tr.PluralForm] = tr.String
	}
	if diff := cmp.Diff(map[int]string{0: "Eine Datei", 1: "%d Dateien"}, forms); diff != "" {
		t.Errorf("forms mismatch (-want +got):\n%s", diff)
	}

	hello := f.st.Translations(byKey(entities, "Hello").ID, "de")
	if len(hello) != 1 || hello[0].PluralForm != l10n.NoPlural || hello[0].String != "Hallo" {
		t.Errorf("Hello translations = %+v", hello)
	}

	// Pulling again finds everything in place.
	cs := New(f.project, vp, now, vp.Locale("de"))
	PlanTranslations(cs, vp.Locale("de"), f.entities(t), vp, nil)
	if cs.Len() != 0 {
		t.Errorf("second pull queued %d writes, want 0", cs.Len())
	}
}

func TestPullConflict(t *testing.T) {
	f := newFixture(t, map[string]string{
		"en-US/app.properties": "hello=Hello\n",
		"de/app.properties":    "hello=Servus\n",
	})
	vp := f.build(t)
	hello := byKey(f.syncEntities(t, vp), "hello")
	alice := f.user(t, "Alice")

	a := &store.Translation{EntityID: hello.ID, Locale: "de", PluralForm: l10n.NoPlural, String: "Hallo",
		Approved: true, Date: base.Add(-time.Hour), ApprovedDate: base.Add(-time.Hour), User: alice}
	suggestion := &store.Translation{EntityID: hello.ID, Locale: "de", PluralForm: l10n.NoPlural, String: "Grüß dich",
		Date: base.Add(-time.Hour), User: alice}
	f.apply(t, &store.ChangeBatch{CreateTranslations: []*store.Translation{a, suggestion}})

	_, result := f.pull(t, vp)
	if result.TranslationsCreated != 1 || result.TranslationsUpdated != 1 || result.Pulled != 1 {
		t.Errorf("Result = %+v", result)
	}

	byString := map[string]*store.Translation{}
	for _, tr := range f.st.Translations(hello.ID, "de") {
		byString[tr.String] = tr
	}
	if got := byString["Hallo"]; got.Approved || got.Fuzzy || !got.Rejected || !got.RejectedDate.Equal(now) || !got.UnapprovedDate.Equal(now) {
		t.Errorf("A = %+v, want rejected at now", got)
	}
	if got := byString["Servus"]; got == nil || !got.Approved || got.Rejected || got.User != nil {
		t.Errorf("B = %+v, want approved", got)
	}
	if got := byString["Grüß dich"]; got.Rejected || got.Approved || !got.RejectedDate.IsZero() {
		t.Errorf("suggestion = %+v, want untouched", got)
	}
}

func TestPullFuzzyFlagOnly(t *testing.T) {
	fuzzy := strings.Replace(poGerman, "msgid \"Hello\"", "#, fuzzy\nmsgid \"Hello\"", 1)
	f := newFixture(t, map[string]string{
		"templates/messages.pot": potTemplate,
		"de/messages.po":         fuzzy,
	})
	vp := f.build(t)
	hello := byKey(f.syncEntities(t, vp), "Hello")
	f.apply(t, &store.ChangeBatch{CreateTranslations: []*store.Translation{
		{EntityID: hello.ID, Locale: "de", PluralForm: l10n.NoPlural, String: "Hallo", Approved: true, Date: base, ApprovedDate: base},
	}})

	f.pull(t, vp)

	got := f.st.Translations(hello.ID, "de")
	if len(got) != 1 {
		t.Fatalf("got %d translations, want the existing one updated in place", len(got))
	}
	if tr := got[0]; tr.Approved || !tr.Fuzzy || tr.Rejected || !tr.UnapprovedDate.Equal(now) {
		t.Errorf("translation = %+v, want fuzzy and unapproved, not rejected", tr)
	}
}

func TestPullSkipsUntranslated(t *testing.T) {
	f := newFixture(t, map[string]string{
		"en-US/app.properties": "hello=Hello\nbye=Bye\n",
		"de/app.properties":    "hello=Hallo\n",
	})
	vp := f.build(t)
	entities := f.syncEntities(t, vp)
	f.apply(t, &store.ChangeBatch{CreateTranslations: []*store.Translation{
		{EntityID: byKey(entities, "hello").ID, Locale: "de", PluralForm: l10n.NoPlural, String: "Hallo", Approved: true, Date: base.Add(-time.Hour)},
		{EntityID: byKey(entities, "bye").ID, Locale: "de", PluralForm: l10n.NoPlural, String: "Tschüss", Approved: true, Date: base.Add(-time.Hour)},
	}})

	writes := f.st.Writes()
	cs, result := f.pull(t, vp)
	if result.Changed() || cs.Len() != 0 {
		t.Errorf("Result = %+v, want nothing changed", result)
	}
	if f.st.Writes() != writes {
		t.Error("a pull without differences wrote to the store")
	}
	if got := f.st.Translations(byKey(entities, "bye").ID, "de"); !got[0].Approved {
		t.Error("approved work was dropped")
	}
}

func TestPushWritesLocaleFile(t *testing.T) {
	f := newFixture(t, map[string]string{
		"en-US/app.properties": "hello=Hello\nbye=Bye\nlater=Later\n",
		"de/app.properties":    "hello=Hallo\n",
	})
	vp := f.build(t)
	entities := f.syncEntities(t, vp)
	alice, bob := f.user(t, "Alice"), f.user(t, "Bob")

	tr := func(key, s string, u *store.User, at time.Time) *store.Translation {
		return &store.Translation{EntityID: byKey(entities, key).ID, Locale: "de", PluralForm: l10n.NoPlural,
			String: s, Approved: true, Date: at, ApprovedDate: at, User: u}
	}
	f.apply(t, &store.ChangeBatch{CreateTranslations: []*store.Translation{
		tr("hello", "Grüezi", alice, base.Add(time.Hour)),
		tr("bye", "Tschüss", bob, base.Add(2*time.Hour)),
		tr("later", "Später", alice, base.Add(3*time.Hour)),
	}})

	cs, result := f.pull(t, vp)
	if diff := cmp.Diff([]string{"app.properties"}, result.ChangedResources); diff != "" {
		t.Errorf("ChangedResources mismatch (-want +got):\n%s", diff)
	}
	if result.Pushed != 3 || result.TranslationsCreated != 0 {
		t.Errorf("Result = %+v, want 3 entities pushed", result)
	}

	got := readFile(t, filepath.Join(f.root, "de", "app.properties"))
	for _, want := range []string{"hello=Grüezi", "bye=Tschüss", "later=Später"} {
		if !strings.Contains(got, want) {
			t.Errorf("saved file missing %q:\n%s", want, got)
		}
	}

	var names []string
	for _, u := range cs.CommitAuthors("de") {
		names = append(names, u.Name)
	}
	if diff := cmp.Diff([]string{"Alice", "Bob"}, names); diff != "" {
		t.Errorf("CommitAuthors mismatch (-want +got):\n%s", diff)
	}
	if n := len(cs.Contributions("de")); n != 3 {
		t.Errorf("Contributions = %d, want 3", n)
	}

	unit := vp.Resources["app.properties"].Entities["later"].Translations["de"]
	if unit.LastTranslator != "Alice <alice@example.com>" || !unit.LastUpdated.Equal(base.Add(3*time.Hour)) {
		t.Errorf("unit metadata = %q at %v", unit.LastTranslator, unit.LastUpdated)
	}
}

func TestPushOmitsAndRestoresUnits(t *testing.T) {
	f := newFixture(t, map[string]string{
		"en-US/app.properties": "hello=Hello\nbye=Bye\nlater=Later\n",
		"de/app.properties":    "hello=Hallo\nbye=Tschüss\nlater=Später\n",
	})
	localePath := filepath.Join(f.root, "de", "app.properties")
	vp := f.build(t)
	entities := f.syncEntities(t, vp)
	bye := byKey(entities, "bye")
	f.apply(t, &store.ChangeBatch{CreateTranslations: []*store.Translation{
		{EntityID: bye.ID, Locale: "de", PluralForm: l10n.NoPlural, String: "Tschüss",
			Rejected: true, Date: base.Add(-time.Hour), RejectedDate: base.Add(time.Hour)},
	}})

	f.pull(t, vp)
	if got := readFile(t, localePath); strings.Contains(got, "bye=") {
		t.Fatalf("unit without an active translation was kept:\n%s", got)
	}

	f.apply(t, &store.ChangeBatch{CreateTranslations: []*store.Translation{
		{EntityID: bye.ID, Locale: "de", PluralForm: l10n.NoPlural, String: "Ciao",
			Approved: true, Date: base.Add(2 * time.Hour), ApprovedDate: base.Add(2 * time.Hour)},
	}})
	f.pull(t, f.build(t))

	got := readFile(t, localePath)
	hello, restored, later := strings.Index(got, "hello="), strings.Index(got, "bye=Ciao"), strings.Index(got, "later=")
	if restored < 0 || !(hello < restored && restored < later) {
		t.Errorf("bye should reappear between hello and later:\n%s", got)
	}
}

func TestExecuteTwicePanics(t *testing.T) {
	f := newFixture(t, map[string]string{"en-US/app.properties": "hello=Hello\n"})
	cs := New(f.project, f.build(t), now, nil)
	if _, err := cs.Execute(context.Background(), f.st); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrReused) {
			t.Errorf("recover() = %v, want ErrReused", r)
		}
	}()
	_, _ = cs.Execute(context.Background(), f.st)
}

func TestExecuteCancelled(t *testing.T) {
	f := newFixture(t, map[string]string{"en-US/app.properties": "hello=Hello\n"})
	vp := f.build(t)
	cs := New(f.project, vp, now, nil)
	PlanEntities(cs, nil, vp, nil)
	if cs.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", cs.Len())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cs.Execute(ctx, f.st); !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	if f.st.Writes() != 1 {
		t.Errorf("Writes() = %d, want only the project", f.st.Writes())
	}
}

func TestCommitAuthorsDeduplicates(t *testing.T) {
	cs := New(&store.Project{ID: 1}, &project.Project{}, now, german())
	alice := &store.User{ID: 1, Name: "Alice", Email: "alice@example.com"}
	cs.authors["de"] = []*store.User{
		alice,
		{Name: "Guest", Email: "guest@example.com"},
		{ID: 1, Name: "Alice B.", Email: "alice@example.com"},
		{Name: "Guest again", Email: "guest@example.com"},
	}

	got := cs.CommitAuthors("de")
	if len(got) != 2 || got[0] != alice || got[1].Name != "Guest" {
		t.Errorf("CommitAuthors() = %+v", got)
	}
	if cs.CommitAuthors("fr") != nil {
		t.Error("CommitAuthors() should be empty without contributions")
	}
}
