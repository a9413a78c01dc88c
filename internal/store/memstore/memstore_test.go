package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/store"
	"github.com/steveyegge/locsync/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestWritesCountsMutations(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := &store.Project{Slug: "p"}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	before := s.Writes()

	if err := s.Apply(ctx, &store.ChangeBatch{ProjectID: p.ID}); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if err := s.UpsertResources(ctx, p.ID, nil); err != nil {
		t.Fatalf("UpsertResources() failed: %v", err)
	}
	if _, err := s.Entities(ctx, p.ID, "de"); err != nil {
		t.Fatalf("Entities() failed: %v", err)
	}
	if got := s.Writes(); got != before {
		t.Errorf("Writes() = %d after empty writes and reads, want %d", got, before)
	}

	if err := s.SetLastSynced(ctx, p.ID, time.Now()); err != nil {
		t.Fatalf("SetLastSynced() failed: %v", err)
	}
	if got := s.Writes(); got != before+1 {
		t.Errorf("Writes() = %d, want %d", got, before+1)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := &store.Project{Slug: "p"}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	e := &store.Entity{ResourcePath: "a.po", Key: "k", String: "s", Comments: []string{"c"}}
	if err := s.Apply(ctx, &store.ChangeBatch{ProjectID: p.ID, CreateEntities: []*store.Entity{e}}); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	tr := &store.Translation{EntityID: e.ID, Locale: "de", PluralForm: l10n.NoPlural, String: "t", Approved: true}
	if err := s.Apply(ctx, &store.ChangeBatch{ProjectID: p.ID, CreateTranslations: []*store.Translation{tr}}); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	e.Comments[0] = "changed"
	tr.String = "changed"

	got, err := s.Entities(ctx, p.ID, "de")
	if err != nil {
		t.Fatalf("Entities() failed: %v", err)
	}
	got[0].Translations[0].Approved = false

	again := s.Translations(e.ID, "de")
	if got[0].Comments[0] != "c" || again[0].String != "t" || !again[0].Approved {
		t.Errorf("store shares memory with callers: entity %+v, translation %+v", got[0], again[0])
	}
}
