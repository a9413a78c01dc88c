package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/steveyegge/locsync/internal/store"
	"github.com/steveyegge/locsync/internal/store/storetest"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "locsync.db")
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return db
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTestDB(t) })
}

func TestOpen_CreatesSchema(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	tables := []string{
		"projects", "repositories", "locales", "project_locales", "resources",
		"entities", "users", "translations", "synced_revisions", "sync_logs",
	}
	for _, table := range tables {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := db.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := db.InitSchemaContext(context.Background()); err != nil {
		t.Errorf("second InitSchemaContext() failed: %v", err)
	}
}

func TestOpen_WALMode(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	var mode string
	if err := db.conn.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)

	db, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	synced := time.Date(2024, 5, 1, 8, 30, 0, 123456789, time.UTC)
	p := &store.Project{Slug: "p", Name: "P", LastSyncedAt: synced}
	if err := db.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}

	db, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	got, err := db.Project(ctx, "p")
	if err != nil {
		t.Fatalf("Project() failed: %v", err)
	}
	if !got.LastSyncedAt.Equal(synced) {
		t.Errorf("LastSyncedAt = %v, want %v", got.LastSyncedAt, synced)
	}
}

func TestTimeLayoutSortsLexically(t *testing.T) {
	a := time.Date(2024, 1, 1, 0, 0, 0, 5, time.UTC)
	b := time.Date(2024, 1, 1, 0, 0, 0, 40, time.UTC)
	c := time.Date(2024, 1, 1, 1, 0, 0, 0, time.FixedZone("CET", 3600))
	if !(formatTime(a) < formatTime(b)) {
		t.Errorf("%s should sort before %s", formatTime(a), formatTime(b))
	}
	if formatTime(c) != "2024-01-01T00:00:00.000000000Z" {
		t.Errorf("formatTime() = %s, want UTC", formatTime(c))
	}
	if got := nullStringToTime(timeToNullString(time.Time{})); !got.IsZero() {
		t.Errorf("zero time round-tripped to %v", got)
	}
}
