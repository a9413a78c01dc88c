// Package sqlite implements store.Store on an embedded SQLite database.
//
// The database runs in WAL mode so status queries from the CLI can read
// while a sync pass writes. Lists of comments and source references are
// kept as JSON arrays; timestamps are UTC text in a fixed-width layout so
// that they compare correctly as strings.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/locsync/internal/formats"
	"github.com/steveyegge/locsync/internal/l10n"
	"github.com/steveyegge/locsync/internal/store"
	"github.com/steveyegge/locsync/internal/vcs"
)

// timeLayout is fixed-width so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB is a store.Store backed by SQLite.
type DB struct {
	conn *sql.DB
	path string
}

var _ store.Store = (*DB)(nil)

// Open opens the database at path, creating it and its schema if needed.
//
// The caller MUST call Close() when done to checkpoint the WAL.
func Open(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run %s: %w", pragma, err)
		}
	}

	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchemaContext creates the schema. It is idempotent.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		config_file TEXT NOT NULL DEFAULT '',
		permalink TEXT NOT NULL DEFAULT '',
		last_synced_at TEXT
	);

	CREATE TABLE IF NOT EXISTS repositories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		role TEXT NOT NULL,  -- source, target
		url TEXT NOT NULL,
		branch TEXT NOT NULL DEFAULT '',
		permalink TEXT NOT NULL DEFAULT '',
		checkout_path TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS locales (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cldr_plurals TEXT NOT NULL,  -- JSON array
		plural_rule TEXT NOT NULL DEFAULT '',
		direction TEXT NOT NULL DEFAULT 'ltr'
	);

	CREATE TABLE IF NOT EXISTS project_locales (
		project_id INTEGER NOT NULL,
		locale TEXT NOT NULL,
		enabled_at TEXT NOT NULL,
		PRIMARY KEY (project_id, locale),
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
		FOREIGN KEY (locale) REFERENCES locales(code)
	);

	CREATE TABLE IF NOT EXISTS resources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		path TEXT NOT NULL,
		format TEXT NOT NULL DEFAULT '',
		total_strings INTEGER NOT NULL DEFAULT 0,
		UNIQUE (project_id, path),
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS entities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		resource_id INTEGER NOT NULL,
		key TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		string TEXT NOT NULL,
		string_plural TEXT NOT NULL DEFAULT '',
		comments TEXT,  -- JSON array
		group_comments TEXT,  -- JSON array
		resource_comments TEXT,  -- JSON array
		source TEXT,  -- JSON array
		ord INTEGER NOT NULL DEFAULT 0,
		obsolete INTEGER NOT NULL DEFAULT 0,
		date_created TEXT,
		FOREIGN KEY (resource_id) REFERENCES resources(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS translations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id INTEGER NOT NULL,
		locale TEXT NOT NULL,
		plural_form INTEGER NOT NULL DEFAULT -1,
		string TEXT NOT NULL,
		approved INTEGER NOT NULL DEFAULT 0,
		fuzzy INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0,
		date TEXT,
		approved_date TEXT,
		rejected_date TEXT,
		unapproved_date TEXT,
		user_id INTEGER,
		FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS synced_revisions (
		repository_id INTEGER NOT NULL,
		locale TEXT NOT NULL DEFAULT '',
		revision TEXT NOT NULL,
		PRIMARY KEY (repository_id, locale),
		FOREIGN KEY (repository_id) REFERENCES repositories(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS sync_logs (
		id TEXT PRIMARY KEY,
		project_id INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		skipped_resources TEXT,  -- JSON array
		failed_locales TEXT,  -- JSON object
		summary TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_repositories_project ON repositories(project_id);
	CREATE INDEX IF NOT EXISTS idx_entities_resource ON entities(resource_id);
	CREATE INDEX IF NOT EXISTS idx_translations_entity_locale ON translations(entity_id, locale);
	CREATE INDEX IF NOT EXISTS idx_translations_locale_date ON translations(locale, date);
	CREATE INDEX IF NOT EXISTS idx_sync_logs_project ON sync_logs(project_id, started_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// queryer is the part of *sql.DB and *sql.Tx the helpers need.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *DB) Project(ctx context.Context, slug string) (*store.Project, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, slug, name, config_file, permalink, last_synced_at
	FROM projects WHERE slug = ?`, slug)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", slug, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %q: %w", slug, err)
	}
	return p, nil
}

func (db *DB) Projects(ctx context.Context) ([]*store.Project, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, slug, name, config_file, permalink, last_synced_at
	FROM projects ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*store.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*store.Project, error) {
	var p store.Project
	var lastSynced sql.NullString
	if err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.ConfigFile, &p.Permalink, &lastSynced); err != nil {
		return nil, err
	}
	p.LastSyncedAt = nullStringToTime(lastSynced)
	return &p, nil
}

func (db *DB) Repositories(ctx context.Context, projectID int64) ([]*store.Repository, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, project_id, type, role, url, branch, permalink, checkout_path
	FROM repositories WHERE project_id = ?
	ORDER BY CASE role WHEN 'source' THEN 0 ELSE 1 END, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	defer rows.Close()

	var repos []*store.Repository
	for rows.Next() {
		var r store.Repository
		var typ, role string
		if err := rows.Scan(&r.ID, &r.ProjectID, &typ, &role, &r.URL, &r.Branch, &r.Permalink, &r.CheckoutPath); err != nil {
			return nil, fmt.Errorf("failed to scan repository: %w", err)
		}
		r.Type = vcs.Type(typ)
		r.Role = store.Role(role)
		repos = append(repos, &r)
	}
	return repos, rows.Err()
}

func (db *DB) Locales(ctx context.Context, projectID int64) ([]*l10n.Locale, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT l.code, l.name, l.cldr_plurals, l.plural_rule, l.direction
	FROM locales l
	JOIN project_locales pl ON pl.locale = l.code
	WHERE pl.project_id = ?
	ORDER BY l.code`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list locales: %w", err)
	}
	defer rows.Close()

	var locales []*l10n.Locale
	for rows.Next() {
		var l l10n.Locale
		var plurals string
		if err := rows.Scan(&l.Code, &l.Name, &plurals, &l.PluralRule, &l.Direction); err != nil {
			return nil, fmt.Errorf("failed to scan locale: %w", err)
		}
		if err := unmarshalJSON(plurals, &l.CLDRPlurals); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plurals of %s: %w", l.Code, err)
		}
		locales = append(locales, &l)
	}
	return locales, rows.Err()
}

func (db *DB) Resources(ctx context.Context, projectID int64) ([]*store.Resource, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, project_id, path, format, total_strings
	FROM resources WHERE project_id = ? ORDER BY path`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var resources []*store.Resource
	for rows.Next() {
		var r store.Resource
		var format string
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Path, &format, &r.TotalStrings); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		r.Format = formats.Format(format)
		resources = append(resources, &r)
	}
	return resources, rows.Err()
}

func (db *DB) Entities(ctx context.Context, projectID int64, locale string) ([]*store.Entity, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT e.id, e.resource_id, r.path, e.key, e.context, e.string, e.string_plural,
	       e.comments, e.group_comments, e.resource_comments, e.source,
	       e.ord, e.obsolete, e.date_created
	FROM entities e
	JOIN resources r ON r.id = e.resource_id
	WHERE r.project_id = ?
	ORDER BY e.id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}

	var entities []*store.Entity
	byID := make(map[int64]*store.Entity)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entities = append(entities, e)
		byID[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}
	rows.Close()

	if locale == "" || len(entities) == 0 {
		return entities, nil
	}

	trows, err := db.conn.QueryContext(ctx, `
	SELECT t.id, t.entity_id, t.locale, t.plural_form, t.string,
	       t.approved, t.fuzzy, t.rejected,
	       t.date, t.approved_date, t.rejected_date, t.unapproved_date,
	       u.id, u.name, u.email
	FROM translations t
	JOIN entities e ON e.id = t.entity_id
	JOIN resources r ON r.id = e.resource_id
	LEFT JOIN users u ON u.id = t.user_id
	WHERE r.project_id = ? AND t.locale = ?
	ORDER BY t.id`, projectID, locale)
	if err != nil {
		return nil, fmt.Errorf("failed to query translations: %w", err)
	}
	defer trows.Close()

	for trows.Next() {
		t, err := scanTranslation(trows)
		if err != nil {
			return nil, err
		}
		if e := byID[t.EntityID]; e != nil {
			e.Translations = append(e.Translations, t)
		}
	}
	if err := trows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating translations: %w", err)
	}
	return entities, nil
}

func scanEntity(row scanner) (*store.Entity, error) {
	var e store.Entity
	var comments, groupComments, resourceComments, source, created sql.NullString
	err := row.Scan(&e.ID, &e.ResourceID, &e.ResourcePath, &e.Key, &e.Context, &e.String, &e.StringPlural,
		&comments, &groupComments, &resourceComments, &source,
		&e.Order, &e.Obsolete, &created)
	if err != nil {
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}
	for _, f := range []struct {
		raw sql.NullString
		dst *[]string
	}{
		{comments, &e.Comments},
		{groupComments, &e.GroupComments},
		{resourceComments, &e.ResourceComments},
		{source, &e.Source},
	} {
		if err := unmarshalJSON(f.raw.String, f.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity %d: %w", e.ID, err)
		}
	}
	e.DateCreated = nullStringToTime(created)
	return &e, nil
}

func scanTranslation(row scanner) (*store.Translation, error) {
	var t store.Translation
	var date, approved, rejected, unapproved sql.NullString
	var userID sql.NullInt64
	var userName, userEmail sql.NullString
	err := row.Scan(&t.ID, &t.EntityID, &t.Locale, &t.PluralForm, &t.String,
		&t.Approved, &t.Fuzzy, &t.Rejected,
		&date, &approved, &rejected, &unapproved,
		&userID, &userName, &userEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to scan translation: %w", err)
	}
	t.Date = nullStringToTime(date)
	t.ApprovedDate = nullStringToTime(approved)
	t.RejectedDate = nullStringToTime(rejected)
	t.UnapprovedDate = nullStringToTime(unapproved)
	if userID.Valid {
		t.User = &store.User{ID: userID.Int64, Name: userName.String, Email: userEmail.String}
	}
	return &t, nil
}

// changedAfter is the predicate shared by ChangedEntities and
// PendingResources.
const changedAfter = `(t.date > ? OR t.approved_date > ? OR t.rejected_date > ? OR t.unapproved_date > ?)`

func (db *DB) ChangedEntities(ctx context.Context, projectID int64, locale string, since time.Time) (map[int64]bool, error) {
	s := formatTime(since)
	rows, err := db.conn.QueryContext(ctx, `
	SELECT DISTINCT t.entity_id
	FROM translations t
	JOIN entities e ON e.id = t.entity_id
	JOIN resources r ON r.id = e.resource_id
	WHERE r.project_id = ? AND t.locale = ? AND `+changedAfter,
		projectID, locale, s, s, s, s)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed entities: %w", err)
	}
	defer rows.Close()

	changed := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entity id: %w", err)
		}
		changed[id] = true
	}
	return changed, rows.Err()
}

func (db *DB) PendingResources(ctx context.Context, projectID int64, since time.Time) ([]string, error) {
	s := formatTime(since)

	var newLocales int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM project_locales WHERE project_id = ? AND enabled_at > ?`,
		projectID, s).Scan(&newLocales)
	if err != nil {
		return nil, fmt.Errorf("failed to count new locales: %w", err)
	}

	query := `
	SELECT DISTINCT r.path
	FROM translations t
	JOIN entities e ON e.id = t.entity_id
	JOIN resources r ON r.id = e.resource_id
	WHERE r.project_id = ? AND ` + changedAfter + `
	ORDER BY r.path`
	args := []any{projectID, s, s, s, s}
	if newLocales > 0 {
		query = `SELECT path FROM resources WHERE project_id = ? ORDER BY path`
		args = args[:1]
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending resources: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan resource path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (db *DB) LastSyncedRevision(ctx context.Context, repoID int64, locale string) (string, error) {
	var rev string
	err := db.conn.QueryRowContext(ctx,
		`SELECT revision FROM synced_revisions WHERE repository_id = ? AND locale = ?`,
		repoID, locale).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get synced revision: %w", err)
	}
	return rev, nil
}

func (db *DB) SyncLogs(ctx context.Context, projectID int64, limit int) ([]*store.SyncLog, error) {
	query := `
	SELECT id, project_id, started_at, finished_at, skipped_resources, failed_locales, summary
	FROM sync_logs WHERE project_id = ?
	ORDER BY started_at DESC, rowid DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*store.SyncLog
	for rows.Next() {
		var l store.SyncLog
		var started string
		var finished, skipped, failed sql.NullString
		if err := rows.Scan(&l.ID, &l.ProjectID, &started, &finished, &skipped, &failed, &l.Summary); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		l.StartedAt = nullStringToTime(sql.NullString{String: started, Valid: true})
		l.FinishedAt = nullStringToTime(finished)
		if err := unmarshalJSON(skipped.String, &l.SkippedResources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal skipped resources: %w", err)
		}
		if err := unmarshalJSON(failed.String, &l.FailedLocales); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failed locales: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// Apply writes the batch in one transaction.
func (db *DB) Apply(ctx context.Context, batch *store.ChangeBatch) error {
	if batch.Empty() {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// IDs are assigned to the caller's records only after commit.
	entityIDs := make([]int64, len(batch.CreateEntities))
	resourceIDs := make([]int64, len(batch.CreateEntities))
	for i, e := range batch.CreateEntities {
		resourceID := e.ResourceID
		if resourceID == 0 {
			if resourceID, err = ensureResource(ctx, tx, batch.ProjectID, e.ResourcePath); err != nil {
				return err
			}
		}
		id, err := insertEntity(ctx, tx, resourceID, e)
		if err != nil {
			return err
		}
		entityIDs[i], resourceIDs[i] = id, resourceID
	}

	for _, e := range batch.UpdateEntities {
		if err := updateEntity(ctx, tx, e); err != nil {
			return err
		}
	}

	translationIDs := make([]int64, len(batch.CreateTranslations))
	for i, t := range batch.CreateTranslations {
		id, err := insertTranslation(ctx, tx, t)
		if err != nil {
			return err
		}
		translationIDs[i] = id
	}

	for _, t := range batch.UpdateTranslations {
		if err := updateTranslation(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for i, e := range batch.CreateEntities {
		e.ID, e.ResourceID = entityIDs[i], resourceIDs[i]
	}
	for i, t := range batch.CreateTranslations {
		t.ID = translationIDs[i]
	}
	return nil
}

func ensureResource(ctx context.Context, q queryer, projectID int64, path string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
	INSERT INTO resources (project_id, path) VALUES (?, ?)
	ON CONFLICT(project_id, path) DO UPDATE SET path = excluded.path
	RETURNING id`, projectID, path).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure resource %s: %w", path, err)
	}
	return id, nil
}

func insertEntity(ctx context.Context, q queryer, resourceID int64, e *store.Entity) (int64, error) {
	lists, err := marshalLists(e)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, `
	INSERT INTO entities (
		resource_id, key, context, string, string_plural,
		comments, group_comments, resource_comments, source,
		ord, obsolete, date_created
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		resourceID, e.Key, e.Context, e.String, e.StringPlural,
		lists[0], lists[1], lists[2], lists[3],
		e.Order, e.Obsolete, timeToNullString(e.DateCreated))
	if err != nil {
		return 0, fmt.Errorf("failed to insert entity %s: %w", e.Key, err)
	}
	return res.LastInsertId()
}

func updateEntity(ctx context.Context, q queryer, e *store.Entity) error {
	lists, err := marshalLists(e)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `
	UPDATE entities SET
		key = ?, context = ?, string = ?, string_plural = ?,
		comments = ?, group_comments = ?, resource_comments = ?, source = ?,
		ord = ?, obsolete = ?
	WHERE id = ?`,
		e.Key, e.Context, e.String, e.StringPlural,
		lists[0], lists[1], lists[2], lists[3],
		e.Order, e.Obsolete, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update entity %d: %w", e.ID, err)
	}
	return expectRow(res, "entity", e.ID)
}

func marshalLists(e *store.Entity) ([4]string, error) {
	var out [4]string
	for i, list := range [][]string{e.Comments, e.GroupComments, e.ResourceComments, e.Source} {
		if list == nil {
			list = []string{}
		}
		b, err := json.Marshal(list)
		if err != nil {
			return out, fmt.Errorf("failed to marshal entity %s: %w", e.Key, err)
		}
		out[i] = string(b)
	}
	return out, nil
}

func userID(u *store.User) sql.NullInt64 {
	if u == nil || u.ID == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: u.ID, Valid: true}
}

func insertTranslation(ctx context.Context, q queryer, t *store.Translation) (int64, error) {
	res, err := q.ExecContext(ctx, `
	INSERT INTO translations (
		entity_id, locale, plural_form, string,
		approved, fuzzy, rejected,
		date, approved_date, rejected_date, unapproved_date, user_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.EntityID, t.Locale, t.PluralForm, t.String,
		t.Approved, t.Fuzzy, t.Rejected,
		timeToNullString(t.Date), timeToNullString(t.ApprovedDate),
		timeToNullString(t.RejectedDate), timeToNullString(t.UnapprovedDate),
		userID(t.User))
	if err != nil {
		return 0, fmt.Errorf("failed to insert translation for entity %d: %w", t.EntityID, err)
	}
	return res.LastInsertId()
}

func updateTranslation(ctx context.Context, q queryer, t *store.Translation) error {
	res, err := q.ExecContext(ctx, `
	UPDATE translations SET
		plural_form = ?, string = ?,
		approved = ?, fuzzy = ?, rejected = ?,
		date = ?, approved_date = ?, rejected_date = ?, unapproved_date = ?,
		user_id = ?
	WHERE id = ?`,
		t.PluralForm, t.String,
		t.Approved, t.Fuzzy, t.Rejected,
		timeToNullString(t.Date), timeToNullString(t.ApprovedDate),
		timeToNullString(t.RejectedDate), timeToNullString(t.UnapprovedDate),
		userID(t.User), t.ID)
	if err != nil {
		return fmt.Errorf("failed to update translation %d: %w", t.ID, err)
	}
	return expectRow(res, "translation", t.ID)
}

func expectRow(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s %d: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("update %s %d: %w", what, id, store.ErrNotFound)
	}
	return nil
}

func (db *DB) RecordSyncedRevision(ctx context.Context, repoID int64, locale, revision string) error {
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO synced_revisions (repository_id, locale, revision) VALUES (?, ?, ?)
	ON CONFLICT(repository_id, locale) DO UPDATE SET revision = excluded.revision`,
		repoID, locale, revision)
	if err != nil {
		return fmt.Errorf("failed to record synced revision: %w", err)
	}
	return nil
}

func (db *DB) SetLastSynced(ctx context.Context, projectID int64, at time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE projects SET last_synced_at = ? WHERE id = ?`, timeToNullString(at), projectID)
	if err != nil {
		return fmt.Errorf("failed to set last synced time: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %d: %w", projectID, store.ErrNotFound)
	}
	return nil
}

func (db *DB) UpsertResources(ctx context.Context, projectID int64, resources []*store.Resource) error {
	if len(resources) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]int64, len(resources))
	for i, r := range resources {
		err := tx.QueryRowContext(ctx, `
		INSERT INTO resources (project_id, path, format, total_strings) VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, path) DO UPDATE SET
			format = excluded.format,
			total_strings = excluded.total_strings
		RETURNING id`, projectID, r.Path, string(r.Format), r.TotalStrings).Scan(&ids[i])
		if err != nil {
			return fmt.Errorf("failed to upsert resource %s: %w", r.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	for i, r := range resources {
		r.ID, r.ProjectID = ids[i], projectID
	}
	return nil
}

func (db *DB) EnableLocale(ctx context.Context, projectID int64, code string, at time.Time) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM locales WHERE code = ?`, code).Scan(&exists); err != nil {
		return fmt.Errorf("failed to look up locale %s: %w", code, err)
	}
	if exists == 0 {
		if err := insertLocale(ctx, tx, l10n.NewLocale(code, code)); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO project_locales (project_id, locale, enabled_at) VALUES (?, ?, ?)
	ON CONFLICT(project_id, locale) DO NOTHING`, projectID, code, formatTime(at))
	if err != nil {
		return fmt.Errorf("failed to enable locale %s: %w", code, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) RecordSyncLog(ctx context.Context, l *store.SyncLog) error {
	skipped, err := json.Marshal(l.SkippedResources)
	if err != nil {
		return fmt.Errorf("failed to marshal skipped resources: %w", err)
	}
	failed, err := json.Marshal(l.FailedLocales)
	if err != nil {
		return fmt.Errorf("failed to marshal failed locales: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
	INSERT INTO sync_logs (id, project_id, started_at, finished_at, skipped_resources, failed_locales, summary)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ProjectID, formatTime(l.StartedAt), timeToNullString(l.FinishedAt),
		string(skipped), string(failed), l.Summary)
	if err != nil {
		return fmt.Errorf("failed to record sync log: %w", err)
	}
	return nil
}

func (db *DB) CreateProject(ctx context.Context, p *store.Project) error {
	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO projects (slug, name, config_file, permalink, last_synced_at)
	VALUES (?, ?, ?, ?, ?)`,
		p.Slug, p.Name, p.ConfigFile, p.Permalink, timeToNullString(p.LastSyncedAt))
	if isConstraint(err) {
		return fmt.Errorf("project %q: %w", p.Slug, store.ErrExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (db *DB) CreateRepository(ctx context.Context, r *store.Repository) error {
	if err := r.Validate(); err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO repositories (project_id, type, role, url, branch, permalink, checkout_path)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ProjectID, string(r.Type), string(r.Role), r.URL, r.Branch, r.Permalink, r.CheckoutPath)
	if isConstraint(err) {
		return fmt.Errorf("project %d: %w", r.ProjectID, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

func (db *DB) CreateLocale(ctx context.Context, l *l10n.Locale) error {
	err := insertLocale(ctx, db.conn, l)
	if isConstraint(err) {
		return fmt.Errorf("locale %q: %w", l.Code, store.ErrExists)
	}
	return err
}

func insertLocale(ctx context.Context, q queryer, l *l10n.Locale) error {
	cldr := l.CLDRPlurals
	if cldr == nil {
		cldr = []int{}
	}
	plurals, err := json.Marshal(cldr)
	if err != nil {
		return fmt.Errorf("failed to marshal plurals: %w", err)
	}
	direction := l.Direction
	if direction == "" {
		direction = "ltr"
	}
	_, err = q.ExecContext(ctx, `
	INSERT INTO locales (code, name, cldr_plurals, plural_rule, direction)
	VALUES (?, ?, ?, ?, ?)`, l.Code, l.Name, string(plurals), l.PluralRule, direction)
	if err != nil {
		return fmt.Errorf("failed to create locale %s: %w", l.Code, err)
	}
	return nil
}

func (db *DB) CreateUser(ctx context.Context, u *store.User) error {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (name, email) VALUES (?, ?)`, u.Name, u.Email)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	return err
}

func isConstraint(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "constraint")
}

func unmarshalJSON(raw string, dst any) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timeToNullString stores the zero time as NULL.
func timeToNullString(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func nullStringToTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
