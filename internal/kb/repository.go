package kb

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/knowledgetools/mcp-kb/internal/frontmatter"
)

// indexDBName is the item index file inside the data directory.
const indexDBName = "kb.db"

// txlike is satisfied by *sql.DB and *sql.Tx.
type txlike interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

// Repository is the knowledge base: markdown files under dataDir plus the
// SQLite index mirroring them. A single RWMutex serializes writers; the
// process is the only writer of the data directory.
type Repository struct {
	mu      sync.RWMutex
	db      *sql.DB
	dataDir string

	// fts is false when the sqlite build lacks the FTS5 module (go-sqlite3
	// only compiles it in with the sqlite_fts5 build tag). Full-text search
	// then falls back to LIKE matching.
	fts bool
}

// Open opens (or creates) a knowledge base rooted at dataDir.
func Open(dataDir string) (*Repository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, indexDBName)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	r := &Repository{db: db, dataDir: dataDir}

	if err := r.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err := r.seed(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed index: %w", err)
	}

	return r, nil
}

// DataDir returns the repository's data directory.
func (r *Repository) DataDir() string {
	return r.dataDir
}

// Close closes the index database.
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// createSchema creates all index tables.
func (r *Repository) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS types (
			name TEXT PRIMARY KEY,
			base_type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			builtin INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS statuses (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			is_closed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS sequences (
			type TEXT PRIMARY KEY,
			current INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			type TEXT NOT NULL,
			id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL DEFAULT '',
			status_id INTEGER,
			start_date TEXT NOT NULL DEFAULT '',
			end_date TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (type, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_updated ON items(type, updated_at)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS item_tags (
			item_type TEXT NOT NULL,
			item_id TEXT NOT NULL,
			tag_id INTEGER NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (item_type, item_id, tag_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_item_tags_tag ON item_tags(tag_id)`,
		`CREATE TABLE IF NOT EXISTS related_items (
			src_type TEXT NOT NULL,
			src_id TEXT NOT NULL,
			dst_type TEXT NOT NULL,
			dst_id TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (src_type, src_id, dst_type, dst_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_related_dst ON related_items(dst_type, dst_id)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}

	_, err := r.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
		type, id, title, description, content,
		tokenize='porter unicode61'
	)`)
	if err != nil {
		slog.Warn("FTS5 unavailable, item search degrades to substring matching", "error", err)
		return nil
	}
	r.fts = true
	return nil
}

// seed inserts the fixed status vocabulary and the built-in types.
func (r *Repository) seed() error {
	for _, s := range seedStatuses {
		_, err := r.db.Exec(
			"INSERT OR IGNORE INTO statuses (id, name, is_closed) VALUES (?, ?, ?)",
			s.ID, s.Name, boolToInt(s.IsClosed),
		)
		if err != nil {
			return err
		}
	}

	for _, t := range builtinTypes {
		_, err := r.db.Exec(
			"INSERT OR IGNORE INTO types (name, base_type, description, builtin) VALUES (?, ?, ?, 1)",
			t.Name, t.BaseType, t.Description,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// writeItemFile renders and writes an item's markdown file.
func (r *Repository) writeItemFile(b behavior, it *Item) error {
	path := r.itemPath(b, it.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create item dir: %w", err)
	}

	raw := frontmatter.Generate(itemMetadata(it), it.Content)
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		return fmt.Errorf("failed to write item file: %w", err)
	}
	return nil
}

// readItemFile loads and decodes an item's markdown file.
func (r *Repository) readItemFile(b behavior, id string) (*Item, error) {
	path := r.itemPath(b, id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Kind: "item", Key: FormatRef(b.Type, id)}
		}
		return nil, fmt.Errorf("failed to read item file: %w", err)
	}

	meta, content, err := frontmatter.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return itemFromFile(b.Type, id, meta, content), nil
}

// itemMetadata builds the frontmatter metadata block for an item.
func itemMetadata(it *Item) frontmatter.Metadata {
	meta := frontmatter.Metadata{
		"title":   it.Title,
		"type":    it.Type,
		"tags":    it.Tags,
		"related": it.Related,
	}
	if it.Description != "" {
		meta["description"] = it.Description
	}
	if it.Priority != "" {
		meta["priority"] = it.Priority
	}
	if it.Status != "" {
		meta["status"] = it.Status
	}
	if it.StartDate != "" {
		meta["start_date"] = it.StartDate
	}
	if it.EndDate != "" {
		meta["end_date"] = it.EndDate
	}
	if !it.CreatedAt.IsZero() {
		meta["created_at"] = it.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !it.UpdatedAt.IsZero() {
		meta["updated_at"] = it.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return meta
}

// itemFromFile assembles an Item from decoded file parts. Unparseable
// timestamps are tolerated as zero values; the file remains readable.
func itemFromFile(itemType, id string, meta frontmatter.Metadata, content string) *Item {
	it := &Item{
		Type:        itemType,
		ID:          id,
		Title:       meta.GetString("title"),
		Description: meta.GetString("description"),
		Content:     strings.TrimSuffix(content, "\n"),
		Priority:    meta.GetString("priority"),
		Status:      meta.GetString("status"),
		Tags:        meta.GetList("tags"),
		Related:     meta.GetList("related"),
		StartDate:   meta.GetString("start_date"),
		EndDate:     meta.GetString("end_date"),
	}

	if ts := meta.GetString("created_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			it.CreatedAt = t
		} else {
			slog.Debug("unparseable created_at", "ref", FormatRef(itemType, id), "value", ts)
		}
	}
	if ts := meta.GetString("updated_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			it.UpdatedAt = t
		}
	}

	return it
}

// indexItem writes an item's mirror rows inside tx. Existing rows for the
// same key are replaced.
func (r *Repository) indexItem(tx txlike, it *Item) error {
	if err := r.deindexItem(tx, it.Type, it.ID); err != nil {
		return err
	}

	var statusID any
	if it.Status != "" {
		s, err := statusByNameTx(tx, it.Status)
		if err != nil {
			return err
		}
		statusID = s.ID
	}

	_, err := tx.Exec(`
		INSERT INTO items
		(type, id, title, description, content, priority, status_id, start_date, end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, it.Type, it.ID, it.Title, it.Description, it.Content, it.Priority, statusID,
		it.StartDate, it.EndDate,
		it.CreatedAt.UTC().Format(time.RFC3339), it.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to index item %s: %w", it.Ref(), err)
	}

	for pos, tag := range it.Tags {
		var tagID int64
		if err := tx.QueryRow(`
			INSERT INTO tags (name) VALUES (?)
			ON CONFLICT(name) DO UPDATE SET name = name
			RETURNING id
		`, tag).Scan(&tagID); err != nil {
			return fmt.Errorf("failed to register tag %s: %w", tag, err)
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO item_tags (item_type, item_id, tag_id, position) VALUES (?, ?, ?, ?)",
			it.Type, it.ID, tagID, pos,
		); err != nil {
			return err
		}
	}

	for pos, ref := range it.Related {
		dstType, dstID, err := ParseRef(ref)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO related_items (src_type, src_id, dst_type, dst_id, position) VALUES (?, ?, ?, ?, ?)",
			it.Type, it.ID, dstType, dstID, pos,
		); err != nil {
			return err
		}
	}

	if r.fts {
		if _, err := tx.Exec(
			"INSERT INTO items_fts (type, id, title, description, content) VALUES (?, ?, ?, ?, ?)",
			it.Type, it.ID, it.Title, it.Description, it.Content,
		); err != nil {
			return err
		}
	}

	return nil
}

// deindexItem removes an item's mirror rows inside tx, including inbound
// relation edges when cascade is wanted by the caller via deleteInbound.
func (r *Repository) deindexItem(tx txlike, itemType, id string) error {
	if _, err := tx.Exec("DELETE FROM items WHERE type = ? AND id = ?", itemType, id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM item_tags WHERE item_type = ? AND item_id = ?", itemType, id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM related_items WHERE src_type = ? AND src_id = ?", itemType, id); err != nil {
		return err
	}
	if r.fts {
		if _, err := tx.Exec("DELETE FROM items_fts WHERE type = ? AND id = ?", itemType, id); err != nil {
			return err
		}
	}
	return nil
}

// RebuildIndex drops all mirrored item rows and re-derives them from the
// files on disk. It is the recovery path after a reported inconsistency.
func (r *Repository) RebuildIndex() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	tables := []string{"items", "item_tags", "related_items"}
	if r.fts {
		tables = append(tables, "items_fts")
	}
	for _, table := range tables {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return 0, err
		}
	}

	behaviors, err := r.allBehaviors()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, b := range behaviors {
		dir := r.itemDir(b)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}

		prefix := b.Type + "-"
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".md") {
				continue
			}
			id := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".md")

			it, err := r.readItemFile(b, id)
			if err != nil {
				slog.Warn("skipping unreadable item file", "file", name, "error", err)
				continue
			}
			if err := r.indexItem(tx, it); err != nil {
				return 0, fmt.Errorf("failed to reindex %s: %w", it.Ref(), err)
			}
			count++

			// Keep sequences ahead of any numeric id already on disk.
			if !b.Special {
				if _, err := tx.Exec(`
					INSERT INTO sequences (type, current) VALUES (?, CAST(? AS INTEGER))
					ON CONFLICT(type) DO UPDATE SET current = MAX(current, CAST(? AS INTEGER))
				`, b.Type, id, id); err != nil {
					return 0, err
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// allBehaviors returns behaviors for every known type, specials included.
// Callers hold r.mu.
func (r *Repository) allBehaviors() ([]behavior, error) {
	defs, err := r.getAllTypesLocked()
	if err != nil {
		return nil, err
	}

	behaviors := make([]behavior, 0, len(defs)+2)
	for _, def := range defs {
		b, err := r.behaviorFor(def.Name)
		if err != nil {
			return nil, err
		}
		behaviors = append(behaviors, b)
	}
	behaviors = append(behaviors, specialBehaviors[TypeSessions], specialBehaviors[TypeDailies])
	return behaviors, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
