package kb

import (
	"strings"
)

// SearchItemsByTag returns every item carrying the exact tag, optionally
// narrowed to a set of types. Sessions and dailies participate.
func (r *Repository) SearchItemsByTag(tag string, types ...string) ([]*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `
		SELECT it.item_type, it.item_id FROM item_tags it
		JOIN tags t ON t.id = it.tag_id
		WHERE t.name = ?
	`
	args := []any{tag}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, typ := range types {
			placeholders[i] = "?"
			args = append(args, typ)
		}
		query += " AND it.item_type IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY it.item_type, it.item_id"

	keys, err := r.collectKeys(query, args)
	if err != nil {
		return nil, err
	}
	return r.hydrateKeys(keys)
}

// SearchItems runs a full-text query over titles, descriptions, and
// content, best matches first. Types narrows the result when non-empty.
func (r *Repository) SearchItems(query string, types ...string) ([]*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	match := ftsQuery(query)
	if match == "" {
		return nil, &ValidationError{Message: "search query is empty"}
	}
	if !r.fts {
		return r.searchItemsLike(query, types)
	}

	q := "SELECT type, id FROM items_fts WHERE items_fts MATCH ?"
	args := []any{match}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, typ := range types {
			placeholders[i] = "?"
			args = append(args, typ)
		}
		q += " AND type IN (" + strings.Join(placeholders, ", ") + ")"
	}
	q += " ORDER BY rank"

	keys, err := r.collectKeys(q, args)
	if err != nil {
		return nil, err
	}
	return r.hydrateKeys(keys)
}

// searchItemsLike is the degraded path for sqlite builds without FTS5:
// every term must appear as a substring of the title, description, or
// content. No stemming, no relevance ranking; most recent first.
func (r *Repository) searchItemsLike(query string, types []string) ([]*Item, error) {
	q := "SELECT type, id FROM items WHERE 1 = 1"
	var args []any
	for _, term := range strings.Fields(query) {
		q += " AND (title LIKE ? OR description LIKE ? OR content LIKE ?)"
		pattern := "%" + strings.ReplaceAll(term, `"`, "") + "%"
		args = append(args, pattern, pattern, pattern)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, typ := range types {
			placeholders[i] = "?"
			args = append(args, typ)
		}
		q += " AND type IN (" + strings.Join(placeholders, ", ") + ")"
	}
	q += " ORDER BY updated_at DESC, id DESC"

	keys, err := r.collectKeys(q, args)
	if err != nil {
		return nil, err
	}
	return r.hydrateKeys(keys)
}

type itemKey struct {
	Type string
	ID   string
}

func (r *Repository) collectKeys(query string, args []any) ([]itemKey, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []itemKey
	for rows.Next() {
		var k itemKey
		if err := rows.Scan(&k.Type, &k.ID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// hydrateKeys loads full items for the keys, preserving order. Keys whose
// files vanished are skipped rather than failing the whole search.
func (r *Repository) hydrateKeys(keys []itemKey) ([]*Item, error) {
	items := make([]*Item, 0, len(keys))
	for _, k := range keys {
		b, err := r.behaviorFor(k.Type)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		it, err := r.readItemFile(b, k.ID)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// ftsQuery turns free text into an FTS5 match expression: each term
// quoted, all terms required. Avoids FTS syntax errors on raw input.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " ")
}
