package kb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
)

// GetTags returns all registered tags with usage counts, name-sorted.
func (r *Repository) GetTags() ([]Tag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.Query(`
		SELECT t.name, COUNT(it.tag_id)
		FROM tags t
		LEFT JOIN item_tags it ON it.tag_id = t.id
		GROUP BY t.id
		ORDER BY t.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.Name, &t.Count); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// CreateTag registers a tag ahead of use. Duplicates are reported, not
// silently accepted.
func (r *Repository) CreateTag(name string) (*Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !ValidTagName(name) {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid tag name %q: must match [A-Za-z0-9_-]+", name)}
	}

	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM tags WHERE name = ?", name).Scan(&count); err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, &ValidationError{Message: fmt.Sprintf("tag %q already exists", name)}
	}

	if _, err := r.db.Exec("INSERT INTO tags (name) VALUES (?)", name); err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}

	return &Tag{Name: name}, nil
}

// DeleteTag unregisters a tag and removes it from every item carrying it,
// files included.
func (r *Repository) DeleteTag(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tagID int64
	err := r.db.QueryRow("SELECT id FROM tags WHERE name = ?", name).Scan(&tagID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &NotFoundError{Kind: "tag", Key: name}
		}
		return err
	}

	rows, err := r.db.Query(
		"SELECT item_type, item_id FROM item_tags WHERE tag_id = ? ORDER BY item_type, item_id", tagID,
	)
	if err != nil {
		return err
	}
	type key struct{ itemType, id string }
	var carriers []key
	for rows.Next() {
		var k key
		if err := rows.Scan(&k.itemType, &k.id); err != nil {
			rows.Close()
			return err
		}
		carriers = append(carriers, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Prior bytes of every rewritten file; a failure anywhere puts them
	// back so the files never diverge from the rolled-back index.
	touched := make(map[string][]byte)
	fail := func(err error) error {
		if path, restoreErr := restoreFiles(touched); restoreErr != nil {
			return &ConsistencyError{Op: "delete tag", Path: path, Err: restoreErr}
		}
		return err
	}

	for _, k := range carriers {
		b, err := r.behaviorFor(k.itemType)
		if err != nil {
			return fail(err)
		}
		it, err := r.readItemFile(b, k.id)
		if err != nil {
			return fail(err)
		}

		kept := make([]string, 0, len(it.Tags))
		for _, tag := range it.Tags {
			if tag != name {
				kept = append(kept, tag)
			}
		}
		it.Tags = kept

		path := r.itemPath(b, it.ID)
		prior, err := os.ReadFile(path)
		if err != nil {
			return fail(err)
		}

		if err := r.indexItem(tx, it); err != nil {
			return fail(err)
		}
		if err := r.writeItemFile(b, it); err != nil {
			return fail(err)
		}
		touched[path] = prior
	}

	if _, err := tx.Exec("DELETE FROM item_tags WHERE tag_id = ?", tagID); err != nil {
		return fail(err)
	}
	if _, err := tx.Exec("DELETE FROM tags WHERE id = ?", tagID); err != nil {
		return fail(err)
	}

	if err := tx.Commit(); err != nil {
		return fail(fmt.Errorf("failed to commit tag delete: %w", err))
	}
	return nil
}

// SearchTags finds tags by case-insensitive substring match.
func (r *Repository) SearchTags(pattern string) ([]Tag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.Query(`
		SELECT t.name, COUNT(it.tag_id)
		FROM tags t
		LEFT JOIN item_tags it ON it.tag_id = t.id
		WHERE LOWER(t.name) LIKE '%' || LOWER(?) || '%'
		GROUP BY t.id
		ORDER BY t.name
	`, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.Name, &t.Count); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// EnsureTagsExist registers any of the given tags not yet known. It is
// idempotent and validates every name first.
func (r *Repository) EnsureTagsExist(names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureTagsTx(r.db, names)
}

func (r *Repository) ensureTagsTx(tx txlike, names []string) error {
	for _, name := range names {
		if !ValidTagName(name) {
			return &ValidationError{Message: fmt.Sprintf("invalid tag name %q", name)}
		}
	}
	for _, name := range names {
		if _, err := tx.Exec("INSERT OR IGNORE INTO tags (name) VALUES (?)", name); err != nil {
			return err
		}
	}
	return nil
}
