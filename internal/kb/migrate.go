package kb

import (
	"fmt"
	"os"
	"time"
)

// ChangeItemType re-keys an item under a different type with a freshly
// allocated id, rewriting every other item's related reference to the old
// key. All guards run before any side effect; a failure mid-way rolls the
// index back and restores touched files. Returns the new item and the
// number of items whose references were rewritten.
func (r *Repository) ChangeItemType(fromType, fromID, toType string) (*Item, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fromType == TypeSessions || fromType == TypeDailies || toType == TypeSessions || toType == TypeDailies {
		return nil, 0, &ValidationError{Message: "sessions and dailies cannot be type-changed"}
	}

	fromB, err := r.behaviorFor(fromType)
	if err != nil {
		return nil, 0, err
	}
	toB, err := r.behaviorFor(toType)
	if err != nil {
		return nil, 0, err
	}
	if fromB.Base != toB.Base {
		return nil, 0, &ValidationError{
			Message: fmt.Sprintf("cannot change %s (%s base) to %s (%s base)", fromType, fromB.Base, toType, toB.Base),
		}
	}

	it, err := r.readItemFile(fromB, fromID)
	if err != nil {
		return nil, 0, err
	}

	oldRef := FormatRef(fromType, fromID)

	// Inbound referrers, resolved before any mutation.
	rows, err := r.db.Query(
		"SELECT src_type, src_id FROM related_items WHERE dst_type = ? AND dst_id = ?",
		fromType, fromID,
	)
	if err != nil {
		return nil, 0, err
	}
	var referrers []itemKey
	for rows.Next() {
		var k itemKey
		if err := rows.Scan(&k.Type, &k.ID); err != nil {
			rows.Close()
			return nil, 0, err
		}
		referrers = append(referrers, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	now := time.Now().UTC()

	tx, err := r.db.Begin()
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	newID, err := r.allocateID(tx, toB, now)
	if err != nil {
		return nil, 0, err
	}

	migrated := *it
	migrated.Type = toType
	migrated.ID = newID
	migrated.UpdatedAt = now
	newRef := migrated.Ref()

	// A self-reference follows the item to its new key; the copy keeps the
	// original's slice untouched.
	migrated.Related = make([]string, len(it.Related))
	for i, rel := range it.Related {
		if rel == oldRef {
			rel = newRef
		}
		migrated.Related[i] = rel
	}

	if err := r.indexItem(tx, &migrated); err != nil {
		return nil, 0, err
	}
	if err := r.writeItemFile(toB, &migrated); err != nil {
		return nil, 0, err
	}

	// Track written files so a late failure can undo them.
	written := []string{r.itemPath(toB, newID)}
	undo := func() {
		for _, path := range written {
			os.Remove(path)
		}
	}

	rewritten := 0
	touched := make(map[string][]byte)
	for _, k := range referrers {
		if k.Type == fromType && k.ID == fromID {
			continue // self-reference, already rewritten on the migrated copy
		}
		kb, err := r.behaviorFor(k.Type)
		if err != nil {
			undo()
			return nil, 0, err
		}
		ref, err := r.readItemFile(kb, k.ID)
		if err != nil {
			undo()
			return nil, 0, err
		}

		changed := false
		for i, rel := range ref.Related {
			if rel == oldRef {
				ref.Related[i] = newRef
				changed = true
			}
		}
		if !changed {
			continue
		}

		path := r.itemPath(kb, k.ID)
		prior, err := os.ReadFile(path)
		if err != nil {
			undo()
			return nil, 0, err
		}

		if err := r.indexItem(tx, ref); err != nil {
			undo()
			restoreFiles(touched)
			return nil, 0, err
		}
		if err := r.writeItemFile(kb, ref); err != nil {
			undo()
			restoreFiles(touched)
			return nil, 0, err
		}
		touched[path] = prior
		rewritten++
	}

	if err := r.deindexItem(tx, fromType, fromID); err != nil {
		undo()
		restoreFiles(touched)
		return nil, 0, err
	}

	oldPath := r.itemPath(fromB, fromID)
	if err := tx.Commit(); err != nil {
		undo()
		restoreFiles(touched)
		return nil, 0, fmt.Errorf("failed to commit type change: %w", err)
	}

	if err := os.Remove(oldPath); err != nil {
		return nil, 0, &ConsistencyError{Op: "change type", Path: oldPath, Err: err}
	}

	return &migrated, rewritten, nil
}

// restoreFiles puts prior bytes back, best effort; the first failing path
// is reported so callers can escalate to a ConsistencyError.
func restoreFiles(files map[string][]byte) (string, error) {
	var failedPath string
	var firstErr error
	for path, data := range files {
		if err := os.WriteFile(path, data, 0644); err != nil && firstErr == nil {
			failedPath = path
			firstErr = err
		}
	}
	return failedPath, firstErr
}
