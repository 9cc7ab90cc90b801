package kb

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// CreateItemRequest carries the fields accepted by CreateItem.
type CreateItemRequest struct {
	Type        string
	Title       string
	Description string
	Content     string
	Priority    string
	Status      string
	Tags        []string
	Related     []string
	StartDate   string
	EndDate     string
}

// UpdateItemRequest carries a partial update. Nil pointers and nil slices
// mean "leave unchanged"; a non-nil empty slice clears the field.
type UpdateItemRequest struct {
	Type        string
	ID          string
	Title       *string
	Description *string
	Content     *string
	Priority    *string
	Status      *string
	StartDate   *string
	EndDate     *string
	Tags        []string
	Related     []string
}

// ListItemsOptions filters GetItems.
type ListItemsOptions struct {
	Type string
	// IncludeClosed disables the default exclusion of closed-status items
	// for task-base types.
	IncludeClosed bool
	// StatusIDs narrows to the given statuses when non-empty.
	StatusIDs []int
	// StatusNames narrows by status name; combined with StatusIDs when
	// both are set. Unknown names are a validation error.
	StatusNames []string
	// StartDate/EndDate bound the item's date in YYYY-MM-DD form. Ordinary
	// types filter on the update timestamp, sessions and dailies on the
	// date embedded in their id.
	StartDate string
	EndDate   string
	// Limit truncates to the most recent N after all filters.
	Limit int
}

// CreateItem validates, allocates an id, writes the item file, and mirrors
// it into the index in one transaction.
func (r *Repository) CreateItem(req *CreateItemRequest) (*Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.behaviorFor(req.Type)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	it := &Item{
		Type:        b.Type,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Content:     req.Content,
		Priority:    req.Priority,
		Status:      req.Status,
		Tags:        normalizeTags(req.Tags),
		Related:     append([]string{}, req.Related...),
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if b.TaskFields {
		if it.Priority == "" {
			it.Priority = PriorityMedium
		}
		if it.Status == "" {
			it.Status = DefaultStatus
		}
	}

	if err := r.validateItem(b, it); err != nil {
		return nil, err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := validateRelated(tx, it.Related); err != nil {
		return nil, err
	}

	id, err := r.allocateID(tx, b, now)
	if err != nil {
		return nil, err
	}
	it.ID = id

	if err := r.indexItem(tx, it); err != nil {
		return nil, err
	}

	if err := r.writeItemFile(b, it); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		path := r.itemPath(b, it.ID)
		if rmErr := os.Remove(path); rmErr != nil {
			return nil, &ConsistencyError{Op: "create", Path: path, Err: rmErr}
		}
		return nil, fmt.Errorf("failed to index item: %w", err)
	}

	return it, nil
}

// GetItem returns the fully hydrated item, loaded from its file.
func (r *Repository) GetItem(itemType, id string) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, err := r.behaviorFor(itemType)
	if err != nil {
		return nil, err
	}
	return r.readItemFile(b, id)
}

// GetItems lists items of one type from the index, most recent first.
// Task-base types exclude closed-status items unless opts.IncludeClosed;
// summary types come back without content.
func (r *Repository) GetItems(opts ListItemsOptions) ([]*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, err := r.behaviorFor(opts.Type)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT i.type, i.id, i.title, i.description, i.content, i.priority,
		       COALESCE(s.name, ''), i.start_date, i.end_date, i.created_at, i.updated_at
		FROM items i
		LEFT JOIN statuses s ON s.id = i.status_id
		WHERE i.type = ?
	`
	args := []any{b.Type}

	if b.TaskFields && !opts.IncludeClosed {
		query += " AND (i.status_id IS NULL OR i.status_id NOT IN (SELECT id FROM statuses WHERE is_closed = 1))"
	}

	statusIDs := append([]int{}, opts.StatusIDs...)
	if len(opts.StatusNames) > 0 {
		ids, err := r.statusIDsByNames(opts.StatusNames)
		if err != nil {
			return nil, err
		}
		statusIDs = append(statusIDs, ids...)
	}
	if len(statusIDs) > 0 {
		placeholders := make([]string, len(statusIDs))
		for idx, id := range statusIDs {
			placeholders[idx] = "?"
			args = append(args, id)
		}
		query += " AND i.status_id IN (" + strings.Join(placeholders, ", ") + ")"
	}

	dateExpr := "substr(i.updated_at, 1, 10)"
	if b.OwnDateFilter {
		dateExpr = "substr(i.id, 1, 10)"
	}
	if opts.StartDate != "" {
		if err := validDate(opts.StartDate); err != nil {
			return nil, err
		}
		query += " AND " + dateExpr + " >= ?"
		args = append(args, opts.StartDate)
	}
	if opts.EndDate != "" {
		if err := validDate(opts.EndDate); err != nil {
			return nil, err
		}
		query += " AND " + dateExpr + " <= ?"
		args = append(args, opts.EndDate)
	}

	query += " ORDER BY i.updated_at DESC, i.id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var it Item
		var created, updated string
		if err := rows.Scan(&it.Type, &it.ID, &it.Title, &it.Description, &it.Content,
			&it.Priority, &it.Status, &it.StartDate, &it.EndDate, &created, &updated); err != nil {
			return nil, err
		}
		it.CreatedAt, _ = time.Parse(time.RFC3339, created)
		it.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		if !b.ContentInList {
			it.Content = ""
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, it := range items {
		if err := r.loadEdges(it); err != nil {
			return nil, err
		}
	}

	return items, nil
}

// UpdateItem applies a partial update and rewrites both the file and the
// index rows. The file is restored to its prior bytes if the index sync
// cannot be committed.
func (r *Repository) UpdateItem(req *UpdateItemRequest) (*Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.behaviorFor(req.Type)
	if err != nil {
		return nil, err
	}

	path := r.itemPath(b, req.ID)
	prior, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Kind: "item", Key: FormatRef(b.Type, req.ID)}
		}
		return nil, err
	}

	it, err := r.readItemFile(b, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		it.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		it.Description = *req.Description
	}
	if req.Content != nil {
		it.Content = *req.Content
	}
	if req.Priority != nil {
		it.Priority = *req.Priority
	}
	if req.Status != nil {
		it.Status = *req.Status
	}
	if req.StartDate != nil {
		it.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		it.EndDate = *req.EndDate
	}
	if req.Tags != nil {
		it.Tags = normalizeTags(req.Tags)
	}
	if req.Related != nil {
		it.Related = append([]string{}, req.Related...)
	}
	it.UpdatedAt = time.Now().UTC()

	if err := r.validateItem(b, it); err != nil {
		return nil, err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := validateRelated(tx, it.Related); err != nil {
		return nil, err
	}
	if err := r.indexItem(tx, it); err != nil {
		return nil, err
	}
	if err := r.writeItemFile(b, it); err != nil {
		// A partial write is as divergent as a failed commit; put the
		// prior bytes back before reporting.
		if restoreErr := os.WriteFile(path, prior, 0644); restoreErr != nil {
			return nil, &ConsistencyError{Op: "update", Path: path, Err: restoreErr}
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if restoreErr := os.WriteFile(path, prior, 0644); restoreErr != nil {
			return nil, &ConsistencyError{Op: "update", Path: path, Err: restoreErr}
		}
		return nil, fmt.Errorf("failed to index item: %w", err)
	}

	return it, nil
}

// DeleteItem removes the item file and every index row referencing the
// item, relation edges in both directions included.
func (r *Repository) DeleteItem(itemType, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.behaviorFor(itemType)
	if err != nil {
		return err
	}

	path := r.itemPath(b, id)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &NotFoundError{Kind: "item", Key: FormatRef(b.Type, id)}
		}
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.deindexItem(tx, b.Type, id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM related_items WHERE dst_type = ? AND dst_id = ?", b.Type, id); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove item file: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return &ConsistencyError{Op: "delete", Path: path, Err: err}
	}

	return nil
}

// validateItem checks field constraints against the type's behavior.
// Violations are collected so the caller sees every problem at once.
func (r *Repository) validateItem(b behavior, it *Item) error {
	var problems []string

	if it.Title == "" {
		problems = append(problems, "title is required")
	}
	if b.RequiresContent && strings.TrimSpace(it.Content) == "" {
		problems = append(problems, fmt.Sprintf("content is required for %s items", b.Type))
	}

	if b.TaskFields {
		if it.Priority != "" && !ValidPriority(it.Priority) {
			problems = append(problems, fmt.Sprintf("invalid priority %q: must be high, medium, or low", it.Priority))
		}
		if it.StartDate != "" {
			if err := validDate(it.StartDate); err != nil {
				problems = append(problems, err.Error())
			}
		}
		if it.EndDate != "" {
			if err := validDate(it.EndDate); err != nil {
				problems = append(problems, err.Error())
			}
		}
		if it.StartDate != "" && it.EndDate != "" && it.EndDate < it.StartDate {
			problems = append(problems, fmt.Sprintf("end_date %s precedes start_date %s", it.EndDate, it.StartDate))
		}
		if it.Status != "" {
			if _, err := statusByNameTx(r.db, it.Status); err != nil {
				problems = append(problems, fmt.Sprintf("unknown status %q", it.Status))
			}
		}
	} else {
		if it.Priority != "" {
			problems = append(problems, fmt.Sprintf("priority does not apply to %s items", b.Type))
		}
		if it.Status != "" {
			problems = append(problems, fmt.Sprintf("status does not apply to %s items", b.Type))
		}
		if it.StartDate != "" || it.EndDate != "" {
			problems = append(problems, fmt.Sprintf("start_date/end_date do not apply to %s items", b.Type))
		}
	}

	for _, tag := range it.Tags {
		if !ValidTagName(tag) {
			problems = append(problems, fmt.Sprintf("invalid tag name %q", tag))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Message: strings.Join(problems, "; ")}
	}
	return nil
}

// validateRelated checks every reference resolves to an existing item.
// All unresolvable references are reported together.
func validateRelated(tx txlike, refs []string) error {
	var missing []string
	for _, ref := range refs {
		refType, refID, err := ParseRef(ref)
		if err != nil {
			return err
		}
		var count int
		if err := tx.QueryRow("SELECT COUNT(*) FROM items WHERE type = ? AND id = ?", refType, refID).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			missing = append(missing, ref)
		}
	}
	if len(missing) > 0 {
		return &ReferenceError{Refs: missing}
	}
	return nil
}

// loadEdges fills an item's tags and related lists from the index,
// preserving stored order.
func (r *Repository) loadEdges(it *Item) error {
	it.Tags = []string{}
	it.Related = []string{}

	rows, err := r.db.Query(`
		SELECT t.name FROM item_tags it
		JOIN tags t ON t.id = it.tag_id
		WHERE it.item_type = ? AND it.item_id = ?
		ORDER BY it.position
	`, it.Type, it.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		it.Tags = append(it.Tags, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.Query(`
		SELECT dst_type, dst_id FROM related_items
		WHERE src_type = ? AND src_id = ?
		ORDER BY position
	`, it.Type, it.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var dstType, dstID string
		if err := rows.Scan(&dstType, &dstID); err != nil {
			return err
		}
		it.Related = append(it.Related, FormatRef(dstType, dstID))
	}
	return rows.Err()
}

// normalizeTags trims and de-duplicates while keeping first-seen order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func validDate(s string) error {
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return &ValidationError{Message: fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", s)}
	}
	return nil
}
