package kb

import (
	"database/sql"
	"errors"
	"fmt"
)

// seedStatuses is the fixed status vocabulary. Closed statuses are
// excluded from listings unless asked for.
var seedStatuses = []Status{
	{ID: 1, Name: "Open"},
	{ID: 2, Name: "In Progress"},
	{ID: 3, Name: "Review"},
	{ID: 4, Name: "Completed", IsClosed: true},
	{ID: 5, Name: "Closed", IsClosed: true},
	{ID: 6, Name: "Canceled", IsClosed: true},
}

// DefaultStatus is assigned to task-base items created without one.
const DefaultStatus = "Open"

// GetStatuses returns the status vocabulary in id order.
func (r *Repository) GetStatuses() ([]Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.Query("SELECT id, name, is_closed FROM statuses ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []Status
	for rows.Next() {
		var s Status
		var closed int
		if err := rows.Scan(&s.ID, &s.Name, &closed); err != nil {
			return nil, err
		}
		s.IsClosed = closed != 0
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

// statusByNameTx resolves a status by exact name inside tx.
func statusByNameTx(tx txlike, name string) (*Status, error) {
	var s Status
	var closed int
	err := tx.QueryRow("SELECT id, name, is_closed FROM statuses WHERE name = ?", name).
		Scan(&s.ID, &s.Name, &closed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ValidationError{Message: fmt.Sprintf("unknown status %q", name)}
	}
	if err != nil {
		return nil, err
	}
	s.IsClosed = closed != 0
	return &s, nil
}

// statusIDsByNames resolves status names to ids, for listing filters.
func (r *Repository) statusIDsByNames(names []string) ([]int, error) {
	ids := make([]int, 0, len(names))
	for _, name := range names {
		s, err := statusByNameTx(r.db, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, s.ID)
	}
	return ids, nil
}
