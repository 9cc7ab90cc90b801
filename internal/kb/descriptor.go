package kb

import (
	"fmt"
	"path/filepath"
	"time"
)

// sessionIDLayout is the timestamp key used for session ids, millisecond
// precision so two sessions in the same second stay distinct.
const sessionIDLayout = "2006-01-02-15.04.05.000"

// dailyIDLayout is the date key used for daily ids.
const dailyIDLayout = "2006-01-02"

// behavior describes how a type is stored, listed, and keyed. All CRUD
// paths consult a behavior instead of switching on type names, so a new
// registered type needs no code changes.
type behavior struct {
	Type            string
	Base            string // tasks or documents
	Special         bool   // sessions/dailies: unlisted, immutable, not convertible
	RequiresContent bool   // content mandatory on create
	TaskFields      bool   // priority, status and planning dates apply
	ContentInList   bool   // listings return full content instead of summaries
	OwnDateFilter   bool   // date filters use the id-embedded date, not updated_at
}

// specialBehaviors are hardcoded: sessions and dailies exist on every data
// dir without a registry row.
var specialBehaviors = map[string]behavior{
	TypeSessions: {
		Type:          TypeSessions,
		Base:          BaseTasks,
		Special:       true,
		TaskFields:    true,
		ContentInList: true,
		OwnDateFilter: true,
	},
	TypeDailies: {
		Type:            TypeDailies,
		Base:            BaseDocuments,
		Special:         true,
		RequiresContent: true,
		ContentInList:   true,
		OwnDateFilter:   true,
	},
}

// behaviorFor resolves a type name into its behavior. Unknown types return
// a NotFoundError.
func (r *Repository) behaviorFor(itemType string) (behavior, error) {
	if b, ok := specialBehaviors[itemType]; ok {
		return b, nil
	}

	def, err := r.getTypeRow(itemType)
	if err != nil {
		return behavior{}, err
	}

	return behavior{
		Type:            def.Name,
		Base:            def.BaseType,
		RequiresContent: def.BaseType == BaseDocuments,
		TaskFields:      def.BaseType == BaseTasks,
	}, nil
}

// itemDir returns the directory holding files of the given behavior.
func (r *Repository) itemDir(b behavior) string {
	if b.Special {
		return filepath.Join(r.dataDir, b.Type)
	}
	return filepath.Join(r.dataDir, b.Base, b.Type)
}

// itemPath returns the file path for an item.
func (r *Repository) itemPath(b behavior, id string) string {
	return filepath.Join(r.itemDir(b), fmt.Sprintf("%s-%s.md", b.Type, id))
}

// allocateID produces the next id for a type inside tx. Ordinary types use
// a monotonic per-type sequence; sessions use a timestamp key; dailies use
// the date, at most one per day.
func (r *Repository) allocateID(tx txlike, b behavior, now time.Time) (string, error) {
	switch b.Type {
	case TypeSessions:
		id := now.Format(sessionIDLayout)
		var count int
		if err := tx.QueryRow("SELECT COUNT(*) FROM items WHERE type = ? AND id = ?", b.Type, id).Scan(&count); err != nil {
			return "", err
		}
		if count > 0 {
			return "", &ValidationError{Message: fmt.Sprintf("session %s already exists", id)}
		}
		return id, nil

	case TypeDailies:
		id := now.Format(dailyIDLayout)
		var count int
		if err := tx.QueryRow("SELECT COUNT(*) FROM items WHERE type = ? AND id = ?", b.Type, id).Scan(&count); err != nil {
			return "", err
		}
		if count > 0 {
			return "", &ValidationError{Message: fmt.Sprintf("daily for %s already exists", id)}
		}
		return id, nil

	default:
		var next int64
		err := tx.QueryRow(`
			INSERT INTO sequences (type, current) VALUES (?, 1)
			ON CONFLICT(type) DO UPDATE SET current = current + 1
			RETURNING current
		`, b.Type).Scan(&next)
		if err != nil {
			return "", fmt.Errorf("failed to allocate id for %s: %w", b.Type, err)
		}
		return fmt.Sprintf("%d", next), nil
	}
}
