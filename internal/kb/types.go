// Package kb implements the knowledge base: typed markdown items stored as
// files under the data directory, mirrored into a SQLite index for listing
// and search. The files are the source of truth; the index is rebuildable.
package kb

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Base categories a type can belong to.
const (
	BaseTasks     = "tasks"
	BaseDocuments = "documents"
)

// Special type names. They behave like their base category but are not
// listed in the registry and cannot be created, renamed, or converted.
const (
	TypeSessions = "sessions"
	TypeDailies  = "dailies"
)

// Priorities for task-base items.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

var (
	typeNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	tagNameRe  = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Item is a fully hydrated knowledge base item.
type Item struct {
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	Status      string    `json:"status,omitempty"`
	Tags        []string  `json:"tags"`
	Related     []string  `json:"related"`
	StartDate   string    `json:"start_date,omitempty"`
	EndDate     string    `json:"end_date,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Ref returns the item's reference string, e.g. "issues-42".
func (it *Item) Ref() string {
	return FormatRef(it.Type, it.ID)
}

// TypeDefinition describes a registered item type.
type TypeDefinition struct {
	Name        string `json:"name"`
	BaseType    string `json:"base_type"`
	Description string `json:"description,omitempty"`
	Builtin     bool   `json:"builtin"`
}

// Tag is a registered tag with its usage count.
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Status is one entry of the fixed status vocabulary.
type Status struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	IsClosed bool   `json:"is_closed"`
}

// CurrentState is the singleton working-state document.
type CurrentState struct {
	Content  string        `json:"content"`
	Metadata StateMetadata `json:"metadata"`
}

// StateMetadata carries the current state's frontmatter fields.
type StateMetadata struct {
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	Priority  string    `json:"priority,omitempty"`
	Tags      []string  `json:"tags"`
	Related   []string  `json:"related"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// FormatRef builds a reference string from type and id.
func FormatRef(itemType, id string) string {
	return itemType + "-" + id
}

// ParseRef splits a reference string at the first hyphen. The type part
// must match the type-name pattern; the id may itself contain hyphens
// (session and daily ids do).
func ParseRef(ref string) (itemType, id string, err error) {
	idx := strings.Index(ref, "-")
	if idx <= 0 || idx == len(ref)-1 {
		return "", "", &ValidationError{Message: fmt.Sprintf("invalid reference %q: expected <type>-<id>", ref)}
	}

	itemType = ref[:idx]
	id = ref[idx+1:]

	if !typeNameRe.MatchString(itemType) {
		return "", "", &ValidationError{Message: fmt.Sprintf("invalid reference %q: bad type name %q", ref, itemType)}
	}

	return itemType, id, nil
}

// ValidTypeName reports whether name is an acceptable type name.
func ValidTypeName(name string) bool {
	return typeNameRe.MatchString(name)
}

// ValidTagName reports whether name is an acceptable tag name.
func ValidTagName(name string) bool {
	return tagNameRe.MatchString(name)
}

// ValidPriority reports whether p is one of the known priorities.
func ValidPriority(p string) bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}
