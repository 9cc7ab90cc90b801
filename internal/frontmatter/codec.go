// Package frontmatter implements the markdown item file format: a YAML-ish
// metadata block delimited by "---" lines, followed by free-form content.
// List fields are written as JSON array literals; reads also accept the
// legacy comma-joined form.
package frontmatter

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// ErrMalformed is returned when a metadata block is opened but cannot be
// decoded. A file with no metadata block at all is not malformed.
var ErrMalformed = errors.New("malformed frontmatter")

// listFields are metadata keys whose values are string lists.
var listFields = map[string]bool{
	"tags":    true,
	"related": true,
}

// canonicalOrder is the key order used when generating a metadata block.
// Keys not listed here are appended in sorted order.
var canonicalOrder = []string{
	"title", "type", "description", "priority", "status",
	"tags", "related", "start_date", "end_date",
	"created_at", "updated_at", "updated_by",
}

// Metadata holds the decoded metadata block. Scalar values are strings,
// list fields are []string.
type Metadata map[string]any

// GetString returns the scalar value for key, or "" if absent.
func (m Metadata) GetString(key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetList returns the list value for key. Absent or null lists come back
// as an empty slice, never nil semantics for the caller to worry about.
func (m Metadata) GetList(key string) []string {
	if v, ok := m[key]; ok {
		if l, ok := v.([]string); ok {
			return l
		}
	}
	return []string{}
}

// Parse splits raw file content into metadata and body content.
//
// A file that does not open with a delimiter line has no metadata: the
// whole input is content and the error is nil. An opened but unterminated
// or undecodable block returns an error wrapping ErrMalformed.
func Parse(raw string) (Metadata, string, error) {
	if !strings.HasPrefix(raw, delimiter+"\n") {
		return Metadata{}, raw, nil
	}

	rest := raw[len(delimiter)+1:]

	var block, content string
	if end := strings.Index(rest, "\n"+delimiter+"\n"); end >= 0 {
		block = rest[:end]
		// Drop the blank separator line Generate writes before content.
		content = strings.TrimPrefix(rest[end+len(delimiter)+2:], "\n")
	} else if strings.HasSuffix(rest, "\n"+delimiter) {
		block = rest[:len(rest)-len(delimiter)-1]
	} else {
		return nil, "", fmt.Errorf("%w: missing closing delimiter", ErrMalformed)
	}

	var decoded map[string]any
	if err := yaml.Unmarshal([]byte(block), &decoded); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	meta := make(Metadata, len(decoded))
	for key, value := range decoded {
		if listFields[key] {
			meta[key] = normalizeList(value)
		} else {
			meta[key] = normalizeScalar(value)
		}
	}

	return meta, content, nil
}

// normalizeList coerces a decoded value into []string. It accepts YAML
// sequences (including JSON-flow arrays), null, and the legacy
// comma-joined string form.
func normalizeList(value any) []string {
	switch v := value.(type) {
	case nil:
		return []string{}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := normalizeScalar(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return []string{}
		}
		// A quoted JSON array survives YAML decoding as a plain string.
		if strings.HasPrefix(trimmed, "[") {
			var out []string
			if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
				return out
			}
		}
		// Legacy comma-joined form.
		parts := strings.Split(trimmed, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return []string{normalizeScalar(value)}
	}
}

// normalizeScalar coerces a decoded YAML scalar into a string.
func normalizeScalar(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		// Date-only values round-trip as dates, timestamps as RFC3339.
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Generate renders a metadata block followed by content. List fields are
// emitted as JSON array literals, scalars as key: value lines in canonical
// key order. Empty scalars and absent keys are omitted; list fields are
// always emitted so an empty list is distinguishable from a legacy file.
func Generate(meta Metadata, content string) string {
	var b strings.Builder
	b.WriteString(delimiter)
	b.WriteByte('\n')

	for _, key := range orderedKeys(meta) {
		value := meta[key]
		if listFields[key] {
			list, _ := value.([]string)
			if list == nil {
				list = []string{}
			}
			encoded, _ := json.Marshal(list)
			fmt.Fprintf(&b, "%s: %s\n", key, encoded)
			continue
		}

		s := normalizeScalar(value)
		if s == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", key, quoteIfNeeded(s))
	}

	b.WriteString(delimiter)
	b.WriteByte('\n')

	if content != "" {
		b.WriteByte('\n')
		b.WriteString(content)
	}

	return b.String()
}

// orderedKeys returns meta's keys in canonical order, with unknown keys
// appended alphabetically.
func orderedKeys(meta Metadata) []string {
	seen := make(map[string]bool, len(meta))
	keys := make([]string, 0, len(meta))

	for _, key := range canonicalOrder {
		if _, ok := meta[key]; ok {
			keys = append(keys, key)
			seen[key] = true
		}
	}

	var extra []string
	for key := range meta {
		if !seen[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)

	return append(keys, extra...)
}

// quoteIfNeeded wraps a scalar in double quotes when the bare form would
// not survive a YAML read unchanged.
func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if needsQuoting(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuoting(s string) bool {
	if strings.ContainsAny(s, ":#\"'\n\t`{}[]&*!|>%@,") {
		return true
	}
	if s != strings.TrimSpace(s) {
		return true
	}
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no", "null", "~", "on", "off":
		return true
	}
	first := s[0]
	if first == '-' || first == '?' {
		return true
	}
	// Numeric-looking strings keep their type when quoted.
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return false
}
