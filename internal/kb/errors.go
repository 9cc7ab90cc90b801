package kb

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError indicates a missing item, type, tag, or status.
type NotFoundError struct {
	Kind string // "item", "type", "tag", "status"
	Key  string // e.g. "issues-42"
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

// ValidationError indicates invalid input: missing required fields, bad
// patterns, unknown enum values, malformed dates.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ReferenceError indicates that related references could not be resolved.
// It always carries the complete list of offending references.
type ReferenceError struct {
	Refs []string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("related items not found: %s", strings.Join(e.Refs, ", "))
}

// ConsistencyError indicates the file tree and the index could not be kept
// in agreement: one side of a dual write succeeded and the rollback of the
// other side failed. Running a rebuild restores consistency.
type ConsistencyError struct {
	Op   string
	Path string
	Err  error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s left %s inconsistent with the index (run rebuild): %v", e.Op, e.Path, e.Err)
}

func (e *ConsistencyError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is a ValidationError or ReferenceError.
func IsValidation(err error) bool {
	var ve *ValidationError
	var re *ReferenceError
	return errors.As(err, &ve) || errors.As(err, &re)
}
