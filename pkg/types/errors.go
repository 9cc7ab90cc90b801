package types

import "errors"

// Sentinel errors for common error conditions.
var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrIndexNotFound is returned when the code index doesn't exist yet.
	ErrIndexNotFound = errors.New("index not found")

	// ErrNotGitRepo is returned when the project directory is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrCancelled is returned when an operation is cancelled.
	ErrCancelled = errors.New("operation cancelled")
)
