// Package apperrors holds the error taxonomy shared by the inference engine,
// the override store and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData means the snapshot provider returned no tables for a project.
	// It is never fatal: callers render an empty graph with a message.
	ErrNoData = errors.New("no tables yet")

	// ErrClassifierUnavailable means the language model could not be used
	// (not configured, timed out, errored or cancelled).
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrAmbiguousTaxonomy marks a column that ties between semantic types
	// with no resolver available. It is logged, never returned to callers.
	ErrAmbiguousTaxonomy = errors.New("ambiguous semantic type")

	// ErrOverrideConflict marks two concurrent writes to the same override.
	// Last write wins; it is logged, never returned to callers.
	ErrOverrideConflict = errors.New("concurrent override write")

	ErrNotFound   = errors.New("not found")
	ErrInvalidKey = errors.New("invalid relationship key")
)

// SnapshotError wraps a failure of the schema snapshot provider. It is the
// only error that aborts an analysis run.
type SnapshotError struct {
	ProjectID string
	Retryable bool
	Err       error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("schema snapshot unavailable for project %s: %v", e.ProjectID, e.Err)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

// NewSnapshotError returns a retryable snapshot error.
func NewSnapshotError(projectID string, err error) *SnapshotError {
	return &SnapshotError{ProjectID: projectID, Retryable: true, Err: err}
}

// IsRetryable reports whether err is a snapshot failure worth retrying.
func IsRetryable(err error) bool {
	var snapErr *SnapshotError
	if errors.As(err, &snapErr) {
		return snapErr.Retryable
	}
	return false
}
