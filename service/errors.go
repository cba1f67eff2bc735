package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when a caller lacks the access level an
	// operation requires. Callers surface it, they never retry it.
	ErrUnauthorized = errors.New("not authorized")

	// ErrAccessExists is returned when adding a collaborator who already
	// has an access record; updating an existing grant goes through
	// UpdateAccessLevel instead.
	ErrAccessExists = errors.New("user already has access")
)

// VersionConflictError reports an optimistic-concurrency mismatch on a
// scene write. It carries the authoritative version so the caller can
// re-fetch, reconcile and retry instead of blindly overwriting.
type VersionConflictError struct {
	StoredVersion int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: stored version is %d", e.StoredVersion)
}

func (e *VersionConflictError) CurrentVersion() int64 {
	return e.StoredVersion
}
