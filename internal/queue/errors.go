package queue

import "errors"

var (
	// ErrClaimConflict reports an optimistic-concurrency loss: the row a
	// worker tried to flip was changed by someone else first. Always
	// non-fatal; the losing worker simply ends its tick with no work done.
	ErrClaimConflict = errors.New("claim conflict")

	// ErrNotFound reports a lookup for an entity that does not exist.
	ErrNotFound = errors.New("not found")
)

// IsConflict reports whether the error is an expected optimistic-concurrency
// loss rather than an infrastructure failure.
func IsConflict(err error) bool {
	return errors.Is(err, ErrClaimConflict)
}
