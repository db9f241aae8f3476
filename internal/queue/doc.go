// Package queue implements the shared task store the stage workers and the
// event bridge coordinate through. It persists jobs, logical files, staging
// tasks, and the append-only job event log in SQLite, and provides the two
// primitives the concurrency model rests on: tenant-scoped pseudo-random
// claim selection and the conditional status flip (optimistic concurrency).
//
// Claim reads are never cached; the queue mutates continuously and a stale
// read would cause duplicate or missed work. A conditional update that
// matches zero rows reports ErrClaimConflict, which is an expected outcome
// under many concurrent workers, not an error condition.
package queue
