// Package jobstatus defines the job lifecycle vocabulary and the single
// source of truth for which status transitions are legal. Both the stage
// workers and the transfer event bridge validate every write through this
// package, so legality is checked exactly once regardless of which path
// requested the change.
package jobstatus
