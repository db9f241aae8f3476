// Package worker owns the background loops that drive the job pipeline. A
// Runner hosts one goroutine per registered stage worker, each polling on
// its own cadence; the workers themselves expose a single testable tick.
package worker

import "context"

// Worker is one stage's polling unit of work. RunOnce performs at most one
// claim-and-process cycle; worked reports whether a candidate was found so
// the runner can skip the idle wait and drain a backlog.
type Worker interface {
	Name() string
	RunOnce(ctx context.Context) (worked bool, err error)
}
