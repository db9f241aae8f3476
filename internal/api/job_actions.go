package api

import (
	"context"
	"fmt"

	"conveyor/internal/jobstatus"
	"conveyor/internal/queue"
)

// JobWriter extends JobReader with the mutations operator actions need.
type JobWriter interface {
	JobReader
	RollbackJob(ctx context.Context, job *queue.Job, message string) error
	TransitionJob(ctx context.Context, job *queue.Job, next jobstatus.Status, message string) error
}

// RetryJob returns a failed job to the queue with its retry counter reset.
func RetryJob(ctx context.Context, store JobWriter, jobUUID string) (*queue.Job, error) {
	job, err := store.GetJobByUUID(ctx, jobUUID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, queue.ErrNotFound
	}
	if job.Status != jobstatus.Failed {
		return nil, fmt.Errorf("job %s is %s, only failed jobs can be retried", jobUUID, job.Status)
	}
	if err := store.RollbackJob(ctx, job, "requeued by operator"); err != nil {
		return nil, err
	}
	return store.GetJobByUUID(ctx, jobUUID)
}

// KillJob stops an in-flight job at operator request. Jobs that never
// reached the scheduler stop rather than get killed.
func KillJob(ctx context.Context, store JobWriter, jobUUID string) (*queue.Job, error) {
	job, err := store.GetJobByUUID(ctx, jobUUID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, queue.ErrNotFound
	}
	if job.IsTerminal() {
		return nil, fmt.Errorf("job %s already reached terminal status %s", jobUUID, job.Status)
	}
	target := jobstatus.Killed
	if !jobstatus.IsValidTransition(job.Status, target) {
		target = jobstatus.Stopped
	}
	if err := store.TransitionJob(ctx, job, target, "killed by operator"); err != nil {
		return nil, err
	}
	return store.GetJobByUUID(ctx, jobUUID)
}
