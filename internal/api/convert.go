package api

import (
	"time"

	"conveyor/internal/queue"
)

const timestampLayout = time.RFC3339

// FromJob converts a queue job into its transport representation.
func FromJob(job *queue.Job) JobView {
	if job == nil {
		return JobView{}
	}
	return JobView{
		ID:              job.ID,
		UUID:            job.UUID,
		TenantID:        job.TenantID,
		Owner:           job.Owner,
		ExecutionSystem: job.ExecutionSystem,
		AppID:           job.AppID,
		Status:          job.Status.String(),
		StatusDetail:    job.Status.Description(),
		RetryCount:      job.RetryCount,
		LocalJobID:      job.LocalJobID,
		ArchiveSystem:   job.ArchiveSystem,
		ArchivePath:     job.ArchivePath,
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt.UTC().Format(timestampLayout),
		UpdatedAt:       job.UpdatedAt.UTC().Format(timestampLayout),
	}
}

// FromJobs converts a slice of queue jobs.
func FromJobs(jobs []*queue.Job) []JobView {
	if len(jobs) == 0 {
		return nil
	}
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, FromJob(job))
	}
	return views
}

// FromJobEvent converts a lifecycle event record.
func FromJobEvent(event *queue.JobEvent) JobEventView {
	if event == nil {
		return JobEventView{}
	}
	return JobEventView{
		Status:    event.Status.String(),
		Message:   event.Message,
		CreatedBy: event.CreatedBy,
		CreatedAt: event.CreatedAt.UTC().Format(timestampLayout),
	}
}

// FromJobEvents converts a slice of lifecycle event records.
func FromJobEvents(events []*queue.JobEvent) []JobEventView {
	if len(events) == 0 {
		return nil
	}
	views := make([]JobEventView, 0, len(events))
	for _, event := range events {
		views = append(views, FromJobEvent(event))
	}
	return views
}
