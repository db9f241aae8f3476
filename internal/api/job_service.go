package api

import (
	"context"

	"conveyor/internal/jobstatus"
	"conveyor/internal/queue"
)

// JobReader abstracts the store interactions needed for API queries.
type JobReader interface {
	ListJobs(ctx context.Context, statuses ...jobstatus.Status) ([]*queue.Job, error)
	GetJobByUUID(ctx context.Context, jobUUID string) (*queue.Job, error)
	JobEvents(ctx context.Context, jobUUID string) ([]*queue.JobEvent, error)
	JobStats(ctx context.Context) (queue.Stats, error)
}

// JobService exposes read-only job operations returning API DTOs.
type JobService struct {
	store JobReader
}

// NewJobService constructs a JobService around the provided reader.
func NewJobService(store JobReader) *JobService {
	if store == nil {
		return nil
	}
	return &JobService{store: store}
}

// List returns jobs filtered by status.
func (s *JobService) List(ctx context.Context, statuses ...jobstatus.Status) ([]JobView, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	jobs, err := s.store.ListJobs(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Stats returns job summary counts keyed by status string.
func (s *JobService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.JobStats(ctx)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]int, len(stats))
	for status, count := range stats {
		merged[status.String()] = count
	}
	return merged, nil
}

// Describe fetches a single job with its lifecycle history.
func (s *JobService) Describe(ctx context.Context, jobUUID string) (*JobDetailResponse, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	job, err := s.store.GetJobByUUID(ctx, jobUUID)
	if err != nil || job == nil {
		return nil, err
	}
	events, err := s.store.JobEvents(ctx, jobUUID)
	if err != nil {
		return nil, err
	}
	return &JobDetailResponse{
		Job:    FromJob(job),
		Events: FromJobEvents(events),
	}, nil
}
