// Package queueaccess provides job queue operations regardless of whether a
// running daemon backs them over HTTP or the CLI falls back to opening the
// store directly.
package queueaccess

import (
	"context"

	"conveyor/internal/api"
	"conveyor/internal/jobstatus"
	"conveyor/internal/queue"
)

// Access provides job operations regardless of HTTP or direct store backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]api.JobView, error)
	Describe(ctx context.Context, jobUUID string) (*api.JobDetailResponse, error)
	Retry(ctx context.Context, jobUUID string) (api.JobView, error)
	Kill(ctx context.Context, jobUUID string) (api.JobView, error)
}

// NewStoreAccess returns an Access backed by direct store access.
func NewStoreAccess(store *queue.Store) Access {
	return &storeAccess{store: store, service: api.NewJobService(store)}
}

type storeAccess struct {
	store   *queue.Store
	service *api.JobService
}

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	return a.service.Stats(ctx)
}

func (a *storeAccess) List(ctx context.Context, statuses []string) ([]api.JobView, error) {
	var filters []jobstatus.Status
	for _, value := range statuses {
		if parsed, ok := jobstatus.Parse(value); ok {
			filters = append(filters, parsed)
		}
	}
	return a.service.List(ctx, filters...)
}

func (a *storeAccess) Describe(ctx context.Context, jobUUID string) (*api.JobDetailResponse, error) {
	return a.service.Describe(ctx, jobUUID)
}

func (a *storeAccess) Retry(ctx context.Context, jobUUID string) (api.JobView, error) {
	job, err := api.RetryJob(ctx, a.store, jobUUID)
	if err != nil {
		return api.JobView{}, err
	}
	return api.FromJob(job), nil
}

func (a *storeAccess) Kill(ctx context.Context, jobUUID string) (api.JobView, error) {
	job, err := api.KillJob(ctx, a.store, jobUUID)
	if err != nil {
		return api.JobView{}, err
	}
	return api.FromJob(job), nil
}
