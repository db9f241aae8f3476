package testsupport

import (
	"context"
	"testing"

	"conveyor/internal/config"
	"conveyor/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob inserts a pending job for tests using the provided store.
func NewJob(t testing.TB, store *queue.Store, tenantID, owner string) *queue.Job {
	t.Helper()

	job, err := store.NewJob(context.Background(), queue.NewJobParams{
		TenantID:        tenantID,
		Owner:           owner,
		ExecutionSystem: "hpc.example.org",
		AppID:           "wordcount-1.0",
	})
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}

// NewFile registers a logical file bound to the given job for tests.
func NewFile(t testing.TB, store *queue.Store, job *queue.Job, sourceURI string) *queue.LogicalFile {
	t.Helper()

	file, err := store.CreateFile(context.Background(), queue.NewFileParams{
		TenantID:  job.TenantID,
		Owner:     job.Owner,
		SystemID:  job.ExecutionSystem,
		Path:      "/scratch/" + job.UUID + "/input.dat",
		SourceURI: sourceURI,
		JobUUID:   job.UUID,
	})
	if err != nil {
		t.Fatalf("store.CreateFile: %v", err)
	}
	return file
}
