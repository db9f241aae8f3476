package archiving_test

import (
	"context"
	"errors"
	"testing"

	"conveyor/internal/archiving"
	"conveyor/internal/jobstatus"
	"conveyor/internal/policy"
	"conveyor/internal/queue"
	"conveyor/internal/tenant"
	"conveyor/internal/testsupport"
)

type fakeArchiveClient struct {
	transferErr error
	transfers   int
}

func (f *fakeArchiveClient) Authenticate(ctx context.Context, system string) error { return nil }

func (f *fakeArchiveClient) Exists(ctx context.Context, system, path string) (bool, error) {
	return true, nil
}

func (f *fakeArchiveClient) Transfer(ctx context.Context, sourceURI, system, destPath string) error {
	f.transfers++
	return f.transferErr
}

func cleaningUpJob(t *testing.T, store *queue.Store, archive bool) *queue.Job {
	t.Helper()
	ctx := context.Background()
	params := queue.NewJobParams{
		TenantID:        "agave.prod",
		Owner:           "testuser",
		ExecutionSystem: "hpc.example.org",
		AppID:           "wordcount-1.0",
	}
	if archive {
		params.ArchiveFlag = true
		params.ArchiveSystem = "storage.example.org"
		params.ArchivePath = "/archive/testuser"
	}
	job, err := store.NewJob(ctx, params)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	path := []jobstatus.Status{
		jobstatus.ProcessingInputs, jobstatus.StagingInputs, jobstatus.Staged,
		jobstatus.Submitting, jobstatus.Queued, jobstatus.Running, jobstatus.CleaningUp,
	}
	for _, status := range path {
		if err := store.TransitionJob(ctx, job, status, ""); err != nil {
			t.Fatalf("advance to %s: %v", status, err)
		}
	}
	return job
}

func TestArchiveSkippedWhenNotRequested(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := cleaningUpJob(t, store, false)
	data := &fakeArchiveClient{}
	w := archiving.New(store, data, policy.Policy{MaxArchiveRetries: 2}, tenant.MatchAll(), nil, nil, nil)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	updated, _ := store.GetJobByID(context.Background(), job.ID)
	if updated.Status != jobstatus.Finished {
		t.Fatalf("expected FINISHED, got %s", updated.Status)
	}
	if data.transfers != 0 {
		t.Fatalf("expected no transfer, got %d", data.transfers)
	}
}

func TestArchiveSuccess(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := cleaningUpJob(t, store, true)
	data := &fakeArchiveClient{}
	w := archiving.New(store, data, policy.Policy{MaxArchiveRetries: 2}, tenant.MatchAll(), nil, nil, nil)
	ctx := context.Background()

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}
	updated, _ := store.GetJobByID(ctx, job.ID)
	if updated.Status != jobstatus.Finished {
		t.Fatalf("expected FINISHED, got %s", updated.Status)
	}
	if data.transfers != 1 {
		t.Fatalf("expected one transfer, got %d", data.transfers)
	}

	events, _ := store.JobEvents(ctx, job.UUID)
	var sawArchiving, sawArchived bool
	for _, event := range events {
		switch event.Status {
		case jobstatus.Archiving:
			sawArchiving = true
		case jobstatus.ArchivingFinished:
			sawArchived = true
		}
	}
	if !sawArchiving || !sawArchived {
		t.Fatal("expected ARCHIVING and ARCHIVING_FINISHED audit events")
	}
}

func TestArchiveRetriesThenFails(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := cleaningUpJob(t, store, true)
	data := &fakeArchiveClient{transferErr: errors.New("archive endpoint down")}
	w := archiving.New(store, data, policy.Policy{MaxArchiveRetries: 2}, tenant.MatchAll(), nil, nil, nil)
	ctx := context.Background()

	// Attempt 1 requeues at CLEANING_UP, attempt 2 exhausts.
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	mid, _ := store.GetJobByID(ctx, job.ID)
	if mid.Status != jobstatus.CleaningUp {
		t.Fatalf("expected requeue at CLEANING_UP, got %s", mid.Status)
	}
	if mid.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", mid.RetryCount)
	}

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	final, _ := store.GetJobByID(ctx, job.ID)
	if final.Status != jobstatus.Failed {
		t.Fatalf("expected FAILED after exhaustion, got %s", final.Status)
	}
	if data.transfers != 2 {
		t.Fatalf("expected 2 transfer attempts, got %d", data.transfers)
	}

	events, _ := store.JobEvents(ctx, job.UUID)
	var sawArchiveFailed bool
	for _, event := range events {
		if event.Status == jobstatus.ArchivingFailed {
			sawArchiveFailed = true
		}
	}
	if !sawArchiveFailed {
		t.Fatal("expected an ARCHIVING_FAILED audit event")
	}
}
