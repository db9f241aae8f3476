package staging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"conveyor/internal/jobstatus"
	"conveyor/internal/policy"
	"conveyor/internal/queue"
	"conveyor/internal/staging"
	"conveyor/internal/tenant"
	"conveyor/internal/testsupport"
)

type fakeDataClient struct {
	transferErr error
	blockOnCtx  bool
	transfers   int
}

func (f *fakeDataClient) Authenticate(ctx context.Context, system string) error { return nil }

func (f *fakeDataClient) Exists(ctx context.Context, system, path string) (bool, error) {
	return true, nil
}

func (f *fakeDataClient) Transfer(ctx context.Context, sourceURI, system, destPath string) error {
	f.transfers++
	if f.blockOnCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.transferErr
}

func newWorker(t *testing.T, store *queue.Store, data *fakeDataClient, pol policy.Policy) *staging.Worker {
	t.Helper()
	return staging.New(store, data, pol, tenant.MatchAll(), nil, nil, nil)
}

func drainTicks(t *testing.T, w *staging.Worker, max int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < max; i++ {
		worked, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if !worked {
			return
		}
	}
}

func tick(t *testing.T, w *staging.Worker, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if _, err := w.RunOnce(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
}

func TestStagingSuccessPath(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := testsupport.NewJob(t, store, "agave.prod", "testuser")
	file := testsupport.NewFile(t, store, job, "agave://storage/inputs/data.txt")
	data := &fakeDataClient{}
	w := newWorker(t, store, data, policy.Policy{MaxStagingRetries: 3})
	ctx := context.Background()

	drainTicks(t, w, 10)

	finalJob, _ := store.GetJobByID(ctx, job.ID)
	if finalJob.Status != jobstatus.Staged {
		t.Fatalf("expected STAGED, got %s", finalJob.Status)
	}
	finalFile, _ := store.GetFileByID(ctx, file.ID)
	if finalFile.Status != jobstatus.StagingCompleted {
		t.Fatalf("expected STAGING_COMPLETED, got %s", finalFile.Status)
	}
	if data.transfers != 1 {
		t.Fatalf("expected one transfer, got %d", data.transfers)
	}

	events, _ := store.JobEvents(ctx, job.UUID)
	var sawStaged bool
	for _, event := range events {
		if event.Status == jobstatus.Staged {
			sawStaged = true
		}
	}
	if !sawStaged {
		t.Fatal("expected a STAGED audit event")
	}
}

func TestStagingJobWithoutInputsGoesStraightToStaged(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := testsupport.NewJob(t, store, "agave.prod", "testuser")
	w := newWorker(t, store, &fakeDataClient{}, policy.Policy{MaxStagingRetries: 3})

	drainTicks(t, w, 5)

	final, _ := store.GetJobByID(context.Background(), job.ID)
	if final.Status != jobstatus.Staged {
		t.Fatalf("expected STAGED, got %s", final.Status)
	}
}

func TestStagingExhaustionRollsJobBack(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := testsupport.NewJob(t, store, "agave.prod", "testuser")
	file := testsupport.NewFile(t, store, job, "agave://storage/inputs/data.txt")
	data := &fakeDataClient{transferErr: errors.New("endpoint down")}
	w := newWorker(t, store, data, policy.Policy{MaxStagingRetries: 3})
	ctx := context.Background()

	// Intake plus three failed transfer attempts, the last exhausting.
	tick(t, w, 4)

	if data.transfers != 3 {
		t.Fatalf("expected 3 transfer attempts, got %d", data.transfers)
	}
	finalFile, _ := store.GetFileByID(ctx, file.ID)
	if finalFile.Status != jobstatus.StagingFailed {
		t.Fatalf("expected STAGING_FAILED, got %s", finalFile.Status)
	}
	finalJob, _ := store.GetJobByID(ctx, job.ID)
	if finalJob.Status != jobstatus.Pending {
		t.Fatalf("expected rollback to PENDING, got %s", finalJob.Status)
	}
	if finalJob.ErrorMessage == "" {
		t.Fatal("expected the failure cause recorded on the job")
	}
}

func TestStagingRestartAfterRollback(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := testsupport.NewJob(t, store, "agave.prod", "testuser")
	file := testsupport.NewFile(t, store, job, "agave://storage/inputs/data.txt")
	data := &fakeDataClient{transferErr: errors.New("endpoint down")}
	w := newWorker(t, store, data, policy.Policy{MaxStagingRetries: 2})
	ctx := context.Background()

	// Intake, one requeued failure, then the exhausting failure.
	tick(t, w, 3)

	rolledBack, _ := store.GetJobByID(ctx, job.ID)
	if rolledBack.Status != jobstatus.Pending {
		t.Fatalf("expected PENDING after rollback, got %s", rolledBack.Status)
	}
	failedFile, _ := store.GetFileByID(ctx, file.ID)
	if failedFile.Status != jobstatus.StagingFailed {
		t.Fatalf("expected STAGING_FAILED, got %s", failedFile.Status)
	}

	// The endpoint recovers; re-driving from the checkpoint must restage
	// the failed input and finish the leg.
	data.transferErr = nil
	drainTicks(t, w, 10)

	finalJob, _ := store.GetJobByID(ctx, job.ID)
	if finalJob.Status != jobstatus.Staged {
		t.Fatalf("expected STAGED after restart, got %s", finalJob.Status)
	}
	finalFile, _ := store.GetFileByID(ctx, file.ID)
	if finalFile.Status != jobstatus.StagingCompleted {
		t.Fatalf("expected STAGING_COMPLETED, got %s", finalFile.Status)
	}
	if data.transfers != 3 {
		t.Fatalf("expected 3 transfers total, got %d", data.transfers)
	}
	restartTask, err := store.StagingTaskForFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("task lookup: %v", err)
	}
	if restartTask != nil {
		t.Fatalf("expected the restarted task to be cleaned up, got %+v", restartTask)
	}
}

func TestStagingTimeoutCountsAsFailure(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := testsupport.NewJob(t, store, "agave.prod", "testuser")
	testsupport.NewFile(t, store, job, "agave://storage/inputs/slow.dat")
	data := &fakeDataClient{blockOnCtx: true}
	w := newWorker(t, store, data, policy.Policy{MaxStagingRetries: 1, StagingTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	drainTicks(t, w, 5)

	finalJob, _ := store.GetJobByID(ctx, job.ID)
	if finalJob.Status == jobstatus.Staged {
		t.Fatal("a timed-out transfer must not stage the job")
	}
	if data.transfers == 0 {
		t.Fatal("expected the transfer to be attempted")
	}
}

func TestStagingRequeueIncrementsTaskRetry(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := testsupport.NewJob(t, store, "agave.prod", "testuser")
	file := testsupport.NewFile(t, store, job, "agave://storage/inputs/data.txt")
	data := &fakeDataClient{transferErr: errors.New("flaky endpoint")}
	w := newWorker(t, store, data, policy.Policy{MaxStagingRetries: 3})
	ctx := context.Background()

	// Intake tick, then one failing transfer tick.
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("intake: %v", err)
	}
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	task, err := store.StagingTaskForFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("task lookup: %v", err)
	}
	if task == nil {
		t.Fatal("expected the task to survive for retry")
	}
	if task.Status != jobstatus.StagingQueued || task.RetryCount != 1 {
		t.Fatalf("expected requeued task with one retry, got %+v", task)
	}
}
