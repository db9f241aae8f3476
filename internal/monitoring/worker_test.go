package monitoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"conveyor/internal/jobstatus"
	"conveyor/internal/monitoring"
	"conveyor/internal/queue"
	"conveyor/internal/remote"
	"conveyor/internal/tenant"
	"conveyor/internal/testsupport"
)

type fakeScheduler struct {
	status    remote.RemoteStatus
	statusErr error
	polls     int
}

func (f *fakeScheduler) Submit(ctx context.Context, req remote.SubmitRequest) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeScheduler) Status(ctx context.Context, system, localJobID string) (remote.RemoteStatus, error) {
	f.polls++
	return f.status, f.statusErr
}

func (f *fakeScheduler) Cancel(ctx context.Context, system, localJobID string) error { return nil }

func queuedJob(t *testing.T, store *queue.Store, localJobID string) *queue.Job {
	t.Helper()
	job := testsupport.NewJob(t, store, "agave.prod", "testuser")
	ctx := context.Background()
	path := []jobstatus.Status{
		jobstatus.ProcessingInputs, jobstatus.StagingInputs,
		jobstatus.Staged, jobstatus.Submitting, jobstatus.Queued,
	}
	for _, status := range path {
		if err := store.TransitionJob(ctx, job, status, ""); err != nil {
			t.Fatalf("advance to %s: %v", status, err)
		}
	}
	if localJobID != "" {
		if err := store.SetLocalJobID(ctx, job.ID, localJobID); err != nil {
			t.Fatalf("set local job id: %v", err)
		}
		job.LocalJobID = localJobID
	}
	return job
}

func TestMonitorStillRunningBumpsCheckOnly(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := queuedJob(t, store, "pbs.1")
	sched := &fakeScheduler{status: remote.StatusQueued}
	w := monitoring.New(store, sched, tenant.MatchAll(), time.Second, nil, nil)
	ctx := context.Background()

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	updated, _ := store.GetJobByID(ctx, job.ID)
	if updated.Status != jobstatus.Queued {
		t.Fatalf("expected QUEUED to hold, got %s", updated.Status)
	}
	if updated.StatusCheckCount != 1 {
		t.Fatalf("expected one status check, got %d", updated.StatusCheckCount)
	}
	if updated.LastHeartbeat == nil {
		t.Fatal("expected check time stamped")
	}
}

func TestMonitorPromotesToRunning(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := queuedJob(t, store, "pbs.1")
	sched := &fakeScheduler{status: remote.StatusRunning}
	w := monitoring.New(store, sched, tenant.MatchAll(), time.Second, nil, nil)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	updated, _ := store.GetJobByID(context.Background(), job.ID)
	if updated.Status != jobstatus.Running {
		t.Fatalf("expected RUNNING, got %s", updated.Status)
	}
}

func TestMonitorFinishedMovesToCleaningUp(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := queuedJob(t, store, "pbs.1")
	sched := &fakeScheduler{status: remote.StatusFinished}
	w := monitoring.New(store, sched, tenant.MatchAll(), time.Second, nil, nil)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	updated, _ := store.GetJobByID(context.Background(), job.ID)
	if updated.Status != jobstatus.CleaningUp {
		t.Fatalf("expected CLEANING_UP, got %s", updated.Status)
	}
}

func TestMonitorVanishedJobFails(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := queuedJob(t, store, "pbs.1")
	sched := &fakeScheduler{status: remote.StatusNotFound}
	w := monitoring.New(store, sched, tenant.MatchAll(), time.Second, nil, nil)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	updated, _ := store.GetJobByID(context.Background(), job.ID)
	if updated.Status != jobstatus.Failed {
		t.Fatalf("expected FAILED, got %s", updated.Status)
	}
}

func TestMonitorMissingSchedulerIDFails(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := queuedJob(t, store, "")
	sched := &fakeScheduler{status: remote.StatusRunning}
	w := monitoring.New(store, sched, tenant.MatchAll(), time.Second, nil, nil)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	updated, _ := store.GetJobByID(context.Background(), job.ID)
	if updated.Status != jobstatus.Failed {
		t.Fatalf("expected FAILED without a scheduler id, got %s", updated.Status)
	}
	if sched.polls != 0 {
		t.Fatalf("expected no remote poll, got %d", sched.polls)
	}
}

func TestMonitorPollErrorStillBumpsCheck(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := queuedJob(t, store, "pbs.1")
	sched := &fakeScheduler{statusErr: errors.New("scheduler timeout")}
	w := monitoring.New(store, sched, tenant.MatchAll(), time.Second, nil, nil)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	updated, _ := store.GetJobByID(context.Background(), job.ID)
	if updated.Status != jobstatus.Queued {
		t.Fatalf("a poll error must not change status, got %s", updated.Status)
	}
	if updated.StatusCheckCount != 1 {
		t.Fatalf("expected the failed poll counted, got %d", updated.StatusCheckCount)
	}
}

func TestMonitorBacksOffBetweenChecks(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	queuedJob(t, store, "pbs.1")
	sched := &fakeScheduler{status: remote.StatusQueued}
	w := monitoring.New(store, sched, tenant.MatchAll(), time.Hour, nil, nil)
	ctx := context.Background()

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("first poll: %v", err)
	}
	// The job was just checked; with an hour-long interval the next tick
	// must skip it.
	worked, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if worked {
		t.Fatal("expected the recheck to be deferred")
	}
	if sched.polls != 1 {
		t.Fatalf("expected a single remote poll, got %d", sched.polls)
	}
}
