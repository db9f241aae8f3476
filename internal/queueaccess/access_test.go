package queueaccess_test

import (
	"context"
	"testing"

	"conveyor/internal/bus"
	"conveyor/internal/daemon"
	"conveyor/internal/jobstatus"
	"conveyor/internal/logging"
	"conveyor/internal/queueaccess"
	"conveyor/internal/testsupport"
)

func TestStoreAccessListAndStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "iplantc.org", "rion")

	access := queueaccess.NewStoreAccess(store)
	ctx := context.Background()

	views, err := access.List(ctx, []string{"PENDING"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(views) != 1 || views[0].UUID != job.UUID {
		t.Fatalf("unexpected views %+v", views)
	}

	stats, err := access.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["PENDING"] != 1 {
		t.Fatalf("stats = %v", stats)
	}
}

func TestStoreAccessRetryAndKill(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	failed := testsupport.NewJob(t, store, "iplantc.org", "rion")
	if err := store.TransitionJob(ctx, failed, jobstatus.Failed, "staging exhausted"); err != nil {
		t.Fatalf("TransitionJob: %v", err)
	}

	access := queueaccess.NewStoreAccess(store)
	view, err := access.Retry(ctx, failed.UUID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if view.Status != "PENDING" {
		t.Fatalf("retried job status = %q", view.Status)
	}
	if view.RetryCount != 0 {
		t.Fatalf("retried job retry count = %d", view.RetryCount)
	}

	// Retrying a job that is no longer failed is rejected.
	if _, err := access.Retry(ctx, failed.UUID); err == nil {
		t.Fatal("expected retry of pending job to fail")
	}

	view, err = access.Kill(ctx, failed.UUID)
	if err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if view.Status != "STOPPED" {
		t.Fatalf("killed pending job status = %q, want STOPPED", view.Status)
	}
}

func TestHTTPAccessAgainstDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Bus.RedisAddr = ""
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "iplantc.org", "rion")

	d, err := daemon.New(cfg, store, logging.NewNop(), daemon.Options{
		Subscription: bus.NewMemorySubscription(4),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	if !queueaccess.Ping(ctx, d.APIAddr()) {
		t.Fatal("expected daemon to answer ping")
	}

	access := queueaccess.NewHTTPAccess(d.APIAddr())

	views, err := access.List(ctx, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(views) != 1 || views[0].UUID != job.UUID {
		t.Fatalf("unexpected views %+v", views)
	}

	detail, err := access.Describe(ctx, job.UUID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if detail == nil || detail.Job.UUID != job.UUID {
		t.Fatalf("unexpected detail %+v", detail)
	}

	missing, err := access.Describe(ctx, "no-such-job")
	if err != nil {
		t.Fatalf("Describe missing: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil detail for unknown job")
	}

	view, err := access.Kill(ctx, job.UUID)
	if err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if view.Status != "STOPPED" {
		t.Fatalf("killed job status = %q", view.Status)
	}

	if _, err := access.Retry(ctx, "no-such-job"); err == nil {
		t.Fatal("expected retry of unknown job to fail")
	}
}
