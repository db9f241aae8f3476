package bridge_test

import (
	"context"
	"testing"
	"time"

	"conveyor/internal/bridge"
	"conveyor/internal/bus"
	"conveyor/internal/jobstatus"
	"conveyor/internal/queue"
	"conveyor/internal/testsupport"
)

const sourceURI = "agave://storage.example.org/inputs/data.txt"

func setup(t *testing.T) (*queue.Store, *bridge.Bridge, *queue.Job, *queue.LogicalFile) {
	t.Helper()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job := testsupport.NewJob(t, store, "agave.prod", "testuser")
	ctx := context.Background()
	for _, status := range []jobstatus.Status{jobstatus.ProcessingInputs, jobstatus.StagingInputs} {
		if err := store.TransitionJob(ctx, job, status, ""); err != nil {
			t.Fatalf("advance to %s: %v", status, err)
		}
	}
	file := testsupport.NewFile(t, store, job, sourceURI)
	return store, bridge.New(store, nil, nil), job, file
}

func event(eventType string) bus.TransferEvent {
	return bus.TransferEvent{
		UUID:     "transfer-1",
		Type:     eventType,
		Source:   sourceURI,
		Owner:    "testuser",
		TenantID: "agave.prod",
	}
}

func TestBridgeFoldsLifecycle(t *testing.T) {
	store, b, _, file := setup(t)
	ctx := context.Background()

	steps := []struct {
		eventType string
		want      jobstatus.StagingStatus
	}{
		{"transfertask.created", jobstatus.StagingQueued},
		{"transfertask.assigned", jobstatus.StagingQueued},
		{"transfertask.staging", jobstatus.StagingActive},
		{"transfertask.completed", jobstatus.StagingCompleted},
	}
	for _, step := range steps {
		if err := b.HandleEvent(ctx, event(step.eventType)); err != nil {
			t.Fatalf("%s: %v", step.eventType, err)
		}
		current, _ := store.GetFileByID(ctx, file.ID)
		if current.Status != step.want {
			t.Fatalf("%s: expected %s, got %s", step.eventType, step.want, current.Status)
		}
	}
}

func TestBridgeDuplicateDeliveryIsNoOp(t *testing.T) {
	store, b, job, file := setup(t)
	ctx := context.Background()

	if err := b.HandleEvent(ctx, event("transfer.completed")); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	afterFirst, _ := store.GetFileByID(ctx, file.ID)
	firstStamp := afterFirst.UpdatedAt

	if err := b.HandleEvent(ctx, event("transfer.completed")); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	afterSecond, _ := store.GetFileByID(ctx, file.ID)
	if afterSecond.Status != jobstatus.StagingCompleted {
		t.Fatalf("expected STAGING_COMPLETED, got %s", afterSecond.Status)
	}
	if !afterSecond.UpdatedAt.Equal(firstStamp) {
		t.Fatal("duplicate delivery must not rewrite the file row")
	}

	// The job advanced exactly once.
	events, _ := store.JobEvents(ctx, job.UUID)
	staged := 0
	for _, evt := range events {
		if evt.Status == jobstatus.Staged {
			staged++
		}
	}
	if staged != 1 {
		t.Fatalf("expected exactly one STAGED event, got %d", staged)
	}
}

func TestBridgeStaleEventAfterCompletionDrops(t *testing.T) {
	store, b, _, file := setup(t)
	ctx := context.Background()

	if err := b.HandleEvent(ctx, event("transfertask.completed")); err != nil {
		t.Fatalf("completion: %v", err)
	}
	if err := b.HandleEvent(ctx, event("transfertask.staging")); err != nil {
		t.Fatalf("stale staging event: %v", err)
	}
	current, _ := store.GetFileByID(ctx, file.ID)
	if current.Status != jobstatus.StagingCompleted {
		t.Fatalf("stale event moved status to %s", current.Status)
	}
}

func TestBridgeUnresolvableEventDiscards(t *testing.T) {
	_, b, _, _ := setup(t)

	evt := event("transfertask.completed")
	evt.Source = "agave://storage.example.org/never/registered.txt"
	if err := b.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("unresolvable events must consume cleanly, got %v", err)
	}
}

func TestBridgeUnknownTypeDiscards(t *testing.T) {
	_, b, _, _ := setup(t)

	if err := b.HandleEvent(context.Background(), event("transfertask.paused")); err != nil {
		t.Fatalf("unknown types must consume cleanly, got %v", err)
	}
}

func TestBridgeCompletionAdvancesJob(t *testing.T) {
	store, b, job, _ := setup(t)
	ctx := context.Background()

	if err := b.HandleEvent(ctx, event("transfer.completed")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	updated, _ := store.GetJobByID(ctx, job.ID)
	if updated.Status != jobstatus.Staged {
		t.Fatalf("expected STAGED, got %s", updated.Status)
	}
}

func TestBridgeFailureRollsJobBack(t *testing.T) {
	store, b, job, file := setup(t)
	ctx := context.Background()

	if err := b.HandleEvent(ctx, event("transfertask.failed")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	currentFile, _ := store.GetFileByID(ctx, file.ID)
	if currentFile.Status != jobstatus.StagingFailed {
		t.Fatalf("expected STAGING_FAILED, got %s", currentFile.Status)
	}
	updated, _ := store.GetJobByID(ctx, job.ID)
	if updated.Status != jobstatus.Pending {
		t.Fatalf("expected rollback to PENDING, got %s", updated.Status)
	}
}

func TestBridgeDestinationCreateAndOverwrite(t *testing.T) {
	store, b, _, _ := setup(t)
	ctx := context.Background()

	evt := event("transfer.completed")
	evt.Dest = "agave://hpc.example.org/scratch/outputs/result.dat"
	if err := b.HandleEvent(ctx, evt); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	dest, err := store.FindFileByPath(ctx, "agave.prod", "hpc.example.org", "/scratch/outputs/result.dat")
	if err != nil {
		t.Fatalf("find destination: %v", err)
	}
	if dest == nil {
		t.Fatal("expected the destination file to be created")
	}
	if dest.Overwritten {
		t.Fatal("a freshly created destination is not an overwrite")
	}
	if dest.SourceURI != sourceURI {
		t.Fatalf("expected provenance %q, got %q", sourceURI, dest.SourceURI)
	}

	// Second completion onto the same destination marks it overwritten.
	if err := b.HandleEvent(ctx, evt); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	dest, _ = store.FindFileByPath(ctx, "agave.prod", "hpc.example.org", "/scratch/outputs/result.dat")
	if !dest.Overwritten {
		t.Fatal("expected the destination marked overwritten")
	}
}

func TestBridgeRunAcksThroughSubscription(t *testing.T) {
	store, b, _, file := setup(t)
	sub := bus.NewMemorySubscription(4)
	sub.Publish(event("transfertask.staging"))
	sub.Publish(event("transfertask.completed"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx, sub)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		current, _ := store.GetFileByID(context.Background(), file.ID)
		if current != nil && current.Status == jobstatus.StagingCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if len(sub.Acked()) != 2 {
		t.Fatalf("expected both deliveries acked, got %d", len(sub.Acked()))
	}
	if len(sub.Rejected()) != 0 {
		t.Fatalf("expected no rejects, got %d", len(sub.Rejected()))
	}
}
