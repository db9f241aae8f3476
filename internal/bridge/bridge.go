// Package bridge folds externally produced transfer events into the local
// staging state. Events arrive at-least-once and out of order; every fold is
// idempotent and stale updates drop silently.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"conveyor/internal/bus"
	"conveyor/internal/jobstatus"
	"conveyor/internal/logging"
	"conveyor/internal/metrics"
	"conveyor/internal/queue"
)

// eventTargets maps the transfer subsystem's event vocabulary onto the
// staging sub-vocabulary. Unknown types are discarded.
var eventTargets = map[string]jobstatus.StagingStatus{
	"transfertask.created":   jobstatus.StagingQueued,
	"transfertask.assigned":  jobstatus.StagingQueued,
	"transfertask.staging":   jobstatus.StagingActive,
	"transfertask.completed": jobstatus.StagingCompleted,
	"transfertask.failed":    jobstatus.StagingFailed,
	"transfer.completed":     jobstatus.StagingCompleted,
}

// terminalDestEvents are the event types that settle content at the
// destination and therefore touch the destination file record too.
var terminalDestEvents = map[string]bool{
	"transfertask.completed": true,
	"transfer.completed":     true,
}

// Bridge consumes a subscription and reconciles events against the store.
type Bridge struct {
	store   *queue.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a bridge.
func New(store *queue.Store, logger *slog.Logger, m *metrics.Metrics) *Bridge {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bridge{
		store:   store,
		logger:  logger.With(logging.String(logging.FieldComponent, "bridge")),
		metrics: m,
	}
}

// Run consumes the subscription until ctx is done. Business-level discards
// are acknowledged; only infrastructure failures leave a message pending.
func (b *Bridge) Run(ctx context.Context, sub bus.Subscription) error {
	for {
		delivery, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			b.logger.Warn("event stream read failed", logging.Error(err))
			continue
		}

		if err := b.HandleEvent(ctx, delivery.Event()); err != nil {
			b.logger.Error("event fold failed, leaving for redelivery",
				logging.Error(err),
				logging.String(logging.FieldTransferUUID, delivery.Event().UUID),
			)
			_ = delivery.Reject(ctx)
			continue
		}
		if err := delivery.Ack(ctx); err != nil {
			b.logger.Warn("ack failed", logging.Error(err))
		}
	}
}

// HandleEvent folds one transfer event into store state. A nil return means
// the event is consumed, including the discard cases; an error means the
// store itself failed and the event should be redelivered.
func (b *Bridge) HandleEvent(ctx context.Context, event bus.TransferEvent) error {
	logger := b.logger.With(
		logging.String(logging.FieldTransferUUID, event.UUID),
		logging.String(logging.FieldTenant, event.TenantID),
		logging.String(logging.FieldEventType, event.Type),
	)

	target, known := eventTargets[event.Type]
	if !known {
		logger.Debug("unknown transfer event type, discarding")
		b.metrics.RecordBridgeDiscard("unknown_type")
		return nil
	}

	file, err := b.store.FindFileBySourceURI(ctx, event.TenantID, event.Source)
	if err != nil {
		return fmt.Errorf("resolve source file: %w", err)
	}
	if file == nil {
		logger.Debug("no logical file for source, discarding",
			logging.String("source", event.Source),
		)
		b.metrics.RecordBridgeDiscard("unresolved")
		return nil
	}

	if err := b.store.UpdateFileStatus(ctx, file.ID, target); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			b.metrics.RecordBridgeDiscard("unresolved")
			return nil
		}
		return fmt.Errorf("fold staging status: %w", err)
	}
	b.metrics.RecordBridgeFold(event.Type)

	if terminalDestEvents[event.Type] && event.Dest != "" {
		if err := b.settleDestination(ctx, logger, event); err != nil {
			return err
		}
	}

	if target == jobstatus.StagingCompleted && file.JobUUID != "" {
		if err := b.advanceJob(ctx, logger, file.JobUUID); err != nil {
			return err
		}
	}
	if target == jobstatus.StagingFailed && file.JobUUID != "" {
		if err := b.failJobStaging(ctx, file, event); err != nil {
			return err
		}
	}
	return nil
}

// settleDestination records the event's effect at the destination: an
// existing file there was overwritten, a missing one is created with
// provenance pointing back at the source.
func (b *Bridge) settleDestination(ctx context.Context, logger *slog.Logger, event bus.TransferEvent) error {
	system, path, ok := splitStorageURI(event.Dest)
	if !ok {
		logger.Debug("unparseable destination, skipping", logging.String("dest", event.Dest))
		return nil
	}

	dest, err := b.store.FindFileByPath(ctx, event.TenantID, system, path)
	if err != nil {
		return fmt.Errorf("resolve destination file: %w", err)
	}
	if dest != nil {
		// Repeat deliveries land here too; marking twice is harmless.
		if err := b.store.MarkFileOverwritten(ctx, dest.ID); err != nil {
			return fmt.Errorf("mark overwritten: %w", err)
		}
		if err := b.store.UpdateFileStatus(ctx, dest.ID, jobstatus.StagingCompleted); err != nil {
			return fmt.Errorf("settle destination status: %w", err)
		}
		return nil
	}

	created, err := b.store.CreateFile(ctx, queue.NewFileParams{
		TenantID:  event.TenantID,
		Owner:     event.Owner,
		SystemID:  system,
		Path:      path,
		SourceURI: event.Source,
	})
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	if err := b.store.UpdateFileStatus(ctx, created.ID, jobstatus.StagingCompleted); err != nil {
		return fmt.Errorf("settle created destination: %w", err)
	}
	logger.Info("destination file registered",
		logging.String("system", system),
		logging.String("path", path),
	)
	return nil
}

// advanceJob promotes a STAGING_INPUTS job to STAGED once its last input
// settles through the bridge rather than a local worker.
func (b *Bridge) advanceJob(ctx context.Context, logger *slog.Logger, jobUUID string) error {
	pending, err := b.store.PendingStagingTasksForJob(ctx, jobUUID)
	if err != nil {
		return err
	}
	if pending > 0 {
		return nil
	}
	job, err := b.store.GetJobByUUID(ctx, jobUUID)
	if err != nil {
		return err
	}
	if job == nil || job.Status != jobstatus.StagingInputs {
		return nil
	}
	files, err := b.store.FilesForJob(ctx, jobUUID)
	if err != nil {
		return err
	}
	for _, file := range files {
		if file.Status != jobstatus.StagingCompleted {
			return nil
		}
	}
	job.RetryCount = 0
	if err := b.store.TransitionJob(ctx, job, jobstatus.Staged, "all inputs staged"); err != nil {
		if queue.IsConflict(err) {
			return nil
		}
		return err
	}
	logger.Info("job staged via transfer events", logging.String(logging.FieldJobUUID, jobUUID))
	return nil
}

// failJobStaging rolls a job back when the external transfer system reports
// a failed input, mirroring what the staging worker does on local exhaustion.
func (b *Bridge) failJobStaging(ctx context.Context, file *queue.LogicalFile, event bus.TransferEvent) error {
	job, err := b.store.GetJobByUUID(ctx, file.JobUUID)
	if err != nil || job == nil {
		return err
	}
	if job.Status != jobstatus.StagingInputs && job.Status != jobstatus.ProcessingInputs {
		return nil
	}
	return b.store.RollbackJob(ctx, job, fmt.Sprintf("transfer failed for %s", event.Source))
}

// splitStorageURI decomposes an "agave://system/path" style URI.
func splitStorageURI(raw string) (system, path string, ok bool) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "", "", false
	}
	path = strings.TrimPrefix(parsed.Path, "/")
	if path == "" {
		return "", "", false
	}
	return parsed.Host, "/" + path, true
}
