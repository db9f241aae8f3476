// Package staging moves job inputs onto execution systems. It owns two
// legs of the pipeline: job intake (PENDING through STAGING_INPUTS) and the
// staging tasks that carry individual file transfers.
package staging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"conveyor/internal/jobstatus"
	"conveyor/internal/logging"
	"conveyor/internal/metrics"
	"conveyor/internal/policy"
	"conveyor/internal/queue"
	"conveyor/internal/remote"
	"conveyor/internal/tenant"
	"conveyor/internal/worker"
)

const stageName = "staging"

// Worker drives staging tasks and the job statuses around them.
type Worker struct {
	store     *queue.Store
	data      remote.DataClient
	policy    policy.Policy
	filter    tenant.Filter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	heartbeat *worker.HeartbeatMonitor
}

// New creates the staging worker.
func New(store *queue.Store, data remote.DataClient, pol policy.Policy, filter tenant.Filter, logger *slog.Logger, m *metrics.Metrics, hb *worker.HeartbeatMonitor) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		store:     store,
		data:      data,
		policy:    pol,
		filter:    filter,
		logger:    logger.With(logging.String(logging.FieldComponent, stageName)),
		metrics:   m,
		heartbeat: hb,
	}
}

// Name implements worker.Worker.
func (w *Worker) Name() string { return stageName }

// RunOnce performs at most one unit of staging work: a pending job intake,
// a job advance, or one staging task transfer.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if worked, err := w.intakeJob(ctx); worked || err != nil {
		return worked, err
	}
	if worked, err := w.advanceStagedJob(ctx); worked || err != nil {
		return worked, err
	}
	return w.processTask(ctx)
}

// intakeJob picks up a PENDING job, enqueues staging tasks for its
// registered input files, and moves it to STAGING_INPUTS. Files left in
// STAGING_FAILED by an earlier rollback are requeued so the re-drive
// actually re-attempts them.
func (w *Worker) intakeJob(ctx context.Context) (bool, error) {
	w.metrics.RecordClaim(stageName)
	job, err := w.store.ClaimNextJob(ctx, w.filter, jobstatus.Pending)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	if err := w.store.ConditionalUpdateJobStatus(ctx, job.ID, jobstatus.Pending, jobstatus.ProcessingInputs); err != nil {
		if queue.IsConflict(err) {
			w.metrics.RecordClaimConflict(stageName)
			return false, nil
		}
		return false, err
	}
	ctx = logging.WithJob(ctx, job.UUID, job.TenantID, stageName)
	logger := logging.WithContext(ctx, w.logger)

	files, err := w.store.FilesForJob(ctx, job.UUID)
	if err != nil {
		return true, err
	}
	for _, file := range files {
		switch file.Status {
		case jobstatus.StagingFailed:
			// The job rolled back here after an exhausted transfer.
			// Restart the file with a fresh task and retry budget.
			if err := w.store.RestageFile(ctx, file.ID); err != nil {
				return true, err
			}
			stale, err := w.store.StagingTaskForFile(ctx, file.ID)
			if err != nil {
				return true, err
			}
			if stale != nil {
				if err := w.store.DeleteStagingTask(ctx, stale.ID); err != nil {
					return true, err
				}
			}
			if _, err := w.store.CreateStagingTask(ctx, file); err != nil {
				return true, err
			}
		case jobstatus.StagingQueued:
			existing, err := w.store.StagingTaskForFile(ctx, file.ID)
			if err != nil {
				return true, err
			}
			if existing != nil {
				continue
			}
			if _, err := w.store.CreateStagingTask(ctx, file); err != nil {
				return true, err
			}
		}
	}

	job, err = w.store.GetJobByID(ctx, job.ID)
	if err != nil || job == nil {
		return true, err
	}
	if err := w.store.TransitionJob(ctx, job, jobstatus.StagingInputs, fmt.Sprintf("staging %d input file(s)", len(files))); err != nil {
		return true, err
	}
	logger.Info("job accepted for staging", logging.Int("inputs", len(files)))
	return true, nil
}

// advanceStagedJob promotes a STAGING_INPUTS job to STAGED once every input
// has settled and none failed.
func (w *Worker) advanceStagedJob(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, w.filter, jobstatus.StagingInputs)
	if err != nil || job == nil {
		return false, err
	}

	pending, err := w.store.PendingStagingTasksForJob(ctx, job.UUID)
	if err != nil {
		return false, err
	}
	if pending > 0 {
		return false, nil
	}

	files, err := w.store.FilesForJob(ctx, job.UUID)
	if err != nil {
		return false, err
	}
	for _, file := range files {
		if file.Status == jobstatus.StagingFailed {
			// A failed input already triggered (or will trigger) the
			// rollback from the task side. Leave the job alone here.
			return false, nil
		}
		if file.Status != jobstatus.StagingCompleted {
			return false, nil
		}
	}

	job.RetryCount = 0
	if err := w.store.TransitionJob(ctx, job, jobstatus.Staged, "all inputs staged"); err != nil {
		if queue.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	w.metrics.RecordStageSuccess(stageName)
	logging.WithContext(logging.WithJob(ctx, job.UUID, job.TenantID, stageName), w.logger).Info("inputs staged")
	return true, nil
}

// processTask claims one queued staging task and drives its transfer.
func (w *Worker) processTask(ctx context.Context) (bool, error) {
	task, err := w.store.ClaimNextStagingTask(ctx, w.filter)
	if err != nil || task == nil {
		return false, err
	}

	if err := w.store.ConditionalUpdateTaskStatus(ctx, task.ID, jobstatus.StagingQueued, jobstatus.StagingActive); err != nil {
		if queue.IsConflict(err) {
			w.metrics.RecordClaimConflict(stageName)
			return false, nil
		}
		return false, err
	}

	file, err := w.store.GetFileByID(ctx, task.LogicalFileID)
	if err != nil {
		return true, err
	}
	if file == nil {
		return true, w.store.DeleteStagingTask(ctx, task.ID)
	}
	if err := w.store.UpdateFileStatus(ctx, file.ID, jobstatus.StagingActive); err != nil {
		return true, err
	}

	logger := logging.WithContext(logging.WithJob(ctx, file.JobUUID, file.TenantID, stageName), w.logger)
	transferErr := w.transfer(ctx, file)
	if transferErr == nil {
		return true, w.completeTask(ctx, logger, task, file)
	}
	return true, w.failTask(ctx, logger, task, file, transferErr)
}

// transfer runs the data copy under the staging wall-clock timeout,
// heartbeating the bound job while the copy is in flight.
func (w *Worker) transfer(ctx context.Context, file *queue.LogicalFile) error {
	transferCtx := ctx
	var cancel context.CancelFunc
	if w.policy.StagingTimeout > 0 {
		transferCtx, cancel = context.WithTimeout(ctx, w.policy.StagingTimeout)
		defer cancel()
	}

	var (
		hbCancel context.CancelFunc
		wg       sync.WaitGroup
	)
	if w.heartbeat != nil && file.JobUUID != "" {
		if job, err := w.store.GetJobByUUID(ctx, file.JobUUID); err == nil && job != nil {
			var hbCtx context.Context
			hbCtx, hbCancel = context.WithCancel(ctx)
			wg.Add(1)
			go w.heartbeat.StartLoop(hbCtx, &wg, job.ID)
		}
	}
	err := w.data.Transfer(transferCtx, file.SourceURI, file.SystemID, file.Path)
	if hbCancel != nil {
		hbCancel()
		wg.Wait()
	}
	if err != nil && transferCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return fmt.Errorf("staging timed out after %s: %w", w.policy.StagingTimeout, err)
	}
	return err
}

func (w *Worker) completeTask(ctx context.Context, logger *slog.Logger, task *queue.StagingTask, file *queue.LogicalFile) error {
	if err := w.store.UpdateFileStatus(ctx, file.ID, jobstatus.StagingCompleted); err != nil {
		return err
	}
	if err := w.store.DeleteStagingTask(ctx, task.ID); err != nil {
		return err
	}
	w.metrics.RecordStageSuccess(stageName)
	logger.Info("input staged", logging.String("source", file.SourceURI))

	if file.JobUUID == "" {
		return nil
	}
	pending, err := w.store.PendingStagingTasksForJob(ctx, file.JobUUID)
	if err != nil {
		return err
	}
	if pending > 0 {
		return nil
	}
	job, err := w.store.GetJobByUUID(ctx, file.JobUUID)
	if err != nil || job == nil {
		return err
	}
	if job.Status != jobstatus.StagingInputs {
		return nil
	}
	job.RetryCount = 0
	if err := w.store.TransitionJob(ctx, job, jobstatus.Staged, "all inputs staged"); err != nil {
		if queue.IsConflict(err) {
			return nil
		}
		return err
	}
	logger.Info("inputs staged")
	return nil
}

func (w *Worker) failTask(ctx context.Context, logger *slog.Logger, task *queue.StagingTask, file *queue.LogicalFile, cause error) error {
	w.metrics.RecordStageFailure(stageName)
	attempts := task.RetryCount + 1

	if !remote.IsFatal(cause) && w.policy.ShouldRetry(policy.StageStaging, attempts) {
		logger.Warn("staging attempt failed, requeueing",
			logging.Error(cause),
			logging.Int("attempt", attempts),
		)
		return w.store.RequeueStagingTask(ctx, task.ID)
	}

	logger.Error("staging exhausted", logging.Error(cause), logging.Int("attempts", attempts))
	w.metrics.RecordStageRollback(stageName)
	if err := w.store.UpdateFileStatus(ctx, file.ID, jobstatus.StagingFailed); err != nil {
		return err
	}
	if err := w.store.ConditionalUpdateTaskStatus(ctx, task.ID, jobstatus.StagingActive, jobstatus.StagingFailed); err != nil && !queue.IsConflict(err) {
		return err
	}

	if file.JobUUID == "" {
		return nil
	}
	job, err := w.store.GetJobByUUID(ctx, file.JobUUID)
	if err != nil || job == nil {
		return err
	}
	if job.Status != jobstatus.StagingInputs && job.Status != jobstatus.ProcessingInputs {
		return nil
	}
	return w.store.RollbackJob(ctx, job, fmt.Sprintf("staging failed for %s: %v", file.SourceURI, cause))
}
