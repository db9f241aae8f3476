// Package submission hands STAGED jobs to their remote scheduler.
package submission

import (
	"context"
	"fmt"
	"log/slog"

	"conveyor/internal/jobstatus"
	"conveyor/internal/logging"
	"conveyor/internal/metrics"
	"conveyor/internal/notify"
	"conveyor/internal/policy"
	"conveyor/internal/queue"
	"conveyor/internal/remote"
	"conveyor/internal/tenant"
)

const stageName = "submission"

// Worker claims STAGED jobs and submits them.
type Worker struct {
	store     *queue.Store
	submitter remote.Submitter
	policy    policy.Policy
	filter    tenant.Filter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	notifier  notify.Service
}

// New creates the submission worker. notifier may be nil.
func New(store *queue.Store, submitter remote.Submitter, pol policy.Policy, filter tenant.Filter, logger *slog.Logger, m *metrics.Metrics, notifier notify.Service) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		store:     store,
		submitter: submitter,
		policy:    pol,
		filter:    filter,
		logger:    logger.With(logging.String(logging.FieldComponent, stageName)),
		metrics:   m,
		notifier:  notifier,
	}
}

// Name implements worker.Worker.
func (w *Worker) Name() string { return stageName }

// RunOnce claims one STAGED job, flips it to SUBMITTING, and submits it to
// the remote scheduler. Failures requeue at STAGED until the retry bound.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	w.metrics.RecordClaim(stageName)
	job, err := w.store.ClaimNextJob(ctx, w.filter, jobstatus.Staged)
	if err != nil || job == nil {
		return false, err
	}

	if err := w.store.ConditionalUpdateJobStatus(ctx, job.ID, jobstatus.Staged, jobstatus.Submitting); err != nil {
		if queue.IsConflict(err) {
			w.metrics.RecordClaimConflict(stageName)
			return false, nil
		}
		return false, err
	}
	job.Status = jobstatus.Submitting
	ctx = logging.WithJob(ctx, job.UUID, job.TenantID, stageName)
	logger := logging.WithContext(ctx, w.logger)

	localJobID, submitErr := w.submitter.Submit(ctx, remote.SubmitRequest{
		JobUUID:         job.UUID,
		TenantID:        job.TenantID,
		Owner:           job.Owner,
		ExecutionSystem: job.ExecutionSystem,
		AppID:           job.AppID,
		BatchQueue:      job.BatchQueue,
	})
	if submitErr != nil {
		return true, w.failSubmit(ctx, logger, job, submitErr)
	}

	if err := w.store.SetLocalJobID(ctx, job.ID, localJobID); err != nil {
		if queue.IsConflict(err) {
			// The scheduler already holds this job from an earlier attempt
			// that died between submit and record. Keep the first id.
			logger.Warn("local job id already assigned, keeping original")
		} else {
			return true, err
		}
	}
	job.LocalJobID = localJobID
	job.RetryCount = 0
	job.ErrorMessage = ""
	if err := w.store.TransitionJob(ctx, job, jobstatus.Queued, fmt.Sprintf("submitted as %s", localJobID)); err != nil {
		if queue.IsConflict(err) {
			return true, nil
		}
		return true, err
	}
	w.metrics.RecordStageSuccess(stageName)
	logger.Info("job submitted",
		logging.String("local_job_id", localJobID),
		logging.String("system", job.ExecutionSystem),
	)
	return true, nil
}

func (w *Worker) failSubmit(ctx context.Context, logger *slog.Logger, job *queue.Job, cause error) error {
	w.metrics.RecordStageFailure(stageName)
	attempts := job.RetryCount + 1

	if remote.IsFatal(cause) {
		logger.Error("submission failed permanently", logging.Error(cause))
		w.metrics.RecordStageRollback(stageName)
		job.ErrorMessage = cause.Error()
		if err := w.store.UpdateJob(ctx, job); err != nil {
			return err
		}
		if err := w.store.TransitionJob(ctx, job, jobstatus.Failed, cause.Error()); err != nil {
			return err
		}
		if w.notifier != nil {
			if err := w.notifier.NotifyJobFailed(ctx, job.UUID, job.Owner, cause.Error()); err != nil {
				logger.Warn("failure notification failed", logging.Error(err))
			}
		}
		return nil
	}

	if w.policy.ShouldRetry(policy.StageSubmission, attempts) {
		logger.Warn("submission attempt failed, requeueing",
			logging.Error(cause),
			logging.Int("attempt", attempts),
		)
		return w.store.RequeueJobForRetry(ctx, job, cause.Error())
	}

	logger.Error("submission exhausted, rolling back",
		logging.Error(cause),
		logging.Int("attempts", attempts),
	)
	w.metrics.RecordStageRollback(stageName)
	if err := w.store.RollbackJob(ctx, job, fmt.Sprintf("submission exhausted after %d attempts: %v", attempts, cause)); err != nil {
		return err
	}
	if w.notifier != nil {
		if err := w.notifier.NotifyStageExhausted(ctx, job.UUID, stageName, cause.Error()); err != nil {
			logger.Warn("exhaustion notification failed", logging.Error(err))
		}
	}
	return nil
}
