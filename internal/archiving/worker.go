// Package archiving copies finished jobs' outputs to their archive system
// and settles them into a terminal status.
package archiving

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

const stageName = "archiving"

// Worker claims CLEANING_UP jobs and drives them to FINISHED or FAILED.
type Worker struct {
	store    *queue.Store
	data     remote.DataClient
	policy   policy.Policy
	filter   tenant.Filter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	notifier notify.Service
}

// New creates the archiving worker. notifier may be nil.
func New(store *queue.Store, data remote.DataClient, pol policy.Policy, filter tenant.Filter, logger *slog.Logger, m *metrics.Metrics, notifier notify.Service) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		store:    store,
		data:     data,
		policy:   pol,
		filter:   filter,
		logger:   logger.With(logging.String(logging.FieldComponent, stageName)),
		metrics:  m,
		notifier: notifier,
	}
}

// Name implements worker.Worker.
func (w *Worker) Name() string { return stageName }

// RunOnce claims one CLEANING_UP job. Jobs that opted out of archiving go
// straight to FINISHED; the rest pass through ARCHIVING and its terminal
// markers.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	w.metrics.RecordClaim(stageName)
	job, err := w.store.ClaimNextJob(ctx, w.filter, jobstatus.CleaningUp)
	if err != nil || job == nil {
		return false, err
	}
	ctx = logging.WithJob(ctx, job.UUID, job.TenantID, stageName)
	logger := logging.WithContext(ctx, w.logger)

	if !job.WantsArchival() {
		if err := w.store.ConditionalUpdateJobStatus(ctx, job.ID, jobstatus.CleaningUp, jobstatus.Finished); err != nil {
			if queue.IsConflict(err) {
				w.metrics.RecordClaimConflict(stageName)
				return false, nil
			}
			return false, err
		}
		if err := w.store.AppendJobEvent(ctx, job.UUID, jobstatus.Finished, "job complete, archiving skipped", job.Owner); err != nil {
			return true, err
		}
		w.metrics.RecordStageSuccess(stageName)
		logger.Info("job finished without archiving")
		w.notifyFinished(ctx, job)
		return true, nil
	}

	if err := w.store.ConditionalUpdateJobStatus(ctx, job.ID, jobstatus.CleaningUp, jobstatus.Archiving); err != nil {
		if queue.IsConflict(err) {
			w.metrics.RecordClaimConflict(stageName)
			return false, nil
		}
		return false, err
	}
	job.Status = jobstatus.Archiving
	if err := w.store.AppendJobEvent(ctx, job.UUID, jobstatus.Archiving, "archiving outputs to "+job.ArchiveSystem, job.Owner); err != nil {
		return true, err
	}

	sourceURI := fmt.Sprintf("agave://%s/scratch/%s/output", job.ExecutionSystem, job.UUID)
	archiveErr := w.data.Transfer(ctx, sourceURI, job.ArchiveSystem, job.ArchivePath)
	if archiveErr != nil {
		return true, w.failArchive(ctx, logger, job, archiveErr)
	}

	job.RetryCount = 0
	job.ErrorMessage = ""
	if err := w.store.TransitionJob(ctx, job, jobstatus.ArchivingFinished, "outputs archived"); err != nil {
		if queue.IsConflict(err) {
			return true, nil
		}
		return true, err
	}
	if err := w.store.TransitionJob(ctx, job, jobstatus.Finished, "job complete"); err != nil {
		return true, err
	}
	w.metrics.RecordStageSuccess(stageName)
	logger.Info("outputs archived",
		logging.String("archive_system", job.ArchiveSystem),
		logging.String("archive_path", job.ArchivePath),
	)
	w.notifyFinished(ctx, job)
	return true, nil
}

func (w *Worker) notifyFinished(ctx context.Context, job *queue.Job) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.NotifyJobFinished(ctx, job.UUID, job.Owner); err != nil {
		w.logger.Warn("finish notification failed", logging.Error(err))
	}
}

func (w *Worker) failArchive(ctx context.Context, logger *slog.Logger, job *queue.Job, cause error) error {
	w.metrics.RecordStageFailure(stageName)
	attempts := job.RetryCount + 1

	if !remote.IsFatal(cause) && w.policy.ShouldRetry(policy.StageArchive, attempts) {
		logger.Warn("archive attempt failed, requeueing",
			logging.Error(cause),
			logging.Int("attempt", attempts),
		)
		return w.store.RequeueJobForRetry(ctx, job, cause.Error())
	}

	logger.Error("archiving exhausted", logging.Error(cause), logging.Int("attempts", attempts))
	w.metrics.RecordStageRollback(stageName)
	if err := w.store.TransitionJob(ctx, job, jobstatus.ArchivingFailed, cause.Error()); err != nil {
		return err
	}
	if err := w.store.TransitionJob(ctx, job, jobstatus.Failed, fmt.Sprintf("archiving exhausted after %d attempts", attempts)); err != nil {
		return err
	}
	if w.notifier != nil {
		if err := w.notifier.NotifyJobFailed(ctx, job.UUID, job.Owner, cause.Error()); err != nil {
			w.logger.Warn("failure notification failed", logging.Error(err))
		}
	}
	return nil
}
