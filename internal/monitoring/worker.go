// Package monitoring polls remote schedulers for jobs that are on them.
package monitoring

import (
	"context"
	"log/slog"
	"time"

	"conveyor/internal/jobstatus"
	"conveyor/internal/logging"
	"conveyor/internal/metrics"
	"conveyor/internal/queue"
	"conveyor/internal/remote"
	"conveyor/internal/tenant"
)

const stageName = "monitoring"

// maxCheckBackoff caps the progressive spacing between remote status polls
// for a single job.
const maxCheckBackoff = 15 * time.Minute

// Worker polls the scheduler-side status of executing jobs.
type Worker struct {
	store        *queue.Store
	submitter    remote.Submitter
	filter       tenant.Filter
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

// New creates the monitoring worker. pollInterval seeds the progressive
// per-job check backoff.
func New(store *queue.Store, submitter remote.Submitter, filter tenant.Filter, pollInterval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Worker{
		store:        store,
		submitter:    submitter,
		filter:       filter,
		pollInterval: pollInterval,
		logger:       logger.With(logging.String(logging.FieldComponent, stageName)),
		metrics:      m,
		now:          time.Now,
	}
}

// Name implements worker.Worker.
func (w *Worker) Name() string { return stageName }

// RunOnce polls at most one executing job's remote status and folds the
// answer into the lifecycle. Monitoring never holds a claim: polling is
// idempotent, so a raced duplicate check is harmless.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	w.metrics.RecordClaim(stageName)
	job, err := w.store.ClaimNextJob(ctx, w.filter, jobstatus.Queued, jobstatus.Running, jobstatus.Paused)
	if err != nil || job == nil {
		return false, err
	}
	if !w.checkDue(job) {
		return false, nil
	}
	ctx = logging.WithJob(ctx, job.UUID, job.TenantID, stageName)
	logger := logging.WithContext(ctx, w.logger)

	if job.LocalJobID == "" {
		// Never made it onto the scheduler; the submission record was lost.
		logger.Error("executing job has no scheduler id, failing")
		return true, w.store.TransitionJob(ctx, job, jobstatus.Failed, "no scheduler id recorded")
	}

	status, err := w.submitter.Status(ctx, job.ExecutionSystem, job.LocalJobID)
	if err != nil {
		logger.Warn("remote status poll failed", logging.Error(err))
		return true, w.store.BumpStatusCheck(ctx, job.ID)
	}

	if err := w.store.BumpStatusCheck(ctx, job.ID); err != nil {
		return true, err
	}
	job.StatusCheckCount++
	checked := w.now()
	job.LastHeartbeat = &checked

	switch status {
	case remote.StatusQueued:
		return true, w.applyRemote(ctx, logger, job, jobstatus.Queued)
	case remote.StatusRunning:
		return true, w.applyRemote(ctx, logger, job, jobstatus.Running)
	case remote.StatusPaused:
		return true, w.applyRemote(ctx, logger, job, jobstatus.Paused)
	case remote.StatusFinished:
		w.metrics.RecordStageSuccess(stageName)
		logger.Info("remote execution finished",
			logging.Int("status_checks", job.StatusCheckCount),
		)
		return true, w.store.TransitionJob(ctx, job, jobstatus.CleaningUp, "remote execution finished")
	case remote.StatusNotFound:
		w.metrics.RecordStageFailure(stageName)
		logger.Error("scheduler no longer knows the job, failing",
			logging.String("local_job_id", job.LocalJobID),
		)
		return true, w.store.TransitionJob(ctx, job, jobstatus.Failed, "job vanished from scheduler")
	default:
		logger.Warn("unrecognized remote status", logging.String(logging.FieldStatus, string(status)))
		return true, nil
	}
}

// checkDue spaces remote polls progressively: the more often a job has been
// checked and found still running, the longer until the next poll.
func (w *Worker) checkDue(job *queue.Job) bool {
	if job.LastHeartbeat == nil {
		return true
	}
	backoff := w.pollInterval
	for i := 0; i < job.StatusCheckCount && backoff < maxCheckBackoff; i += 5 {
		backoff *= 2
	}
	if backoff > maxCheckBackoff {
		backoff = maxCheckBackoff
	}
	return w.now().Sub(*job.LastHeartbeat) >= backoff
}

func (w *Worker) applyRemote(ctx context.Context, logger *slog.Logger, job *queue.Job, target jobstatus.Status) error {
	if job.Status == target {
		return nil
	}
	if err := w.store.TransitionJob(ctx, job, target, "remote scheduler reports "+string(target)); err != nil {
		if queue.IsConflict(err) {
			return nil
		}
		return err
	}
	logger.Info("job status updated from scheduler", logging.String(logging.FieldStatus, string(target)))
	return nil
}
