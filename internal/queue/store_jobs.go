package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"conveyor/internal/jobstatus"
	"conveyor/internal/tenant"
)

// NewJobParams describes a job submission accepted into the pipeline.
type NewJobParams struct {
	TenantID        string
	Owner           string
	ExecutionSystem string
	AppID           string
	BatchQueue      string
	ArchiveFlag     bool
	ArchiveSystem   string
	ArchivePath     string
}

// NewJob inserts a job in PENDING status and returns it.
func (s *Store) NewJob(ctx context.Context, params NewJobParams) (*Job, error) {
	if params.TenantID == "" {
		return nil, errors.New("tenant id is required")
	}
	if params.Owner == "" {
		return nil, errors.New("owner is required")
	}
	if params.ExecutionSystem == "" {
		return nil, errors.New("execution system is required")
	}

	timestamp := nowStamp()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            uuid, tenant_id, owner, execution_system, app_id, batch_queue,
            status, archive_flag, archive_system, archive_path,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		params.TenantID,
		params.Owner,
		params.ExecutionSystem,
		params.AppID,
		nullableString(params.BatchQueue),
		jobstatus.Pending,
		boolToInt(params.ArchiveFlag),
		nullableString(params.ArchiveSystem),
		nullableString(params.ArchivePath),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetJobByID(ctx, id)
}

// GetJobByID fetches a job by row identifier.
func (s *Store) GetJobByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetJobByUUID fetches a job by its stable uuid.
func (s *Store) GetJobByUUID(ctx context.Context, jobUUID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE uuid = ?`, jobUUID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job by uuid: %w", err)
	}
	return job, nil
}

// ClaimNextJob selects one candidate job in the given ready status whose
// tenant passes the filter. Selection is pseudo-random rather than FIFO so
// that many workers polling on a fixed cadence do not repeatedly collide on
// the same few rows. The returned job is NOT locked; the caller must still
// win the conditional status flip before doing work.
func (s *Store) ClaimNextJob(ctx context.Context, filter tenant.Filter, statuses ...jobstatus.Status) (*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(statuses)*2)
	args := make([]any, 0, len(statuses)+4)
	for i, status := range statuses {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, status)
	}
	clause, tenantArgs := filter.SQL("tenant_id")
	args = append(args, tenantArgs...)

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status IN (` + string(placeholders) + `) ` +
		clause + `ORDER BY RANDOM() LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, args...)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// ConditionalUpdateJobStatus atomically flips a job's status from expected to
// next, validating the transition first. ErrClaimConflict is returned when
// the row no longer holds the expected status; the caller lost the race and
// should move on.
func (s *Store) ConditionalUpdateJobStatus(ctx context.Context, id int64, expected, next jobstatus.Status) error {
	if next == jobstatus.Heartbeat {
		return errors.New("heartbeat is a liveness signal, not a persistable status")
	}
	if err := jobstatus.Validate(expected, next); err != nil {
		return err
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		next,
		nowStamp(),
		id,
		expected,
	)
	if err != nil {
		return fmt.Errorf("conditional job status update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrClaimConflict
	}
	return nil
}

// UpdateJob persists mutable job fields. Status changes must already have
// been validated by the caller through the state machine; use
// ConditionalUpdateJobStatus or TransitionJob for status flips.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET owner = ?, execution_system = ?, app_id = ?, batch_queue = ?,
             local_job_id = ?, status = ?, status_check_count = ?, retry_count = ?,
             archive_flag = ?, archive_system = ?, archive_path = ?,
             error_message = ?, updated_at = ?, last_heartbeat = ?
         WHERE id = ?`,
		job.Owner,
		job.ExecutionSystem,
		job.AppID,
		nullableString(job.BatchQueue),
		nullableString(job.LocalJobID),
		job.Status,
		job.StatusCheckCount,
		job.RetryCount,
		boolToInt(job.ArchiveFlag),
		nullableString(job.ArchiveSystem),
		nullableString(job.ArchivePath),
		nullableString(job.ErrorMessage),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.LastHeartbeat),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// TransitionJob validates and applies a forward status change, persists the
// job, and appends the audit event in one call. A HEARTBEAT target updates
// the liveness timestamp only and never changes the resting status.
func (s *Store) TransitionJob(ctx context.Context, job *Job, next jobstatus.Status, message string) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if next == jobstatus.Heartbeat {
		if err := jobstatus.Validate(job.Status, next); err != nil {
			return err
		}
		return s.UpdateJobHeartbeat(ctx, job.ID)
	}
	if err := jobstatus.Validate(job.Status, next); err != nil {
		return err
	}
	job.Status = next
	if err := s.UpdateJob(ctx, job); err != nil {
		return err
	}
	return s.AppendJobEvent(ctx, job.UUID, next, message, job.Owner)
}

// RequeueJobForRetry returns a job to its stage's safe checkpoint for
// another attempt and bumps the retry counter. Rollback targets come from
// the state machine's rollback table, which deliberately moves against the
// forward adjacency.
func (s *Store) RequeueJobForRetry(ctx context.Context, job *Job, message string) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.Status = jobstatus.RollbackState(job.Status)
	job.RetryCount++
	job.ErrorMessage = message
	if err := s.UpdateJob(ctx, job); err != nil {
		return err
	}
	return s.AppendJobEvent(ctx, job.UUID, job.Status, message, job.Owner)
}

// RollbackJob moves an exhausted job to its safe checkpoint with a fresh
// retry budget. Operators distinguish the give-up from a plain requeue by
// the recorded error message and audit event.
func (s *Store) RollbackJob(ctx context.Context, job *Job, message string) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.Status = jobstatus.RollbackState(job.Status)
	job.RetryCount = 0
	job.ErrorMessage = message
	if err := s.UpdateJob(ctx, job); err != nil {
		return err
	}
	return s.AppendJobEvent(ctx, job.UUID, job.Status, message, job.Owner)
}

// SetLocalJobID records the remote scheduler identifier. It is assigned
// exactly once; a second assignment attempt reports a conflict.
func (s *Store) SetLocalJobID(ctx context.Context, id int64, localJobID string) error {
	if localJobID == "" {
		return errors.New("local job id is required")
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET local_job_id = ?, updated_at = ?
         WHERE id = ? AND (local_job_id IS NULL OR local_job_id = '')`,
		localJobID,
		nowStamp(),
		id,
	)
	if err != nil {
		return fmt.Errorf("set local job id: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrClaimConflict
	}
	return nil
}

// UpdateJobHeartbeat updates the last heartbeat timestamp for an in-flight job.
func (s *Store) UpdateJobHeartbeat(ctx context.Context, id int64) error {
	now := nowStamp()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("update job heartbeat: %w", err)
	}
	return nil
}

// BumpStatusCheck increments the monitor poll counter and stamps the check
// time without touching status.
func (s *Store) BumpStatusCheck(ctx context.Context, id int64) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status_check_count = status_check_count + 1, last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		nowStamp(),
		nowStamp(),
		id,
	)
	if err != nil {
		return fmt.Errorf("bump status check: %w", err)
	}
	return nil
}

// ReclaimStaleJobs returns jobs stuck in transient worker-held statuses back
// to their stage's ready status when heartbeats expire.
func (s *Store) ReclaimStaleJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = CASE status
             WHEN ? THEN ?
             WHEN ? THEN ?
             ELSE status
         END,
             last_heartbeat = NULL, updated_at = ?
         WHERE status IN (?, ?) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		jobstatus.Submitting, jobstatus.Staged,
		jobstatus.Archiving, jobstatus.CleaningUp,
		nowStamp(),
		jobstatus.Submitting,
		jobstatus.Archiving,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// JobStats returns a count of jobs grouped by status.
func (s *Store) JobStats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(Stats)
	for rows.Next() {
		var status jobstatus.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates job counts for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.JobStats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch {
		case jobstatus.IsExecuting(status):
			health.Executing += count
			health.Active += count
		case jobstatus.IsActive(status):
			health.Active += count
		case jobstatus.IsFailed(status):
			health.Failed += count
			health.Finished += count
		case jobstatus.IsFinished(status):
			health.Finished += count
		}
	}
	return health, nil
}

// ListJobs returns jobs filtered by status set, or all jobs when no status
// is provided, ordered by creation time.
func (s *Store) ListJobs(ctx context.Context, statuses ...jobstatus.Status) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := make([]byte, 0, len(statuses)*2)
		args := make([]any, 0, len(statuses))
		for i, status := range statuses {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args = append(args, status)
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+string(placeholders)+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

const jobColumns = "id, uuid, tenant_id, owner, execution_system, app_id, batch_queue, local_job_id, status, status_check_count, retry_count, archive_flag, archive_system, archive_path, error_message, created_at, updated_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               int64
		jobUUID          string
		tenantID         string
		owner            string
		executionSystem  string
		appID            string
		batchQueue       sql.NullString
		localJobID       sql.NullString
		statusStr        string
		statusCheckCount int
		retryCount       int
		archiveFlag      sql.NullInt64
		archiveSystem    sql.NullString
		archivePath      sql.NullString
		errorMessage     sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		heartbeatRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&jobUUID,
		&tenantID,
		&owner,
		&executionSystem,
		&appID,
		&batchQueue,
		&localJobID,
		&statusStr,
		&statusCheckCount,
		&retryCount,
		&archiveFlag,
		&archiveSystem,
		&archivePath,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:               id,
		UUID:             jobUUID,
		TenantID:         tenantID,
		Owner:            owner,
		ExecutionSystem:  executionSystem,
		AppID:            appID,
		BatchQueue:       batchQueue.String,
		LocalJobID:       localJobID.String,
		Status:           jobstatus.Status(statusStr),
		StatusCheckCount: statusCheckCount,
		RetryCount:       retryCount,
		ArchiveSystem:    archiveSystem.String,
		ArchivePath:      archivePath.String,
		ErrorMessage:     errorMessage.String,
	}
	if archiveFlag.Valid {
		job.ArchiveFlag = archiveFlag.Int64 != 0
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}
