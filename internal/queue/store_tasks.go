package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"conveyor/internal/jobstatus"
	"conveyor/internal/tenant"
)

// CreateStagingTask enqueues a staging task for a logical file.
func (s *Store) CreateStagingTask(ctx context.Context, file *LogicalFile) (*StagingTask, error) {
	if file == nil {
		return nil, errors.New("logical file is nil")
	}
	timestamp := nowStamp()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO staging_tasks (tenant_id, logical_file_id, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		file.TenantID,
		file.ID,
		jobstatus.StagingQueued,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert staging task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetStagingTask(ctx, id)
}

// GetStagingTask fetches a staging task by row identifier.
func (s *Store) GetStagingTask(ctx context.Context, id int64) (*StagingTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM staging_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get staging task: %w", err)
	}
	return task, nil
}

// StagingTaskForFile returns the staging task bound to a logical file, or
// nil when none exists.
func (s *Store) StagingTaskForFile(ctx context.Context, fileID int64) (*StagingTask, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM staging_tasks WHERE logical_file_id = ? ORDER BY id DESC LIMIT 1`,
		fileID,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("staging task for file: %w", err)
	}
	return task, nil
}

// ClaimNextStagingTask selects one queued staging task whose tenant passes
// the filter, chosen pseudo-randomly so concurrent workers spread across the
// backlog. The row is not locked; callers must win the conditional flip to
// STAGING before acting on it.
func (s *Store) ClaimNextStagingTask(ctx context.Context, filter tenant.Filter) (*StagingTask, error) {
	clause, tenantArgs := filter.SQL("tenant_id")
	args := append([]any{jobstatus.StagingQueued}, tenantArgs...)

	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM staging_tasks WHERE status = ? `+clause+`ORDER BY RANDOM() LIMIT 1`,
		args...,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next staging task: %w", err)
	}
	return task, nil
}

// ConditionalUpdateTaskStatus atomically flips a staging task's status from
// expected to next. Zero rows affected means another worker got there first.
func (s *Store) ConditionalUpdateTaskStatus(ctx context.Context, id int64, expected, next jobstatus.StagingStatus) error {
	if expected != next && !jobstatus.IsValidStagingTransition(expected, next) {
		return fmt.Errorf("invalid staging transition %s -> %s", expected, next)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE staging_tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		next,
		nowStamp(),
		id,
		expected,
	)
	if err != nil {
		return fmt.Errorf("conditional task status update: %w", err)
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

// RequeueStagingTask returns a failed attempt's task to the queue and bumps
// its retry counter.
func (s *Store) RequeueStagingTask(ctx context.Context, id int64) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE staging_tasks
         SET status = ?, retry_count = retry_count + 1, updated_at = ?
         WHERE id = ?`,
		jobstatus.StagingQueued,
		nowStamp(),
		id,
	)
	if err != nil {
		return fmt.Errorf("requeue staging task: %w", err)
	}
	return nil
}

// DeleteStagingTask removes a finished task.
func (s *Store) DeleteStagingTask(ctx context.Context, id int64) error {
	_, err := s.execWithRetry(ctx, `DELETE FROM staging_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete staging task: %w", err)
	}
	return nil
}

// PendingStagingTasksForJob counts queued or in-flight staging tasks for a
// job's logical files. Zero means every input has settled.
func (s *Store) PendingStagingTasksForJob(ctx context.Context, jobUUID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM staging_tasks t
         JOIN logical_files f ON f.id = t.logical_file_id
         WHERE f.job_uuid = ? AND t.status IN (?, ?)`,
		jobUUID,
		jobstatus.StagingQueued,
		jobstatus.StagingActive,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pending staging tasks: %w", err)
	}
	return count, nil
}

const taskColumns = "id, tenant_id, logical_file_id, status, retry_count, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*StagingTask, error) {
	var (
		id            int64
		tenantID      string
		logicalFileID int64
		statusStr     string
		retryCount    int
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(&id, &tenantID, &logicalFileID, &statusStr, &retryCount, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	task := &StagingTask{
		ID:            id,
		TenantID:      tenantID,
		LogicalFileID: logicalFileID,
		Status:        jobstatus.StagingStatus(statusStr),
		RetryCount:    retryCount,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}
