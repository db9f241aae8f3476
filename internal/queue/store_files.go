package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"conveyor/internal/jobstatus"
)

// NewFileParams describes a logical file registration.
type NewFileParams struct {
	TenantID  string
	Owner     string
	SystemID  string
	Path      string
	SourceURI string
	JobUUID   string
}

// CreateFile registers a logical file in STAGING_QUEUED status.
func (s *Store) CreateFile(ctx context.Context, params NewFileParams) (*LogicalFile, error) {
	if params.TenantID == "" {
		return nil, errors.New("tenant id is required")
	}
	if params.SystemID == "" || params.Path == "" {
		return nil, errors.New("system id and path are required")
	}

	timestamp := nowStamp()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO logical_files (
            uuid, tenant_id, owner, system_id, path, source_uri,
            status, job_uuid, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		params.TenantID,
		params.Owner,
		params.SystemID,
		params.Path,
		nullableString(params.SourceURI),
		jobstatus.StagingQueued,
		nullableString(params.JobUUID),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert logical file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetFileByID(ctx, id)
}

// GetFileByID fetches a logical file by row identifier.
func (s *Store) GetFileByID(ctx context.Context, id int64) (*LogicalFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM logical_files WHERE id = ?`, id)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get logical file: %w", err)
	}
	return file, nil
}

// FindFileBySourceURI resolves the logical file a transfer event refers to.
// Correlation is by tenant and source URI only; when several files share a
// source the most recently registered one wins.
func (s *Store) FindFileBySourceURI(ctx context.Context, tenantID, sourceURI string) (*LogicalFile, error) {
	if sourceURI == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+fileColumns+` FROM logical_files
         WHERE tenant_id = ? AND source_uri = ?
         ORDER BY id DESC LIMIT 1`,
		tenantID,
		sourceURI,
	)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find file by source uri: %w", err)
	}
	return file, nil
}

// FindFileByPath resolves a logical file by its system and path.
func (s *Store) FindFileByPath(ctx context.Context, tenantID, systemID, path string) (*LogicalFile, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+fileColumns+` FROM logical_files
         WHERE tenant_id = ? AND system_id = ? AND path = ?
         ORDER BY id DESC LIMIT 1`,
		tenantID,
		systemID,
		path,
	)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find file by location: %w", err)
	}
	return file, nil
}

// UpdateFileStatus applies a staging status change to a logical file. The
// staging vocabulary is forward-only; a stale or duplicate event folds in as
// a no-op rather than an error when it lands on the status already held.
func (s *Store) UpdateFileStatus(ctx context.Context, id int64, next jobstatus.StagingStatus) error {
	file, err := s.GetFileByID(ctx, id)
	if err != nil {
		return err
	}
	if file == nil {
		return ErrNotFound
	}
	if file.Status == next {
		return nil
	}
	if !jobstatus.IsValidStagingTransition(file.Status, next) {
		// Late or reordered event. The file already moved past this point.
		return nil
	}
	_, err = s.execWithRetry(
		ctx,
		`UPDATE logical_files SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		next,
		nowStamp(),
		id,
		file.Status,
	)
	if err != nil {
		return fmt.Errorf("update file status: %w", err)
	}
	return nil
}

// RestageFile returns a STAGING_FAILED file to STAGING_QUEUED so a rolled
// back job can re-drive its transfer. This is the one deliberate backward
// move in the staging vocabulary; it is guarded on the failed status so it
// never disturbs a completed or in-flight file.
func (s *Store) RestageFile(ctx context.Context, id int64) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE logical_files SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		jobstatus.StagingQueued,
		nowStamp(),
		id,
		jobstatus.StagingFailed,
	)
	if err != nil {
		return fmt.Errorf("restage file: %w", err)
	}
	return nil
}

// MarkFileOverwritten records that a completed transfer replaced existing
// content at the file's destination.
func (s *Store) MarkFileOverwritten(ctx context.Context, id int64) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE logical_files SET overwritten = 1, updated_at = ? WHERE id = ?`,
		nowStamp(),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark file overwritten: %w", err)
	}
	return nil
}

// FilesForJob returns the logical files bound to a job's inputs.
func (s *Store) FilesForJob(ctx context.Context, jobUUID string) ([]*LogicalFile, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+fileColumns+` FROM logical_files WHERE job_uuid = ? ORDER BY id`,
		jobUUID,
	)
	if err != nil {
		return nil, fmt.Errorf("files for job: %w", err)
	}
	defer rows.Close()

	var files []*LogicalFile
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

const fileColumns = "id, uuid, tenant_id, owner, system_id, path, source_uri, status, overwritten, job_uuid, created_at, updated_at"

func scanFile(scanner interface{ Scan(dest ...any) error }) (*LogicalFile, error) {
	var (
		id          int64
		fileUUID    string
		tenantID    string
		owner       string
		systemID    string
		path        string
		sourceURI   sql.NullString
		statusStr   string
		overwritten sql.NullInt64
		jobUUID     sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&fileUUID,
		&tenantID,
		&owner,
		&systemID,
		&path,
		&sourceURI,
		&statusStr,
		&overwritten,
		&jobUUID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	file := &LogicalFile{
		ID:        id,
		UUID:      fileUUID,
		TenantID:  tenantID,
		Owner:     owner,
		SystemID:  systemID,
		Path:      path,
		SourceURI: sourceURI.String,
		Status:    jobstatus.StagingStatus(statusStr),
		JobUUID:   jobUUID.String,
	}
	if overwritten.Valid {
		file.Overwritten = overwritten.Int64 != 0
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		file.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		file.UpdatedAt = updated
	}
	return file, nil
}
