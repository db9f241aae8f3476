package queue

import (
	"context"
	"database/sql"
	"fmt"

	"conveyor/internal/jobstatus"
)

// AppendJobEvent records an audit entry for a job lifecycle change. Events
// are append-only; nothing updates or deletes them.
func (s *Store) AppendJobEvent(ctx context.Context, jobUUID string, status jobstatus.Status, message, createdBy string) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO job_events (job_uuid, status, message, created_by, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		jobUUID,
		status,
		nullableString(message),
		nullableString(createdBy),
		nowStamp(),
	)
	if err != nil {
		return fmt.Errorf("append job event: %w", err)
	}
	return nil
}

// JobEvents returns a job's audit trail in insertion order.
func (s *Store) JobEvents(ctx context.Context, jobUUID string) ([]*JobEvent, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, job_uuid, status, message, created_by, created_at
         FROM job_events WHERE job_uuid = ? ORDER BY id`,
		jobUUID,
	)
	if err != nil {
		return nil, fmt.Errorf("job events: %w", err)
	}
	defer rows.Close()

	var events []*JobEvent
	for rows.Next() {
		var (
			event      JobEvent
			message    sql.NullString
			createdBy  sql.NullString
			createdRaw sql.NullString
			statusStr  string
		)
		if err := rows.Scan(&event.ID, &event.JobUUID, &statusStr, &message, &createdBy, &createdRaw); err != nil {
			return nil, err
		}
		event.Status = jobstatus.Status(statusStr)
		event.Message = message.String
		event.CreatedBy = createdBy.String
		if created, err := parseTimeString(createdRaw.String); err == nil {
			event.CreatedAt = created
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
