package queue

import (
	"time"

	"conveyor/internal/jobstatus"
)

// Job represents a compute job persisted in the task store. Status is
// mutated only through state-machine-validated writes.
type Job struct {
	ID               int64
	UUID             string
	TenantID         string
	Owner            string
	ExecutionSystem  string
	AppID            string
	BatchQueue       string
	LocalJobID       string
	Status           jobstatus.Status
	StatusCheckCount int
	RetryCount       int
	ArchiveFlag      bool
	ArchiveSystem    string
	ArchivePath      string
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastHeartbeat    *time.Time
}

// IsTerminal reports whether the job can make no further progress.
func (j *Job) IsTerminal() bool {
	return jobstatus.IsFinished(j.Status)
}

// WantsArchival reports whether outputs should be copied to the archive
// system before the job finishes.
func (j *Job) WantsArchival() bool {
	return j.ArchiveFlag && j.ArchiveSystem != ""
}

// LogicalFile represents a file known to the platform on some remote system.
// It is the correlation target for transfer lifecycle events: events resolve
// a file by (tenant, source URI), never by the event's own id.
type LogicalFile struct {
	ID        int64
	UUID      string
	TenantID  string
	Owner     string
	SystemID  string
	Path      string
	SourceURI string
	Status    jobstatus.StagingStatus
	// Overwritten records that a completed transfer replaced existing
	// content at this location.
	Overwritten bool
	JobUUID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StagingTask is one pending unit of staging work bound to a logical file
// and, transitively, to the job whose input the file is.
type StagingTask struct {
	ID            int64
	TenantID      string
	LogicalFileID int64
	Status        jobstatus.StagingStatus
	RetryCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JobEvent is an append-only audit record describing a lifecycle change.
// The event bridge reconciles external notifications against these.
type JobEvent struct {
	ID        int64
	JobUUID   string
	Status    jobstatus.Status
	Message   string
	CreatedBy string
	CreatedAt time.Time
}

// Stats is a count of jobs grouped by status.
type Stats map[jobstatus.Status]int

// HealthSummary describes aggregated queue counts per key lifecycle phase.
type HealthSummary struct {
	Total     int
	Active    int
	Executing int
	Finished  int
	Failed    int
}
