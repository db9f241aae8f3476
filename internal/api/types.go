package api

// JobView is the transport representation of a job row.
type JobView struct {
	ID              int64  `json:"id"`
	UUID            string `json:"uuid"`
	TenantID        string `json:"tenant_id"`
	Owner           string `json:"owner"`
	ExecutionSystem string `json:"execution_system"`
	AppID           string `json:"app_id"`
	Status          string `json:"status"`
	StatusDetail    string `json:"status_detail,omitempty"`
	RetryCount      int    `json:"retry_count"`
	LocalJobID      string `json:"local_job_id,omitempty"`
	ArchiveSystem   string `json:"archive_system,omitempty"`
	ArchivePath     string `json:"archive_path,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// JobListResponse wraps the job listing endpoint payload.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// JobEventView is the transport representation of a lifecycle event.
type JobEventView struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
	CreatedAt string `json:"created_at"`
}

// JobDetailResponse pairs a job with its lifecycle history.
type JobDetailResponse struct {
	Job    JobView        `json:"job"`
	Events []JobEventView `json:"events,omitempty"`
}

// DaemonStatus reports daemon runtime information.
type DaemonStatus struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	DatabasePath string `json:"database_path"`
	LockFilePath string `json:"lock_file_path"`
	TotalJobs    int    `json:"total_jobs"`
	ActiveJobs   int    `json:"active_jobs"`
	Executing    int    `json:"executing_jobs"`
	Finished     int    `json:"finished_jobs"`
	Failed       int    `json:"failed_jobs"`
}

// HealthStatus is the health endpoint payload.
type HealthStatus struct {
	Status string `json:"status"`
	Total  int    `json:"total_jobs"`
	Failed int    `json:"failed_jobs"`
}

// ErrorResponse carries an API error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
