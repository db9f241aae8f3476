package jobstatus

import "strings"

// Status represents the lifecycle of a job.
type Status string

const (
	Pending           Status = "PENDING"
	ProcessingInputs  Status = "PROCESSING_INPUTS"
	StagingInputs     Status = "STAGING_INPUTS"
	Staged            Status = "STAGED"
	StagingJob        Status = "STAGING_JOB"
	Submitting        Status = "SUBMITTING"
	Queued            Status = "QUEUED"
	Running           Status = "RUNNING"
	Paused            Status = "PAUSED"
	CleaningUp        Status = "CLEANING_UP"
	Archiving         Status = "ARCHIVING"
	ArchivingFinished Status = "ARCHIVING_FINISHED"
	ArchivingFailed   Status = "ARCHIVING_FAILED"
	Finished          Status = "FINISHED"
	Killed            Status = "KILLED"
	Stopped           Status = "STOPPED"
	Failed            Status = "FAILED"

	// Heartbeat is a liveness signal only. It is accepted as a transition
	// target from executing states but is never persisted as a resting status.
	Heartbeat Status = "HEARTBEAT"
)

var allStatuses = []Status{
	Pending,
	ProcessingInputs,
	StagingInputs,
	Staged,
	StagingJob,
	Submitting,
	Queued,
	Running,
	Paused,
	CleaningUp,
	Archiving,
	ArchivingFinished,
	ArchivingFailed,
	Finished,
	Killed,
	Stopped,
	Failed,
	Heartbeat,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var descriptions = map[Status]string{
	Pending:           "Job accepted and queued for submission",
	ProcessingInputs:  "Identifying input files for staging",
	StagingInputs:     "Transferring job input data to execution system",
	Staged:            "Job inputs staged to execution system",
	StagingJob:        "Staging runtime assets to execution system",
	Submitting:        "Preparing job for execution on execution system",
	Queued:            "Job successfully placed into queue",
	Running:           "Job started running",
	Paused:            "Job execution paused by user",
	CleaningUp:        "Job completed execution",
	Archiving:         "Transferring job output to archive system",
	ArchivingFinished: "Job archiving complete",
	ArchivingFailed:   "Job archiving failed",
	Finished:          "Job complete",
	Killed:            "Job execution killed at user request",
	Stopped:           "Job execution intentionally stopped",
	Failed:            "Job failed",
	Heartbeat:         "Job heartbeat received",
}

// All returns the ordered list of known statuses.
func All() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// Parse converts a string into a known Status.
func Parse(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Description returns the human-readable summary of a status.
func (s Status) Description() string {
	return descriptions[s]
}

func (s Status) String() string {
	return string(s)
}

// IsActive reports whether the job is anywhere between acceptance and
// terminal completion, inclusive of cleanup.
func IsActive(s Status) bool {
	switch s {
	case Pending, ProcessingInputs, StagingInputs, Staged,
		StagingJob, Submitting, Queued, Running, Paused, CleaningUp:
		return true
	default:
		return false
	}
}

// IsExecuting reports whether the job is under the control of the remote
// execution system and should be polled by the monitoring worker.
func IsExecuting(s Status) bool {
	return s == Running || s == Paused || s == Queued
}

// IsSubmitting reports whether the job is between input staging and queue
// placement.
func IsSubmitting(s Status) bool {
	return s == StagingJob || s == Submitting || s == Staged
}

// HasQueued reports whether the job has ever reached the remote queue.
func HasQueued(s Status) bool {
	switch s {
	case Pending, StagingInputs, StagingJob, Submitting, Staged:
		return false
	default:
		return true
	}
}

// IsFinished reports whether the status is terminal.
func IsFinished(s Status) bool {
	return s == Finished || s == Killed || s == Failed || s == Stopped
}

// IsFailed reports whether the status represents an unsuccessful outcome.
func IsFailed(s Status) bool {
	return s == ArchivingFailed || s == Failed || s == Killed
}

// IsArchived reports whether archival ran to a terminal outcome.
func IsArchived(s Status) bool {
	return s == ArchivingFailed || s == ArchivingFinished
}
