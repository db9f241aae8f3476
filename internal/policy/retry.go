// Package policy holds the bounded-retry and rollback rules shared by the
// stage workers.
package policy

import (
	"time"

	"conveyor/internal/config"
	"conveyor/internal/jobstatus"
)

// Stage identifies which pipeline stage a retry decision applies to.
type Stage string

const (
	StageStaging    Stage = "staging"
	StageSubmission Stage = "submission"
	StageArchive    Stage = "archive"
)

// Policy carries per-stage retry bounds and the staging wall-clock timeout.
type Policy struct {
	MaxStagingRetries    int
	MaxSubmissionRetries int
	MaxArchiveRetries    int
	StagingTimeout       time.Duration
}

// FromConfig builds the retry policy from configuration.
func FromConfig(cfg *config.Config) Policy {
	return Policy{
		MaxStagingRetries:    cfg.Retry.StagingRetries,
		MaxSubmissionRetries: cfg.Retry.SubmissionRetries,
		MaxArchiveRetries:    cfg.Retry.ArchiveRetries,
		StagingTimeout:       time.Duration(cfg.Retry.StagingTimeout) * time.Second,
	}
}

// ShouldRetry reports whether a stage may attempt again after the given
// number of failed attempts.
func (p Policy) ShouldRetry(stage Stage, attempts int) bool {
	switch stage {
	case StageStaging:
		return attempts < p.MaxStagingRetries
	case StageSubmission:
		return attempts < p.MaxSubmissionRetries
	case StageArchive:
		return attempts < p.MaxArchiveRetries
	default:
		return false
	}
}

// OnExhausted returns the safe checkpoint a job falls back to when a stage
// runs out of retries.
func (p Policy) OnExhausted(status jobstatus.Status) jobstatus.Status {
	return jobstatus.RollbackState(status)
}
