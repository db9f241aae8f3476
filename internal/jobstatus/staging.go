package jobstatus

// StagingStatus is the sub-vocabulary used by staging tasks and logical
// files while the transfer subsystem moves their data.
type StagingStatus string

const (
	StagingQueued    StagingStatus = "STAGING_QUEUED"
	StagingActive    StagingStatus = "STAGING"
	StagingCompleted StagingStatus = "STAGING_COMPLETED"
	StagingFailed    StagingStatus = "STAGING_FAILED"
)

var stagingOrder = map[StagingStatus]int{
	StagingQueued:    0,
	StagingActive:    1,
	StagingCompleted: 2,
	StagingFailed:    2,
}

// IsTerminalStaging reports whether the staging status will not change again
// through the normal staging path.
func IsTerminalStaging(s StagingStatus) bool {
	return s == StagingCompleted || s == StagingFailed
}

// IsValidStagingTransition reports whether a staging status may move to the
// target. Staging statuses only move forward; repeating the current status
// is a no-op allowed for idempotent event delivery.
func IsValidStagingTransition(from, to StagingStatus) bool {
	if from == to {
		return true
	}
	if IsTerminalStaging(from) {
		return false
	}
	fromRank, ok := stagingOrder[from]
	if !ok {
		return false
	}
	toRank, ok := stagingOrder[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}
