package jobstatus

import "fmt"

// TransitionError reports a transition request that is not in the adjacency
// table. Callers decide whether that is fatal (stage workers abort the tick)
// or ignorable (the event bridge drops the event).
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal status transition from %s to %s", e.From, e.To)
}

// adjacency lists the valid transition targets for each status. Terminal
// statuses map to an empty set. Paused and Heartbeat act as universal
// escape/liveness states and may move anywhere.
var adjacency = map[Status][]Status{
	Pending:           {Pending, ProcessingInputs, Stopped, Paused, Failed},
	ProcessingInputs:  {ProcessingInputs, StagingInputs, Stopped, Paused, Failed},
	StagingInputs:     {StagingInputs, Staged, Stopped, Paused, Failed},
	Staged:            {Staged, Submitting, Stopped, Paused, Failed},
	StagingJob:        {StagingJob, Submitting, Stopped, Paused, Failed},
	Submitting:        {Submitting, Queued, Running, Killed, Stopped, Paused, Failed, Heartbeat},
	Queued:            {Queued, Running, CleaningUp, Killed, Stopped, Paused, Failed, Heartbeat},
	Running:           {Running, Queued, CleaningUp, Killed, Stopped, Paused, Failed, Heartbeat},
	CleaningUp:        {CleaningUp, Archiving, Finished, Killed, Stopped, Paused, Failed},
	Archiving:         {Archiving, ArchivingFailed, ArchivingFinished, Killed, Stopped, Paused, Failed},
	ArchivingFailed:   {ArchivingFailed, Failed},
	ArchivingFinished: {ArchivingFinished, Failed, Finished},
	Paused:            allStatuses,
	Heartbeat:         allStatuses,
	Killed:            {},
	Stopped:           {},
	Finished:          {},
	Failed:            {},
}

// NextValidStates returns the valid transition targets from s, or an empty
// slice for terminal statuses.
func NextValidStates(s Status) []Status {
	next := adjacency[s]
	cp := make([]Status, len(next))
	copy(cp, next)
	return cp
}

// IsValidTransition reports whether moving from one status to another is
// permitted by the adjacency table.
func IsValidTransition(from, to Status) bool {
	for _, candidate := range adjacency[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Validate returns a TransitionError when the requested transition is not in
// the adjacency table.
func Validate(from, to Status) error {
	if !IsValidTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// PreviousState returns the status that logically precedes s in an ideal,
// single-pass run of the pipeline. It does not consult job history and is
// used for display and progress estimation only. Statuses without a
// well-defined predecessor fall back to Pending.
func PreviousState(s Status) Status {
	switch s {
	case Pending, ProcessingInputs:
		return Pending
	case StagingInputs:
		return ProcessingInputs
	case Staged:
		return StagingInputs
	case StagingJob:
		return Staged
	case Submitting:
		return StagingJob
	case Queued:
		return Submitting
	case Running:
		return Queued
	case CleaningUp:
		return Running
	case Archiving:
		return CleaningUp
	case ArchivingFailed, ArchivingFinished:
		return Archiving
	default: // Paused, Killed, Stopped, Finished, Failed, Heartbeat
		return Pending
	}
}

// RollbackState returns the checkpoint a job is reset to after exhausting
// retries at stage s. Re-driving the pipeline from the checkpoint is safe:
// staging failures restart from scratch, execution failures resubmit without
// re-staging inputs, and archival failures rerun only the archival pass.
func RollbackState(s Status) Status {
	switch s {
	case Pending, ProcessingInputs, StagingInputs, Staged:
		return Pending
	case StagingJob, Submitting, Queued, Running, CleaningUp:
		return Staged
	case Archiving, ArchivingFailed, ArchivingFinished:
		return CleaningUp
	default: // Paused, Killed, Stopped, Finished, Failed, Heartbeat
		return Pending
	}
}
