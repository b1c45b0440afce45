package jobs

import "time"

// StateName tags the variant carried by a JobState, following the tagged
// variant idiom used throughout this module instead of a class hierarchy.
type StateName string

const (
	Scheduled  StateName = "SCHEDULED"
	Enqueued   StateName = "ENQUEUED"
	Processing StateName = "PROCESSING"
	Succeeded  StateName = "SUCCEEDED"
	Failed     StateName = "FAILED"
	Deleted    StateName = "DELETED"
)

// Exception class names a FAILED JobState's ExceptionClass carries when the
// failure originates from dispatch rather than from user code running. A
// retry filter checks these to skip scheduling a retry that cannot
// possibly succeed.
const (
	ExceptionClassJobClassNotFound  = "jobrunr.JobClassNotFoundException"
	ExceptionClassJobMethodNotFound = "jobrunr.JobMethodNotFoundException"
)

// JobState is one immutable entry in a Job's append-only history. Only the
// fields relevant to Name are populated; callers pattern-match on Name.
type JobState struct {
	Name StateName `json:"@class"`

	// SCHEDULED
	ScheduledAt time.Time `json:"scheduledAt,omitempty"`
	Reason      string    `json:"reason,omitempty"`

	// ENQUEUED
	EnqueuedAt time.Time `json:"enqueuedAt,omitempty"`

	// PROCESSING
	StartedAt time.Time `json:"startedAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
	ServerID  string    `json:"serverId,omitempty"`

	// SUCCEEDED
	SucceededAt time.Time     `json:"succeededAt,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`

	// FAILED
	FailedAt       time.Time `json:"failedAt,omitempty"`
	ExceptionClass string    `json:"exceptionClass,omitempty"`
	Message        string    `json:"message,omitempty"`
	Stacktrace     string    `json:"stacktrace,omitempty"`

	// DELETED
	DeletedAt time.Time `json:"deletedAt,omitempty"`
}

// NewScheduledState builds a SCHEDULED JobState.
func NewScheduledState(at time.Time, reason string) JobState {
	return JobState{Name: Scheduled, ScheduledAt: at, Reason: reason}
}

// NewEnqueuedState builds an ENQUEUED JobState.
func NewEnqueuedState(at time.Time) JobState {
	return JobState{Name: Enqueued, EnqueuedAt: at}
}

// NewProcessingState builds a PROCESSING JobState.
func NewProcessingState(serverID string, startedAt time.Time) JobState {
	return JobState{Name: Processing, ServerID: serverID, StartedAt: startedAt, UpdatedAt: startedAt}
}

// NewSucceededState builds a SUCCEEDED JobState.
func NewSucceededState(at time.Time, duration time.Duration) JobState {
	return JobState{Name: Succeeded, SucceededAt: at, Duration: duration}
}

// NewFailedState builds a FAILED JobState.
func NewFailedState(at time.Time, exceptionClass, message, stacktrace string) JobState {
	return JobState{Name: Failed, FailedAt: at, ExceptionClass: exceptionClass, Message: message, Stacktrace: stacktrace}
}

// NewDeletedState builds a DELETED JobState.
func NewDeletedState(at time.Time, reason string) JobState {
	return JobState{Name: Deleted, DeletedAt: at, Reason: reason}
}

// IsTerminal reports whether name never transitions on its own (SUCCEEDED
// and FAILED are terminal-until-retention; DELETED is permanently terminal).
func (n StateName) IsTerminal() bool {
	switch n {
	case Succeeded, Failed, Deleted:
		return true
	default:
		return false
	}
}
