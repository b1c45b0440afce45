// Package filters implements the two-phase JobFilters extension point: a
// filter observes the state the coordinator is about to apply to a job
// (OnStateElection, where it may veto or replace the election) and the
// state actually persisted (OnStateApplied, for side effects). The default
// RetryFilter and ConcurrentJobModificationResolver are registered on every
// BackgroundJobServer unless the caller opts out.
package filters

import (
	"github.com/daniiell3/jobrunr/jobs"
)

// JobFilters is the extension point every registered filter implements,
// modeled the way the teacher models small multi-method interfaces
// elsewhere (chrono.Storage, chrono.Scheduler): a couple of narrow methods
// rather than one do-everything callback.
type JobFilters interface {
	// OnStateElection is called with the job and the state the coordinator
	// is about to append. Returning a different JobState overrides the
	// election (used by RetryFilter to turn a FAILED election into a
	// SCHEDULED retry); returning the same state passed in leaves it
	// unchanged.
	OnStateElection(job *jobs.Job, elected jobs.JobState) jobs.JobState
	// OnStateApplied is called after elected has been appended to the
	// job's history and the job has been persisted.
	OnStateApplied(job *jobs.Job, applied jobs.JobState)
}
