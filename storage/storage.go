// Package storage defines the StorageProvider contract every backend must
// satisfy, and ships an in-memory implementation used by tests and by
// cmd/jobrunrd's default configuration. A second backend, storage/pgstore,
// implements the same contract against Postgres.
package storage

import (
	"context"
	"time"

	"github.com/daniiell3/jobrunr/jobs"
	"github.com/daniiell3/jobrunr/notify"
)

// StateFilter narrows GetJobs to jobs currently in one of the named states.
// A nil slice matches every state.
type StateFilter []jobs.StateName

// The listener interfaces a StorageProvider dispatches to live in the
// notify package, since both storage backends and server wiring code need
// to reference them without storage depending on any one backend.
type (
	JobStatsChangeListener                  = notify.JobStatsChangeListener
	JobChangeListener                       = notify.JobChangeListener
	BackgroundJobServerStatusChangeListener = notify.BackgroundJobServerStatusChangeListener
)

// StorageProvider is the single point of contact between the coordinator,
// the worker pool, and the application-facing scheduler on one side and
// whatever holds durable job state on the other. Every method must be safe
// for concurrent use by multiple BackgroundJobServer instances.
type StorageProvider interface {
	// Save persists job, enforcing optimistic concurrency: if a row already
	// exists for job.ID whose Version does not equal job.Version-1, Save
	// returns an *errs.ConcurrentJobModification without mutating anything.
	Save(ctx context.Context, job *jobs.Job) error
	// SaveAll persists every job in the batch as a single atomic unit. If
	// any conflict, none are applied and the returned error unwraps to an
	// *errs.ConcurrentJobModification carrying every conflicting pair.
	SaveAll(ctx context.Context, jobs []*jobs.Job) error

	// GetJobByID returns the job with the given id, or errs.ErrJobNotFound.
	GetJobByID(ctx context.Context, id string) (*jobs.Job, error)
	// Exists reports whether a job with the given signature exists in any
	// of the given states, used to prevent duplicate recurring-job
	// occurrences and to dedup equivalent enqueue requests.
	Exists(ctx context.Context, signature string, states StateFilter) (bool, error)
	// GetJobs returns jobs in the given states, updated at or before
	// updatedBefore (zero value disables the filter), oldest first, bounded
	// by page.
	GetJobs(ctx context.Context, states StateFilter, updatedBefore time.Time, page jobs.PageRequest) ([]*jobs.Job, error)
	// GetScheduledJobs returns SCHEDULED jobs due at or before at, oldest
	// first, bounded by page.
	GetScheduledJobs(ctx context.Context, at time.Time, page jobs.PageRequest) ([]*jobs.Job, error)
	// CountJobs returns the number of jobs in the given states.
	CountJobs(ctx context.Context, states StateFilter) (int64, error)
	// DeleteJobs permanently removes jobs in the given states last updated
	// at or before updatedBefore, returning the count removed.
	DeleteJobs(ctx context.Context, states StateFilter, updatedBefore time.Time) (int64, error)

	// GetJobStats returns a point-in-time count of jobs per state plus the
	// lifetime succeeded counter.
	GetJobStats(ctx context.Context) (jobs.JobStats, error)
	// PublishJobStatCounter increments the lifetime succeeded counter by
	// delta, used when a SUCCEEDED job is purged by retention so its
	// lifetime count survives the purge.
	PublishJobStatCounter(ctx context.Context, delta int64) error

	// SaveRecurringJob upserts a RecurringJob definition.
	SaveRecurringJob(ctx context.Context, rj *jobs.RecurringJob) error
	// GetRecurringJobs returns every registered RecurringJob.
	GetRecurringJobs(ctx context.Context) ([]*jobs.RecurringJob, error)
	// DeleteRecurringJob removes a RecurringJob definition by id.
	DeleteRecurringJob(ctx context.Context, id string) error

	// AnnounceServer registers or refreshes a BackgroundJobServer's roster
	// entry, setting FirstHeartbeat only on first announce.
	AnnounceServer(ctx context.Context, status jobs.BackgroundJobServerStatus) error
	// Heartbeat refreshes LastHeartbeat for the named server.
	Heartbeat(ctx context.Context, serverID string) error
	// GetServers returns the current server roster, ordered by
	// FirstHeartbeat ascending (the order master election relies on).
	GetServers(ctx context.Context) ([]jobs.BackgroundJobServerStatus, error)
	// RemoveTimedOutServers deletes roster entries whose LastHeartbeat is
	// older than cutoff and returns the ids removed.
	RemoveTimedOutServers(ctx context.Context, cutoff time.Time) ([]string, error)

	// AddJobStatsChangeListener registers l, lazily starting the shared
	// notification ticker if this is the first listener of any kind.
	AddJobStatsChangeListener(l JobStatsChangeListener)
	// RemoveJobStatsChangeListener unregisters l, stopping the ticker if no
	// listener of any kind remains.
	RemoveJobStatsChangeListener(l JobStatsChangeListener)
	// AddJobChangeListener registers l, scoped to l.JobID().
	AddJobChangeListener(l JobChangeListener)
	// RemoveJobChangeListener unregisters l.
	RemoveJobChangeListener(l JobChangeListener)
	// AddServerStatusChangeListener registers l.
	AddServerStatusChangeListener(l BackgroundJobServerStatusChangeListener)
	// RemoveServerStatusChangeListener unregisters l.
	RemoveServerStatusChangeListener(l BackgroundJobServerStatusChangeListener)

	// Close releases any resources the provider holds (connections,
	// timers). Close must stop the notification ticker.
	Close() error
}
