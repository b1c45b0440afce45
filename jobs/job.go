package jobs

import (
	"fmt"
	"time"
)

// Job is the aggregate carrying an ordered, append-only history of
// JobState records. The last element of History is the job's current
// state. Version is incremented by exactly one on every persisted
// mutation; a StorageProvider rejects a save whose Version does not match
// the persisted value with a ConcurrentJobModification error.
type Job struct {
	ID             string         `json:"id"`
	Version        int64          `json:"version"`
	Details        JobDetails     `json:"jobDetails"`
	JobSignature   string         `json:"jobSignature"`
	RecurringJobID string         `json:"recurringJobId,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	History        []JobState     `json:"history"`
}

// NewScheduledJob builds a new Job whose sole history entry is SCHEDULED.
func NewScheduledJob(id string, details JobDetails, at time.Time, recurringJobID string) *Job {
	return &Job{
		ID:             id,
		Version:        1,
		Details:        details,
		JobSignature:   details.Signature(),
		RecurringJobID: recurringJobID,
		Metadata:       make(map[string]any),
		History:        []JobState{NewScheduledState(at, "")},
	}
}

// NewEnqueuedJob builds a new Job whose sole history entry is ENQUEUED.
func NewEnqueuedJob(id string, details JobDetails, at time.Time) *Job {
	return &Job{
		ID:           id,
		Version:      1,
		Details:      details,
		JobSignature: details.Signature(),
		Metadata:     make(map[string]any),
		History:      []JobState{NewEnqueuedState(at)},
	}
}

// Current returns the job's current state: the last element of History.
// Callers must never mutate the returned value's referenced slices; states
// are immutable once appended.
func (j *Job) Current() JobState {
	return j.History[len(j.History)-1]
}

// State is a convenience accessor for Current().Name.
func (j *Job) State() StateName {
	return j.Current().Name
}

// AppendState appends a new state to History and increments Version by
// one, enforcing the append-only invariant: existing entries are never
// rewritten, only added to.
func (j *Job) AppendState(s JobState) {
	j.History = append(j.History, s)
	j.Version++
}

// CountState returns how many times a given StateName appears in History,
// used by the default retry filter to compare against maxRetries.
func (j *Job) CountState(name StateName) int {
	n := 0
	for _, s := range j.History {
		if s.Name == name {
			n++
		}
	}
	return n
}

// Clone returns a deep-enough copy of the job for callers that need to
// mutate a working copy (e.g. a filter) without touching the shared
// in-memory record a StorageProvider may be holding.
func (j *Job) Clone() *Job {
	cp := *j
	cp.History = append([]JobState(nil), j.History...)
	cp.Metadata = make(map[string]any, len(j.Metadata))
	for k, v := range j.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

func (j *Job) String() string {
	return fmt.Sprintf("Job{id=%s, version=%d, state=%s}", j.ID, j.Version, j.State())
}

// RecurringJob materializes SCHEDULED occurrences on its CronExpression.
// Identity is caller-chosen or derived from the JobDetails signature.
type RecurringJob struct {
	ID      string     `json:"id"`
	Version int64      `json:"version"`
	Details JobDetails `json:"jobDetails"`
	Cron    string     `json:"cronExpression"`
	Zone    string     `json:"zoneId"`
}

// BackgroundJobServerStatus is the roster entry a server announces and
// periodically refreshes so peers can evaluate master election and orphan
// detection against it.
type BackgroundJobServerStatus struct {
	ID                  string    `json:"id"`
	WorkerPoolSize      int       `json:"workerPoolSize"`
	PollIntervalSeconds int       `json:"pollIntervalSeconds"`
	FirstHeartbeat      time.Time `json:"firstHeartbeat"`
	LastHeartbeat       time.Time `json:"lastHeartbeat"`
	IsRunning           bool      `json:"isRunning"`
	FreeMemoryMB        int64     `json:"freeMemoryMb"`
	CPULoad             float64   `json:"cpuLoad"`
	ProcessLoad         float64   `json:"processLoad"`
}

// JobStats carries the current count per state plus a lifetime succeeded
// counter persisted as a running total across retention sweeps.
type JobStats struct {
	Scheduled          int64 `json:"scheduled"`
	Enqueued           int64 `json:"enqueued"`
	Processing         int64 `json:"processing"`
	Succeeded          int64 `json:"succeeded"`
	Failed             int64 `json:"failed"`
	Deleted            int64 `json:"deleted"`
	SucceededLifetime  int64 `json:"succeededLifetime"`
}

// PageRequest bounds a paginated StorageProvider query: Offset/Limit over
// results ordered by the query's natural sort key, ascending.
type PageRequest struct {
	Offset int
	Limit  int
}
