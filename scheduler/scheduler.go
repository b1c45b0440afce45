// Package scheduler is the application-facing entry point for submitting
// work: Enqueue, Schedule, and ScheduleRecurringly each write a single
// record to a StorageProvider and return. None of them run a timer of
// their own; materializing SCHEDULED occurrences and picking up ENQUEUED
// jobs is the coordinator's job, not this package's.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/daniiell3/jobrunr/jobs"
	"github.com/daniiell3/jobrunr/storage"
	"github.com/daniiell3/jobrunr/uuid"
)

// JobScheduler is a thin wrapper around a StorageProvider: every method
// builds a Job or RecurringJob record and saves it, leaving state-machine
// progression entirely to the coordinator.
type JobScheduler struct {
	Storage storage.StorageProvider
}

// New returns a JobScheduler backed by store.
func New(store storage.StorageProvider) *JobScheduler {
	return &JobScheduler{Storage: store}
}

// Enqueue creates a new job in the ENQUEUED state, available for immediate
// pickup by any server's next enqueued-work pull.
func (s *JobScheduler) Enqueue(ctx context.Context, details jobs.JobDetails) (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}
	job := jobs.NewEnqueuedJob(id, details, time.Now())
	if err := s.Storage.Save(ctx, job); err != nil {
		return "", err
	}
	return id, nil
}

// Schedule creates a new job in the SCHEDULED state, due at the given
// instant. A master's enqueueScheduledJobsDue task transitions it to
// ENQUEUED once it comes due.
func (s *JobScheduler) Schedule(ctx context.Context, details jobs.JobDetails, at time.Time) (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}
	job := jobs.NewScheduledJob(id, details, at, "")
	if err := s.Storage.Save(ctx, job); err != nil {
		return "", err
	}
	return id, nil
}

// ScheduleRecurringly registers (or replaces, on a matching id) a
// RecurringJob definition on a cron expression, interpreted in the given
// IANA zone. A master's materializeRecurringJobs task is solely
// responsible for turning this definition into SCHEDULED occurrences; this
// call itself never creates a Job.
func (s *JobScheduler) ScheduleRecurringly(ctx context.Context, id string, details jobs.JobDetails, cronExpression, zone string) (string, error) {
	if id == "" {
		var err error
		id, err = newID()
		if err != nil {
			return "", err
		}
	}
	if zone == "" {
		zone = "UTC"
	}
	rj := &jobs.RecurringJob{
		ID:      id,
		Version: 1,
		Details: details,
		Cron:    cronExpression,
		Zone:    zone,
	}
	if err := s.Storage.SaveRecurringJob(ctx, rj); err != nil {
		return "", err
	}
	return id, nil
}

// DeleteRecurringJob removes a recurring job's definition. Any SCHEDULED
// occurrence it already materialized is left to purgeOrphanedRecurringOccurrences
// (marked via zookeeper.MarkRecurringJobForPurge) rather than deleted here,
// since this package has no coordinator reference to drive that sweep.
func (s *JobScheduler) DeleteRecurringJob(ctx context.Context, id string) error {
	return s.Storage.DeleteRecurringJob(ctx, id)
}

// JobStats returns a point-in-time snapshot of job counts per state.
func (s *JobScheduler) JobStats(ctx context.Context) (jobs.JobStats, error) {
	return s.Storage.GetJobStats(ctx)
}

func newID() (string, error) {
	id, err := uuid.V4()
	if err != nil {
		return "", fmt.Errorf("scheduler: generating job id: %w", err)
	}
	return id.String(), nil
}
