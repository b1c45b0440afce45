package zookeeper

import (
	"context"
	"time"

	"github.com/daniiell3/jobrunr/jobs"
	"github.com/daniiell3/jobrunr/storage"
)

const pageSize = 1000

// runMasterTasks executes the master-only bulk transitions in order, each
// independently resilient to ConcurrentJobModification. A newly materialized
// recurring job occurrence or newly enqueued job is visible to this same
// tick's enqueued-work pull, since master tasks run before it.
func (z *JobZooKeeper) runMasterTasks(ctx context.Context) {
	z.materializeRecurringJobs(ctx)
	z.enqueueScheduledJobsDue(ctx)
	z.failOrphanedJobs(ctx)
	z.purgeSucceeded(ctx)
	z.purgeDeleted(ctx)
	z.purgeOrphanedRecurringOccurrences(ctx)
}

// materializeRecurringJobs lists every RecurringJob and, if no job with its
// signature is currently SCHEDULED, ENQUEUED, or PROCESSING, schedules one
// fresh occurrence at its next cron instant.
func (z *JobZooKeeper) materializeRecurringJobs(ctx context.Context) {
	recurring, err := z.Storage.GetRecurringJobs(ctx)
	if err != nil {
		z.countException()
		logger.ErrorF("zookeeper: GetRecurringJobs failed: %v", err)
		return
	}
	now := z.Clock.Now()
	var batch []*jobs.Job
	for _, rj := range recurring {
		sig := rj.Details.Signature()
		exists, err := z.Storage.Exists(ctx, sig, storage.StateFilter{jobs.Scheduled, jobs.Enqueued, jobs.Processing})
		if err != nil {
			z.countException()
			logger.ErrorF("zookeeper: Exists failed for recurring job %s: %v", rj.ID, err)
			continue
		}
		if exists {
			continue
		}
		loc, err := time.LoadLocation(rj.Zone)
		if err != nil {
			loc = time.UTC
		}
		next := z.cronNextInstant(rj.Cron, now, loc)
		job := jobs.NewScheduledJob(newJobID(), rj.Details, next, rj.ID)
		batch = append(batch, job)
	}
	z.saveWithResolution(ctx, batch)
}

// enqueueScheduledJobsDue pages through SCHEDULED jobs due within the next
// poll interval until the page comes back empty, transitioning each batch
// to ENQUEUED.
func (z *JobZooKeeper) enqueueScheduledJobsDue(ctx context.Context) {
	due := z.Clock.Now().Add(z.PollInterval)
	for {
		page, err := z.Storage.GetScheduledJobs(ctx, due, jobs.PageRequest{Limit: pageSize})
		if err != nil {
			z.countException()
			logger.ErrorF("zookeeper: GetScheduledJobs failed: %v", err)
			return
		}
		if len(page) == 0 {
			return
		}
		for _, j := range page {
			elected := z.applyFilters(j, jobs.NewEnqueuedState(z.Clock.Now()))
			j.AppendState(elected)
		}
		z.saveWithResolution(ctx, page)
	}
}

// failOrphanedJobs pages through PROCESSING jobs whose heartbeat has gone
// stale (older than 4x the poll interval) and transitions them to FAILED;
// the retry filter decides whether they get rescheduled.
func (z *JobZooKeeper) failOrphanedJobs(ctx context.Context) {
	cutoff := z.Clock.Now().Add(-orphanMultiplier * z.PollInterval)
	for {
		page, err := z.Storage.GetJobs(ctx, storage.StateFilter{jobs.Processing}, cutoff, jobs.PageRequest{Limit: pageSize})
		if err != nil {
			z.countException()
			logger.ErrorF("zookeeper: GetJobs(PROCESSING) failed: %v", err)
			return
		}
		if len(page) == 0 {
			return
		}
		for _, j := range page {
			failed := jobs.NewFailedState(z.Clock.Now(), "", "Orphaned job", "")
			elected := z.applyFilters(j, failed)
			j.AppendState(elected)
		}
		z.saveWithResolution(ctx, page)
	}
}

// purgeSucceeded pages through SUCCEEDED jobs older than the retention
// window and transitions them to DELETED, publishing the removed count to
// the lifetime succeeded counter.
func (z *JobZooKeeper) purgeSucceeded(ctx context.Context) {
	cutoff := z.Clock.Now().Add(-succeededRetention)
	for {
		page, err := z.Storage.GetJobs(ctx, storage.StateFilter{jobs.Succeeded}, cutoff, jobs.PageRequest{Limit: pageSize})
		if err != nil {
			z.countException()
			logger.ErrorF("zookeeper: GetJobs(SUCCEEDED) failed: %v", err)
			return
		}
		if len(page) == 0 {
			return
		}
		for _, j := range page {
			j.AppendState(jobs.NewDeletedState(z.Clock.Now(), "Succeeded job retention"))
		}
		saved := z.saveWithResolution(ctx, page)
		if len(saved) == 0 {
			continue
		}
		if err := z.Storage.PublishJobStatCounter(ctx, int64(len(saved))); err != nil {
			z.countException()
			logger.ErrorF("zookeeper: PublishJobStatCounter failed: %v", err)
		}
	}
}

// purgeDeleted physically removes DELETED jobs older than the deleted
// retention window.
func (z *JobZooKeeper) purgeDeleted(ctx context.Context) {
	cutoff := z.Clock.Now().Add(-deletedRetention)
	n, err := z.Storage.DeleteJobs(ctx, storage.StateFilter{jobs.Deleted}, cutoff)
	if err != nil {
		z.countException()
		logger.ErrorF("zookeeper: DeleteJobs(DELETED) failed: %v", err)
		return
	}
	if n > 0 {
		logger.InfoF("zookeeper: purged %d deleted job(s)", n)
	}
}

// MarkRecurringJobForPurge queues recurringJobID for
// purgeOrphanedRecurringOccurrences on the next master tick, called when a
// RecurringJob definition is deleted so its already-materialized SCHEDULED
// occurrences do not fire after the definition is gone.
func (z *JobZooKeeper) MarkRecurringJobForPurge(recurringJobID string) {
	z.purgeRecurringIDs.Store(recurringJobID, struct{}{})
}

// purgeOrphanedRecurringOccurrences deletes SCHEDULED occurrences whose
// RecurringJobID was marked by MarkRecurringJobForPurge, run once per
// marked id rather than every tick.
func (z *JobZooKeeper) purgeOrphanedRecurringOccurrences(ctx context.Context) {
	var ids []string
	z.purgeRecurringIDs.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	if len(ids) == 0 {
		return
	}
	for {
		page, err := z.Storage.GetJobs(ctx, storage.StateFilter{jobs.Scheduled}, time.Time{}, jobs.PageRequest{Limit: pageSize})
		if err != nil {
			z.countException()
			logger.ErrorF("zookeeper: GetJobs(SCHEDULED) for recurring purge failed: %v", err)
			break
		}
		if len(page) == 0 {
			break
		}
		var toDelete []*jobs.Job
		for _, j := range page {
			if j.RecurringJobID != "" && containsID(ids, j.RecurringJobID) {
				toDelete = append(toDelete, j)
			}
		}
		if len(toDelete) == 0 {
			break
		}
		for _, j := range toDelete {
			j.AppendState(jobs.NewDeletedState(z.Clock.Now(), "Orphaned recurring occurrence"))
		}
		z.saveWithResolution(ctx, toDelete)
		if len(toDelete) < len(page) {
			break
		}
	}
	for _, id := range ids {
		z.purgeRecurringIDs.Delete(id)
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
