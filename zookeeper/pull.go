package zookeeper

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/daniiell3/jobrunr/jobs"
	"github.com/daniiell3/jobrunr/storage"
)

// pullEnqueuedWork asks the WorkDistributionStrategy for a page of ENQUEUED
// jobs and submits each to the worker pool, transitioning it to PROCESSING
// as the moment of acquisition. Guarded by a tryLock so a concurrent call
// from the idle-worker callback never races with the tick's own pull.
func (z *JobZooKeeper) pullEnqueuedWork(ctx context.Context) {
	if !z.tryLockPull() {
		return
	}
	defer z.unlockPull()

	page := z.Distribution.GetWorkPageRequest()
	if page.Limit == 0 {
		return
	}
	due, err := z.Storage.GetJobs(ctx, storage.StateFilter{jobs.Enqueued}, time.Time{}, page)
	if err != nil {
		z.countException()
		logger.ErrorF("zookeeper: GetJobs(ENQUEUED) failed: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}
	for _, j := range due {
		processing := jobs.NewProcessingState(z.ServerID, z.Clock.Now())
		elected := z.applyFilters(j, processing)
		j.AppendState(elected)
	}
	saved := z.saveWithResolution(ctx, due)
	for _, j := range saved {
		if !z.Pool.Submit(j) {
			logger.WarnF("zookeeper: worker pool rejected job %s despite reported free capacity", j.ID)
		}
	}
}

func (z *JobZooKeeper) tryLockPull() bool {
	return atomic.CompareAndSwapInt32(&z.pullLock, 0, 1)
}

func (z *JobZooKeeper) unlockPull() {
	atomic.StoreInt32(&z.pullLock, 0)
}
