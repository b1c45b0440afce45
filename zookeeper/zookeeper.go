// Package zookeeper implements the coordinator driving one server's job
// state machine forward: master-only bulk transitions (recurring-job
// materialization, scheduled-jobs-due, orphan detection, retention), every
// server's processing heartbeats, and the enqueued-work pull that feeds the
// local worker pool.
package zookeeper

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/daniiell3/jobrunr/chrono"
	"github.com/daniiell3/jobrunr/errs"
	"github.com/daniiell3/jobrunr/filters"
	"github.com/daniiell3/jobrunr/jobs"
	"github.com/daniiell3/jobrunr/l3"
	"github.com/daniiell3/jobrunr/storage"
	"github.com/daniiell3/jobrunr/workers"
)

var logger = l3.Get()

const (
	succeededRetention = 36 * time.Hour
	deletedRetention   = 72 * time.Hour
	orphanMultiplier   = 4
	maxWarnExceptions  = 5
)

// JobZooKeeper is the per-server coordinator. One instance is owned by
// exactly one BackgroundJobServer.
type JobZooKeeper struct {
	ServerID     string
	Storage      storage.StorageProvider
	Pool         *workers.Pool
	Distribution workers.WorkDistributionStrategy
	Filters      []filters.JobFilters
	Resolver     filters.ConcurrentJobModificationResolver
	PollInterval time.Duration
	Clock        chrono.Clock

	initialized int32 // atomic bool, set once Start is called

	tickInFlight int32 // atomic CAS guard: at most one tick in flight
	pullLock     int32 // atomic CAS guard: tryLock for the enqueued-work pull

	isMaster       int32 // atomic bool
	exceptionCount int64 // atomic counter

	purgeRecurringIDs sync.Map // ids pending purgeOrphanedRecurringOccurrences
}

// New returns a JobZooKeeper with Clock set to chrono.SystemClock{} and
// Resolver set to filters.DefaultResolver{}; callers may replace either
// field afterwards.
func New(serverID string, store storage.StorageProvider, pool *workers.Pool, dist workers.WorkDistributionStrategy, pollInterval time.Duration) *JobZooKeeper {
	return &JobZooKeeper{
		ServerID:     serverID,
		Storage:      store,
		Pool:         pool,
		Distribution: dist,
		Resolver:     filters.DefaultResolver{},
		PollInterval: pollInterval,
		Clock:        chrono.SystemClock{},
	}
}

// Start marks the coordinator ready to run ticks. Until Start is called,
// Tick is a no-op (step 1 of the tick procedure).
func (z *JobZooKeeper) Start() {
	atomic.StoreInt32(&z.initialized, 1)
}

// Stop marks the coordinator as no longer initialized; in-flight ticks
// complete, future Tick calls return immediately.
func (z *JobZooKeeper) Stop() {
	atomic.StoreInt32(&z.initialized, 0)
}

// SetMaster is called by the server's master-election loop (run separately,
// §4.9) to flip this server's mastership flag.
func (z *JobZooKeeper) SetMaster(master bool) {
	atomic.StoreInt32(&z.isMaster, boolToInt32(master))
}

// IsMaster reports whether this server currently believes it is master.
func (z *JobZooKeeper) IsMaster() bool {
	return atomic.LoadInt32(&z.isMaster) == 1
}

// ExceptionCount returns the cumulative count of ticks that caught an
// exception, used by the server to decide when to shut itself down.
func (z *JobZooKeeper) ExceptionCount() int64 {
	return atomic.LoadInt64(&z.exceptionCount)
}

// Tick runs one coordinator iteration. It never blocks waiting for another
// tick: if one is already in flight, this call returns immediately.
func (z *JobZooKeeper) Tick(ctx context.Context) {
	if atomic.LoadInt32(&z.initialized) == 0 {
		return
	}
	if !atomic.CompareAndSwapInt32(&z.tickInFlight, 0, 1) {
		logger.Debug("zookeeper: previous tick still running, skipping")
		return
	}
	defer atomic.StoreInt32(&z.tickInFlight, 0)

	z.runGuarded(func() {
		if z.canOnboardNewWork() && z.IsMaster() {
			z.runMasterTasks(ctx)
		}
	})
	z.runGuarded(func() {
		z.heartbeatProcessingJobs(ctx)
	})
	if z.canOnboardNewWork() {
		z.runGuarded(func() {
			z.pullEnqueuedWork(ctx)
		})
	}
}

// NotifyThreadIdle is the worker pool's idle callback: it opportunistically
// triggers an enqueued-work pull outside the regular poll-interval cadence.
// The tryLock inside pullEnqueuedWork makes concurrent calls from multiple
// idle workers safe.
func (z *JobZooKeeper) NotifyThreadIdle(ctx context.Context) {
	if atomic.LoadInt32(&z.initialized) == 0 || !z.canOnboardNewWork() {
		return
	}
	z.runGuarded(func() { z.pullEnqueuedWork(ctx) })
}

// NotifyThreadIdleFunc returns a workers.IdleNotifier bound to this
// coordinator's NotifyThreadIdle, using context.Background() since a
// worker's idle signal is not scoped to any single job's context.
func (z *JobZooKeeper) NotifyThreadIdleFunc() func() {
	return func() { z.NotifyThreadIdle(context.Background()) }
}

// runGuarded invokes f, catching any panic as an exception in the same
// spirit as the tick procedure catching every storage/filter error: the
// first maxWarnExceptions are logged as warnings, the next one shuts the
// server down by leaving exceptionCount elevated for the server to observe.
func (z *JobZooKeeper) runGuarded(f func()) {
	defer func() {
		if r := recover(); r != nil {
			z.countException()
			logger.ErrorF("zookeeper: recovered from panic: %v", r)
		}
	}()
	f()
}

func (z *JobZooKeeper) countException() {
	n := atomic.AddInt64(&z.exceptionCount, 1)
	if n <= maxWarnExceptions {
		logger.WarnF("zookeeper: tick exception #%d", n)
	} else {
		logger.ErrorF("zookeeper: exception count %d exceeds threshold, server should shut down", n)
	}
}

// canOnboardNewWork reports whether this server is running and the local
// worker pool has free capacity.
func (z *JobZooKeeper) canOnboardNewWork() bool {
	return atomic.LoadInt32(&z.initialized) == 1 && z.Pool.FreeCapacity() > 0
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// applyFilters runs onStateElection across every registered filter in
// order, letting each subsequent filter see the previous one's result.
func (z *JobZooKeeper) applyFilters(job *jobs.Job, elected jobs.JobState) jobs.JobState {
	for _, f := range z.Filters {
		elected = f.OnStateElection(job, elected)
	}
	return elected
}

func (z *JobZooKeeper) notifyFiltersApplied(job *jobs.Job, applied jobs.JobState) {
	for _, f := range z.Filters {
		f.OnStateApplied(job, applied)
	}
}

// saveWithResolution calls Storage.SaveAll, and on ConcurrentJobModification
// consults the Resolver per conflicting pair, dropping or retrying the
// batch as directed. It returns the jobs that were ultimately persisted.
func (z *JobZooKeeper) saveWithResolution(ctx context.Context, batch []*jobs.Job) []*jobs.Job {
	for attempt := 0; attempt < 2; attempt++ {
		if len(batch) == 0 {
			return nil
		}
		err := z.Storage.SaveAll(ctx, batch)
		if err == nil {
			for _, j := range batch {
				z.notifyFiltersApplied(j, j.Current())
			}
			return batch
		}
		cjm, ok := errs.AsConcurrentJobModification(err)
		if !ok {
			z.countException()
			logger.ErrorF("zookeeper: unexpected save error: %v", err)
			return nil
		}
		dropped := make(map[string]bool, len(cjm.Conflicts))
		refreshedVersion := make(map[string]int64, len(cjm.Conflicts))
		fatal := false
		for _, c := range cjm.Conflicts {
			switch z.Resolver.Resolve(c) {
			case filters.Fatal:
				fatal = true
			case filters.Allow:
				refreshedVersion[c.Local.ID] = c.Remote.Version
			case filters.RetryTick:
				dropped[c.Local.ID] = true
			}
		}
		if fatal {
			z.countException()
			logger.ErrorF("zookeeper: fatal concurrent modification on %d job(s)", len(cjm.Conflicts))
			return nil
		}
		next := make([]*jobs.Job, 0, len(batch))
		for _, j := range batch {
			if dropped[j.ID] {
				continue
			}
			if v, ok := refreshedVersion[j.ID]; ok {
				j.Version = v
			}
			next = append(next, j)
		}
		batch = next
	}
	return nil
}
