// Package workers implements the fixed-size worker pool a BackgroundJobServer
// submits PROCESSING jobs to, and the WorkDistributionStrategy used to size
// each enqueued-work pull against the pool's free capacity.
package workers

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/daniiell3/jobrunr/collections"
	"github.com/daniiell3/jobrunr/jobs"
	"github.com/daniiell3/jobrunr/l3"
)

var logger = l3.Get()

// JobRunner is the dispatch-resolved callable a Pool invokes for one job.
// It returns the job's proposed final state (SUCCEEDED or FAILED), not yet
// appended to the job's history: CompletionHandler decides whether a filter
// overrides it (e.g. FAILED -> a retry's SCHEDULED) before persisting.
type JobRunner func(ctx context.Context, job *jobs.Job) jobs.JobState

// CompletionHandler is invoked once a worker finishes running a job, with
// the raw state JobRunner proposed. It is responsible for running
// onStateElection filters, appending the elected state, and persisting the
// result; the pool itself never touches storage.
type CompletionHandler func(ctx context.Context, job *jobs.Job, proposed jobs.JobState)

// IdleNotifier is invoked once a worker finishes a job and is free again.
// The coordinator wires this to its opportunistic enqueued-work pull.
type IdleNotifier func()

// Pool is a fixed-size collection of worker goroutines draining a single
// logical queue; there is no priority lane or fairness strategy between
// submitted jobs; jobs run in the order they are submitted, bounded only by
// how many workers are free.
type Pool struct {
	size     int
	run        JobRunner
	onComplete CompletionHandler
	onIdle     IdleNotifier
	queue      chan *jobs.Job
	inFlight   *collections.SyncSet[string]

	wg       sync.WaitGroup
	submitted int64
	completed int64

	closeOnce sync.Once
	done      chan struct{}
}

// New returns a Pool of size worker goroutines, not yet started. run is
// invoked for every submitted job; onComplete receives its proposed final
// state for filtering and persistence; onIdle fires after each job
// completes (success or failure) once the worker has released the job.
func New(size int, run JobRunner, onComplete CompletionHandler, onIdle IdleNotifier) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		size:       size,
		run:        run,
		onComplete: onComplete,
		onIdle:     onIdle,
		queue:      make(chan *jobs.Job, size),
		inFlight:   collections.NewSyncSet[string](),
		done:       make(chan struct{}),
	}
}

// SetCompletionHandler replaces the pool's CompletionHandler. Must be
// called before Start; it exists so an owner can wire a completion handler
// that itself needs a reference to this Pool (constructed after it).
func (p *Pool) SetCompletionHandler(h CompletionHandler) { p.onComplete = h }

// SetIdleNotifier replaces the pool's IdleNotifier. Must be called before
// Start, for the same forward-reference reason as SetCompletionHandler.
func (p *Pool) SetIdleNotifier(n IdleNotifier) { p.onIdle = n }

// Start launches the pool's worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	logger.InfoF("worker pool started with %d workers", p.size)
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			p.runOne(ctx, job)
		}
	}
}

func (p *Pool) runOne(ctx context.Context, job *jobs.Job) {
	p.inFlight.Add(job.ID)
	defer func() {
		p.inFlight.Remove(job.ID)
		atomic.AddInt64(&p.completed, 1)
		if p.onIdle != nil {
			p.onIdle()
		}
	}()
	proposed := p.run(ctx, job)
	if p.onComplete != nil {
		p.onComplete(ctx, job, proposed)
	} else {
		job.AppendState(proposed)
	}
}

// Submit enqueues job for execution, returning false if the pool has no
// free capacity right now (the caller should stop pulling more work this
// tick rather than block).
func (p *Pool) Submit(job *jobs.Job) bool {
	select {
	case p.queue <- job:
		atomic.AddInt64(&p.submitted, 1)
		return true
	default:
		return false
	}
}

// FreeCapacity reports how many additional jobs can be submitted right now
// without blocking: the queue's remaining buffer space.
func (p *Pool) FreeCapacity() int {
	return cap(p.queue) - len(p.queue)
}

// Size returns the configured worker count.
func (p *Pool) Size() int { return p.size }

// InFlight reports the ids of jobs currently being executed by a worker,
// used by the coordinator's heartbeat sweep.
func (p *Pool) InFlight() []string {
	it := p.inFlight.Iterator()
	out := make([]string, 0, p.inFlight.Size())
	for it.HasNext() {
		out = append(out, it.Next())
	}
	return out
}

// Stop signals workers to stop taking new jobs and waits up to the grace
// period for in-flight jobs to finish before returning. Jobs still running
// past the grace period are left in PROCESSING for the next master tick's
// orphan sweep to reclaim.
func (p *Pool) Stop(grace chan struct{}) {
	p.closeOnce.Do(func() { close(p.done) })
	waited := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-grace:
		logger.Warn("worker pool stop grace period elapsed with jobs still in flight")
	}
}

// Stats returns cumulative submitted/completed counters, used for metrics
// and tests.
func (p *Pool) Stats() (submitted, completed int64) {
	return atomic.LoadInt64(&p.submitted), atomic.LoadInt64(&p.completed)
}
