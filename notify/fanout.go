// Package notify implements the change-notification fan-out shared by every
// StorageProvider backend: a single lazily-started ticker that snapshots
// job stats, the server roster, and individually-watched jobs, and pushes
// them to whatever listeners are currently registered.
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/daniiell3/jobrunr/jobs"
	"github.com/daniiell3/jobrunr/l3"
	"github.com/daniiell3/jobrunr/ratelimit"
)

var logger = l3.Get()

const (
	tickInitialDelay = 3 * time.Second
	tickPeriod       = 5 * time.Second
)

// JobStatsChangeListener is notified with the latest JobStats snapshot on
// the shared fan-out ticker.
type JobStatsChangeListener interface {
	OnChange(stats jobs.JobStats)
}

// JobChangeListener is notified on every fan-out tick with the current
// snapshot of its watched job.
type JobChangeListener interface {
	JobID() string
	OnChange(job *jobs.Job)
}

// BackgroundJobServerStatusChangeListener is notified with the current
// server roster on the shared fan-out ticker.
type BackgroundJobServerStatusChangeListener interface {
	OnChange(servers []jobs.BackgroundJobServerStatus)
}

// StatsSnapshotFunc produces the current JobStats, called once per tick.
type StatsSnapshotFunc func() jobs.JobStats

// ServersSnapshotFunc produces the current server roster, called once per
// tick.
type ServersSnapshotFunc func() []jobs.BackgroundJobServerStatus

// JobSnapshotFunc looks up a single job by id, called once per tick per
// registered JobChangeListener.
type JobSnapshotFunc func(id string) (*jobs.Job, bool)

// Fanout is embedded by a StorageProvider implementation to give it the
// shared listener-registration and ticker behavior: the timer starts on
// first registration of any kind and stops once the last listener of every
// kind is removed, matching the teacher's local_provider dispatch idiom of
// snapshotting listeners under lock before calling out to them so a slow
// listener never blocks registration.
type Fanout struct {
	StatsFn   StatsSnapshotFunc
	ServersFn ServersSnapshotFunc
	JobFn     JobSnapshotFunc

	// Limiter throttles how often a JobStats snapshot is actually computed
	// and dispatched; nil disables throttling.
	Limiter *ratelimit.RateLimiter

	mu              sync.Mutex
	statsListeners  map[JobStatsChangeListener]struct{}
	jobListeners    map[JobChangeListener]struct{}
	serverListeners map[BackgroundJobServerStatusChangeListener]struct{}

	ticker *time.Ticker
	stop   chan struct{}
	inTick int32
}

func (f *Fanout) lazyInit() {
	if f.statsListeners == nil {
		f.statsListeners = make(map[JobStatsChangeListener]struct{})
	}
	if f.jobListeners == nil {
		f.jobListeners = make(map[JobChangeListener]struct{})
	}
	if f.serverListeners == nil {
		f.serverListeners = make(map[BackgroundJobServerStatusChangeListener]struct{})
	}
}

func (f *Fanout) listenerCount() int {
	return len(f.statsListeners) + len(f.jobListeners) + len(f.serverListeners)
}

// AddJobStatsChangeListener registers l and starts the ticker if needed.
func (f *Fanout) AddJobStatsChangeListener(l JobStatsChangeListener) {
	f.mu.Lock()
	f.lazyInit()
	f.statsListeners[l] = struct{}{}
	f.startLocked()
	f.mu.Unlock()
}

// RemoveJobStatsChangeListener unregisters l and stops the ticker if it was
// the last listener of any kind.
func (f *Fanout) RemoveJobStatsChangeListener(l JobStatsChangeListener) {
	f.mu.Lock()
	delete(f.statsListeners, l)
	f.stopIfIdleLocked()
	f.mu.Unlock()
}

// AddJobChangeListener registers l and starts the ticker if needed.
func (f *Fanout) AddJobChangeListener(l JobChangeListener) {
	f.mu.Lock()
	f.lazyInit()
	f.jobListeners[l] = struct{}{}
	f.startLocked()
	f.mu.Unlock()
}

// RemoveJobChangeListener unregisters l.
func (f *Fanout) RemoveJobChangeListener(l JobChangeListener) {
	f.mu.Lock()
	delete(f.jobListeners, l)
	f.stopIfIdleLocked()
	f.mu.Unlock()
}

// AddServerStatusChangeListener registers l and starts the ticker if needed.
func (f *Fanout) AddServerStatusChangeListener(l BackgroundJobServerStatusChangeListener) {
	f.mu.Lock()
	f.lazyInit()
	f.serverListeners[l] = struct{}{}
	f.startLocked()
	f.mu.Unlock()
}

// RemoveServerStatusChangeListener unregisters l.
func (f *Fanout) RemoveServerStatusChangeListener(l BackgroundJobServerStatusChangeListener) {
	f.mu.Lock()
	delete(f.serverListeners, l)
	f.stopIfIdleLocked()
	f.mu.Unlock()
}

// startLocked starts the ticker goroutine if it is not already running.
// Caller must hold f.mu.
func (f *Fanout) startLocked() {
	if f.ticker != nil {
		return
	}
	f.ticker = time.NewTicker(tickPeriod)
	f.stop = make(chan struct{})
	go f.run(f.ticker, f.stop)
}

// stopIfIdleLocked stops the ticker once every listener has unregistered.
// Caller must hold f.mu.
func (f *Fanout) stopIfIdleLocked() {
	if f.listenerCount() > 0 || f.ticker == nil {
		return
	}
	f.ticker.Stop()
	close(f.stop)
	f.ticker = nil
	f.stop = nil
}

func (f *Fanout) run(ticker *time.Ticker, stop chan struct{}) {
	timer := time.NewTimer(tickInitialDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		f.tick()
	case <-stop:
		return
	}
	for {
		select {
		case <-ticker.C:
			f.tick()
		case <-stop:
			return
		}
	}
}

// tick runs one notification pass. A CompareAndSwap guard prevents overlap
// if a slow dispatch is still running when the next period elapses.
func (f *Fanout) tick() {
	if !atomic.CompareAndSwapInt32(&f.inTick, 0, 1) {
		logger.Debug("notify: skipping tick, previous dispatch still in flight")
		return
	}
	defer atomic.StoreInt32(&f.inTick, 0)

	f.mu.Lock()
	stats := make([]JobStatsChangeListener, 0, len(f.statsListeners))
	for l := range f.statsListeners {
		stats = append(stats, l)
	}
	jl := make([]JobChangeListener, 0, len(f.jobListeners))
	for l := range f.jobListeners {
		jl = append(jl, l)
	}
	sl := make([]BackgroundJobServerStatusChangeListener, 0, len(f.serverListeners))
	for l := range f.serverListeners {
		sl = append(sl, l)
	}
	f.mu.Unlock()

	if len(stats) > 0 && f.StatsFn != nil && (f.Limiter == nil || f.Limiter.Allow()) {
		snapshot := f.StatsFn()
		for _, l := range stats {
			notifyGuarded(func() { l.OnChange(snapshot) })
		}
	}

	if len(jl) > 0 && f.JobFn != nil {
		for _, l := range jl {
			job, ok := f.JobFn(l.JobID())
			if !ok {
				f.RemoveJobChangeListener(l)
				continue
			}
			notifyGuarded(func() { l.OnChange(job) })
		}
	}

	if len(sl) > 0 && f.ServersFn != nil {
		snapshot := f.ServersFn()
		for _, l := range sl {
			notifyGuarded(func() { l.OnChange(snapshot) })
		}
	}
}

// notifyGuarded runs f, recovering and logging any panic so one misbehaving
// listener can never take down the shared fan-out goroutine or stop other
// listeners from being notified. A listener that repeatedly panics stays
// registered; it is the caller's responsibility to unregister it.
func notifyGuarded(f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorF("notify: recovered from panic in listener callback: %v", r)
		}
	}()
	f()
}

// Close stops the ticker unconditionally, ignoring the listener count. The
// embedding StorageProvider calls this from its own Close.
func (f *Fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ticker != nil {
		f.ticker.Stop()
		close(f.stop)
		f.ticker = nil
		f.stop = nil
	}
	return nil
}
