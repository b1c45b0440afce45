package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/daniiell3/jobrunr/errs"
	"github.com/daniiell3/jobrunr/jobs"
	"github.com/daniiell3/jobrunr/l3"
	"github.com/daniiell3/jobrunr/notify"
)

var logger = l3.Get()

// InMemoryStorage is a map-backed StorageProvider guarded by a single
// sync.RWMutex, copying on every read and write so callers never observe a
// partially-mutated Job. It is the default backend wired by cmd/jobrunrd
// and is used throughout the test suite; storage/pgstore provides the
// durable alternative against the same contract.
type InMemoryStorage struct {
	mu sync.RWMutex

	jobsByID    map[string]*jobs.Job
	recurring   map[string]*jobs.RecurringJob
	servers     map[string]jobs.BackgroundJobServerStatus
	succeededLT int64

	notify.Fanout
}

var _ StorageProvider = (*InMemoryStorage)(nil)

// NewInMemoryStorage returns an empty InMemoryStorage ready for use.
func NewInMemoryStorage() *InMemoryStorage {
	s := &InMemoryStorage{
		jobsByID:  make(map[string]*jobs.Job),
		recurring: make(map[string]*jobs.RecurringJob),
		servers:   make(map[string]jobs.BackgroundJobServerStatus),
	}
	s.Fanout.StatsFn = s.snapshotStats
	s.Fanout.ServersFn = s.snapshotServers
	s.Fanout.JobFn = s.snapshotJob
	return s
}

func (s *InMemoryStorage) snapshotStats() jobs.JobStats {
	stats, _ := s.GetJobStats(context.Background())
	return stats
}

func (s *InMemoryStorage) snapshotServers() []jobs.BackgroundJobServerStatus {
	servers, _ := s.GetServers(context.Background())
	return servers
}

func (s *InMemoryStorage) snapshotJob(id string) (*jobs.Job, bool) {
	job, err := s.GetJobByID(context.Background(), id)
	if err != nil {
		return nil, false
	}
	return job, true
}

// Save implements StorageProvider.
func (s *InMemoryStorage) Save(_ context.Context, job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersionLocked(job); err != nil {
		return err
	}
	s.jobsByID[job.ID] = job.Clone()
	return nil
}

// SaveAll implements StorageProvider.
func (s *InMemoryStorage) SaveAll(_ context.Context, batch []*jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var conflicts []errs.Conflict
	for _, job := range batch {
		if err := s.checkVersionLocked(job); err != nil {
			if cjm, ok := errs.AsConcurrentJobModification(err); ok {
				conflicts = append(conflicts, cjm.Conflicts...)
			}
		}
	}
	if len(conflicts) > 0 {
		return &errs.ConcurrentJobModification{Conflicts: conflicts}
	}
	for _, job := range batch {
		s.jobsByID[job.ID] = job.Clone()
	}
	return nil
}

// checkVersionLocked enforces optimistic concurrency. Caller must hold
// s.mu for writing.
func (s *InMemoryStorage) checkVersionLocked(job *jobs.Job) error {
	existing, ok := s.jobsByID[job.ID]
	if !ok {
		return nil
	}
	if existing.Version != job.Version-1 {
		return &errs.ConcurrentJobModification{
			Conflicts: []errs.Conflict{{Local: job.Clone(), Remote: existing.Clone()}},
		}
	}
	return nil
}

// GetJobByID implements StorageProvider.
func (s *InMemoryStorage) GetJobByID(_ context.Context, id string) (*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobsByID[id]
	if !ok {
		return nil, errs.ErrJobNotFound
	}
	return job.Clone(), nil
}

// Exists implements StorageProvider.
func (s *InMemoryStorage) Exists(_ context.Context, signature string, states StateFilter) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobsByID {
		if job.JobSignature == signature && matchesState(job, states) {
			return true, nil
		}
	}
	return false, nil
}

func matchesState(job *jobs.Job, states StateFilter) bool {
	if len(states) == 0 {
		return true
	}
	current := job.State()
	for _, st := range states {
		if st == current {
			return true
		}
	}
	return false
}

// GetJobs implements StorageProvider.
func (s *InMemoryStorage) GetJobs(_ context.Context, states StateFilter, updatedBefore time.Time, page jobs.PageRequest) ([]*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*jobs.Job, 0)
	for _, job := range s.jobsByID {
		if !matchesState(job, states) {
			continue
		}
		if !updatedBefore.IsZero() && stateTimestamp(job.Current()).After(updatedBefore) {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool {
		return stateTimestamp(matched[i].Current()).Before(stateTimestamp(matched[j].Current()))
	})
	return paginate(matched, page), nil
}

// GetScheduledJobs implements StorageProvider.
func (s *InMemoryStorage) GetScheduledJobs(_ context.Context, at time.Time, page jobs.PageRequest) ([]*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*jobs.Job, 0)
	for _, job := range s.jobsByID {
		if job.State() != jobs.Scheduled {
			continue
		}
		if job.Current().ScheduledAt.After(at) {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Current().ScheduledAt.Before(matched[j].Current().ScheduledAt)
	})
	return paginate(matched, page), nil
}

// CountJobs implements StorageProvider.
func (s *InMemoryStorage) CountJobs(_ context.Context, states StateFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, job := range s.jobsByID {
		if matchesState(job, states) {
			n++
		}
	}
	return n, nil
}

// DeleteJobs implements StorageProvider.
func (s *InMemoryStorage) DeleteJobs(_ context.Context, states StateFilter, updatedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, job := range s.jobsByID {
		if !matchesState(job, states) {
			continue
		}
		if !updatedBefore.IsZero() && stateTimestamp(job.Current()).After(updatedBefore) {
			continue
		}
		if job.State() == jobs.Succeeded {
			s.succeededLT++
		}
		delete(s.jobsByID, id)
		removed++
	}
	return removed, nil
}

// GetJobStats implements StorageProvider.
func (s *InMemoryStorage) GetJobStats(_ context.Context) (jobs.JobStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := jobs.JobStats{SucceededLifetime: s.succeededLT}
	for _, job := range s.jobsByID {
		switch job.State() {
		case jobs.Scheduled:
			stats.Scheduled++
		case jobs.Enqueued:
			stats.Enqueued++
		case jobs.Processing:
			stats.Processing++
		case jobs.Succeeded:
			stats.Succeeded++
		case jobs.Failed:
			stats.Failed++
		case jobs.Deleted:
			stats.Deleted++
		}
	}
	return stats, nil
}

// PublishJobStatCounter implements StorageProvider.
func (s *InMemoryStorage) PublishJobStatCounter(_ context.Context, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeededLT += delta
	return nil
}

// SaveRecurringJob implements StorageProvider.
func (s *InMemoryStorage) SaveRecurringJob(_ context.Context, rj *jobs.RecurringJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rj
	s.recurring[rj.ID] = &cp
	return nil
}

// GetRecurringJobs implements StorageProvider.
func (s *InMemoryStorage) GetRecurringJobs(_ context.Context) ([]*jobs.RecurringJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*jobs.RecurringJob, 0, len(s.recurring))
	for _, rj := range s.recurring {
		cp := *rj
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteRecurringJob implements StorageProvider.
func (s *InMemoryStorage) DeleteRecurringJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recurring, id)
	return nil
}

// AnnounceServer implements StorageProvider.
func (s *InMemoryStorage) AnnounceServer(_ context.Context, status jobs.BackgroundJobServerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.servers[status.ID]; ok {
		status.FirstHeartbeat = existing.FirstHeartbeat
	} else if status.FirstHeartbeat.IsZero() {
		status.FirstHeartbeat = status.LastHeartbeat
	}
	s.servers[status.ID] = status
	return nil
}

// Heartbeat implements StorageProvider.
func (s *InMemoryStorage) Heartbeat(_ context.Context, serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.servers[serverID]
	if !ok {
		return errs.ErrJobNotFound
	}
	status.LastHeartbeat = time.Now()
	s.servers[serverID] = status
	return nil
}

// GetServers implements StorageProvider.
func (s *InMemoryStorage) GetServers(_ context.Context) ([]jobs.BackgroundJobServerStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]jobs.BackgroundJobServerStatus, 0, len(s.servers))
	for _, status := range s.servers {
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstHeartbeat.Before(out[j].FirstHeartbeat) })
	return out, nil
}

// RemoveTimedOutServers implements StorageProvider.
func (s *InMemoryStorage) RemoveTimedOutServers(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id, status := range s.servers {
		if status.LastHeartbeat.Before(cutoff) {
			delete(s.servers, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		logger.InfoF("storage: removed %d timed-out server(s): %v", len(removed), removed)
	}
	return removed, nil
}

func stateTimestamp(st jobs.JobState) time.Time {
	switch st.Name {
	case jobs.Scheduled:
		return st.ScheduledAt
	case jobs.Enqueued:
		return st.EnqueuedAt
	case jobs.Processing:
		return st.UpdatedAt
	case jobs.Succeeded:
		return st.SucceededAt
	case jobs.Failed:
		return st.FailedAt
	case jobs.Deleted:
		return st.DeletedAt
	default:
		return time.Time{}
	}
}

func paginate(items []*jobs.Job, page jobs.PageRequest) []*jobs.Job {
	if page.Limit <= 0 {
		page.Limit = len(items)
	}
	start := page.Offset
	if start > len(items) {
		start = len(items)
	}
	end := start + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
