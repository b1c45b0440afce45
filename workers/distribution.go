package workers

import "github.com/daniiell3/jobrunr/jobs"

// WorkDistributionStrategy decides how many ENQUEUED jobs a coordinator
// should pull from storage on its next enqueued-work pull, bounded by how
// much free capacity the local worker pool actually has.
type WorkDistributionStrategy interface {
	// GetWorkPageRequest returns the page to fetch. A Limit of 0 means: do
	// not pull this tick.
	GetWorkPageRequest() jobs.PageRequest
}

// PoolDistributionStrategy asks the pool itself for its free capacity,
// the straightforward policy spec'd for a single logical queue with no
// fairness weighting between job kinds.
type PoolDistributionStrategy struct {
	pool *Pool
}

// NewPoolDistributionStrategy returns a strategy bound to pool.
func NewPoolDistributionStrategy(pool *Pool) *PoolDistributionStrategy {
	return &PoolDistributionStrategy{pool: pool}
}

var _ WorkDistributionStrategy = (*PoolDistributionStrategy)(nil)

// GetWorkPageRequest implements WorkDistributionStrategy.
func (s *PoolDistributionStrategy) GetWorkPageRequest() jobs.PageRequest {
	free := s.pool.FreeCapacity()
	if free <= 0 {
		return jobs.PageRequest{Limit: 0}
	}
	return jobs.PageRequest{Offset: 0, Limit: free}
}
