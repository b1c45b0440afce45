package zookeeper

import (
	"context"

	"github.com/daniiell3/jobrunr/jobs"
)

// HandleJobCompletion is the workers.CompletionHandler a server wires into
// its worker pool: it runs the registered filters' onStateElection against
// the proposed final state (letting the default retry filter turn a FAILED
// proposal into a SCHEDULED retry), appends the elected state, and persists
// it, resolving any ConcurrentJobModification the same way a master task
// would.
func (z *JobZooKeeper) HandleJobCompletion(ctx context.Context, job *jobs.Job, proposed jobs.JobState) {
	elected := z.applyFilters(job, proposed)
	job.AppendState(elected)
	z.saveWithResolution(ctx, []*jobs.Job{job})
}
