package zookeeper

import (
	"context"

	"github.com/daniiell3/jobrunr/jobs"
)

// heartbeatProcessingJobs refreshes the updatedAt of every job this server
// currently has in flight so the orphan sweep doesn't reclaim work that is
// actually still running.
func (z *JobZooKeeper) heartbeatProcessingJobs(ctx context.Context) {
	ids := z.Pool.InFlight()
	if len(ids) == 0 {
		return
	}
	var batch []*jobs.Job
	for _, id := range ids {
		job, err := z.Storage.GetJobByID(ctx, id)
		if err != nil {
			continue
		}
		current := job.Current()
		if current.Name != jobs.Processing {
			continue
		}
		job.AppendState(jobs.JobState{
			Name:      jobs.Processing,
			ServerID:  z.ServerID,
			StartedAt: current.StartedAt,
			UpdatedAt: z.Clock.Now(),
		})
		batch = append(batch, job)
	}
	z.saveWithResolution(ctx, batch)
}
