package zookeeper

import (
	"context"
	"sort"
	"time"

	"github.com/daniiell3/jobrunr/jobs"
)

// ElectMaster re-evaluates mastership against the current server roster:
// among servers whose LastHeartbeat is within 4x the poll interval of now,
// the one with the earliest FirstHeartbeat is master, ties broken by id
// ordering. It updates z's own mastership flag and returns the elected
// server id (empty if the roster is empty or unreachable).
func (z *JobZooKeeper) ElectMaster(ctx context.Context) string {
	servers, err := z.Storage.GetServers(ctx)
	if err != nil {
		z.countException()
		logger.ErrorF("zookeeper: GetServers failed during election: %v", err)
		return ""
	}
	now := z.Clock.Now()
	cutoff := now.Add(-orphanMultiplier * z.PollInterval)

	live := make([]jobs.BackgroundJobServerStatus, 0, len(servers))
	for _, s := range servers {
		if s.LastHeartbeat.After(cutoff) {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		z.SetMaster(false)
		return ""
	}
	sort.Slice(live, func(i, j int) bool {
		if !live[i].FirstHeartbeat.Equal(live[j].FirstHeartbeat) {
			return live[i].FirstHeartbeat.Before(live[j].FirstHeartbeat)
		}
		return live[i].ID < live[j].ID
	})
	master := live[0].ID
	z.SetMaster(master == z.ServerID)
	return master
}

// RunElectionLoop periodically re-runs ElectMaster until ctx is cancelled,
// the standalone timer thread described for master election alongside the
// coordinator's own tick timer.
func (z *JobZooKeeper) RunElectionLoop(ctx context.Context) {
	ticker := time.NewTicker(z.PollInterval)
	defer ticker.Stop()
	z.ElectMaster(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			z.ElectMaster(ctx)
		}
	}
}
