package zookeeper

import (
	"context"
	"testing"
	"time"

	"github.com/daniiell3/jobrunr/chrono"
	"github.com/daniiell3/jobrunr/jobs"
	"github.com/daniiell3/jobrunr/storage"
	"github.com/daniiell3/jobrunr/workers"
)

func newTestZooKeeper(t *testing.T, poolSize int) (*JobZooKeeper, *storage.InMemoryStorage, *workers.Pool) {
	t.Helper()
	store := storage.NewInMemoryStorage()

	var z *JobZooKeeper
	pool := workers.New(poolSize, func(ctx context.Context, job *jobs.Job) jobs.JobState {
		return jobs.NewSucceededState(time.Now(), time.Millisecond)
	}, func(ctx context.Context, job *jobs.Job, proposed jobs.JobState) {
		z.HandleJobCompletion(ctx, job, proposed)
	}, nil)
	pool.Start(context.Background())
	t.Cleanup(func() { pool.Stop(closedSoon()) })

	dist := workers.NewPoolDistributionStrategy(pool)
	z = New("server-1", store, pool, dist, 15*time.Second)
	z.Clock = chrono.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	z.Start()
	z.SetMaster(true)
	return z, store, pool
}

func closedSoon() chan struct{} {
	c := make(chan struct{})
	go func() { time.Sleep(50 * time.Millisecond); close(c) }()
	return c
}

func TestTick_NoOpBeforeStart(t *testing.T) {
	store := storage.NewInMemoryStorage()
	pool := workers.New(1, func(ctx context.Context, job *jobs.Job) jobs.JobState {
		return jobs.NewSucceededState(time.Now(), 0)
	}, nil, nil)
	pool.Start(context.Background())
	defer pool.Stop(closedSoon())

	z := New("server-1", store, pool, workers.NewPoolDistributionStrategy(pool), 15*time.Second)
	z.SetMaster(true)
	job := jobs.NewEnqueuedJob("job-1", jobs.JobDetails{}, time.Now())
	if err := store.Save(context.Background(), job); err != nil {
		t.Fatalf("save: %v", err)
	}
	z.Tick(context.Background())

	got, _ := store.GetJobByID(context.Background(), "job-1")
	if got.State() != jobs.Enqueued {
		t.Fatalf("expected tick before Start to be a no-op, job moved to %s", got.State())
	}
}

func TestTick_PullsEnqueuedWorkAndTransitionsToProcessing(t *testing.T) {
	z, store, _ := newTestZooKeeper(t, 2)
	ctx := context.Background()
	job := jobs.NewEnqueuedJob("job-1", jobs.JobDetails{ClassName: "X", MethodName: "run"}, z.Clock.Now())
	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("save: %v", err)
	}

	z.Tick(ctx)
	time.Sleep(20 * time.Millisecond)

	got, err := store.GetJobByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State() != jobs.Processing && got.State() != jobs.Succeeded {
		t.Fatalf("expected job to have been picked up, got state %s", got.State())
	}
}

func TestMasterTasks_MaterializesRecurringJobOccurrence(t *testing.T) {
	z, store, _ := newTestZooKeeper(t, 1)
	ctx := context.Background()

	rj := &jobs.RecurringJob{ID: "rj-1", Version: 1, Details: jobs.JobDetails{ClassName: "X", MethodName: "run"}, Cron: "* * * * *", Zone: "UTC"}
	if err := store.SaveRecurringJob(ctx, rj); err != nil {
		t.Fatalf("save recurring: %v", err)
	}

	z.runMasterTasks(ctx)

	n, err := store.CountJobs(ctx, storage.StateFilter{jobs.Scheduled})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one materialized occurrence, got %d", n)
	}
}

func TestMasterTasks_DoesNotDuplicateWhileOccurrenceIsLive(t *testing.T) {
	z, store, _ := newTestZooKeeper(t, 1)
	ctx := context.Background()

	rj := &jobs.RecurringJob{ID: "rj-1", Version: 1, Details: jobs.JobDetails{ClassName: "X", MethodName: "run"}, Cron: "* * * * *", Zone: "UTC"}
	store.SaveRecurringJob(ctx, rj)

	z.runMasterTasks(ctx)
	z.runMasterTasks(ctx)

	n, _ := store.CountJobs(ctx, storage.StateFilter{jobs.Scheduled})
	if n != 1 {
		t.Fatalf("expected materialization to be idempotent while an occurrence is live, got %d jobs", n)
	}
}

func TestMasterTasks_FailsOrphanedProcessingJobs(t *testing.T) {
	z, store, _ := newTestZooKeeper(t, 1)
	ctx := context.Background()

	job := jobs.NewEnqueuedJob("job-1", jobs.JobDetails{}, z.Clock.Now())
	store.Save(ctx, job)
	job.AppendState(jobs.NewProcessingState("other-server", z.Clock.Now().Add(-time.Hour)))
	store.Save(ctx, job)

	z.runMasterTasks(ctx)

	got, _ := store.GetJobByID(ctx, "job-1")
	if got.State() != jobs.Failed {
		t.Fatalf("expected stale PROCESSING job to be failed as orphaned, got %s", got.State())
	}
}

func TestMasterTasks_EnqueuesScheduledJobsDue(t *testing.T) {
	z, store, _ := newTestZooKeeper(t, 1)
	ctx := context.Background()

	job := jobs.NewScheduledJob("job-1", jobs.JobDetails{}, z.Clock.Now(), "")
	store.Save(ctx, job)

	z.runMasterTasks(ctx)

	got, _ := store.GetJobByID(ctx, "job-1")
	if got.State() != jobs.Enqueued {
		t.Fatalf("expected due SCHEDULED job to be enqueued, got %s", got.State())
	}
}

func TestElectMaster_EarliestHeartbeatWins(t *testing.T) {
	z, store, _ := newTestZooKeeper(t, 1)
	ctx := context.Background()
	now := z.Clock.Now()

	store.AnnounceServer(ctx, jobs.BackgroundJobServerStatus{ID: "server-1", FirstHeartbeat: now, LastHeartbeat: now})
	store.AnnounceServer(ctx, jobs.BackgroundJobServerStatus{ID: "server-0", FirstHeartbeat: now.Add(-time.Minute), LastHeartbeat: now})

	master := z.ElectMaster(ctx)
	if master != "server-0" {
		t.Fatalf("expected server-0 (earliest heartbeat) to be elected, got %s", master)
	}
	if z.IsMaster() {
		t.Fatal("expected server-1 to have lost mastership")
	}
}

func TestElectMaster_IgnoresTimedOutServers(t *testing.T) {
	z, store, _ := newTestZooKeeper(t, 1)
	ctx := context.Background()
	now := z.Clock.Now()

	store.AnnounceServer(ctx, jobs.BackgroundJobServerStatus{ID: "server-1", FirstHeartbeat: now, LastHeartbeat: now})
	store.AnnounceServer(ctx, jobs.BackgroundJobServerStatus{ID: "server-stale", FirstHeartbeat: now.Add(-time.Hour), LastHeartbeat: now.Add(-time.Hour)})

	master := z.ElectMaster(ctx)
	if master != "server-1" {
		t.Fatalf("expected the timed-out server to be excluded, got %s", master)
	}
}
