package storage

import (
	"context"
	"testing"
	"time"

	"github.com/daniiell3/jobrunr/errs"
	"github.com/daniiell3/jobrunr/jobs"
)

func sampleDetails() jobs.JobDetails {
	return jobs.JobDetails{ClassName: "com.example.Reports", MethodName: "generate"}
}

func TestInMemoryStorage_SaveAndGet(t *testing.T) {
	s := NewInMemoryStorage()
	ctx := context.Background()
	job := jobs.NewEnqueuedJob("job-1", sampleDetails(), time.Now())

	if err := s.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.GetJobByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if got.ID != "job-1" || got.State() != jobs.Enqueued {
		t.Fatalf("unexpected job returned: %+v", got)
	}
}

func TestInMemoryStorage_GetJobByID_NotFound(t *testing.T) {
	s := NewInMemoryStorage()
	_, err := s.GetJobByID(context.Background(), "missing")
	if err != errs.ErrJobNotFound {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestInMemoryStorage_Save_ConcurrentModificationConflict(t *testing.T) {
	s := NewInMemoryStorage()
	ctx := context.Background()
	job := jobs.NewEnqueuedJob("job-2", sampleDetails(), time.Now())
	if err := s.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}

	stale := job.Clone()
	stale.AppendState(jobs.NewProcessingState("server-a", time.Now()))
	if err := s.Save(ctx, stale); err != nil {
		t.Fatalf("first writer should succeed: %v", err)
	}

	// A second writer still holding the pre-update version must conflict.
	conflicting := job.Clone()
	conflicting.AppendState(jobs.NewProcessingState("server-b", time.Now()))
	err := s.Save(ctx, conflicting)
	if err == nil {
		t.Fatal("expected a concurrent modification error")
	}
	if _, ok := errs.AsConcurrentJobModification(err); !ok {
		t.Fatalf("expected *errs.ConcurrentJobModification, got %T: %v", err, err)
	}
}

func TestInMemoryStorage_GetScheduledJobs_OnlyDueOnesReturned(t *testing.T) {
	s := NewInMemoryStorage()
	ctx := context.Background()
	now := time.Now()

	due := jobs.NewScheduledJob("due", sampleDetails(), now.Add(-time.Minute), "")
	future := jobs.NewScheduledJob("future", sampleDetails(), now.Add(time.Hour), "")
	if err := s.Save(ctx, due); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, future); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetScheduledJobs(ctx, now, jobs.PageRequest{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "due" {
		t.Fatalf("expected only the due job, got %v", got)
	}
}

func TestInMemoryStorage_DeleteJobs_UpdatesLifetimeCounter(t *testing.T) {
	s := NewInMemoryStorage()
	ctx := context.Background()
	job := jobs.NewEnqueuedJob("job-3", sampleDetails(), time.Now())
	job.AppendState(jobs.NewProcessingState("server-a", time.Now()))
	job.AppendState(jobs.NewSucceededState(time.Now(), time.Second))
	if err := s.Save(ctx, job); err != nil {
		t.Fatal(err)
	}

	removed, err := s.DeleteJobs(ctx, StateFilter{jobs.Succeeded}, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	stats, err := s.GetJobStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.SucceededLifetime != 1 {
		t.Fatalf("expected lifetime succeeded counter 1, got %d", stats.SucceededLifetime)
	}
}

func TestInMemoryStorage_ServerRoster_AnnounceHeartbeatAndTimeout(t *testing.T) {
	s := NewInMemoryStorage()
	ctx := context.Background()
	now := time.Now()

	if err := s.AnnounceServer(ctx, jobs.BackgroundJobServerStatus{ID: "srv-1", FirstHeartbeat: now, LastHeartbeat: now}); err != nil {
		t.Fatal(err)
	}
	if err := s.Heartbeat(ctx, "srv-1"); err != nil {
		t.Fatal(err)
	}

	removed, err := s.RemoveTimedOutServers(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0] != "srv-1" {
		t.Fatalf("expected srv-1 removed as timed out, got %v", removed)
	}
}

func TestInMemoryStorage_Exists_MatchesBySignatureAndState(t *testing.T) {
	s := NewInMemoryStorage()
	ctx := context.Background()
	job := jobs.NewEnqueuedJob("job-4", sampleDetails(), time.Now())
	if err := s.Save(ctx, job); err != nil {
		t.Fatal(err)
	}

	ok, err := s.Exists(ctx, job.JobSignature, StateFilter{jobs.Enqueued})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected Exists to find the enqueued job by signature")
	}

	ok, err = s.Exists(ctx, job.JobSignature, StateFilter{jobs.Succeeded})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected Exists to report false for a state the job is not in")
	}
}
