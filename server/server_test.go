package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/daniiell3/jobrunr/jobs"
	"github.com/daniiell3/jobrunr/storage"
)

type stubDispatcher struct {
	err error
}

func (d stubDispatcher) Dispatch(context.Context, jobs.JobDetails) error {
	return d.err
}

func TestNew_GeneratesServerIDWhenEmpty(t *testing.T) {
	srv := New(storage.NewInMemoryStorage(), stubDispatcher{}, nil)
	if srv.ID == "" {
		t.Fatal("expected a generated server id")
	}
}

func TestNew_KeepsExplicitServerID(t *testing.T) {
	cfg := NewConfiguration(WithServerID("fixed-id"))
	srv := New(storage.NewInMemoryStorage(), stubDispatcher{}, cfg)
	if srv.ID != "fixed-id" {
		t.Fatalf("expected the configured server id to be kept, got %s", srv.ID)
	}
}

func TestRunJob_DispatchSuccessProposesSucceeded(t *testing.T) {
	srv := New(storage.NewInMemoryStorage(), stubDispatcher{}, nil)
	job := jobs.NewEnqueuedJob("job-1", jobs.JobDetails{ClassName: "C", MethodName: "m"}, time.Now())

	proposed := srv.runJob(context.Background(), job)
	if proposed.Name != jobs.Succeeded {
		t.Fatalf("expected SUCCEEDED, got %s", proposed.Name)
	}
}

func TestRunJob_DispatchFailureProposesFailed(t *testing.T) {
	srv := New(storage.NewInMemoryStorage(), stubDispatcher{err: errors.New("boom")}, nil)
	job := jobs.NewEnqueuedJob("job-1", jobs.JobDetails{ClassName: "C", MethodName: "m"}, time.Now())

	proposed := srv.runJob(context.Background(), job)
	if proposed.Name != jobs.Failed {
		t.Fatalf("expected FAILED, got %s", proposed.Name)
	}
	if proposed.Message != "boom" {
		t.Fatalf("expected the dispatch error message to be carried, got %q", proposed.Message)
	}
}

func TestStartStop_CompletesWithoutBlockingOnTheTickInterval(t *testing.T) {
	cfg := NewConfiguration(WithStopGracePeriod(100 * time.Millisecond))
	srv := New(storage.NewInMemoryStorage(), stubDispatcher{}, cfg)

	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartStop_AnnouncesServerToStorage(t *testing.T) {
	store := storage.NewInMemoryStorage()
	cfg := NewConfiguration(WithStopGracePeriod(100 * time.Millisecond))
	srv := New(store, stubDispatcher{}, cfg)

	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	roster, err := store.GetServers(context.Background())
	if err != nil {
		t.Fatalf("GetServers: %v", err)
	}
	found := false
	for _, s := range roster {
		if s.ID == srv.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected server %s to appear in the roster, got %+v", srv.ID, roster)
	}
}
