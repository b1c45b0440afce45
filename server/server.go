package server

import (
	"context"
	"errors"
	"time"

	"github.com/daniiell3/jobrunr/errs"
	"github.com/daniiell3/jobrunr/jobs"
	"github.com/daniiell3/jobrunr/l3"
	"github.com/daniiell3/jobrunr/lifecycle"
	"github.com/daniiell3/jobrunr/storage"
	"github.com/daniiell3/jobrunr/uuid"
	"github.com/daniiell3/jobrunr/workers"
	"github.com/daniiell3/jobrunr/zookeeper"
)

var logger = l3.Get()

const (
	componentStorage   = "storage"
	componentPool      = "worker-pool"
	componentZooKeeper = "zookeeper"
	componentTicker    = "ticker"
)

// Dispatcher resolves a Job's JobDetails to an actual callable, the
// pluggable seam the job-argument capture mechanism sits behind.
type Dispatcher interface {
	Dispatch(ctx context.Context, details jobs.JobDetails) error
}

// BackgroundJobServer owns one server instance's storage handle, worker
// pool, and coordinator, announcing itself to the roster and driving the
// coordinator's tick and master-election loop on fixed intervals. Start/Stop
// order components dependency-first using the adapted lifecycle manager:
// storage must be reachable before the pool or coordinator can run.
type BackgroundJobServer struct {
	ID      string
	Config  *Configuration
	Storage storage.StorageProvider
	Pool    *workers.Pool
	ZooKeeper *zookeeper.JobZooKeeper
	Dispatcher Dispatcher

	manager      lifecycle.ComponentManager
	tickerCancel context.CancelFunc
}

// New wires a BackgroundJobServer from the given storage provider,
// dispatcher, and configuration (NewConfiguration() if cfg is nil).
func New(store storage.StorageProvider, dispatcher Dispatcher, cfg *Configuration) *BackgroundJobServer {
	if cfg == nil {
		cfg = NewConfiguration()
	}
	if cfg.ServerID == "" {
		if id, err := uuid.V4(); err == nil {
			cfg.ServerID = id.String()
		} else {
			cfg.ServerID = "server-" + time.Now().UTC().Format("20060102T150405")
		}
	}

	s := &BackgroundJobServer{
		ID:         cfg.ServerID,
		Config:     cfg,
		Storage:    store,
		Dispatcher: dispatcher,
		manager:    lifecycle.NewSimpleComponentManager(),
	}

	s.Pool = workers.New(cfg.WorkerPoolSize, s.runJob, nil, nil)
	dist := workers.NewPoolDistributionStrategy(s.Pool)
	s.ZooKeeper = zookeeper.New(s.ID, store, s.Pool, dist, cfg.PollInterval)
	s.ZooKeeper.Filters = cfg.Filters
	s.Pool.SetCompletionHandler(s.ZooKeeper.HandleJobCompletion)
	s.Pool.SetIdleNotifier(s.ZooKeeper.NotifyThreadIdleFunc())

	s.registerComponents()
	return s
}

// runJob executes job via the Dispatcher, translating the outcome into a
// proposed terminal JobState. The pool's CompletionHandler (wired to
// ZooKeeper.HandleJobCompletion) runs filters and persists the result.
func (s *BackgroundJobServer) runJob(ctx context.Context, job *jobs.Job) jobs.JobState {
	start := time.Now()
	err := s.Dispatcher.Dispatch(ctx, job.Details)
	if err != nil {
		exceptionClass := "jobrunr.JobExecutionException"
		switch {
		case errors.Is(err, errs.ErrJobClassNotFound):
			exceptionClass = jobs.ExceptionClassJobClassNotFound
		case errors.Is(err, errs.ErrJobMethodNotFound):
			exceptionClass = jobs.ExceptionClassJobMethodNotFound
		}
		return jobs.NewFailedState(time.Now(), exceptionClass, err.Error(), "")
	}
	return jobs.NewSucceededState(time.Now(), time.Since(start))
}

func (s *BackgroundJobServer) registerComponents() {
	s.manager.Register(&lifecycle.SimpleComponent{
		CompId: componentStorage,
		StartFunc: func() error {
			return s.Storage.AnnounceServer(context.Background(), jobs.BackgroundJobServerStatus{
				ID:                  s.ID,
				WorkerPoolSize:      s.Config.WorkerPoolSize,
				PollIntervalSeconds: int(s.Config.PollInterval / time.Second),
				FirstHeartbeat:      time.Now(),
				LastHeartbeat:       time.Now(),
				IsRunning:           true,
			})
		},
		StopFunc: func() error { return nil },
	})

	s.manager.Register(&lifecycle.SimpleComponent{
		CompId: componentPool,
		StartFunc: func() error {
			s.Pool.Start(context.Background())
			return nil
		},
		StopFunc: func() error {
			grace := make(chan struct{})
			go func() {
				<-time.After(s.Config.StopGracePeriod)
				close(grace)
			}()
			s.Pool.Stop(grace)
			return nil
		},
	})
	s.manager.AddDependency(componentPool, componentStorage)

	s.manager.Register(&lifecycle.SimpleComponent{
		CompId: componentZooKeeper,
		StartFunc: func() error {
			s.ZooKeeper.Start()
			s.ZooKeeper.SetMaster(false)
			return nil
		},
		StopFunc: func() error {
			s.ZooKeeper.Stop()
			return nil
		},
	})
	s.manager.AddDependency(componentZooKeeper, componentPool)

	s.manager.Register(&lifecycle.SimpleComponent{
		CompId: componentTicker,
		StartFunc: func() error {
			ctx, cancel := context.WithCancel(context.Background())
			s.tickerCancel = cancel
			go s.runTickLoop(ctx)
			go s.ZooKeeper.RunElectionLoop(ctx)
			go s.runHeartbeatLoop(ctx)
			return nil
		},
		StopFunc: func() error {
			if s.tickerCancel != nil {
				s.tickerCancel()
			}
			return nil
		},
	})
	s.manager.AddDependency(componentTicker, componentZooKeeper)
}

// runTickLoop drives the coordinator's Tick at the configured poll
// interval until ctx is cancelled. The first five tick exceptions are only
// logged by the coordinator; once its ExceptionCount exceeds five the
// server stops itself.
func (s *BackgroundJobServer) runTickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.Config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ZooKeeper.Tick(ctx)
			if n := s.ZooKeeper.ExceptionCount(); n > 5 {
				logger.ErrorF("server %s: %d coordinator exceptions, shutting down", s.ID, n)
				go s.Stop()
				return
			}
		}
	}
}

// runHeartbeatLoop refreshes this server's roster entry independently of
// the coordinator's own tick, so a slow tick never starves the liveness
// signal peers rely on for master election and orphan detection.
func (s *BackgroundJobServer) runHeartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.Config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Storage.Heartbeat(ctx, s.ID); err != nil {
				logger.WarnF("server %s: heartbeat failed: %v", s.ID, err)
			}
		}
	}
}

// Start brings up every component in dependency order: storage
// announcement, worker pool, coordinator, then the tick/election/heartbeat
// timers.
func (s *BackgroundJobServer) Start() error {
	return s.manager.StartAll()
}

// Stop tears down every component. The lifecycle manager walks components
// in reverse registration order and stops each component's dependencies
// before the component itself, so the coordinator is marked stopped first,
// then the tick/election/heartbeat timers are cancelled, then storage (a
// no-op: the StorageProvider is not closed), and last the worker pool
// drains with Config.StopGracePeriod.
func (s *BackgroundJobServer) Stop() error {
	return s.manager.StopAll()
}

// StartAndWait starts the server and blocks until Stop is called (from a
// signal handler wired by lifecycle.NewSimpleComponentManager).
func (s *BackgroundJobServer) StartAndWait() {
	s.manager.StartAndWait()
}
