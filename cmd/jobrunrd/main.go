// Command jobrunrd boots one BackgroundJobServer over an in-memory
// StorageProvider and blocks until SIGINT/SIGTERM, demonstrating how the
// server, scheduler, and dispatch table fit together. It is not meant as a
// production deployment: a real deployment wires storage/pgstore instead of
// storage.NewInMemoryStorage and a dispatch table covering its own job
// classes instead of the demo handler registered below.
package main

import (
	"context"
	"fmt"

	"github.com/daniiell3/jobrunr/errs"
	"github.com/daniiell3/jobrunr/jobs"
	"github.com/daniiell3/jobrunr/l3"
	"github.com/daniiell3/jobrunr/scheduler"
	"github.com/daniiell3/jobrunr/server"
	"github.com/daniiell3/jobrunr/storage"
)

var logger = l3.Get()

// dispatchTable resolves a JobDetails' (ClassName, MethodName) pair to an
// actual callable. It implements server.Dispatcher.
type dispatchTable map[string]func(ctx context.Context, params []jobs.Param) error

func (t dispatchTable) Dispatch(ctx context.Context, details jobs.JobDetails) error {
	key := details.ClassName + "#" + details.MethodName
	fn, ok := t[key]
	if !ok {
		return fmt.Errorf("%w: no handler registered for %s", errs.ErrJobClassNotFound, key)
	}
	return fn(ctx, details.Params)
}

func main() {
	store := storage.NewInMemoryStorage()
	defer store.Close()

	handlers := dispatchTable{
		"jobrunrd.Demo#printGreeting": func(_ context.Context, params []jobs.Param) error {
			name := "world"
			if len(params) > 0 {
				if v, ok := params[0].Value.(string); ok {
					name = v
				}
			}
			logger.InfoF("hello, %s", name)
			return nil
		},
	}

	cfg := server.NewConfiguration()
	srv := server.New(store, handlers, cfg)

	sched := scheduler.New(store)
	if _, err := sched.Enqueue(context.Background(), jobs.JobDetails{
		ClassName:  "jobrunrd.Demo",
		MethodName: "printGreeting",
		Params:     []jobs.Param{{ClassName: "java.lang.String", Value: "jobrunr"}},
	}); err != nil {
		logger.ErrorF("jobrunrd: seeding demo job: %v", err)
	}
	if _, err := sched.ScheduleRecurringly(context.Background(), "demo-every-minute", jobs.JobDetails{
		ClassName:  "jobrunrd.Demo",
		MethodName: "printGreeting",
		Params:     []jobs.Param{{ClassName: "java.lang.String", Value: "recurring demo"}},
	}, "* * * * *", "UTC"); err != nil {
		logger.ErrorF("jobrunrd: registering recurring demo job: %v", err)
	}

	if err := srv.Start(); err != nil {
		logger.ErrorF("jobrunrd: server failed to start: %v", err)
		return
	}
	logger.InfoF("jobrunrd: server %s running, poll interval %s", srv.ID, cfg.PollInterval)

	srv.StartAndWait()
}
