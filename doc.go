// Package jobrunr implements a distributed background-job processing engine:
// a coordinator per server instance elects a master, advances job state
// machines, materializes recurring jobs from cron expressions, and feeds a
// bounded worker pool, tolerating concurrent modification through optimistic
// concurrency on a shared StorageProvider.
//
// Each sub-package is independently importable:
//
//	import "github.com/daniiell3/jobrunr/jobs"      // Job, JobState, RecurringJob
//	import "github.com/daniiell3/jobrunr/storage"   // StorageProvider + InMemoryStorage
//	import "github.com/daniiell3/jobrunr/server"    // BackgroundJobServer
//	import "github.com/daniiell3/jobrunr/zookeeper" // JobZooKeeper coordinator
//	import "github.com/daniiell3/jobrunr/l3"        // Logging
package jobrunr
