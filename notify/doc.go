// Package notify implements the change-notification fan-out a
// StorageProvider exposes to dashboards and watchers: a shared, lazily
// started ticker dispatching JobStats, per-job, and server-roster
// snapshots, plus an optional Redis-backed relay across processes.
package notify
