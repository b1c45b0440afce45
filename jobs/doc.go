// Package jobs defines the data model shared by every other package: the
// Job aggregate and its append-only JobState history, JobDetails and its
// stable signature, RecurringJob, JobStats, and BackgroundJobServerStatus.
package jobs
