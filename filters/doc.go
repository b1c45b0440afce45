// Package filters implements the coordinator's pluggable extension points:
// JobFilters (two-phase state-election/state-applied hooks), the default
// exponential-backoff RetryFilter, and the ConcurrentJobModificationResolver
// policy used to reconcile optimistic-concurrency conflicts.
package filters
