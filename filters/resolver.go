package filters

import (
	"github.com/daniiell3/jobrunr/errs"
	"github.com/daniiell3/jobrunr/jobs"
)

// Resolution is the per-conflict verdict a ConcurrentJobModificationResolver
// returns for one errs.Conflict.
type Resolution int

const (
	// Allow means the local write is safe to re-apply after refreshing the
	// job's version to the remote value.
	Allow Resolution = iota
	// RetryTick means the local write must be dropped; the coordinator's
	// current tick should retry on its next iteration rather than treat
	// this as an error.
	RetryTick
	// Fatal means the conflict indicates corruption or a bug; the tick's
	// exception counter should increment.
	Fatal
)

// ConcurrentJobModificationResolver decides, per conflicting (local,
// remote) pair returned by a failed StorageProvider.Save, whether the
// local write should be reapplied, dropped for this tick, or treated as a
// fatal error.
type ConcurrentJobModificationResolver interface {
	Resolve(conflict errs.Conflict) Resolution
}

// DefaultResolver implements the policy spec'd for every backend:
// heartbeats and deletions are always allowed; a local state-advancing
// transition loses to a remote transition that already reached a terminal
// state; any other regression is fatal.
type DefaultResolver struct{}

var _ ConcurrentJobModificationResolver = DefaultResolver{}

// Resolve implements ConcurrentJobModificationResolver.
func (DefaultResolver) Resolve(conflict errs.Conflict) Resolution {
	local, remote := conflict.Local, conflict.Remote
	if local == nil || remote == nil {
		return Fatal
	}

	localState := local.State()
	remoteState := remote.State()

	// Heartbeats (PROCESSING -> PROCESSING) and deletions are always safe
	// to reconcile by taking the remote version: either writer's update is
	// acceptable.
	if localState == jobs.Processing && remoteState == jobs.Processing {
		return Allow
	}
	if localState == jobs.Deleted || remoteState == jobs.Deleted {
		return Allow
	}

	// The local job's own history shows it moved out of a terminal state
	// (e.g. SUCCEEDED -> ENQUEUED): that is a symptom of a bug, not a race,
	// regardless of where the remote side currently stands.
	if isRegression(local) {
		return Fatal
	}

	// The remote side already reached a terminal state: our local
	// transition is stale and must not be forced over it. Any other
	// conflict is a plain race between two non-terminal advances, also
	// safe to drop and retry.
	return RetryTick
}

// isRegression reports whether job's own History shows it transitioning out
// of a terminal state (SUCCEEDED and FAILED are terminal-until-retention,
// DELETED is handled separately above), violating the forward-only shape of
// the job state machine.
func isRegression(job *jobs.Job) bool {
	if len(job.History) < 2 {
		return false
	}
	previous := job.History[len(job.History)-2].Name
	current := job.History[len(job.History)-1].Name
	return previous.IsTerminal() && previous != current
}
