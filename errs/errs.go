// Package errs holds the sentinel and typed errors surfaced across the
// jobrunr module's external interfaces.
package errs

import (
	"errors"
	"fmt"

	"github.com/daniiell3/jobrunr/jobs"
)

var (
	// ErrJobNotFound is returned when a lookup by job id finds nothing.
	ErrJobNotFound = errors.New("jobrunr: job not found")
	// ErrJobClassNotFound is returned when a Job's JobDetails names a
	// dispatch-table entry that was never registered.
	ErrJobClassNotFound = errors.New("jobrunr: job class not found")
	// ErrJobMethodNotFound is returned when a registered class has no
	// matching method entry for a Job's JobDetails.
	ErrJobMethodNotFound = errors.New("jobrunr: job method not found")
	// ErrStorageUnavailable is returned by a StorageProvider when the
	// backing store cannot be reached; ticks pause but do not terminate.
	ErrStorageUnavailable = errors.New("jobrunr: storage unavailable")
	// ErrIllegalJobState is returned when a requested state transition is
	// not reachable from a job's current state.
	ErrIllegalJobState = errors.New("jobrunr: illegal job state transition")
)

// Conflict describes one job whose persisted version no longer matches the
// version a writer attempted to save.
type Conflict struct {
	// Local is the job as the writer attempted to save it.
	Local *jobs.Job
	// Remote is the job as currently persisted.
	Remote *jobs.Job
}

// ConcurrentJobModification is returned by StorageProvider.Save when one or
// more jobs in the batch were modified by another server since the caller
// last read them. It carries every conflicting pair so a
// ConcurrentJobModificationResolver can reconcile them.
type ConcurrentJobModification struct {
	Conflicts []Conflict
}

func (e *ConcurrentJobModification) Error() string {
	return fmt.Sprintf("jobrunr: concurrent modification of %d job(s)", len(e.Conflicts))
}

// AsConcurrentJobModification reports whether err is (or wraps) a
// *ConcurrentJobModification and returns it.
func AsConcurrentJobModification(err error) (*ConcurrentJobModification, bool) {
	var cjm *ConcurrentJobModification
	if errors.As(err, &cjm) {
		return cjm, true
	}
	return nil, false
}
