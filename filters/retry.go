package filters

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/daniiell3/jobrunr/jobs"
)

// DefaultMaxRetries is the retry ceiling applied when a RetryFilter is
// constructed with MaxRetries <= 0.
const DefaultMaxRetries = 10

// RetryFilter implements exponential backoff with jitter: when the elected
// state is FAILED and the job has failed at most MaxRetries times so far,
// the election is overridden to SCHEDULED(now + 3^attempt seconds, plus or
// minus jitter) instead. JobClassNotFound and JobMethodNotFound are terminal by
// construction (their FAILED state's ExceptionClass marks them) and are
// never retried regardless of the attempt count.
type RetryFilter struct {
	MaxRetries int
	// Rand is the jitter source; nil defaults to a package-level source.
	Rand *rand.Rand
}

// NewRetryFilter returns a RetryFilter with the given retry ceiling, or
// DefaultMaxRetries if maxRetries <= 0.
func NewRetryFilter(maxRetries int) *RetryFilter {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RetryFilter{MaxRetries: maxRetries}
}

var _ JobFilters = (*RetryFilter)(nil)

// nonRetryableExceptions are exception kinds the retry filter never
// reschedules: they cannot succeed on replay without operator
// intervention (the code or method they name simply does not exist).
var nonRetryableExceptions = map[string]bool{
	jobs.ExceptionClassJobClassNotFound:  true,
	jobs.ExceptionClassJobMethodNotFound: true,
}

// OnStateElection implements JobFilters.
func (f *RetryFilter) OnStateElection(job *jobs.Job, elected jobs.JobState) jobs.JobState {
	if elected.Name != jobs.Failed {
		return elected
	}
	if nonRetryableExceptions[elected.ExceptionClass] {
		return elected
	}
	attempt := job.CountState(jobs.Failed) + 1
	if attempt > f.MaxRetries {
		return elected
	}
	return jobs.NewScheduledState(time.Now().Add(f.backoff(attempt)), fmt.Sprintf("retry %d/%d", attempt, f.MaxRetries))
}

// OnStateApplied implements JobFilters; the default retry filter has no
// post-persistence side effect.
func (f *RetryFilter) OnStateApplied(*jobs.Job, jobs.JobState) {}

// backoff returns 3^attempt seconds, jittered by up to ±20%.
func (f *RetryFilter) backoff(attempt int) time.Duration {
	base := math.Pow(3, float64(attempt))
	r := f.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	jitter := base * 0.2 * (2*r.Float64() - 1)
	return time.Duration((base + jitter) * float64(time.Second))
}
