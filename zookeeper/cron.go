package zookeeper

import (
	"time"

	"github.com/daniiell3/jobrunr/chrono"
	"github.com/daniiell3/jobrunr/uuid"
)

// cronNextInstant parses expr and returns its next firing instant after
// from in loc. A malformed cron expression (should have been rejected at
// RecurringJob registration time) falls back to "one poll interval from
// now" so materialization never wedges the tick on a bad definition.
func (z *JobZooKeeper) cronNextInstant(expr string, from time.Time, loc *time.Location) time.Time {
	ce, err := chrono.ParseCronExpression(expr)
	if err != nil {
		logger.WarnF("zookeeper: invalid cron expression %q: %v", expr, err)
		return from.Add(z.PollInterval)
	}
	return ce.NextInstantAfter(from, loc)
}

// newJobID returns a fresh job identity for a materialized recurring-job
// occurrence.
func newJobID() string {
	id, err := uuid.V4()
	if err != nil {
		return time.Now().UTC().Format("20060102T150405.000000000")
	}
	return id.String()
}
