// Package server wires a JobZooKeeper, a worker pool, and a StorageProvider
// into one long-lived BackgroundJobServer, announcing itself to the server
// roster and driving the coordinator's tick on a fixed interval.
package server

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daniiell3/jobrunr/filters"
)

const (
	// DefaultPollInterval is used when no WithPollInterval option is given.
	DefaultPollInterval = 15 * time.Second
	// MinPollInterval is the floor enforced by NewConfiguration.
	MinPollInterval = 5 * time.Second
	// DefaultWorkerPoolSize is used when no WithWorkerPoolSize option is given.
	DefaultWorkerPoolSize = 10
	// DefaultStopGracePeriod bounds how long Stop waits for in-flight jobs.
	DefaultStopGracePeriod = 10 * time.Second
)

// Configuration holds every tunable a BackgroundJobServer needs. Build one
// with NewConfiguration and functional options; environment variables are
// applied first as the base layer, then explicit options override them.
type Configuration struct {
	ServerID        string        `yaml:"serverId"`
	PollInterval    time.Duration `yaml:"pollInterval"`
	WorkerPoolSize  int           `yaml:"workerPoolSize"`
	StopGracePeriod time.Duration `yaml:"stopGracePeriod"`
	Filters         []filters.JobFilters `yaml:"-"`
}

// Option mutates a Configuration under construction.
type Option func(*Configuration)

// WithServerID overrides the generated server id.
func WithServerID(id string) Option {
	return func(c *Configuration) { c.ServerID = id }
}

// WithPollInterval overrides the coordinator's tick cadence, floored at
// MinPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Configuration) {
		if d < MinPollInterval {
			d = MinPollInterval
		}
		c.PollInterval = d
	}
}

// WithWorkerPoolSize overrides the local worker pool's fixed size.
func WithWorkerPoolSize(n int) Option {
	return func(c *Configuration) {
		if n > 0 {
			c.WorkerPoolSize = n
		}
	}
}

// WithStopGracePeriod overrides how long Stop waits for in-flight jobs to
// finish before moving on.
func WithStopGracePeriod(d time.Duration) Option {
	return func(c *Configuration) { c.StopGracePeriod = d }
}

// WithFilters replaces the registered JobFilters chain.
func WithFilters(fs ...filters.JobFilters) Option {
	return func(c *Configuration) { c.Filters = fs }
}

// NewConfiguration builds a Configuration from environment-variable
// defaults (JOBRUNR_POLL_INTERVAL, JOBRUNR_WORKER_POOL_SIZE,
// JOBRUNR_SERVER_ID), then applies
// opts on top, the same env-then-explicit-options layering the teacher's
// config package implies for env-sourced values.
func NewConfiguration(opts ...Option) *Configuration {
	c := &Configuration{
		PollInterval:    DefaultPollInterval,
		WorkerPoolSize:  DefaultWorkerPoolSize,
		StopGracePeriod: DefaultStopGracePeriod,
		Filters:         []filters.JobFilters{filters.NewRetryFilter(filters.DefaultMaxRetries)},
	}
	applyEnvironment(c)
	for _, opt := range opts {
		opt(c)
	}
	if c.PollInterval < MinPollInterval {
		c.PollInterval = MinPollInterval
	}
	return c
}

func applyEnvironment(c *Configuration) {
	if v := os.Getenv("JOBRUNR_POLL_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.PollInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("JOBRUNR_WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("JOBRUNR_SERVER_ID"); v != "" {
		c.ServerID = v
	}
}

// LoadYAML populates c from a YAML document (the teacher's own l3.LogConfig
// tagging idiom applied to server configuration).
func LoadYAML(data []byte, c *Configuration) error {
	return yaml.Unmarshal(data, c)
}

// SaveYAML marshals c to YAML.
func SaveYAML(c *Configuration) ([]byte, error) {
	return yaml.Marshal(c)
}
