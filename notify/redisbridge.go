package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/daniiell3/jobrunr/jobs"
)

// RedisBridge relays JobStats snapshots across server processes that do not
// share an in-memory StorageProvider, so a dashboard watching one process
// still sees stat changes published by another. It is optional: wiring it
// is the operator's choice, made by registering it as a
// JobStatsChangeListener on a local Fanout and feeding its Subscribe callback
// into a second, remote-facing Fanout-less listener set.
type RedisBridge struct {
	rdb     *goredis.Client
	channel string
}

// NewRedisBridge dials addr and pings it, publishing/subscribing on
// channel.
func NewRedisBridge(ctx context.Context, addr, channel string) (*RedisBridge, error) {
	if channel == "" {
		channel = "jobrunr:stats"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("notify: redis ping: %w", err)
	}
	return &RedisBridge{rdb: rdb, channel: channel}, nil
}

// OnChange implements JobStatsChangeListener, publishing stats to every
// subscriber of the bridge's channel. Registering a *RedisBridge directly
// on a Fanout makes it act as the outbound half of the relay.
func (b *RedisBridge) OnChange(stats jobs.JobStats) {
	raw, err := json.Marshal(stats)
	if err != nil {
		logger.WarnF("notify: marshal job stats for redis publish: %v", err)
		return
	}
	if err := b.rdb.Publish(context.Background(), b.channel, raw).Err(); err != nil {
		logger.WarnF("notify: publish job stats to redis: %v", err)
	}
}

// Subscribe starts a goroutine forwarding every JobStats published on the
// bridge's channel (by any process) to onStats, until ctx is cancelled.
func (b *RedisBridge) Subscribe(ctx context.Context, onStats func(jobs.JobStats)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("notify: redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var stats jobs.JobStats
				if err := json.Unmarshal([]byte(m.Payload), &stats); err != nil {
					logger.WarnF("notify: bad redis job stats payload: %v", err)
					continue
				}
				onStats(stats)
			}
		}
	}()
	return nil
}

// Close releases the underlying redis client.
func (b *RedisBridge) Close() error {
	return b.rdb.Close()
}
