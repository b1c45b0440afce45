// Package pgstore implements storage.StorageProvider against Postgres,
// using a connection pool from github.com/jackc/pgx/v5/pgxpool. Optimistic
// concurrency is enforced the same way the contract requires of every
// backend: an UPDATE guarded by both id and the caller's expected version,
// disambiguated by RowsAffected.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daniiell3/jobrunr/errs"
	"github.com/daniiell3/jobrunr/jobs"
	"github.com/daniiell3/jobrunr/l3"
	"github.com/daniiell3/jobrunr/notify"
	"github.com/daniiell3/jobrunr/storage"
)

var logger = l3.Get()

const schema = `
CREATE TABLE IF NOT EXISTS jobrunr_jobs (
	id              TEXT PRIMARY KEY,
	version         BIGINT NOT NULL,
	job_signature   TEXT NOT NULL,
	state           TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	scheduled_at    TIMESTAMPTZ,
	recurring_job_id TEXT,
	job_as_json     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS jobrunr_jobs_state_updated_at_idx ON jobrunr_jobs (state, updated_at);

CREATE TABLE IF NOT EXISTS jobrunr_recurring_jobs (
	id           TEXT PRIMARY KEY,
	version      BIGINT NOT NULL,
	job_as_json  JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS jobrunr_background_job_servers (
	id                     TEXT PRIMARY KEY,
	first_heartbeat        TIMESTAMPTZ NOT NULL,
	last_heartbeat         TIMESTAMPTZ NOT NULL,
	running                BOOLEAN NOT NULL,
	worker_pool_size       INTEGER NOT NULL,
	poll_interval_seconds  INTEGER NOT NULL,
	free_memory_mb         BIGINT NOT NULL DEFAULT 0,
	cpu_load               DOUBLE PRECISION NOT NULL DEFAULT 0,
	process_load           DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS jobrunr_job_counters (
	name   TEXT PRIMARY KEY,
	amount BIGINT NOT NULL
);
`

const succeededLifetimeCounterName = "succeeded_lifetime"

// PostgresStorage is a storage.StorageProvider backed by a pgxpool.Pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
	notify.Fanout
}

var _ storage.StorageProvider = (*PostgresStorage)(nil)

// Open connects to dsn, applies the schema (idempotent, CREATE TABLE IF NOT
// EXISTS) and returns a ready PostgresStorage.
func Open(ctx context.Context, dsn string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: apply schema: %w", err)
	}
	s := &PostgresStorage{pool: pool}
	s.Fanout.StatsFn = func() jobs.JobStats {
		stats, _ := s.GetJobStats(context.Background())
		return stats
	}
	s.Fanout.ServersFn = func() []jobs.BackgroundJobServerStatus {
		servers, _ := s.GetServers(context.Background())
		return servers
	}
	s.Fanout.JobFn = func(id string) (*jobs.Job, bool) {
		job, err := s.GetJobByID(context.Background(), id)
		if err != nil {
			return nil, false
		}
		return job, true
	}
	return s, nil
}

// Save implements storage.StorageProvider.
func (s *PostgresStorage) Save(ctx context.Context, job *jobs.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("pgstore: marshal job: %w", err)
	}
	var scheduledAt *time.Time
	if job.State() == jobs.Scheduled {
		at := job.Current().ScheduledAt
		scheduledAt = &at
	}
	var recurringJobID *string
	if job.RecurringJobID != "" {
		recurringJobID = &job.RecurringJobID
	}
	now := time.Now()

	if job.Version == 1 {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO jobrunr_jobs (id, version, job_signature, state, created_at, updated_at, scheduled_at, recurring_job_id, job_as_json)
			VALUES ($1, $2, $3, $4, $5, $5, $6, $7, $8)`,
			job.ID, job.Version, job.JobSignature, string(job.State()), now, scheduledAt, recurringJobID, raw)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				existing, getErr := s.GetJobByID(ctx, job.ID)
				if getErr != nil {
					return getErr
				}
				return &errs.ConcurrentJobModification{Conflicts: []errs.Conflict{{Local: job, Remote: existing}}}
			}
			return fmt.Errorf("pgstore: insert job: %w", err)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE jobrunr_jobs
		SET version = $1, state = $2, updated_at = $3, scheduled_at = $4, job_as_json = $5
		WHERE id = $6 AND version = $7`,
		job.Version, string(job.State()), now, scheduledAt, raw, job.ID, job.Version-1)
	if err != nil {
		return fmt.Errorf("pgstore: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, getErr := s.GetJobByID(ctx, job.ID)
		if getErr != nil {
			return getErr
		}
		return &errs.ConcurrentJobModification{Conflicts: []errs.Conflict{{Local: job, Remote: existing}}}
	}
	return nil
}

// SaveAll implements storage.StorageProvider, applying the whole batch in a
// single transaction so a conflict on one job rolls back every other write
// in the same batch.
func (s *PostgresStorage) SaveAll(ctx context.Context, batch []*jobs.Job) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgstore: begin tx: %w", err)
	}
	var conflicts []errs.Conflict
	for _, job := range batch {
		if err := saveInTx(ctx, tx, job); err != nil {
			if cjm, ok := errs.AsConcurrentJobModification(err); ok {
				conflicts = append(conflicts, cjm.Conflicts...)
				continue
			}
			_ = tx.Rollback(ctx)
			return err
		}
	}
	if len(conflicts) > 0 {
		_ = tx.Rollback(ctx)
		return &errs.ConcurrentJobModification{Conflicts: conflicts}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgstore: commit tx: %w", err)
	}
	return nil
}

func saveInTx(ctx context.Context, tx pgx.Tx, job *jobs.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("pgstore: marshal job: %w", err)
	}
	var scheduledAt *time.Time
	if job.State() == jobs.Scheduled {
		at := job.Current().ScheduledAt
		scheduledAt = &at
	}
	var recurringJobID *string
	if job.RecurringJobID != "" {
		recurringJobID = &job.RecurringJobID
	}
	if job.Version == 1 {
		_, err := tx.Exec(ctx, `
			INSERT INTO jobrunr_jobs (id, version, job_signature, state, created_at, updated_at, scheduled_at, recurring_job_id, job_as_json)
			VALUES ($1, $2, $3, $4, NOW(), NOW(), $5, $6, $7)`,
			job.ID, job.Version, job.JobSignature, string(job.State()), scheduledAt, recurringJobID, raw)
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE jobrunr_jobs SET version = $1, state = $2, updated_at = NOW(), scheduled_at = $3, job_as_json = $4
		WHERE id = $5 AND version = $6`,
		job.Version, string(job.State()), scheduledAt, raw, job.ID, job.Version-1)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var existing jobs.Job
		row := tx.QueryRow(ctx, `SELECT job_as_json FROM jobrunr_jobs WHERE id = $1`, job.ID)
		var existingRaw []byte
		if scanErr := row.Scan(&existingRaw); scanErr != nil {
			return scanErr
		}
		if jsonErr := json.Unmarshal(existingRaw, &existing); jsonErr != nil {
			return jsonErr
		}
		return &errs.ConcurrentJobModification{Conflicts: []errs.Conflict{{Local: job, Remote: &existing}}}
	}
	return nil
}

// GetJobByID implements storage.StorageProvider.
func (s *PostgresStorage) GetJobByID(ctx context.Context, id string) (*jobs.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT job_as_json FROM jobrunr_jobs WHERE id = $1`, id)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrJobNotFound
		}
		return nil, fmt.Errorf("pgstore: scan job: %w", err)
	}
	var job jobs.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("pgstore: unmarshal job: %w", err)
	}
	return &job, nil
}

// Exists implements storage.StorageProvider.
func (s *PostgresStorage) Exists(ctx context.Context, signature string, states storage.StateFilter) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM jobrunr_jobs
		WHERE job_signature = $1 AND ($2::text[] IS NULL OR state = ANY($2))`,
		signature, stateNames(states)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("pgstore: exists: %w", err)
	}
	return n > 0, nil
}

// GetJobs implements storage.StorageProvider.
func (s *PostgresStorage) GetJobs(ctx context.Context, states storage.StateFilter, updatedBefore time.Time, page jobs.PageRequest) ([]*jobs.Job, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 1000
	}
	var before *time.Time
	if !updatedBefore.IsZero() {
		before = &updatedBefore
	}
	rows, err := s.pool.Query(ctx, `
		SELECT job_as_json FROM jobrunr_jobs
		WHERE ($1::text[] IS NULL OR state = ANY($1))
		  AND ($2::timestamptz IS NULL OR updated_at <= $2)
		ORDER BY updated_at ASC
		OFFSET $3 LIMIT $4`,
		stateNames(states), before, page.Offset, limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: get jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// GetScheduledJobs implements storage.StorageProvider.
func (s *PostgresStorage) GetScheduledJobs(ctx context.Context, at time.Time, page jobs.PageRequest) ([]*jobs.Job, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT job_as_json FROM jobrunr_jobs
		WHERE state = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
		OFFSET $3 LIMIT $4`,
		string(jobs.Scheduled), at, page.Offset, limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: get scheduled jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// CountJobs implements storage.StorageProvider.
func (s *PostgresStorage) CountJobs(ctx context.Context, states storage.StateFilter) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM jobrunr_jobs WHERE ($1::text[] IS NULL OR state = ANY($1))`,
		stateNames(states)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pgstore: count jobs: %w", err)
	}
	return n, nil
}

// DeleteJobs implements storage.StorageProvider.
func (s *PostgresStorage) DeleteJobs(ctx context.Context, states storage.StateFilter, updatedBefore time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobrunr_jobs
		WHERE ($1::text[] IS NULL OR state = ANY($1))
		  AND ($2::timestamptz IS NULL OR updated_at <= $2)`,
		stateNames(states), nullableTime(updatedBefore))
	if err != nil {
		return 0, fmt.Errorf("pgstore: delete jobs: %w", err)
	}
	removed := tag.RowsAffected()
	if removed > 0 && containsState(states, jobs.Succeeded) {
		if err := s.PublishJobStatCounter(ctx, removed); err != nil {
			logger.WarnF("pgstore: publish lifetime counter after delete: %v", err)
		}
	}
	return removed, nil
}

// GetJobStats implements storage.StorageProvider.
func (s *PostgresStorage) GetJobStats(ctx context.Context) (jobs.JobStats, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, count(*) FROM jobrunr_jobs GROUP BY state`)
	if err != nil {
		return jobs.JobStats{}, fmt.Errorf("pgstore: job stats: %w", err)
	}
	defer rows.Close()

	var stats jobs.JobStats
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return jobs.JobStats{}, err
		}
		switch jobs.StateName(state) {
		case jobs.Scheduled:
			stats.Scheduled = n
		case jobs.Enqueued:
			stats.Enqueued = n
		case jobs.Processing:
			stats.Processing = n
		case jobs.Succeeded:
			stats.Succeeded = n
		case jobs.Failed:
			stats.Failed = n
		case jobs.Deleted:
			stats.Deleted = n
		}
	}

	var lifetime int64
	err = s.pool.QueryRow(ctx, `SELECT amount FROM jobrunr_job_counters WHERE name = $1`, succeededLifetimeCounterName).Scan(&lifetime)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return jobs.JobStats{}, fmt.Errorf("pgstore: lifetime counter: %w", err)
	}
	stats.SucceededLifetime = lifetime
	return stats, nil
}

// PublishJobStatCounter implements storage.StorageProvider.
func (s *PostgresStorage) PublishJobStatCounter(ctx context.Context, delta int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobrunr_job_counters (name, amount) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET amount = jobrunr_job_counters.amount + $2`,
		succeededLifetimeCounterName, delta)
	if err != nil {
		return fmt.Errorf("pgstore: publish job stat counter: %w", err)
	}
	return nil
}

// SaveRecurringJob implements storage.StorageProvider.
func (s *PostgresStorage) SaveRecurringJob(ctx context.Context, rj *jobs.RecurringJob) error {
	raw, err := json.Marshal(rj)
	if err != nil {
		return fmt.Errorf("pgstore: marshal recurring job: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobrunr_recurring_jobs (id, version, job_as_json) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET version = $2, job_as_json = $3`,
		rj.ID, rj.Version, raw)
	if err != nil {
		return fmt.Errorf("pgstore: save recurring job: %w", err)
	}
	return nil
}

// GetRecurringJobs implements storage.StorageProvider.
func (s *PostgresStorage) GetRecurringJobs(ctx context.Context) ([]*jobs.RecurringJob, error) {
	rows, err := s.pool.Query(ctx, `SELECT job_as_json FROM jobrunr_recurring_jobs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: get recurring jobs: %w", err)
	}
	defer rows.Close()

	var out []*jobs.RecurringJob
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rj jobs.RecurringJob
		if err := json.Unmarshal(raw, &rj); err != nil {
			return nil, err
		}
		out = append(out, &rj)
	}
	return out, nil
}

// DeleteRecurringJob implements storage.StorageProvider.
func (s *PostgresStorage) DeleteRecurringJob(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM jobrunr_recurring_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgstore: delete recurring job: %w", err)
	}
	return nil
}

// AnnounceServer implements storage.StorageProvider.
func (s *PostgresStorage) AnnounceServer(ctx context.Context, status jobs.BackgroundJobServerStatus) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobrunr_background_job_servers
			(id, first_heartbeat, last_heartbeat, running, worker_pool_size, poll_interval_seconds, free_memory_mb, cpu_load, process_load)
		VALUES ($1, $2, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			last_heartbeat = $2, running = $3, worker_pool_size = $4, poll_interval_seconds = $5,
			free_memory_mb = $6, cpu_load = $7, process_load = $8`,
		status.ID, status.LastHeartbeat, status.IsRunning, status.WorkerPoolSize, status.PollIntervalSeconds,
		status.FreeMemoryMB, status.CPULoad, status.ProcessLoad)
	if err != nil {
		return fmt.Errorf("pgstore: announce server: %w", err)
	}
	return nil
}

// Heartbeat implements storage.StorageProvider.
func (s *PostgresStorage) Heartbeat(ctx context.Context, serverID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE jobrunr_background_job_servers SET last_heartbeat = NOW() WHERE id = $1`, serverID)
	if err != nil {
		return fmt.Errorf("pgstore: heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrJobNotFound
	}
	return nil
}

// GetServers implements storage.StorageProvider.
func (s *PostgresStorage) GetServers(ctx context.Context) ([]jobs.BackgroundJobServerStatus, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, first_heartbeat, last_heartbeat, running, worker_pool_size, poll_interval_seconds, free_memory_mb, cpu_load, process_load
		FROM jobrunr_background_job_servers ORDER BY first_heartbeat ASC`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: get servers: %w", err)
	}
	defer rows.Close()

	var out []jobs.BackgroundJobServerStatus
	for rows.Next() {
		var st jobs.BackgroundJobServerStatus
		if err := rows.Scan(&st.ID, &st.FirstHeartbeat, &st.LastHeartbeat, &st.IsRunning, &st.WorkerPoolSize,
			&st.PollIntervalSeconds, &st.FreeMemoryMB, &st.CPULoad, &st.ProcessLoad); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// RemoveTimedOutServers implements storage.StorageProvider.
func (s *PostgresStorage) RemoveTimedOutServers(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM jobrunr_background_job_servers WHERE last_heartbeat < $1 RETURNING id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("pgstore: remove timed out servers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close releases the connection pool and stops the notification ticker.
func (s *PostgresStorage) Close() error {
	_ = s.Fanout.Close()
	s.pool.Close()
	return nil
}

func scanJobs(rows pgx.Rows) ([]*jobs.Job, error) {
	var out []*jobs.Job
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var job jobs.Job
		if err := json.Unmarshal(raw, &job); err != nil {
			return nil, err
		}
		out = append(out, &job)
	}
	return out, rows.Err()
}

func stateNames(states storage.StateFilter) []string {
	if len(states) == 0 {
		return nil
	}
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = string(st)
	}
	return out
}

func containsState(states storage.StateFilter, name jobs.StateName) bool {
	if len(states) == 0 {
		return true
	}
	for _, st := range states {
		if st == name {
			return true
		}
	}
	return false
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
