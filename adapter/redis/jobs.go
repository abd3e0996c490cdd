package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/adapter"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
)

// batchConcurrency caps the parallelism of batch job operations.
const batchConcurrency = 8

// EnqueueJob stores the job as a Hash and places it on the queue's ready
// or delayed Sorted Set depending on RunAt.
func (r *Redis) EnqueueJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("flume/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return flume.ErrJobAlreadyExists
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, jobToMap(j))
	pipe.SAdd(ctx, jobIDsKey, jID)
	pipe.SAdd(ctx, queueNamesKey, j.Queue)
	addToQueueSet(ctx, pipe, j)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flume/redis: enqueue job: %w", err)
	}
	return nil
}

// addToQueueSet places a job on the sorted set matching its state.
// Active and terminal jobs sit on neither set.
func addToQueueSet(ctx context.Context, pipe goredis.Pipeliner, j *job.Job) {
	jID := j.ID.String()
	now := time.Now().UTC()
	switch j.State {
	case job.StateDelayed:
		pipe.ZAdd(ctx, delayedKey(j.Queue), goredis.Z{Score: float64(j.RunAt.UnixMilli()), Member: jID})
	case job.StatePending, job.StateRetrying:
		if j.RunAt.After(now) {
			pipe.ZAdd(ctx, delayedKey(j.Queue), goredis.Z{Score: float64(j.RunAt.UnixMilli()), Member: jID})
		} else {
			pipe.ZAdd(ctx, readyKey(j.Queue), goredis.Z{Score: jobScore(j.Priority, j.RunAt), Member: jID})
		}
	}
}

// DequeueJobs promotes due delayed jobs, then atomically pops up to
// limit jobs from the given queues' ready sets. A non-positive limit
// pops everything due. Paused queues are skipped.
func (r *Redis) DequeueJobs(ctx context.Context, workerID id.WorkerID, queues []string, limit int) ([]*job.Job, error) {
	now := time.Now().UTC()
	var jobs []*job.Job

	for _, q := range queues {
		if limit > 0 && len(jobs) >= limit {
			break
		}

		paused, err := r.client.HGet(ctx, queueMetaKey(q), "paused").Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("flume/redis: dequeue paused check: %w", err)
		}
		if paused == "1" {
			continue
		}

		if err := r.promoteDue(ctx, q, now); err != nil {
			return nil, err
		}

		// A non-positive limit claims the whole ready set.
		popCount := int64(limit - len(jobs))
		if limit <= 0 {
			n, cardErr := r.client.ZCard(ctx, readyKey(q)).Result()
			if cardErr != nil {
				return nil, fmt.Errorf("flume/redis: dequeue zcard: %w", cardErr)
			}
			if n == 0 {
				continue
			}
			popCount = n
		}

		members, err := r.client.ZPopMin(ctx, readyKey(q), popCount).Result()
		if err != nil {
			return nil, fmt.Errorf("flume/redis: dequeue zpopmin: %w", err)
		}

		for _, z := range members {
			jID, ok := z.Member.(string)
			if !ok {
				continue
			}

			key := jobKey(jID)
			ts := now.Format(time.RFC3339Nano)
			if err := r.client.HSet(ctx, key,
				"state", string(job.StateActive),
				"worker_id", workerID.String(),
				"started_at", ts,
				"heartbeat_at", ts,
				"updated_at", ts,
			).Err(); err != nil {
				return nil, fmt.Errorf("flume/redis: dequeue claim: %w", err)
			}

			j, getErr := r.getJobByKey(ctx, key)
			if getErr != nil {
				return nil, getErr
			}
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

// promoteDue moves delayed jobs whose RunAt has passed onto the ready set.
func (r *Redis) promoteDue(ctx context.Context, queueName string, now time.Time) error {
	dk := delayedKey(queueName)
	due, err := r.client.ZRangeByScore(ctx, dk, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("flume/redis: promote due: %w", err)
	}

	for _, jID := range due {
		vals, getErr := r.client.HMGet(ctx, jobKey(jID), "priority", "run_at").Result()
		if getErr != nil {
			return fmt.Errorf("flume/redis: promote due get: %w", getErr)
		}
		priority := 0
		runAt := now
		if s, ok := vals[0].(string); ok {
			priority, _ = strconv.Atoi(s)
		}
		if s, ok := vals[1].(string); ok {
			if t, pErr := time.Parse(time.RFC3339Nano, s); pErr == nil {
				runAt = t
			}
		}

		pipe := r.client.TxPipeline()
		pipe.ZRem(ctx, dk, jID)
		pipe.ZAdd(ctx, readyKey(queueName), goredis.Z{Score: jobScore(priority, runAt), Member: jID})
		pipe.HSet(ctx, jobKey(jID), "state", string(job.StatePending))
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return fmt.Errorf("flume/redis: promote due move: %w", pErr)
		}
	}
	return nil
}

// GetJob retrieves a job by ID.
func (r *Redis) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return r.getJobByKey(ctx, jobKey(jobID.String()))
}

// UpdateJob persists changes to an existing job and reconciles its
// position on the queue sorted sets against the new state.
func (r *Redis) UpdateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("flume/redis: update job exists: %w", err)
	}
	if exists == 0 {
		return flume.ErrJobNotFound
	}

	fields := jobToMap(j)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.ZRem(ctx, readyKey(j.Queue), jID)
	pipe.ZRem(ctx, delayedKey(j.Queue), jID)
	addToQueueSet(ctx, pipe, j)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flume/redis: update job: %w", err)
	}
	return nil
}

// RemoveJob deletes a job, its logs, and its queue set entries.
func (r *Redis) RemoveJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	q, err := r.client.HGet(ctx, key, "queue").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return flume.ErrJobNotFound
		}
		return fmt.Errorf("flume/redis: remove job get queue: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, jobLogsKey(jID))
	pipe.SRem(ctx, jobIDsKey, jID)
	pipe.ZRem(ctx, readyKey(q), jID)
	pipe.ZRem(ctx, delayedKey(q), jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flume/redis: remove job: %w", err)
	}
	return nil
}

// RetryJob resets a failed or cancelled job to pending with a zero
// attempt count, runnable immediately.
func (r *Redis) RetryJob(ctx context.Context, jobID id.JobID) error {
	j, err := r.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !j.State.Terminal() {
		return fmt.Errorf("%w: cannot retry job in state %q", flume.ErrInvalidConfiguration, j.State)
	}

	now := time.Now().UTC()
	j.State = job.StatePending
	j.Attempts = 0
	j.LastError = ""
	j.RunAt = now
	j.StartedAt = nil
	j.CompletedAt = nil
	j.HeartbeatAt = nil
	return r.UpdateJob(ctx, j)
}

// PromoteJob moves a delayed job to pending, runnable immediately.
func (r *Redis) PromoteJob(ctx context.Context, jobID id.JobID) error {
	j, err := r.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.State != job.StateDelayed {
		return fmt.Errorf("%w: cannot promote job in state %q", flume.ErrInvalidConfiguration, j.State)
	}

	j.State = job.StatePending
	j.RunAt = time.Now().UTC()
	return r.UpdateJob(ctx, j)
}

// RetryJobs is the batch variant of RetryJob, fanned out in parallel.
func (r *Redis) RetryJobs(ctx context.Context, jobIDs []id.JobID) error {
	return r.batch(ctx, jobIDs, r.RetryJob)
}

// RemoveJobs is the batch variant of RemoveJob, fanned out in parallel.
func (r *Redis) RemoveJobs(ctx context.Context, jobIDs []id.JobID) error {
	return r.batch(ctx, jobIDs, r.RemoveJob)
}

// PromoteJobs is the batch variant of PromoteJob, fanned out in parallel.
func (r *Redis) PromoteJobs(ctx context.Context, jobIDs []id.JobID) error {
	return r.batch(ctx, jobIDs, r.PromoteJob)
}

func (r *Redis) batch(ctx context.Context, jobIDs []id.JobID, op func(context.Context, id.JobID) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for _, jobID := range jobIDs {
		g.Go(func() error { return op(ctx, jobID) })
	}
	return g.Wait()
}

// ListJobs returns jobs in a queue matching the given state. An empty
// state matches all states. Enumeration-based; intended for admin use.
func (r *Redis) ListJobs(ctx context.Context, queueName string, state job.State, opts adapter.ListOpts) ([]*job.Job, error) {
	ids, err := r.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("flume/redis: list jobs smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := r.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		if queueName != "" && j.Queue != queueName {
			continue
		}
		if state != "" && j.State != state {
			continue
		}
		jobs = append(jobs, j)
	}

	sortJobsByCreatedAt(jobs)

	if opts.Offset > 0 {
		if opts.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// AddJobLog appends a log line to a job's execution log.
func (r *Redis) AddJobLog(ctx context.Context, jobID id.JobID, message string) error {
	jID := jobID.String()
	exists, err := r.client.Exists(ctx, jobKey(jID)).Result()
	if err != nil {
		return fmt.Errorf("flume/redis: add log exists: %w", err)
	}
	if exists == 0 {
		return flume.ErrJobNotFound
	}

	line, err := json.Marshal(job.LogLine{Message: message, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("flume/redis: marshal log line: %w", err)
	}
	if err := r.client.RPush(ctx, jobLogsKey(jID), line).Err(); err != nil {
		return fmt.Errorf("flume/redis: add log: %w", err)
	}
	return nil
}

// GetJobLogs returns a job's log lines in append order.
func (r *Redis) GetJobLogs(ctx context.Context, jobID id.JobID) ([]job.LogLine, error) {
	jID := jobID.String()
	exists, err := r.client.Exists(ctx, jobKey(jID)).Result()
	if err != nil {
		return nil, fmt.Errorf("flume/redis: get logs exists: %w", err)
	}
	if exists == 0 {
		return nil, flume.ErrJobNotFound
	}

	raw, err := r.client.LRange(ctx, jobLogsKey(jID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("flume/redis: get logs: %w", err)
	}

	lines := make([]job.LogLine, 0, len(raw))
	for _, item := range raw {
		var line job.LogLine
		if uErr := json.Unmarshal([]byte(item), &line); uErr != nil {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// HeartbeatJob updates the heartbeat timestamp for an active job.
func (r *Redis) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	key := jobKey(jobID.String())
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("flume/redis: heartbeat exists: %w", err)
	}
	if exists == 0 {
		return flume.ErrJobNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := r.client.HSet(ctx, key,
		"heartbeat_at", now,
		"worker_id", workerID.String(),
		"updated_at", now,
	).Err(); err != nil {
		return fmt.Errorf("flume/redis: heartbeat job: %w", err)
	}
	return nil
}

// ReapStaleJobs moves active jobs whose last heartbeat is older than the
// threshold back to pending and returns them.
func (r *Redis) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-threshold)

	ids, err := r.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("flume/redis: reap smembers: %w", err)
	}

	var stale []*job.Job
	for _, jID := range ids {
		j, getErr := r.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if j.State != job.StateActive {
			continue
		}
		if j.HeartbeatAt == nil || !j.HeartbeatAt.Before(cutoff) {
			continue
		}

		j.State = job.StatePending
		j.WorkerID = id.Nil
		j.StartedAt = nil
		j.HeartbeatAt = nil
		j.RunAt = now
		if uErr := r.UpdateJob(ctx, j); uErr != nil {
			return stale, uErr
		}
		stale = append(stale, j)
	}
	return stale, nil
}

// ── helpers ──

// jobScore computes a ready-set score from priority and run_at.
// Lower score = dequeued first. Priority is negated so higher priority
// sorts first; a fractional time component keeps FIFO within a priority.
func jobScore(priority int, runAt time.Time) float64 {
	return float64(-priority) + float64(runAt.UnixMilli())/1e15
}

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":           j.ID.String(),
		"name":         j.Name,
		"queue":        j.Queue,
		"payload":      string(j.Payload),
		"state":        string(j.State),
		"priority":     strconv.Itoa(j.Priority),
		"max_attempts": strconv.Itoa(j.MaxAttempts),
		"attempts":     strconv.Itoa(j.Attempts),
		"last_error":   j.LastError,
		"scope_type":   j.ScopeType,
		"scope_id":     j.ScopeID,
		"worker_id":    j.WorkerID.String(),
		"run_at":       j.RunAt.Format(time.RFC3339Nano),
		"timeout":      strconv.FormatInt(int64(j.Timeout), 10),
		"repeat":       j.Repeat,
		"created_at":   j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		m["completed_at"] = j.CompletedAt.Format(time.RFC3339Nano)
	}
	if j.HeartbeatAt != nil {
		m["heartbeat_at"] = j.HeartbeatAt.Format(time.RFC3339Nano)
	}
	return m
}

func (r *Redis) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("flume/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, flume.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("flume/redis: parse job id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])           //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"])    //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"])           //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	runAt, _ := time.Parse(time.RFC3339Nano, m["run_at"])         //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: flume.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          jID,
		Name:        m["name"],
		Queue:       m["queue"],
		Payload:     []byte(m["payload"]),
		State:       job.State(m["state"]),
		Priority:    priority,
		MaxAttempts: maxAttempts,
		Attempts:    attempts,
		LastError:   m["last_error"],
		ScopeType:   m["scope_type"],
		ScopeID:     m["scope_id"],
		RunAt:       runAt,
		Timeout:     time.Duration(timeout),
		Repeat:      m["repeat"],
	}

	if wid := m["worker_id"]; wid != "" {
		j.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.StartedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.CompletedAt = &t
	}
	if v := m["heartbeat_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.HeartbeatAt = &t
	}

	return j, nil
}

func sortJobsByCreatedAt(jobs []*job.Job) {
	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})
}
