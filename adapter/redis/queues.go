package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
	"github.com/flumeworks/flume/queue"
)

// ListQueues returns all known queues sorted by name. Queues registered
// in the local registry are included even before their first job lands
// in Redis.
func (r *Redis) ListQueues(ctx context.Context) ([]*queue.Queue, error) {
	names, err := r.client.SMembers(ctx, queueNamesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("flume/redis: list queues: %w", err)
	}

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		seen[name] = struct{}{}
	}
	for _, name := range r.registry.Queues() {
		if _, ok := seen[name]; !ok {
			names = append(names, name)
			seen[name] = struct{}{}
		}
	}
	sort.Strings(names)

	queues := make([]*queue.Queue, 0, len(names))
	for _, name := range names {
		q, getErr := r.getQueue(ctx, name)
		if getErr != nil {
			return nil, getErr
		}
		queues = append(queues, q)
	}
	return queues, nil
}

// GetQueue returns a queue by name.
func (r *Redis) GetQueue(ctx context.Context, name string) (*queue.Queue, error) {
	known, err := r.client.SIsMember(ctx, queueNamesKey, name).Result()
	if err != nil {
		return nil, fmt.Errorf("flume/redis: get queue: %w", err)
	}
	if !known && !r.registry.HasQueue(name) {
		return nil, fmt.Errorf("%w: %q", flume.ErrQueueNotFound, name)
	}
	return r.getQueue(ctx, name)
}

func (r *Redis) getQueue(ctx context.Context, name string) (*queue.Queue, error) {
	meta, err := r.client.HGetAll(ctx, queueMetaKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("flume/redis: get queue meta: %w", err)
	}

	q := &queue.Queue{Name: name}
	q.Paused = meta["paused"] == "1"

	if v := meta["created_at"]; v != "" {
		q.CreatedAt, _ = time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := meta["updated_at"]; v != "" {
		q.UpdatedAt, _ = time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if maxStr := meta["limiter_max"]; maxStr != "" {
		max, _ := strconv.Atoi(maxStr)                               //nolint:errcheck // best-effort parse from trusted Redis data
		dur, _ := strconv.ParseInt(meta["limiter_duration"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data
		q.DefaultLimiter = &flume.Limiter{Max: max, Duration: time.Duration(dur)}
	}
	return q, nil
}

// CountQueueJobs tallies a queue's jobs per state.
func (r *Redis) CountQueueJobs(ctx context.Context, name string) (queue.Counts, error) {
	if _, err := r.GetQueue(ctx, name); err != nil {
		return queue.Counts{}, err
	}

	ids, err := r.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return queue.Counts{}, fmt.Errorf("flume/redis: count queue jobs: %w", err)
	}

	counts := queue.Counts{}
	for _, jID := range ids {
		vals, getErr := r.client.HMGet(ctx, jobKey(jID), "queue", "state").Result()
		if getErr != nil {
			continue
		}
		q, _ := vals[0].(string)
		if q != name {
			continue
		}
		state, _ := vals[1].(string)
		switch job.State(state) {
		case job.StatePending:
			counts.Pending++
		case job.StateDelayed:
			counts.Delayed++
		case job.StateActive:
			counts.Active++
		case job.StateCompleted:
			counts.Completed++
		case job.StateFailed:
			counts.Failed++
		case job.StateRetrying:
			counts.Retrying++
		}
	}
	return counts, nil
}

// PauseQueue stops workers from dequeuing the queue's jobs. Jobs keep
// accumulating; in-flight jobs finish normally.
func (r *Redis) PauseQueue(ctx context.Context, name string) error {
	return r.setPaused(ctx, name, true)
}

// ResumeQueue re-enables dequeuing for a paused queue.
func (r *Redis) ResumeQueue(ctx context.Context, name string) error {
	return r.setPaused(ctx, name, false)
}

func (r *Redis) setPaused(ctx context.Context, name string, paused bool) error {
	if _, err := r.GetQueue(ctx, name); err != nil {
		return err
	}

	val := "0"
	if paused {
		val = "1"
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, queueNamesKey, name)
	pipe.HSet(ctx, queueMetaKey(name),
		"paused", val,
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flume/redis: set queue paused: %w", err)
	}
	return nil
}

// SetQueueLimiter sets or clears (nil) the queue's default rate limiter.
func (r *Redis) SetQueueLimiter(ctx context.Context, name string, lim *flume.Limiter) error {
	if _, err := r.GetQueue(ctx, name); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, queueNamesKey, name)
	if lim == nil {
		pipe.HDel(ctx, queueMetaKey(name), "limiter_max", "limiter_duration")
		pipe.HSet(ctx, queueMetaKey(name), "updated_at", now)
	} else {
		if err := lim.Validate(); err != nil {
			return err
		}
		pipe.HSet(ctx, queueMetaKey(name),
			"limiter_max", strconv.Itoa(lim.Max),
			"limiter_duration", strconv.FormatInt(int64(lim.Duration), 10),
			"updated_at", now,
		)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flume/redis: set queue limiter: %w", err)
	}
	return nil
}

// CleanQueue bulk-removes a queue's jobs matching the criteria and
// returns how many were removed.
func (r *Redis) CleanQueue(ctx context.Context, name string, criteria queue.CleanCriteria) (int64, error) {
	if _, err := r.GetQueue(ctx, name); err != nil {
		return 0, err
	}

	ids, err := r.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("flume/redis: clean queue: %w", err)
	}

	now := time.Now().UTC()
	var removed int64
	for _, jID := range ids {
		if criteria.Limit > 0 && removed >= int64(criteria.Limit) {
			break
		}
		j, getErr := r.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if j.Queue != name || !criteria.Matches(j, now) {
			continue
		}
		if remErr := r.RemoveJob(ctx, j.ID); remErr != nil && !errors.Is(remErr, flume.ErrJobNotFound) {
			return removed, remErr
		}
		removed++
	}
	return removed, nil
}

// DrainQueue removes all waiting jobs (pending, delayed, retrying) from
// a queue. Active jobs are left to finish.
func (r *Redis) DrainQueue(ctx context.Context, name string) (int64, error) {
	if _, err := r.GetQueue(ctx, name); err != nil {
		return 0, err
	}

	var drained int64
	for _, key := range []string{readyKey(name), delayedKey(name)} {
		ids, err := r.client.ZRange(ctx, key, 0, -1).Result()
		if err != nil {
			return drained, fmt.Errorf("flume/redis: drain queue: %w", err)
		}
		for _, jID := range ids {
			parsed, pErr := id.ParseJobID(jID)
			if pErr != nil {
				continue
			}
			if remErr := r.RemoveJob(ctx, parsed); remErr != nil && !errors.Is(remErr, flume.ErrJobNotFound) {
				return drained, remErr
			}
			drained++
		}
	}
	return drained, nil
}
