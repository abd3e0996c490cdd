package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/dlq"
	"github.com/flumeworks/flume/id"
)

// PushDLQ stores a dead letter entry as a Hash and indexes it.
func (r *Redis) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	eID := entry.ID.String()

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, dlqKey(eID), dlqToMap(entry))
	pipe.SAdd(ctx, dlqIDsKey, eID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flume/redis: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns dead letter entries, oldest failure first.
func (r *Redis) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	ids, err := r.client.SMembers(ctx, dlqIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("flume/redis: list dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(ids))
	for _, eID := range ids {
		entry, getErr := r.getDLQByKey(ctx, dlqKey(eID))
		if getErr != nil {
			continue // skip missing
		}
		if opts.Queue != "" && entry.Queue != opts.Queue {
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(a, b int) bool {
		return entries[a].FailedAt.Before(entries[b].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetDLQ retrieves a dead letter entry by ID.
func (r *Redis) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	return r.getDLQByKey(ctx, dlqKey(entryID.String()))
}

// ReplayDLQ marks an entry as replayed.
func (r *Redis) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	key := dlqKey(entryID.String())
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("flume/redis: replay dlq exists: %w", err)
	}
	if exists == 0 {
		return flume.ErrDLQNotFound
	}

	if err := r.client.HSet(ctx, key, "replayed_at", time.Now().UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return fmt.Errorf("flume/redis: replay dlq: %w", err)
	}
	return nil
}

// PurgeDLQ removes entries that failed before the given time.
func (r *Redis) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	ids, err := r.client.SMembers(ctx, dlqIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("flume/redis: purge dlq: %w", err)
	}

	var purged int64
	for _, eID := range ids {
		entry, getErr := r.getDLQByKey(ctx, dlqKey(eID))
		if getErr != nil {
			continue
		}
		if !entry.FailedAt.Before(before) {
			continue
		}

		pipe := r.client.TxPipeline()
		pipe.Del(ctx, dlqKey(eID))
		pipe.SRem(ctx, dlqIDsKey, eID)
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return purged, fmt.Errorf("flume/redis: purge dlq delete: %w", pErr)
		}
		purged++
	}
	return purged, nil
}

// CountDLQ returns the total number of dead letter entries.
func (r *Redis) CountDLQ(ctx context.Context) (int64, error) {
	n, err := r.client.SCard(ctx, dlqIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("flume/redis: count dlq: %w", err)
	}
	return n, nil
}

func dlqToMap(entry *dlq.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"id":           entry.ID.String(),
		"job_id":       entry.JobID.String(),
		"job_name":     entry.JobName,
		"queue":        entry.Queue,
		"payload":      string(entry.Payload),
		"error":        entry.Error,
		"attempts":     strconv.Itoa(entry.Attempts),
		"max_attempts": strconv.Itoa(entry.MaxAttempts),
		"scope_type":   entry.ScopeType,
		"scope_id":     entry.ScopeID,
		"failed_at":    entry.FailedAt.Format(time.RFC3339Nano),
		"created_at":   entry.CreatedAt.Format(time.RFC3339Nano),
	}
	if entry.ReplayedAt != nil {
		m["replayed_at"] = entry.ReplayedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (r *Redis) getDLQByKey(ctx context.Context, key string) (*dlq.Entry, error) {
	vals, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("flume/redis: get dlq: %w", err)
	}
	if len(vals) == 0 {
		return nil, flume.ErrDLQNotFound
	}
	return mapToDLQ(vals)
}

func mapToDLQ(m map[string]string) (*dlq.Entry, error) {
	eID, err := id.ParseDLQID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("flume/redis: parse dlq id: %w", err)
	}

	attempts, _ := strconv.Atoi(m["attempts"])        //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"]) //nolint:errcheck // best-effort parse from trusted Redis data

	failedAt, _ := time.Parse(time.RFC3339Nano, m["failed_at"])   //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	entry := &dlq.Entry{
		ID:          eID,
		JobName:     m["job_name"],
		Queue:       m["queue"],
		Payload:     []byte(m["payload"]),
		Error:       m["error"],
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		ScopeType:   m["scope_type"],
		ScopeID:     m["scope_id"],
		FailedAt:    failedAt,
		CreatedAt:   createdAt,
	}

	if v := m["job_id"]; v != "" {
		entry.JobID, _ = id.ParseJobID(v) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["replayed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		entry.ReplayedAt = &t
	}

	return entry, nil
}
