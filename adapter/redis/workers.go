package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/adapter"
	"github.com/flumeworks/flume/id"
)

// RegisterWorker records a worker's presence and configuration.
func (r *Redis) RegisterWorker(ctx context.Context, w *adapter.Worker) error {
	wID := w.ID.String()

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, workerKey(wID), workerToMap(w))
	pipe.SAdd(ctx, workerIDsKey, wID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flume/redis: register worker: %w", err)
	}
	return nil
}

// WorkerHeartbeat advances a worker's last-seen timestamp.
func (r *Redis) WorkerHeartbeat(ctx context.Context, workerID id.WorkerID) error {
	key := workerKey(workerID.String())
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("flume/redis: worker heartbeat exists: %w", err)
	}
	if exists == 0 {
		return flume.ErrWorkerNotFound
	}

	if err := r.client.HSet(ctx, key, "last_seen", time.Now().UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return fmt.Errorf("flume/redis: worker heartbeat: %w", err)
	}
	return nil
}

// DeregisterWorker marks a worker stopped. The record is kept for
// inspection.
func (r *Redis) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	key := workerKey(workerID.String())
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("flume/redis: deregister worker exists: %w", err)
	}
	if exists == 0 {
		return flume.ErrWorkerNotFound
	}

	if err := r.client.HSet(ctx, key,
		"state", string(adapter.WorkerStopped),
		"last_seen", time.Now().UTC().Format(time.RFC3339Nano),
	).Err(); err != nil {
		return fmt.Errorf("flume/redis: deregister worker: %w", err)
	}
	return nil
}

// ListWorkers returns all known workers, oldest registration first.
func (r *Redis) ListWorkers(ctx context.Context) ([]*adapter.Worker, error) {
	ids, err := r.client.SMembers(ctx, workerIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("flume/redis: list workers: %w", err)
	}

	workers := make([]*adapter.Worker, 0, len(ids))
	for _, wID := range ids {
		vals, getErr := r.client.HGetAll(ctx, workerKey(wID)).Result()
		if getErr != nil && !errors.Is(getErr, goredis.Nil) {
			return nil, fmt.Errorf("flume/redis: list workers get: %w", getErr)
		}
		if len(vals) == 0 {
			continue
		}
		w, mapErr := mapToWorker(vals)
		if mapErr != nil {
			continue
		}
		workers = append(workers, w)
	}

	sort.Slice(workers, func(a, b int) bool {
		return workers[a].CreatedAt.Before(workers[b].CreatedAt)
	})
	return workers, nil
}

func workerToMap(w *adapter.Worker) map[string]interface{} {
	return map[string]interface{}{
		"id":          w.ID.String(),
		"queues":      strings.Join(w.Queues, ","),
		"concurrency": strconv.Itoa(w.Concurrency),
		"state":       string(w.State),
		"last_seen":   w.LastSeen.Format(time.RFC3339Nano),
		"created_at":  w.CreatedAt.Format(time.RFC3339Nano),
	}
}

func mapToWorker(m map[string]string) (*adapter.Worker, error) {
	wID, err := id.ParseWorkerID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("flume/redis: parse worker id: %w", err)
	}

	concurrency, _ := strconv.Atoi(m["concurrency"]) //nolint:errcheck // best-effort parse from trusted Redis data

	lastSeen, _ := time.Parse(time.RFC3339Nano, m["last_seen"])   //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	w := &adapter.Worker{
		ID:          wID,
		Concurrency: concurrency,
		State:       adapter.WorkerState(m["state"]),
		LastSeen:    lastSeen,
		CreatedAt:   createdAt,
	}
	if q := m["queues"]; q != "" {
		w.Queues = strings.Split(q, ",")
	}
	return w, nil
}
