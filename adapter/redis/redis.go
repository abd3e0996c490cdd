// Package redis implements the flume Adapter on Redis for high-throughput
// workloads. Jobs are stored as Hashes, each queue keeps a ready Sorted Set
// (score = priority + run-at) and a delayed Sorted Set (score = run-at),
// events travel over PUB/SUB with a pluggable envelope codec, and the DLQ
// is a Hash-per-entry with an index Set.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	a := redis.New(client)
//	if err := a.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flumeworks/flume/adapter"
	"github.com/flumeworks/flume/job"
)

// Compile-time interface check.
var _ adapter.Adapter = (*Redis)(nil)

// Client is the slice of go-redis needed by the adapter. *goredis.Client
// and *goredis.ClusterClient both satisfy it.
type Client interface {
	goredis.Cmdable
	Subscribe(ctx context.Context, channels ...string) *goredis.PubSub
}

// Option configures the Redis adapter.
type Option func(*Redis)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Redis) { r.logger = l }
}

// WithCodec sets the event envelope codec. Defaults to [JSONCodec].
func WithCodec(c Codec) Option {
	return func(r *Redis) { r.codec = c }
}

// Redis implements adapter.Adapter backed by Redis.
type Redis struct {
	client   Client
	registry *job.Registry
	codec    Codec
	logger   *slog.Logger

	// ownsClient is set when the adapter built the client itself (via
	// Open) and must close it.
	ownsClient bool
}

// New creates a Redis adapter over an existing client. The caller owns
// the client lifecycle.
func New(client Client, opts ...Option) *Redis {
	r := &Redis{
		client:   client,
		registry: job.NewRegistry(),
		codec:    JSONCodec{},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Open creates a Redis adapter with its own client built from the config.
// Close tears the client down.
func Open(cfg Config, opts ...Option) *Redis {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	r := New(client, opts...)
	r.ownsClient = true
	return r
}

// Registry returns the job definition registry backing this adapter.
func (r *Redis) Registry() *job.Registry { return r.registry }

// Client returns the underlying Redis client.
func (r *Redis) Client() Client { return r.client }

// Ping verifies the Redis connection is alive.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client when the adapter owns it (see Open).
func (r *Redis) Close() error {
	if !r.ownsClient {
		return nil
	}
	if c, ok := r.client.(*goredis.Client); ok {
		return c.Close()
	}
	return nil
}
