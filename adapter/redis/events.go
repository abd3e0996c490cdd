package redis

import (
	"context"
	"fmt"

	"github.com/flumeworks/flume/events"
)

// subscriberBuffer is the per-subscription channel capacity. Slow
// consumers drop events rather than stall the receive loop.
const subscriberBuffer = 128

// PublishEvent encodes the event with the configured codec and publishes
// it on the given PUB/SUB channel.
func (r *Redis) PublishEvent(ctx context.Context, channel string, evt events.JobEvent) error {
	data, err := r.codec.Marshal(evt)
	if err != nil {
		return fmt.Errorf("flume/redis: marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("flume/redis: publish event: %w", err)
	}
	return nil
}

// Subscribe opens a PUB/SUB subscription on the channel. The returned
// cancel func closes the subscription and the event channel.
func (r *Redis) Subscribe(ctx context.Context, channel string) (<-chan events.JobEvent, func(), error) {
	sub := r.client.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed so callers don't miss
	// events published immediately after Subscribe returns.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("flume/redis: subscribe %q: %w", channel, err)
	}

	out := make(chan events.JobEvent, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			evt, err := r.codec.Unmarshal([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("flume/redis: dropping undecodable event",
					"channel", channel, "error", err)
				continue
			}
			select {
			case out <- evt:
			default: // slow consumer, drop
			}
		}
	}()

	cancel := func() {
		_ = sub.Close() //nolint:errcheck // best-effort teardown
	}
	return out, cancel, nil
}
