package adapter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/adapter"
	"github.com/flumeworks/flume/adapter/memory"
	"github.com/flumeworks/flume/events"
	"github.com/flumeworks/flume/job"
	"github.com/flumeworks/flume/scope"
)

type emailPayload struct {
	To string `json:"to"`
}

func newEmailAdapter(t *testing.T) *memory.Memory {
	t.Helper()

	mem := memory.New()
	t.Cleanup(func() { mem.Close() })

	def := job.NewDefinition("send", func(_ context.Context, _ emailPayload) error {
		return nil
	}, job.WithMaxAttempts(5), job.WithPriority(2))
	if err := adapter.RegisterJob(mem, "email", def); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}
	return mem
}

func TestEnqueueAppliesDefinitionDefaults(t *testing.T) {
	t.Parallel()

	mem := newEmailAdapter(t)

	j, err := adapter.Enqueue(context.Background(), mem, "email", "send", emailPayload{To: "a@b.c"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if j.State != job.StatePending {
		t.Fatalf("state = %q, want pending", j.State)
	}
	if j.MaxAttempts != 5 || j.Priority != 2 {
		t.Fatalf("defaults not applied: %+v", j)
	}
	if string(j.Payload) != `{"to":"a@b.c"}` {
		t.Fatalf("payload = %s", j.Payload)
	}
}

func TestEnqueueCallOptionsOverrideDefaults(t *testing.T) {
	t.Parallel()

	mem := newEmailAdapter(t)

	j, err := adapter.Enqueue(context.Background(), mem, "email", "send", emailPayload{},
		job.WithMaxAttempts(1), job.WithPriority(9))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j.MaxAttempts != 1 || j.Priority != 9 {
		t.Fatalf("overrides not applied: %+v", j)
	}
}

func TestEnqueueUnknownQueueAndJob(t *testing.T) {
	t.Parallel()

	mem := newEmailAdapter(t)
	ctx := context.Background()

	_, err := adapter.Enqueue(ctx, mem, "no-such-queue", "send", emailPayload{})
	if !errors.Is(err, flume.ErrQueueNotRegistered) {
		t.Fatalf("err = %v, want ErrQueueNotRegistered", err)
	}

	_, err = adapter.Enqueue(ctx, mem, "email", "no-such-job", emailPayload{})
	if !errors.Is(err, flume.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestScheduleDelayedJob(t *testing.T) {
	t.Parallel()

	mem := newEmailAdapter(t)

	before := time.Now().UTC()
	j, err := adapter.Schedule(context.Background(), mem, "email", "send", emailPayload{},
		adapter.ScheduleOpts{Delay: time.Hour})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if j.State != job.StateDelayed {
		t.Fatalf("state = %q, want delayed", j.State)
	}
	if j.RunAt.Before(before.Add(59 * time.Minute)) {
		t.Fatalf("RunAt = %s, want about an hour out", j.RunAt)
	}
}

func TestScheduleEverySetsRepeat(t *testing.T) {
	t.Parallel()

	mem := newEmailAdapter(t)

	j, err := adapter.Schedule(context.Background(), mem, "email", "send", emailPayload{},
		adapter.ScheduleOpts{Every: 5 * time.Minute})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if j.Repeat != "@every 5m0s" {
		t.Fatalf("Repeat = %q", j.Repeat)
	}
}

func TestEnqueueCapturesScope(t *testing.T) {
	t.Parallel()

	mem := newEmailAdapter(t)

	ctx, err := scope.Attach(context.Background(), scope.Entry{Type: "organization", ID: "org_42"})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	j, err := adapter.Enqueue(ctx, mem, "email", "send", emailPayload{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j.ScopeType != "organization" || j.ScopeID != "org_42" {
		t.Fatalf("scope = %q/%q", j.ScopeType, j.ScopeID)
	}
}

func TestScheduleInvalidOpts(t *testing.T) {
	t.Parallel()

	mem := newEmailAdapter(t)

	_, err := adapter.Schedule(context.Background(), mem, "email", "send", emailPayload{},
		adapter.ScheduleOpts{Every: time.Minute, Cron: "0 * * * *"})
	if !errors.Is(err, flume.ErrInvalidConfiguration) {
		t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestEnqueuePublishesEnqueuedEvent(t *testing.T) {
	t.Parallel()

	mem := newEmailAdapter(t)

	base := events.BaseChannel(events.DefaultPrefix, events.DefaultEnvironment, events.DefaultService)
	ch, cancel, err := mem.Subscribe(context.Background(), base)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	j, err := adapter.Enqueue(context.Background(), mem, "email", "send", emailPayload{To: "a@b.test"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case evt := <-ch:
		if evt.Type != "email:send:enqueued" {
			t.Fatalf("evt.Type = %q, want %q", evt.Type, "email:send:enqueued")
		}
		if evt.Payload["jobId"] != j.ID.String() {
			t.Fatalf("evt.Payload[jobId] = %v, want %s", evt.Payload["jobId"], j.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no enqueued event on base channel")
	}
}

func TestEnqueuePublishesEnqueuedEventToScopeChannel(t *testing.T) {
	t.Parallel()

	mem := newEmailAdapter(t)

	router := events.NewRouter(mem, events.DefaultService, events.DefaultEnvironment)
	scoped := router.ScopeChannel(scope.Entry{Type: "organization", ID: "org_7"})
	ch, cancel, err := mem.Subscribe(context.Background(), scoped)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	ctx, err := scope.Attach(context.Background(), scope.Entry{Type: "organization", ID: "org_7"})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if _, err := adapter.Enqueue(ctx, mem, "email", "send", emailPayload{}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case evt := <-ch:
		if evt.Type != "email:send:enqueued" {
			t.Fatalf("evt.Type = %q, want %q", evt.Type, "email:send:enqueued")
		}
	case <-time.After(time.Second):
		t.Fatal("no enqueued event on scope channel")
	}
}
