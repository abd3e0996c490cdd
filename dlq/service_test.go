package dlq_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/adapter/memory"
	flumedlq "github.com/flumeworks/flume/dlq"
	"github.com/flumeworks/flume/id"
	"github.com/flumeworks/flume/job"
)

func newTestJob(name string, payload []byte) *job.Job {
	now := time.Now().UTC()
	return &job.Job{
		Entity:      flume.NewEntity(),
		ID:          id.NewJobID(),
		Name:        name,
		Queue:       "default",
		Payload:     payload,
		State:       job.StateFailed,
		MaxAttempts: 3,
		Attempts:    3,
		LastError:   "test error",
		ScopeType:   "organization",
		ScopeID:     "org_test",
		RunAt:       now,
	}
}

func TestService_Push_BuildsEntryFromJob(t *testing.T) {
	m := memory.New()
	svc := flumedlq.NewService(m, m)
	ctx := context.Background()

	j := newTestJob("send-email", []byte(`{"to":"alice@example.com"}`))
	jobErr := errors.New("smtp timeout")

	if err := svc.Push(ctx, j, jobErr); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := m.ListDLQ(ctx, flumedlq.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.JobID != j.ID {
		t.Errorf("JobID = %v, want %v", entry.JobID, j.ID)
	}
	if entry.JobName != "send-email" {
		t.Errorf("JobName = %q, want %q", entry.JobName, "send-email")
	}
	if entry.Queue != "default" {
		t.Errorf("Queue = %q, want %q", entry.Queue, "default")
	}
	if string(entry.Payload) != `{"to":"alice@example.com"}` {
		t.Errorf("Payload = %q", entry.Payload)
	}
	if entry.Error != "smtp timeout" {
		t.Errorf("Error = %q, want %q", entry.Error, "smtp timeout")
	}
	if entry.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", entry.Attempts)
	}
	if entry.ScopeType != "organization" || entry.ScopeID != "org_test" {
		t.Errorf("scope = %q/%q, want organization/org_test", entry.ScopeType, entry.ScopeID)
	}
	if entry.FailedAt.IsZero() {
		t.Error("expected FailedAt to be set")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestService_Push_CountIncreases(t *testing.T) {
	m := memory.New()
	svc := flumedlq.NewService(m, m)
	ctx := context.Background()

	for i := range 3 {
		j := newTestJob(fmt.Sprintf("job-%d", i), nil)
		if err := svc.Push(ctx, j, errors.New("fail")); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}

	count, err := m.CountDLQ(ctx)
	if err != nil {
		t.Fatalf("CountDLQ: %v", err)
	}
	if count != 3 {
		t.Errorf("CountDLQ = %d, want 3", count)
	}
}

func TestService_Replay_CreatesNewPendingJob(t *testing.T) {
	m := memory.New()
	svc := flumedlq.NewService(m, m)
	ctx := context.Background()

	original := newTestJob("replay-me", []byte(`{"key":"value"}`))
	if err := svc.Push(ctx, original, errors.New("original error")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := m.ListDLQ(ctx, flumedlq.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", len(entries))
	}
	entryID := entries[0].ID

	replayed, err := svc.Replay(ctx, entryID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if replayed.ID == original.ID {
		t.Error("replayed job should have a new ID")
	}
	if replayed.State != job.StatePending {
		t.Errorf("State = %q, want %q", replayed.State, job.StatePending)
	}
	if replayed.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", replayed.Attempts)
	}
	if replayed.Name != "replay-me" {
		t.Errorf("Name = %q, want %q", replayed.Name, "replay-me")
	}
	if string(replayed.Payload) != `{"key":"value"}` {
		t.Errorf("Payload = %q", replayed.Payload)
	}
	if replayed.ScopeType != "organization" {
		t.Errorf("ScopeType = %q, want %q", replayed.ScopeType, "organization")
	}

	got, err := m.GetJob(ctx, replayed.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StatePending {
		t.Errorf("stored job State = %q, want %q", got.State, job.StatePending)
	}
}

func TestService_Replay_MarksDLQEntryAsReplayed(t *testing.T) {
	m := memory.New()
	svc := flumedlq.NewService(m, m)
	ctx := context.Background()

	j := newTestJob("replay-mark", nil)
	if err := svc.Push(ctx, j, errors.New("fail")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := m.ListDLQ(ctx, flumedlq.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	entryID := entries[0].ID

	if _, replayErr := svc.Replay(ctx, entryID); replayErr != nil {
		t.Fatalf("Replay: %v", replayErr)
	}

	entry, err := m.GetDLQ(ctx, entryID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if entry.ReplayedAt == nil {
		t.Error("expected ReplayedAt to be set after replay")
	}
}

func TestService_Replay_NotFoundReturnsError(t *testing.T) {
	m := memory.New()
	svc := flumedlq.NewService(m, m)
	ctx := context.Background()

	if _, err := svc.Replay(ctx, id.NewDLQID()); !errors.Is(err, flume.ErrDLQNotFound) {
		t.Fatalf("Replay = %v, want ErrDLQNotFound", err)
	}
}

// failingMarkStore fails only the replayed-at mark, after the job has
// already been enqueued.
type failingMarkStore struct {
	flumedlq.Store
	markErr error
}

func (s *failingMarkStore) ReplayDLQ(context.Context, id.DLQID) error {
	return s.markErr
}

func TestService_Replay_MarkFailureStillReturnsJob(t *testing.T) {
	m := memory.New()
	ctx := context.Background()

	base := flumedlq.NewService(m, m)
	j := newTestJob("send-email", []byte(`{}`))
	if err := base.Push(ctx, j, errors.New("boom")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	entries, err := m.ListDLQ(ctx, flumedlq.ListOpts{})
	if err != nil || len(entries) != 1 {
		t.Fatalf("ListDLQ = %v entries, err %v", len(entries), err)
	}

	markErr := errors.New("store unavailable")
	svc := flumedlq.NewService(&failingMarkStore{Store: m, markErr: markErr}, m)

	replayed, err := svc.Replay(ctx, entries[0].ID)
	if !errors.Is(err, markErr) {
		t.Fatalf("Replay err = %v, want the mark failure", err)
	}
	if replayed == nil {
		t.Fatal("Replay must return the enqueued job alongside the mark failure")
	}

	// The replacement job really was enqueued despite the failed mark.
	got, err := m.GetJob(ctx, replayed.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StatePending {
		t.Fatalf("state = %q, want pending", got.State)
	}
}
