package adapter_test

import (
	"errors"
	"testing"
	"time"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/adapter"
)

func TestScheduleOpts_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    adapter.ScheduleOpts
		wantErr bool
	}{
		{"zero value", adapter.ScheduleOpts{}, false},
		{"delay only", adapter.ScheduleOpts{Delay: time.Minute}, false},
		{"at only", adapter.ScheduleOpts{At: time.Now().Add(time.Hour)}, false},
		{"every only", adapter.ScheduleOpts{Every: time.Minute}, false},
		{"cron only", adapter.ScheduleOpts{Cron: "0 3 * * *"}, false},
		{"cron descriptor", adapter.ScheduleOpts{Cron: "@hourly"}, false},
		{"delay and at", adapter.ScheduleOpts{Delay: time.Minute, At: time.Now()}, true},
		{"every and cron", adapter.ScheduleOpts{Every: time.Minute, Cron: "@hourly"}, true},
		{"negative delay", adapter.ScheduleOpts{Delay: -time.Second}, true},
		{"negative every", adapter.ScheduleOpts{Every: -time.Second}, true},
		{"bad cron", adapter.ScheduleOpts{Cron: "not a cron"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				if !errors.Is(err, flume.ErrInvalidConfiguration) {
					t.Errorf("Validate() = %v, want ErrInvalidConfiguration", err)
				}
			} else if err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestScheduleOpts_FirstRun(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("zero value runs now", func(t *testing.T) {
		got, err := adapter.ScheduleOpts{}.FirstRun(now)
		if err != nil {
			t.Fatalf("FirstRun: %v", err)
		}
		if !got.Equal(now) {
			t.Errorf("FirstRun = %v, want %v", got, now)
		}
	})

	t.Run("delay offsets now", func(t *testing.T) {
		got, err := adapter.ScheduleOpts{Delay: 30 * time.Minute}.FirstRun(now)
		if err != nil {
			t.Fatalf("FirstRun: %v", err)
		}
		if want := now.Add(30 * time.Minute); !got.Equal(want) {
			t.Errorf("FirstRun = %v, want %v", got, want)
		}
	})

	t.Run("at is absolute", func(t *testing.T) {
		at := now.Add(48 * time.Hour)
		got, err := adapter.ScheduleOpts{At: at}.FirstRun(now)
		if err != nil {
			t.Fatalf("FirstRun: %v", err)
		}
		if !got.Equal(at) {
			t.Errorf("FirstRun = %v, want %v", got, at)
		}
	})

	t.Run("cron starts at next occurrence", func(t *testing.T) {
		got, err := adapter.ScheduleOpts{Cron: "0 3 * * *"}.FirstRun(now)
		if err != nil {
			t.Fatalf("FirstRun: %v", err)
		}
		want := time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("FirstRun = %v, want %v", got, want)
		}
	})

	t.Run("every starts one interval out", func(t *testing.T) {
		got, err := adapter.ScheduleOpts{Every: 5 * time.Minute}.FirstRun(now)
		if err != nil {
			t.Fatalf("FirstRun: %v", err)
		}
		if want := now.Add(5 * time.Minute); !got.Equal(want) {
			t.Errorf("FirstRun = %v, want %v", got, want)
		}
	})
}

func TestScheduleOpts_Repeat(t *testing.T) {
	if got := (adapter.ScheduleOpts{}).Repeat(); got != "" {
		t.Errorf("Repeat() = %q, want empty for one-shot", got)
	}
	if got := (adapter.ScheduleOpts{Every: 5 * time.Minute}).Repeat(); got != "@every 5m0s" {
		t.Errorf("Repeat() = %q, want %q", got, "@every 5m0s")
	}
	if got := (adapter.ScheduleOpts{Cron: "0 3 * * *"}).Repeat(); got != "0 3 * * *" {
		t.Errorf("Repeat() = %q, want cron expression", got)
	}
}

func TestNextOccurrence(t *testing.T) {
	after := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("every descriptor", func(t *testing.T) {
		got, err := adapter.NextOccurrence("@every 5m0s", after)
		if err != nil {
			t.Fatalf("NextOccurrence: %v", err)
		}
		if want := after.Add(5 * time.Minute); !got.Equal(want) {
			t.Errorf("NextOccurrence = %v, want %v", got, want)
		}
	})

	t.Run("cron expression", func(t *testing.T) {
		got, err := adapter.NextOccurrence("0 3 * * *", after)
		if err != nil {
			t.Fatalf("NextOccurrence: %v", err)
		}
		want := time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("NextOccurrence = %v, want %v", got, want)
		}
	})

	t.Run("garbage rule", func(t *testing.T) {
		if _, err := adapter.NextOccurrence("nope", after); !errors.Is(err, flume.ErrInvalidConfiguration) {
			t.Errorf("NextOccurrence = %v, want ErrInvalidConfiguration", err)
		}
	})
}
