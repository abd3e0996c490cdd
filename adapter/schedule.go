package adapter

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flumeworks/flume"
)

// ScheduleOpts controls when a scheduled job first runs and whether it
// repeats. Delay and At are mutually exclusive, as are Every and Cron.
type ScheduleOpts struct {
	// Delay runs the job this long after scheduling.
	Delay time.Duration

	// At runs the job at an absolute time.
	At time.Time

	// Every repeats the job at a fixed interval after each terminal run.
	Every time.Duration

	// Cron repeats the job on a cron expression (standard five-field
	// syntax, descriptors like "@hourly" accepted).
	Cron string
}

// Validate checks the option combination and the cron expression.
func (o ScheduleOpts) Validate() error {
	if o.Delay < 0 {
		return fmt.Errorf("%w: schedule delay must not be negative", flume.ErrInvalidConfiguration)
	}
	if o.Delay > 0 && !o.At.IsZero() {
		return fmt.Errorf("%w: schedule delay and at are mutually exclusive", flume.ErrInvalidConfiguration)
	}
	if o.Every < 0 {
		return fmt.Errorf("%w: schedule every must not be negative", flume.ErrInvalidConfiguration)
	}
	if o.Every > 0 && o.Cron != "" {
		return fmt.Errorf("%w: schedule every and cron are mutually exclusive", flume.ErrInvalidConfiguration)
	}
	if o.Cron != "" {
		if _, err := cron.ParseStandard(o.Cron); err != nil {
			return fmt.Errorf("%w: invalid cron expression %q: %v", flume.ErrInvalidConfiguration, o.Cron, err)
		}
	}
	return nil
}

// FirstRun resolves the initial RunAt for the schedule. Without an
// explicit Delay or At, a cron schedule starts at its next occurrence
// and an interval schedule starts one interval out.
func (o ScheduleOpts) FirstRun(now time.Time) (time.Time, error) {
	switch {
	case !o.At.IsZero():
		return o.At, nil
	case o.Delay > 0:
		return now.Add(o.Delay), nil
	case o.Cron != "":
		sched, err := cron.ParseStandard(o.Cron)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: invalid cron expression %q: %v", flume.ErrInvalidConfiguration, o.Cron, err)
		}
		return sched.Next(now), nil
	case o.Every > 0:
		return now.Add(o.Every), nil
	default:
		return now, nil
	}
}

// Repeat returns the repetition rule carried on the job, or "" for a
// one-shot schedule.
func (o ScheduleOpts) Repeat() string {
	switch {
	case o.Cron != "":
		return o.Cron
	case o.Every > 0:
		return "@every " + o.Every.String()
	default:
		return ""
	}
}

// NextOccurrence computes the next run time for a job's repeat rule.
// The rule is either a cron expression or an "@every <duration>"
// descriptor, both handled by the cron parser.
func NextOccurrence(repeat string, after time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(repeat)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid repeat rule %q: %v", flume.ErrInvalidConfiguration, repeat, err)
	}
	return sched.Next(after), nil
}
