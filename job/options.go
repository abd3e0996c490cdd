package job

import "time"

// Options configures per-job behavior such as retries, priority, and timeout.
type Options struct {
	// MaxAttempts is the total attempt ceiling (first run included)
	// before a job is declared failed and sent to the DLQ.
	MaxAttempts int

	// Priority determines dequeue ordering. Higher values are processed first.
	Priority int

	// Timeout is the maximum duration a job may run before being cancelled.
	Timeout time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		Priority:    0,
		Timeout:     5 * time.Minute,
	}
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithMaxAttempts sets the total attempt ceiling.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

// WithPriority sets the job priority. Higher values are processed first.
func WithPriority(p int) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithTimeout sets the maximum execution duration for the job.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}
