package flume

import (
	"fmt"
	"time"
)

// Limiter bounds dispatch rate: at most Max jobs may be dispatched within
// any window of Duration. Jobs exceeding the limit are held as delayed and
// retried when the window resets — backpressure, not loss.
//
// A Limiter may be attached at three levels: the job definition, the queue
// default, and the worker. Precedence, highest first: job > queue > worker.
// Only the highest-precedence limiter governs dispatch for a given job.
type Limiter struct {
	// Max is the number of jobs allowed per window. Must be positive.
	Max int

	// Duration is the window length. Must be positive.
	Duration time.Duration
}

// Validate rejects non-positive fields. Violated configurations are caught
// at construction time, never at dispatch time.
func (l Limiter) Validate() error {
	if l.Max <= 0 {
		return fmt.Errorf("%w: limiter max must be positive, got %d", ErrInvalidConfiguration, l.Max)
	}
	if l.Duration <= 0 {
		return fmt.Errorf("%w: limiter duration must be positive, got %s", ErrInvalidConfiguration, l.Duration)
	}
	return nil
}
