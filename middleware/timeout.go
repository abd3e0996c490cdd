package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flumeworks/flume"
	"github.com/flumeworks/flume/job"
)

// Timeout returns middleware that enforces a per-job execution deadline.
// If the job has a non-zero Timeout, a context.WithTimeout wraps the handler
// call. When the deadline is exceeded and the handler returns the context
// error, it is wrapped in [flume.ErrTimeout].
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.Timeout <= 0 {
			return next(ctx)
		}

		logger.Debug("job timeout set",
			slog.String("job_id", j.ID.String()),
			slog.Duration("timeout", j.Timeout),
		)
		ctx, cancel := context.WithTimeout(ctx, j.Timeout)
		defer cancel()

		err := next(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: job %s exceeded %s", flume.ErrTimeout, j.Name, j.Timeout)
		}
		return err
	}
}
