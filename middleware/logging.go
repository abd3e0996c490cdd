package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/flumeworks/flume/job"
)

// Logging returns middleware that logs the lifecycle of each attempt.
// Every line carries the job identity, queue, and attempt number;
// scoped jobs additionally carry their tenant scope.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		l := logger.With(
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
			slog.String("queue", j.Queue),
			slog.Int("attempt", j.Attempts),
		)
		if j.ScopeType != "" {
			l = l.With(
				slog.String("scope_type", j.ScopeType),
				slog.String("scope_id", j.ScopeID),
			)
		}

		l.Info("job attempt started")

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			l.Error("job attempt failed",
				slog.Duration("elapsed", elapsed),
				slog.Int("max_attempts", j.MaxAttempts),
				slog.String("error", err.Error()),
			)
			return err
		}

		l.Info("job attempt completed",
			slog.Duration("elapsed", elapsed),
		)
		return nil
	}
}
