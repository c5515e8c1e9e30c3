package middleware

import (
	"context"
	"log/slog"

	"rentcar/internal/app/commands"
	"rentcar/internal/app/outbox"
)

// OutboxFlush pushes recorded events once a command has committed. The command's result
// stands even if the flush fails: the records stay queued for the next flush or worker
// pass, so the failure is only logged.
func OutboxFlush(box outbox.Outbox, logger *slog.Logger) CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		return commands.BusFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := next.Dispatch(ctx, cmd)
			if err != nil {
				return nil, err
			}
			if err := box.Flush(ctx); err != nil {
				logger.WarnContext(ctx, "outbox flush failed", "command", cmd.Key(), "err", err)
			}
			return res, nil
		})
	}
}
