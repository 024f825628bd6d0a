package notify

import (
	"context"
	"log/slog"
)

type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	attrs := []slog.Attr{
		slog.String("task_id", event.TaskID),
		slog.String("task_type", event.TaskType),
		slog.String("queue", event.Queue),
		slog.Int("retry_counter", event.RetryCounter),
		slog.Int("total_try_counter", event.TotalTryCounter),
	}

	switch {
	case event.Kind == KindSucceeded:
		n.logger.LogAttrs(ctx, slog.LevelInfo, "task succeeded", attrs...)
	case event.Permanent:
		attrs = append(attrs,
			slog.String("error", event.Error),
			slog.Any("removed_dependents", event.RemovedDependents),
		)
		n.logger.LogAttrs(ctx, slog.LevelError, "task failed permanently", attrs...)
	default:
		attrs = append(attrs,
			slog.String("error", event.Error),
			slog.Bool("requeued", event.Requeued),
		)
		n.logger.LogAttrs(ctx, slog.LevelWarn, "task failed", attrs...)
	}
	return nil
}
