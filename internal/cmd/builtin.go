package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/registry"
	"github.com/RezaEskandarii/taskfire/types"
)

// builtinRegistry holds the task types the CLI can run without host code.
func builtinRegistry(logger *slog.Logger) (*registry.Registry, error) {
	reg := registry.New()

	if err := reg.RegisterFunc("echo", func(ctx context.Context, task *types.Task) error {
		logger.Info("echo", slog.String("task_id", task.ID), slog.Any("data", task.Data))
		return nil
	}); err != nil {
		return nil, err
	}

	if err := reg.RegisterFunc("sleep", func(ctx context.Context, task *types.Task) error {
		d, err := time.ParseDuration(fmt.Sprint(task.Data["duration"]))
		if err != nil {
			return fmt.Errorf("sleep: %w", err)
		}
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}); err != nil {
		return nil, err
	}

	return reg, nil
}
