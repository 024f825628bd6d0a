package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/RezaEskandarii/taskfire/types"
	"github.com/robfig/cron/v3"
)

// TaskBuilder creates a fresh task, with its dependency declarations, for each recurring run.
type TaskBuilder func() (*types.Task, []types.Dependency)

// RecurringScheduler submits a new task to a queue on a cron schedule.
type RecurringScheduler struct {
	manager *QueueManager
	cron    *cron.Cron
	logger  *slog.Logger
}

// NewRecurringScheduler accepts standard five field cron expressions and descriptors such as
// "@hourly" or "@every 30s".
func NewRecurringScheduler(manager *QueueManager) *RecurringScheduler {
	return &RecurringScheduler{
		manager: manager,
		cron:    cron.New(),
		logger:  manager.logger.With(slog.String("component", "recurring")),
	}
}

// AddRecurring registers build to be submitted to queueName on every tick of spec.
func (s *RecurringScheduler) AddRecurring(spec, queueName string, build TaskBuilder) (cron.EntryID, error) {
	if build == nil {
		return 0, fmt.Errorf("recurring %q: task builder is required", spec)
	}
	id, err := s.cron.AddFunc(spec, func() {
		s.submit(queueName, build)
	})
	if err != nil {
		return 0, fmt.Errorf("recurring %q: %w", spec, err)
	}
	return id, nil
}

func (s *RecurringScheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

func (s *RecurringScheduler) Len() int {
	return len(s.cron.Entries())
}

func (s *RecurringScheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule. The returned context is done once running submissions finish.
func (s *RecurringScheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *RecurringScheduler) submit(queueName string, build TaskBuilder) {
	q := s.manager.GetQueue(queueName)
	if q == nil {
		s.logger.Error("recurring submission skipped",
			slog.String("queue", queueName),
			slog.String("error", ErrQueueNotFound.Error()),
		)
		return
	}

	task, deps := build()
	if err := q.AddTask(context.Background(), task, deps); err != nil {
		s.logger.Error("recurring submission failed",
			slog.String("queue", queueName),
			slog.String("task_type", task.Type),
			slog.String("error", err.Error()),
		)
	}
}
