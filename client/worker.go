package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/RezaEskandarii/taskfire/types"
)

type worker struct {
	queue   *Queue
	stopped atomic.Bool
	done    chan struct{}
}

func newWorker(q *Queue) *worker {
	return &worker{
		queue: q,
		done:  make(chan struct{}),
	}
}

func (w *worker) stop() {
	w.stopped.Store(true)
}

func (w *worker) exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// run pulls and executes tasks until the queue is empty, the worker is stopped or the store
// fails. A stop request is only seen between tasks.
func (w *worker) run() {
	defer close(w.done)

	for {
		if w.stopped.Load() {
			w.queue.retire(w)
			return
		}

		task, err := w.queue.pull(w)
		if errors.Is(err, ErrNotInitialized) {
			w.queue.retire(w)
			return
		}
		if err != nil {
			w.queue.logger().Error("pull task", slog.String("error", err.Error()))
			w.queue.retire(w)
			return
		}
		if task == nil {
			return
		}

		if err := w.process(task); err != nil {
			w.queue.logger().Error("report task outcome",
				slog.String("task_id", task.ID),
				slog.String("error", err.Error()),
			)
			w.queue.retire(w)
			return
		}
	}
}

// process executes task, re-running it in place for as long as the manager asks for it.
func (w *worker) process(task *types.Task) error {
	m := w.queue.manager
	ctx := context.WithoutCancel(w.queue.ctx)

	for {
		execErr := w.execute(task)
		if execErr == nil {
			return m.TaskSucceeded(ctx, task)
		}

		rerun, err := m.TaskFailed(ctx, task, execErr)
		if err != nil {
			return err
		}
		if !rerun {
			return nil
		}
	}
}

// execute runs task and blocks until its runner reports completion. A panicking runner counts
// as a failed execution.
func (w *worker) execute(task *types.Task) error {
	runner, err := w.queue.manager.buildRunner(task.Type)
	if err != nil {
		return err
	}

	result := make(chan error, 1)
	var once sync.Once
	done := func(err error) {
		once.Do(func() {
			result <- err
		})
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				done(fmt.Errorf("task %s panicked: %v", task.ID, r))
			}
		}()
		if err := runner.Run(w.queue.ctx, task.Clone(), done); err != nil {
			done(err)
		}
	}()

	return <-result
}
