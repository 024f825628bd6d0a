package client

import (
	"context"
	"log/slog"
	"sync"

	"github.com/RezaEskandarii/taskfire/types"
)

// Queue is a named lane with its own worker pool. Workers exit when the queue has no ready task
// and are started again on demand, so the pool drains to zero when idle.
type Queue struct {
	name         string
	threadNumber int
	manager      *QueueManager
	ctx          context.Context

	mu      sync.Mutex
	workers map[*worker]struct{}
}

func newQueue(m *QueueManager, name string, threadNumber int) *Queue {
	return &Queue{
		name:         name,
		threadNumber: threadNumber,
		manager:      m,
		ctx:          m.runCtx,
		workers:      make(map[*worker]struct{}),
	}
}

func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) ThreadNumber() int {
	return q.threadNumber
}

// AddTask submits task to this queue.
func (q *Queue) AddTask(ctx context.Context, task *types.Task, dependencies []types.Dependency) error {
	task.QueueName = q.name
	return q.manager.AddTask(ctx, task, dependencies)
}

// StartThreads tops the pool up to ThreadNumber live workers.
func (q *Queue) StartThreads() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for w := range q.workers {
		if w.exited() {
			delete(q.workers, w)
		}
	}

	for i := len(q.workers); i < q.threadNumber; i++ {
		w := newWorker(q)
		q.workers[w] = struct{}{}
		go w.run()
	}
	q.observeLocked()
}

// StopThreads asks every live worker to exit after its current task and forgets them.
func (q *Queue) StopThreads() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for w := range q.workers {
		w.stop()
	}
	clear(q.workers)
	q.observeLocked()
}

func (q *Queue) LiveThreads() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.workers)
}

// pull returns the next task for w. When none is left it checks once more while holding the
// queue mutex and retires w under that same lock, so a concurrent StartThreads either sees w
// gone or w sees the new task.
func (q *Queue) pull(w *worker) (*types.Task, error) {
	task, err := q.manager.GetNextReadyTask(q.ctx, q.name)
	if err != nil || task != nil {
		return task, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	task, err = q.manager.GetNextReadyTask(q.ctx, q.name)
	if err != nil || task != nil {
		return task, err
	}
	q.removeLocked(w)
	return nil, nil
}

func (q *Queue) retire(w *worker) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(w)
}

func (q *Queue) removeLocked(w *worker) {
	if _, ok := q.workers[w]; !ok {
		return
	}
	delete(q.workers, w)
	q.observeLocked()
}

func (q *Queue) observeLocked() {
	if q.manager.observer != nil {
		q.manager.observer.ObserveWorkers(q.name, len(q.workers))
	}
}

func (q *Queue) logger() *slog.Logger {
	return q.manager.logger.With(slog.String("queue", q.name))
}
