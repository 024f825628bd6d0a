package client

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/constants"
	"github.com/RezaEskandarii/taskfire/internal/lock"
	"github.com/RezaEskandarii/taskfire/internal/notify"
	"github.com/RezaEskandarii/taskfire/internal/registry"
	"github.com/RezaEskandarii/taskfire/internal/resolver"
	"github.com/RezaEskandarii/taskfire/internal/state"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types"
)

// TaskRegistry resolves stored task type tags to runners.
type TaskRegistry interface {
	Exists(taskType string) bool
	Build(taskType string) (registry.Runner, error)
	Verify(tasks ...*types.Task) error
}

// QueueManager coordinates every task state transition. All mutating operations take mu once
// and never call back into another locked method; queues take their own mutex before mu, never
// after.
type QueueManager struct {
	mu          sync.Mutex
	store       store.TaskStore
	registry    TaskRegistry
	queues      map[string]*Queue
	initialized bool

	maxRetries   int
	maxTries     int
	logger       *slog.Logger
	notifier     notify.Notifier
	observer     PoolObserver
	eventBuffer  int
	recoveryLock lock.DistributedLockManager

	dispatcher *notify.Dispatcher
	runCtx     context.Context
	cancel     context.CancelFunc
}

func NewQueueManager(taskStore store.TaskStore, reg TaskRegistry, opts ...ManagerOption) *QueueManager {
	m := &QueueManager{
		store:      taskStore,
		registry:   reg,
		queues:     make(map[string]*Queue),
		maxRetries: constants.MaxNumberOfRetries,
		maxTries:   constants.MaxNumberOfTries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize opens the store named after key, resets interrupted tasks and loads the persisted
// queues. Queues are not started; call StartThreads on them to drain recovered work.
func (m *QueueManager) Initialize(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return ErrAlreadyInitialized
	}

	name := StoreName(key)
	if err := m.store.Open(ctx, name); err != nil {
		return fmt.Errorf("open task store %s: %w", name, err)
	}

	if err := m.recoverLocked(ctx); err != nil {
		_ = m.store.Close()
		return err
	}

	records, err := m.store.LoadQueues(ctx)
	if err != nil {
		_ = m.store.Close()
		return fmt.Errorf("load queues: %w", err)
	}

	m.runCtx, m.cancel = context.WithCancel(context.Background())
	m.queues = make(map[string]*Queue, len(records))
	for _, r := range records {
		m.queues[r.Name] = newQueue(m, r.Name, r.ThreadNumber)
	}

	if m.notifier != nil {
		m.dispatcher = notify.NewDispatcher(m.notifier, m.eventBuffer, m.logger)
	}
	m.initialized = true

	m.logger.Info("queue manager initialized",
		slog.String("store", name),
		slog.Int("queues", len(records)),
	)
	return nil
}

// recoverLocked moves every running task back to ready with a fresh retry budget.
func (m *QueueManager) recoverLocked(ctx context.Context) error {
	if m.recoveryLock != nil {
		if err := m.recoveryLock.Acquire(ctx, constants.RecoveryLock); err != nil {
			return fmt.Errorf("acquire recovery lock: %w", err)
		}
		defer func() {
			if err := m.recoveryLock.Release(context.WithoutCancel(ctx), constants.RecoveryLock); err != nil {
				m.logger.Warn("release recovery lock", slog.String("error", err.Error()))
			}
		}()
	}

	running, err := m.store.RunningTasks(ctx)
	if err != nil {
		return fmt.Errorf("load running tasks: %w", err)
	}
	if len(running) == 0 {
		return nil
	}
	if err := m.registry.Verify(running...); err != nil {
		return fmt.Errorf("recover tasks: %w", err)
	}

	for _, t := range running {
		if !state.IsValidTransition(t.State, state.StateReady) {
			return fmt.Errorf("recover task %s: %w", t.ID, ErrInvalidTransition)
		}
		t.State = state.StateReady
		t.RetryCounter = 0
	}
	if err := m.store.ApplyBatch(ctx, store.Batch{Save: running}); err != nil {
		return fmt.Errorf("recover tasks: %w", err)
	}

	m.logger.Warn("recovered interrupted tasks", slog.Int("count", len(running)))
	return nil
}

// Uninitialize stops every queue, flushes pending events and closes the store. Runners still in
// flight see their context cancelled; their results are dropped and the tasks are recovered on
// the next Initialize.
func (m *QueueManager) Uninitialize(ctx context.Context) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	m.initialized = false
	m.cancel()
	queues := m.sortedQueuesLocked()
	dispatcher := m.dispatcher
	m.dispatcher = nil
	m.mu.Unlock()

	for _, q := range queues {
		q.StopThreads()
	}

	var flushErr error
	if dispatcher != nil {
		flushErr = dispatcher.Close(ctx)
	}
	if err := m.store.Close(); err != nil {
		return fmt.Errorf("close task store: %w", err)
	}
	return flushErr
}

func (m *QueueManager) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// CreateQueue persists and returns a new queue. An existing queue with the same name is left
// untouched and ErrQueueExists is returned.
func (m *QueueManager) CreateQueue(ctx context.Context, name string, threadNumber int) (*Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}
	if threadNumber < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThreadNumber, threadNumber)
	}
	if _, exists := m.queues[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrQueueExists, name)
	}

	if err := m.store.SaveQueue(ctx, store.QueueRecord{Name: name, ThreadNumber: threadNumber}); err != nil {
		return nil, fmt.Errorf("save queue %s: %w", name, err)
	}

	q := newQueue(m, name, threadNumber)
	m.queues[name] = q
	return q, nil
}

func (m *QueueManager) GetQueue(name string) *Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queues[name]
}

func (m *QueueManager) HasQueue(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.queues[name]
	return ok
}

// Queues returns all queues ordered by name.
func (m *QueueManager) Queues() []*Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedQueuesLocked()
}

func (m *QueueManager) sortedQueuesLocked() []*Queue {
	queues := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	sort.Slice(queues, func(i, j int) bool {
		return queues[i].name < queues[j].name
	})
	return queues
}

// AddTask resolves the task's dependencies, persists it and starts its queue when the task is
// immediately ready. task.QueueName must name an existing queue.
func (m *QueueManager) AddTask(ctx context.Context, task *types.Task, dependencies []types.Dependency) error {
	m.mu.Lock()

	if !m.initialized {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	q, ok := m.queues[task.QueueName]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrQueueNotFound, task.QueueName)
	}
	if !m.registry.Exists(task.Type) {
		m.mu.Unlock()
		return fmt.Errorf("add task %s: %w: %q", task.ID, registry.ErrUnknownTaskType, task.Type)
	}

	ids, err := resolver.Resolve(ctx, m.store, dependencies)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	task.DependencyList = ids
	if task.IsBlocked() {
		task.State = state.StateNotReady
	} else {
		task.State = state.StateReady
	}
	task.ApplyPolicyDefaults(m.maxRetries, m.maxTries)

	if err := m.store.SaveTask(ctx, task); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	m.mu.Unlock()

	if task.State == state.StateReady {
		q.StartThreads()
	}
	return nil
}

// GetNextReadyTask marks the earliest ready task of the queue as running and returns it, or nil
// when the queue has no ready task.
func (m *QueueManager) GetNextReadyTask(ctx context.Context, queueName string) (*types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}

	task, err := m.store.FirstReadyTask(ctx, queueName)
	if err != nil {
		return nil, fmt.Errorf("fetch ready task of %s: %w", queueName, err)
	}
	if task == nil {
		return nil, nil
	}
	if err := m.registry.Verify(task); err != nil {
		return nil, err
	}
	if !state.IsValidTransition(task.State, state.StateRunning) {
		return nil, fmt.Errorf("task %s %s -> %s: %w", task.ID, task.State, state.StateRunning, ErrInvalidTransition)
	}

	task.State = state.StateRunning
	if err := m.store.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return task, nil
}

// TaskSucceeded removes the task and unblocks its dependents in one batch, then restarts the
// queues that gained ready tasks.
func (m *QueueManager) TaskSucceeded(ctx context.Context, task *types.Task) error {
	m.mu.Lock()

	if !m.initialized {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	if !state.IsValidTransition(task.State, state.StateFinished) {
		m.mu.Unlock()
		return fmt.Errorf("task %s %s -> %s: %w", task.ID, task.State, state.StateFinished, ErrInvalidTransition)
	}

	dependents, err := m.store.TasksDependingOn(ctx, task.ID)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("load dependents of %s: %w", task.ID, err)
	}

	batch := store.Batch{Remove: []string{task.ID}}
	restart := make(map[string]*Queue)
	for _, d := range dependents {
		if d.RemoveDependency(task.ID) && state.IsValidTransition(d.State, state.StateReady) {
			d.State = state.StateReady
			if q, ok := m.queues[d.QueueName]; ok {
				restart[d.QueueName] = q
			}
		}
		batch.Save = append(batch.Save, d)
	}

	if err := m.store.ApplyBatch(ctx, batch); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("complete task %s: %w", task.ID, err)
	}
	task.State = state.StateFinished
	dispatcher := m.dispatcher
	m.mu.Unlock()

	for _, q := range restart {
		q.StartThreads()
	}

	post(dispatcher, notify.Event{
		TaskID:          task.ID,
		TaskType:        task.Type,
		Queue:           task.QueueName,
		Kind:            notify.KindSucceeded,
		RetryCounter:    task.RetryCounter,
		TotalTryCounter: task.TotalTryCounter,
		At:              time.Now(),
	})
	return nil
}

// TaskFailed applies the failure policy and reports whether the caller should run the task
// again right away. Once TotalTryCounter exceeds MaxNumberOfTries the task and its direct
// dependents are removed; once RetryCounter exceeds MaxNumberOfRetries the task goes back to
// the end of its queue with a fresh retry budget.
func (m *QueueManager) TaskFailed(ctx context.Context, task *types.Task, execErr error) (bool, error) {
	m.mu.Lock()

	if !m.initialized {
		m.mu.Unlock()
		return false, ErrNotInitialized
	}

	task.RetryCounter++
	task.TotalTryCounter++

	event := notify.Event{
		TaskID:   task.ID,
		TaskType: task.Type,
		Queue:    task.QueueName,
		Kind:     notify.KindFailed,
		At:       time.Now(),
	}
	if execErr != nil {
		event.Error = execErr.Error()
	}

	var (
		rerun bool
		err   error
	)
	switch {
	case task.TotalTryCounter > task.MaxNumberOfTries:
		event.RemovedDependents, err = m.dropLocked(ctx, task)
		event.Permanent = true
	case task.RetryCounter > task.MaxNumberOfRetries:
		err = m.requeueLocked(ctx, task)
		event.Requeued = true
	default:
		err = m.transitionLocked(ctx, task, state.StateRunning)
		rerun = err == nil
	}
	event.RetryCounter = task.RetryCounter
	event.TotalTryCounter = task.TotalTryCounter

	dispatcher := m.dispatcher
	m.mu.Unlock()

	if err != nil {
		return false, err
	}
	post(dispatcher, event)
	return rerun, nil
}

// dropLocked removes a permanently failed task together with its direct dependents.
func (m *QueueManager) dropLocked(ctx context.Context, task *types.Task) ([]string, error) {
	if !state.IsValidTransition(task.State, state.StateFinished) {
		return nil, fmt.Errorf("task %s %s -> %s: %w", task.ID, task.State, state.StateFinished, ErrInvalidTransition)
	}

	dependents, err := m.store.TasksDependingOn(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("load dependents of %s: %w", task.ID, err)
	}

	removed := make([]string, 0, len(dependents))
	batch := store.Batch{Remove: []string{task.ID}}
	for _, d := range dependents {
		removed = append(removed, d.ID)
		batch.Remove = append(batch.Remove, d.ID)
	}
	if err := m.store.ApplyBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("drop task %s: %w", task.ID, err)
	}
	task.State = state.StateFinished

	m.logger.Error("task failed permanently",
		slog.String("task_id", task.ID),
		slog.String("queue", task.QueueName),
		slog.Int("total_try_counter", task.TotalTryCounter),
		slog.Int("removed_dependents", len(removed)),
	)
	return removed, nil
}

func (m *QueueManager) requeueLocked(ctx context.Context, task *types.Task) error {
	task.RetryCounter = 0
	task.AdditionTimestamp = time.Now()
	return m.transitionLocked(ctx, task, state.StateReady)
}

func (m *QueueManager) transitionLocked(ctx context.Context, task *types.Task, to state.TaskState) error {
	if !state.IsValidTransition(task.State, to) {
		return fmt.Errorf("task %s %s -> %s: %w", task.ID, task.State, to, ErrInvalidTransition)
	}
	task.State = to
	if err := m.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

func (m *QueueManager) buildRunner(taskType string) (registry.Runner, error) {
	return m.registry.Build(taskType)
}

// StoreName derives the physical store name from a storage key.
func StoreName(key string) string {
	return constants.DatabasePrefix + key
}

func post(d *notify.Dispatcher, event notify.Event) {
	if d != nil {
		d.Post(event)
	}
}
