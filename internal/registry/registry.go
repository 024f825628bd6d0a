package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/RezaEskandarii/taskfire/types"
)

var (
	ErrUnknownTaskType   = errors.New("task type is not registered")
	ErrDuplicateTaskType = errors.New("task type already registered")
)

// Runner executes one task. It reports completion by calling done exactly once, either before
// returning or later from another goroutine. A non-nil return value means the task failed
// without calling done.
type Runner interface {
	Run(ctx context.Context, task *types.Task, done func(error)) error
}

// Factory creates a fresh Runner for a stored task.
type Factory func() Runner

// RunnerFunc adapts a synchronous function to a Runner.
type RunnerFunc func(ctx context.Context, task *types.Task) error

func (f RunnerFunc) Run(ctx context.Context, task *types.Task, done func(error)) error {
	done(f(ctx, task))
	return nil
}

// Registry maps task type tags to runner factories. It is filled by the host application at
// startup, before the queue manager is initialised.
type Registry struct {
	factories map[string]Factory
	mutex     sync.RWMutex
}

func New() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a new factory by task type.
func (r *Registry) Register(taskType string, factory Factory) error {
	if taskType == "" || factory == nil {
		return errors.New("registry: task type and factory are required")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.factories[taskType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTaskType, taskType)
	}
	r.factories[taskType] = factory
	return nil
}

// RegisterFunc registers a synchronous function for the task type.
func (r *Registry) RegisterFunc(taskType string, fn func(ctx context.Context, task *types.Task) error) error {
	if fn == nil {
		return errors.New("registry: function is required")
	}
	return r.Register(taskType, func() Runner { return RunnerFunc(fn) })
}

func (r *Registry) Exists(taskType string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, exists := r.factories[taskType]
	return exists
}

// Build returns a new runner for the task type or ErrUnknownTaskType.
func (r *Registry) Build(taskType string) (Runner, error) {
	r.mutex.RLock()
	factory, exists := r.factories[taskType]
	r.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskType, taskType)
	}
	return factory(), nil
}

// Verify checks that every task has a registered type.
func (r *Registry) Verify(tasks ...*types.Task) error {
	for _, t := range tasks {
		if !r.Exists(t.Type) {
			return fmt.Errorf("task %s: %w: %q", t.ID, ErrUnknownTaskType, t.Type)
		}
	}
	return nil
}

func (r *Registry) List() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
