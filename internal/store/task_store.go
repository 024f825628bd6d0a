package store

import (
	"context"
	"errors"

	"github.com/RezaEskandarii/taskfire/types"
)

var (
	ErrStoreClosed  = errors.New("task store is not open")
	ErrTaskNotFound = errors.New("task not found")
)

// QueueRecord is the persisted metadata of a queue.
type QueueRecord struct {
	Name         string
	ThreadNumber int
}

// Batch groups writes that must be applied atomically.
type Batch struct {
	Save   []*types.Task
	Remove []string
}

func (b Batch) IsEmpty() bool {
	return len(b.Save) == 0 && len(b.Remove) == 0
}

// TaskStore defines the durable storage used by the queue manager.
type TaskStore interface {
	// Open opens (creating if needed) the physical store with the given name.
	Open(ctx context.Context, name string) error

	// SaveTask upserts a single task keyed by its ID. CreatedAt is set on first save,
	// UpdatedAt on every save.
	SaveTask(ctx context.Context, task *types.Task) error

	// ApplyBatch saves and removes tasks in one atomic unit.
	ApplyBatch(ctx context.Context, batch Batch) error

	// FirstReadyTask returns the ready task of the queue with the smallest addition timestamp,
	// or nil when there is none.
	FirstReadyTask(ctx context.Context, queueName string) (*types.Task, error)

	// TasksDependingOn returns every task whose dependency list contains taskID.
	TasksDependingOn(ctx context.Context, taskID string) ([]*types.Task, error)

	// RunningTasks returns every task in the running state.
	RunningTasks(ctx context.Context) ([]*types.Task, error)

	// FindTaskIDs returns the ids of stored tasks matching any of the declarations.
	FindTaskIDs(ctx context.Context, dependencies []types.Dependency) ([]string, error)

	// SaveQueue upserts queue metadata.
	SaveQueue(ctx context.Context, queue QueueRecord) error

	// LoadQueues returns all persisted queue metadata.
	LoadQueues(ctx context.Context) ([]QueueRecord, error)

	// Close detaches the store. A closed store can be opened again.
	Close() error
}
