package mocks

import (
	"context"

	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types"
)

// MockTaskStore is a mock implementation of store.TaskStore for testing. Methods without a
// func set behave like an empty store.
type MockTaskStore struct {
	OpenFunc             func(ctx context.Context, name string) error
	SaveTaskFunc         func(ctx context.Context, task *types.Task) error
	ApplyBatchFunc       func(ctx context.Context, batch store.Batch) error
	FirstReadyTaskFunc   func(ctx context.Context, queueName string) (*types.Task, error)
	TasksDependingOnFunc func(ctx context.Context, taskID string) ([]*types.Task, error)
	RunningTasksFunc     func(ctx context.Context) ([]*types.Task, error)
	FindTaskIDsFunc      func(ctx context.Context, dependencies []types.Dependency) ([]string, error)
	SaveQueueFunc        func(ctx context.Context, queue store.QueueRecord) error
	LoadQueuesFunc       func(ctx context.Context) ([]store.QueueRecord, error)
	CloseFunc            func() error
}

func (m *MockTaskStore) Open(ctx context.Context, name string) error {
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, name)
	}
	return nil
}

func (m *MockTaskStore) SaveTask(ctx context.Context, task *types.Task) error {
	if m.SaveTaskFunc != nil {
		return m.SaveTaskFunc(ctx, task)
	}
	return nil
}

func (m *MockTaskStore) ApplyBatch(ctx context.Context, batch store.Batch) error {
	if m.ApplyBatchFunc != nil {
		return m.ApplyBatchFunc(ctx, batch)
	}
	return nil
}

func (m *MockTaskStore) FirstReadyTask(ctx context.Context, queueName string) (*types.Task, error) {
	if m.FirstReadyTaskFunc != nil {
		return m.FirstReadyTaskFunc(ctx, queueName)
	}
	return nil, nil
}

func (m *MockTaskStore) TasksDependingOn(ctx context.Context, taskID string) ([]*types.Task, error) {
	if m.TasksDependingOnFunc != nil {
		return m.TasksDependingOnFunc(ctx, taskID)
	}
	return nil, nil
}

func (m *MockTaskStore) RunningTasks(ctx context.Context) ([]*types.Task, error) {
	if m.RunningTasksFunc != nil {
		return m.RunningTasksFunc(ctx)
	}
	return nil, nil
}

func (m *MockTaskStore) FindTaskIDs(ctx context.Context, dependencies []types.Dependency) ([]string, error) {
	if m.FindTaskIDsFunc != nil {
		return m.FindTaskIDsFunc(ctx, dependencies)
	}
	return nil, nil
}

func (m *MockTaskStore) SaveQueue(ctx context.Context, queue store.QueueRecord) error {
	if m.SaveQueueFunc != nil {
		return m.SaveQueueFunc(ctx, queue)
	}
	return nil
}

func (m *MockTaskStore) LoadQueues(ctx context.Context) ([]store.QueueRecord, error) {
	if m.LoadQueuesFunc != nil {
		return m.LoadQueuesFunc(ctx)
	}
	return nil, nil
}

func (m *MockTaskStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
