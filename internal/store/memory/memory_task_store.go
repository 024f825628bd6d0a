package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/state"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types"
)

type record struct {
	task *types.Task
	seq  uint64
}

// MemoryTaskStore keeps tasks in process memory. Data survives Close/Open on the same instance,
// which is how restarts are simulated in tests. Tasks are copied on the way in and out so callers
// never share state with the store.
type MemoryTaskStore struct {
	mu     sync.RWMutex
	name   string
	open   bool
	seq    uint64
	tasks  map[string]*record
	queues map[string]store.QueueRecord
	now    func() time.Time
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks:  make(map[string]*record),
		queues: make(map[string]store.QueueRecord),
		now:    time.Now,
	}
}

func (s *MemoryTaskStore) Open(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("open memory store: empty name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.open = true
	return nil
}

// Name returns the name the store was last opened with.
func (s *MemoryTaskStore) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *MemoryTaskStore) SaveTask(ctx context.Context, task *types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return store.ErrStoreClosed
	}
	s.saveLocked(task)
	return nil
}

func (s *MemoryTaskStore) ApplyBatch(ctx context.Context, batch store.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return store.ErrStoreClosed
	}
	for _, task := range batch.Save {
		s.saveLocked(task)
	}
	for _, id := range batch.Remove {
		delete(s.tasks, id)
	}
	return nil
}

func (s *MemoryTaskStore) saveLocked(task *types.Task) {
	now := s.now()
	rec, ok := s.tasks[task.ID]
	if !ok {
		s.seq++
		rec = &record{seq: s.seq}
		s.tasks[task.ID] = rec
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	rec.task = task.Clone()
}

func (s *MemoryTaskStore) FirstReadyTask(ctx context.Context, queueName string) (*types.Task, error) {
	matches, err := s.query(func(t *types.Task) bool {
		return t.QueueName == queueName && t.State == state.StateReady
	})
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

func (s *MemoryTaskStore) TasksDependingOn(ctx context.Context, taskID string) ([]*types.Task, error) {
	return s.query(func(t *types.Task) bool {
		for _, dep := range t.DependencyList {
			if dep == taskID {
				return true
			}
		}
		return false
	})
}

func (s *MemoryTaskStore) RunningTasks(ctx context.Context) ([]*types.Task, error) {
	return s.query(func(t *types.Task) bool {
		return t.State == state.StateRunning
	})
}

func (s *MemoryTaskStore) FindTaskIDs(ctx context.Context, dependencies []types.Dependency) ([]string, error) {
	matches, err := s.query(func(t *types.Task) bool {
		for _, dep := range dependencies {
			if dep.Matches(t) {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, t := range matches {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// query returns copies of matching tasks ordered by addition timestamp, then insertion order.
func (s *MemoryTaskStore) query(match func(*types.Task) bool) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return nil, store.ErrStoreClosed
	}

	var recs []*record
	for _, rec := range s.tasks {
		if match(rec.task) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].task.AdditionTimestamp, recs[j].task.AdditionTimestamp
		if a.Equal(b) {
			return recs[i].seq < recs[j].seq
		}
		return a.Before(b)
	})

	out := make([]*types.Task, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.task.Clone())
	}
	return out, nil
}

// FindByID returns a copy of the stored task.
func (s *MemoryTaskStore) FindByID(ctx context.Context, id string) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return nil, store.ErrStoreClosed
	}
	rec, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrTaskNotFound, id)
	}
	return rec.task.Clone(), nil
}

// All returns copies of every stored task in scheduling order.
func (s *MemoryTaskStore) All(ctx context.Context) ([]*types.Task, error) {
	return s.query(func(*types.Task) bool { return true })
}

func (s *MemoryTaskStore) SaveQueue(ctx context.Context, queue store.QueueRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return store.ErrStoreClosed
	}
	s.queues[queue.Name] = queue
	return nil
}

func (s *MemoryTaskStore) LoadQueues(ctx context.Context) ([]store.QueueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return nil, store.ErrStoreClosed
	}
	out := make([]store.QueueRecord, 0, len(s.queues))
	for _, q := range s.queues {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryTaskStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

var _ store.TaskStore = (*MemoryTaskStore)(nil)
