package notify

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

const defaultParallelism = 4

// Multi fans an event out to several notifiers, at most parallelism at a time.
type Multi struct {
	notifiers []Notifier
	sem       *semaphore.Weighted
}

func NewMulti(parallelism int, notifiers ...Notifier) *Multi {
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	return &Multi{
		notifiers: notifiers,
		sem:       semaphore.NewWeighted(int64(parallelism)),
	}
}

// Add appends n to the fan-out set. Not safe to call once events are flowing.
func (m *Multi) Add(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

func (m *Multi) Len() int {
	return len(m.notifiers)
}

// Notify delivers event to every notifier and joins their errors.
func (m *Multi) Notify(ctx context.Context, event Event) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, n := range m.notifiers {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			defer m.sem.Release(1)
			if err := n.Notify(ctx, event); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(n)
	}

	wg.Wait()
	return errors.Join(errs...)
}
