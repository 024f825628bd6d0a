package client

import (
	"log/slog"

	"github.com/RezaEskandarii/taskfire/internal/lock"
	"github.com/RezaEskandarii/taskfire/internal/notify"
)

// PoolObserver is told the live worker count of a queue whenever it changes.
type PoolObserver interface {
	ObserveWorkers(queue string, live int)
}

// ManagerOption type for functional options pattern
type ManagerOption func(*QueueManager)

func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *QueueManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithNotifier sets the sink for success and failure events. Events are delivered from a
// background goroutine after the manager lock is released.
func WithNotifier(n notify.Notifier) ManagerOption {
	return func(m *QueueManager) {
		m.notifier = n
	}
}

// WithDefaults sets the retry and try limits applied to tasks that did not choose their own.
func WithDefaults(maxRetries, maxTries int) ManagerOption {
	return func(m *QueueManager) {
		if maxRetries >= 0 {
			m.maxRetries = maxRetries
		}
		if maxTries >= 0 {
			m.maxTries = maxTries
		}
	}
}

func WithPoolObserver(o PoolObserver) ManagerOption {
	return func(m *QueueManager) {
		m.observer = o
	}
}

// WithEventBuffer sets the capacity of the event dispatcher queue.
func WithEventBuffer(size int) ManagerOption {
	return func(m *QueueManager) {
		m.eventBuffer = size
	}
}

// WithRecoveryLock makes Initialize hold the recovery lock while it resets interrupted tasks,
// so two processes opening the same store never recover concurrently.
func WithRecoveryLock(l lock.DistributedLockManager) ManagerOption {
	return func(m *QueueManager) {
		m.recoveryLock = l
	}
}
