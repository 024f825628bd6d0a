package notify

import (
	"context"
	"log/slog"
	"sync"
)

const defaultBufferSize = 1000

// Dispatcher posts events to a Notifier from a single background goroutine. Post never blocks:
// when the buffer is full the event is dropped and logged.
type Dispatcher struct {
	target  Notifier
	events  chan Event
	logger  *slog.Logger
	done    chan struct{}
	closeMu sync.RWMutex
	closed  bool
}

func NewDispatcher(target Notifier, bufferSize int, logger *slog.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		target: target,
		events: make(chan Event, bufferSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.events {
		if err := d.target.Notify(context.Background(), event); err != nil {
			d.logger.Warn("task event delivery failed",
				slog.String("task_id", event.TaskID),
				slog.String("kind", string(event.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Post queues event for delivery and reports whether it was accepted.
func (d *Dispatcher) Post(event Event) bool {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()

	if d.closed {
		return false
	}
	select {
	case d.events <- event:
		return true
	default:
		d.logger.Warn("task event dropped, dispatcher buffer full",
			slog.String("task_id", event.TaskID),
			slog.String("kind", string(event.Kind)),
		)
		return false
	}
}

// Close stops accepting events and waits until the buffered ones are delivered or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeMu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.closeMu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
