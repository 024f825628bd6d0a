package notify

import (
	"context"
	"time"
)

type Kind string

const (
	KindSucceeded Kind = "succeeded"
	KindFailed    Kind = "failed"
)

// Event describes the outcome of one task execution. Permanent is set when the task was removed
// after exhausting its tries, together with the direct dependents listed in RemovedDependents.
// Requeued is set when the task went back to the end of its queue.
type Event struct {
	TaskID            string    `json:"task_id"`
	TaskType          string    `json:"task_type"`
	Queue             string    `json:"queue"`
	Kind              Kind      `json:"kind"`
	RetryCounter      int       `json:"retry_counter"`
	TotalTryCounter   int       `json:"total_try_counter"`
	Permanent         bool      `json:"permanent,omitempty"`
	Requeued          bool      `json:"requeued,omitempty"`
	RemovedDependents []string  `json:"removed_dependents,omitempty"`
	Error             string    `json:"error,omitempty"`
	At                time.Time `json:"at"`
}

// Notifier receives task events. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}
