package types

import "time"

// Priority biases a task's scheduling key. It is applied once, when the task is created.
type Priority time.Duration

const (
	PriorityVeryLow  = Priority(1800 * time.Second)
	PriorityLow      = Priority(600 * time.Second)
	PriorityNormal   = Priority(0)
	PriorityHigh     = Priority(-600 * time.Second)
	PriorityVeryHigh = Priority(-1800 * time.Second)
)

func (p Priority) Offset() time.Duration {
	return time.Duration(p)
}

func (p Priority) String() string {
	switch p {
	case PriorityVeryLow:
		return "veryLow"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityVeryHigh:
		return "veryHigh"
	}
	return "custom(" + p.Offset().String() + ")"
}
