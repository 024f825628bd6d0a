package types

import (
	"slices"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/constants"
	"github.com/RezaEskandarii/taskfire/internal/state"
	"github.com/google/uuid"
)

// Task is a unit of schedulable work. Business logic lives in the runner registered for Type.
type Task struct {
	ID                 string          `json:"id"`
	Type               string          `json:"task_type"`
	QueueName          string          `json:"queue"`
	Name               string          `json:"name,omitempty"`
	Data               map[string]any  `json:"data"`
	ReferenceIDs       []string        `json:"reference_ids"`
	DependencyList     []string        `json:"dependency_list"`
	State              state.TaskState `json:"state"`
	AdditionTimestamp  time.Time       `json:"addition_timestamp"`
	RetryCounter       int             `json:"retry_counter"`
	TotalTryCounter    int             `json:"total_try_counter"`
	MaxNumberOfRetries int             `json:"max_number_of_retries"`
	MaxNumberOfTries   int             `json:"max_number_of_tries"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`

	customPolicy bool
}

// TaskOption configures a task at creation time.
type TaskOption func(*Task)

// NewTask creates a ready task of the given type. The scheduling key is the current time shifted
// by the task priority (normal unless WithPriority is given).
func NewTask(taskType string, data map[string]any, opts ...TaskOption) *Task {
	if data == nil {
		data = map[string]any{}
	}
	t := &Task{
		ID:                 uuid.NewString(),
		Type:               taskType,
		Data:               data,
		ReferenceIDs:       []string{},
		DependencyList:     []string{},
		State:              state.StateReady,
		AdditionTimestamp:  time.Now(),
		MaxNumberOfRetries: constants.MaxNumberOfRetries,
		MaxNumberOfTries:   constants.MaxNumberOfTries,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func WithName(name string) TaskOption {
	return func(t *Task) {
		t.Name = name
	}
}

func WithPriority(p Priority) TaskOption {
	return func(t *Task) {
		t.AdditionTimestamp = t.AdditionTimestamp.Add(p.Offset())
	}
}

// WithReferenceIDs sets the tags other tasks can declare a dependency on.
func WithReferenceIDs(ids ...string) TaskOption {
	return func(t *Task) {
		t.ReferenceIDs = append([]string{}, ids...)
	}
}

func WithMaxNumberOfRetries(n int) TaskOption {
	return func(t *Task) {
		t.MaxNumberOfRetries = n
		t.customPolicy = true
	}
}

func WithMaxNumberOfTries(n int) TaskOption {
	return func(t *Task) {
		t.MaxNumberOfTries = n
		t.customPolicy = true
	}
}

// ApplyPolicyDefaults sets the retry and try limits unless a task option already chose them.
func (t *Task) ApplyPolicyDefaults(maxRetries, maxTries int) {
	if t.customPolicy {
		return
	}
	t.MaxNumberOfRetries = maxRetries
	t.MaxNumberOfTries = maxTries
}

func (t *Task) IsBlocked() bool {
	return len(t.DependencyList) > 0
}

// RemoveDependency drops id from the dependency list and reports whether the task became
// unblocked by it.
func (t *Task) RemoveDependency(id string) bool {
	before := len(t.DependencyList)
	t.DependencyList = slices.DeleteFunc(t.DependencyList, func(dep string) bool {
		return dep == id
	})
	return before > 0 && len(t.DependencyList) == 0
}

func (t *Task) HasReference(ref string) bool {
	return slices.Contains(t.ReferenceIDs, ref)
}

// Clone returns a copy that shares no slices or maps with t.
func (t *Task) Clone() *Task {
	cp := *t
	cp.ReferenceIDs = slices.Clone(t.ReferenceIDs)
	cp.DependencyList = slices.Clone(t.DependencyList)
	if t.Data != nil {
		cp.Data = make(map[string]any, len(t.Data))
		for k, v := range t.Data {
			cp.Data[k] = v
		}
	}
	return &cp
}
