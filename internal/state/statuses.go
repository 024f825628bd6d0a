package state

type TaskState string

const (
	StateNotReady TaskState = "notReady"
	StateReady    TaskState = "ready"
	StateRunning  TaskState = "running"
	// StateFinished is never persisted: a finished task is deleted.
	StateFinished TaskState = "finished"
)

func (s TaskState) String() string {
	return string(s)
}

func (s TaskState) Valid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

var AllStates = []TaskState{
	StateNotReady,
	StateReady,
	StateRunning,
	StateFinished,
}

type Transition struct {
	From TaskState
	To   TaskState
}

var ValidTransitions = []Transition{
	{From: StateNotReady, To: StateReady},
	{From: StateReady, To: StateRunning},
	{From: StateRunning, To: StateRunning},
	{From: StateRunning, To: StateReady},
	{From: StateRunning, To: StateFinished},
	// a dependent removed together with a permanently failed task
	{From: StateNotReady, To: StateFinished},
}

func IsValidTransition(from, to TaskState) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
