package test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/RezaEskandarii/taskfire/client"
	"github.com/RezaEskandarii/taskfire/internal/notify"
	"github.com/RezaEskandarii/taskfire/internal/registry"
	"github.com/RezaEskandarii/taskfire/internal/state"
	"github.com/RezaEskandarii/taskfire/internal/store/memory"
	"github.com/RezaEskandarii/taskfire/types"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestManager returns an initialized manager over a fresh memory store.
func newTestManager(t *testing.T, reg *registry.Registry, opts ...client.ManagerOption) (*client.QueueManager, *memory.MemoryTaskStore) {
	t.Helper()
	st := memory.NewMemoryTaskStore()
	opts = append([]client.ManagerOption{client.WithLogger(discardLogger())}, opts...)
	m := client.NewQueueManager(st, reg, opts...)
	require.NoError(t, m.Initialize(context.Background(), "test"))
	t.Cleanup(func() {
		_ = m.Uninitialize(context.Background())
	})
	return m, st
}

// storeReadyTask writes a ready task straight into the store so no worker picks it up.
func storeReadyTask(t *testing.T, st *memory.MemoryTaskStore, task *types.Task, queue string) {
	t.Helper()
	task.QueueName = queue
	task.State = state.StateReady
	require.NoError(t, st.SaveTask(context.Background(), task))
}

type eventRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *eventRecorder) Notify(ctx context.Context, event notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) snapshot() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type poolRecorder struct {
	mu     sync.Mutex
	values map[string][]int
}

func newPoolRecorder() *poolRecorder {
	return &poolRecorder{values: make(map[string][]int)}
}

func (p *poolRecorder) ObserveWorkers(queue string, live int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[queue] = append(p.values[queue], live)
}

func (p *poolRecorder) observed(queue string) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.values[queue]...)
}

// asyncRunner completes from another goroutine after the given delay.
type asyncRunner struct {
	delay time.Duration
	err   error
}

func (r asyncRunner) Run(ctx context.Context, task *types.Task, done func(error)) error {
	go func() {
		time.Sleep(r.delay)
		done(r.err)
	}()
	return nil
}
