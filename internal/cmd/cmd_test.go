package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/RezaEskandarii/taskfire/client/test/mocks"
	"github.com/RezaEskandarii/taskfire/internal/notify"
	"github.com/RezaEskandarii/taskfire/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecurring(t *testing.T) {
	r, err := parseRecurring("@every 1m | default | echo")
	require.NoError(t, err)
	assert.Equal(t, recurringSpec{spec: "@every 1m", queue: "default", taskType: "echo"}, r)

	_, err = parseRecurring("@every 1m|default")
	assert.Error(t, err)

	_, err = parseRecurring("@every 1m||echo")
	assert.Error(t, err)
}

func TestBuiltinRegistry(t *testing.T) {
	reg, err := builtinRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "sleep"}, reg.List())

	runner, err := reg.Build("sleep")
	require.NoError(t, err)

	var got error
	task := types.NewTask("sleep", map[string]any{"duration": "1ms"})
	require.NoError(t, runner.Run(context.Background(), task, func(err error) { got = err }))
	assert.NoError(t, got)

	task = types.NewTask("sleep", map[string]any{"duration": "soon"})
	require.NoError(t, runner.Run(context.Background(), task, func(err error) { got = err }))
	assert.Error(t, got)
}

func TestQueuesCommand_MemoryStore(t *testing.T) {
	t.Setenv("TASKFIRE_STORAGE_DRIVER", "memory")
	t.Setenv("TASKFIRE_STORAGE_KEY", "cli")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"queues"})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "QUEUE")
	assert.Contains(t, out.String(), "THREADS")
}

func TestQueuesCommand_MemoryStoreListsConfiguredQueues(t *testing.T) {
	t.Setenv("TASKFIRE_STORAGE_DRIVER", "memory")
	t.Setenv("TASKFIRE_QUEUES", "reports:1,emails:4")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"queues"})
	require.NoError(t, rootCmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"emails", "4"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"reports", "1"}, strings.Fields(lines[2]))
}

func TestEventsCommand_RequiresBroker(t *testing.T) {
	t.Setenv("TASKFIRE_NOTIFIER", "none")

	rootCmd.SetArgs([]string{"events"})
	err := rootCmd.Execute()
	assert.ErrorIs(t, err, errNoBroker)
}

func TestEventsCommand_UnreachableRedis(t *testing.T) {
	t.Setenv("TASKFIRE_NOTIFIER", "redis")
	t.Setenv("TASKFIRE_REDIS_ADDRESS", "127.0.0.1:1")

	rootCmd.SetArgs([]string{"events"})
	assert.Error(t, rootCmd.Execute())
}

func TestTailEvents(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	permanent, err := json.Marshal(notify.Event{
		TaskID:            "t1",
		TaskType:          "email",
		Queue:             "emails",
		Kind:              notify.KindFailed,
		TotalTryCounter:   4,
		Permanent:         true,
		RemovedDependents: []string{"t2", "t3"},
		Error:             "smtp down",
		At:                at,
	})
	require.NoError(t, err)
	succeeded, err := json.Marshal(notify.Event{TaskID: "t4", TaskType: "echo", Queue: "default", Kind: notify.KindSucceeded, TotalTryCounter: 1, At: at})
	require.NoError(t, err)

	var topic string
	broker := &mocks.MockMessageBroker{
		ConsumeFunc: func(ctx context.Context, tp string) (<-chan []byte, error) {
			topic = tp
			ch := make(chan []byte, 2)
			ch <- permanent
			ch <- succeeded
			close(ch)
			return ch, nil
		},
	}

	var out bytes.Buffer
	require.NoError(t, tailEvents(context.Background(), &out, broker, "taskfire.events", slog.New(slog.NewTextHandler(io.Discard, nil))))

	assert.Equal(t, "taskfire.events", topic)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `2026-01-02T03:04:05Z failed    queue=emails task=t1 type=email tries=4 retries=0 permanent removed=t2,t3 error="smtp down"`, lines[0])
	assert.Equal(t, `2026-01-02T03:04:05Z succeeded queue=default task=t4 type=echo tries=1 retries=0`, lines[1])
}

func TestTailEvents_ConsumeError(t *testing.T) {
	broker := &mocks.MockMessageBroker{
		ConsumeFunc: func(ctx context.Context, topic string) (<-chan []byte, error) {
			return nil, errors.New("not connected")
		},
	}
	err := tailEvents(context.Background(), io.Discard, broker, "taskfire.events", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}
