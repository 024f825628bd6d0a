package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/RezaEskandarii/taskfire/di"
	"github.com/RezaEskandarii/taskfire/internal/message_broaker"
	"github.com/RezaEskandarii/taskfire/internal/notify"
	"github.com/RezaEskandarii/taskfire/types/config"
	"github.com/spf13/cobra"
)

var errNoBroker = errors.New("no message broker configured: set TASKFIRE_NOTIFIER to rabbitmq or redis")

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print task events published on the configured message broker",
	Long: `Follow the task events a running scheduler publishes on TASKFIRE_EVENT_TOPIC and
print one line per event until interrupted.`,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.NotifierDriver == config.NoNotifier {
		return errNoBroker
	}
	// events come from the broker only
	cfg.StorageDriver = config.Memory

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := di.GetDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel}))
	return tailEvents(ctx, cmd.OutOrStdout(), deps.MessageBroker, cfg.EventTopic, logger)
}

func tailEvents(ctx context.Context, w io.Writer, broker message_broaker.MessageBroker, topic string, logger *slog.Logger) error {
	events, err := notify.Subscribe(ctx, broker, topic, logger)
	if err != nil {
		return err
	}
	for event := range events {
		if _, err := fmt.Fprintln(w, formatEvent(event)); err != nil {
			return err
		}
	}
	return nil
}

func formatEvent(e notify.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-9s queue=%s task=%s type=%s tries=%d retries=%d",
		e.At.Format(time.RFC3339), e.Kind, e.Queue, e.TaskID, e.TaskType, e.TotalTryCounter, e.RetryCounter)

	switch {
	case e.Permanent:
		b.WriteString(" permanent")
		if len(e.RemovedDependents) > 0 {
			b.WriteString(" removed=" + strings.Join(e.RemovedDependents, ","))
		}
	case e.Requeued:
		b.WriteString(" requeued")
	}
	if e.Error != "" {
		fmt.Fprintf(&b, " error=%q", e.Error)
	}
	return b.String()
}
