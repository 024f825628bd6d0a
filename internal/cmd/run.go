package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/RezaEskandarii/taskfire/taskfire"
	"github.com/RezaEskandarii/taskfire/types"
	"github.com/RezaEskandarii/taskfire/types/config"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler and process queues until interrupted",
	Long: `Start the scheduler with the built-in task types (echo, sleep).

Recurring submissions are declared with --recurring "<cron spec>|<queue>|<task type>",
for example --recurring "@every 1m|default|echo".`,
	RunE: runRun,
}

var (
	recurringFlags  []string
	shutdownTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringArrayVar(&recurringFlags, "recurring", nil, "recurring submission as spec|queue|type (repeatable)")
	runCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "time allowed for flushing events on shutdown")
}

type recurringSpec struct {
	spec     string
	queue    string
	taskType string
}

func parseRecurring(value string) (recurringSpec, error) {
	parts := strings.Split(value, "|")
	if len(parts) != 3 {
		return recurringSpec{}, fmt.Errorf("invalid recurring %q: expected spec|queue|type", value)
	}
	r := recurringSpec{
		spec:     strings.TrimSpace(parts[0]),
		queue:    strings.TrimSpace(parts[1]),
		taskType: strings.TrimSpace(parts[2]),
	}
	if r.spec == "" || r.queue == "" || r.taskType == "" {
		return recurringSpec{}, fmt.Errorf("invalid recurring %q: empty field", value)
	}
	return r, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var recurring []recurringSpec
	for _, value := range recurringFlags {
		r, err := parseRecurring(value)
		if err != nil {
			return err
		}
		recurring = append(recurring, r)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	reg, err := builtinRegistry(logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tf, err := taskfire.NewWithLogger(ctx, cfg, reg, logger)
	if err != nil {
		return fmt.Errorf("failed to start taskfire: %w", err)
	}

	for _, r := range recurring {
		taskType := r.taskType
		if _, err := tf.Recurring.AddRecurring(r.spec, r.queue, func() (*types.Task, []types.Dependency) {
			return types.NewTask(taskType, map[string]any{"scheduled_at": time.Now().Format(time.RFC3339)}), nil
		}); err != nil {
			_ = tf.Shutdown(context.Background())
			return err
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return tf.Shutdown(shutdownCtx)
}
