package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/RezaEskandarii/taskfire/client"
	"github.com/RezaEskandarii/taskfire/di"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types/config"
	"github.com/spf13/cobra"
)

var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "List queues and their worker pool sizes",
	Long: `List the queues persisted in the task store. The memory driver keeps nothing between
processes, so it lists the queues declared in TASKFIRE_QUEUES instead.`,
	RunE: runQueues,
}

func init() {
	rootCmd.AddCommand(queuesCmd)
}

func runQueues(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	records, err := loadQueueRecords(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "QUEUE\tTHREADS")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%d\n", r.Name, r.ThreadNumber)
	}
	return w.Flush()
}

func loadQueueRecords(ctx context.Context, cfg *config.TaskfireConfig) ([]store.QueueRecord, error) {
	if cfg.StorageDriver == config.Memory {
		records := make([]store.QueueRecord, 0, len(cfg.Queues))
		for _, q := range cfg.Queues {
			records = append(records, store.QueueRecord{Name: q.Name, ThreadNumber: q.ThreadNumber})
		}
		return records, nil
	}

	// listing never publishes events
	cfg.NotifierDriver = config.NoNotifier

	deps, err := di.GetDependencies(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer deps.Close()

	if err := deps.TaskStore.Open(ctx, client.StoreName(cfg.StorageKey)); err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}
	defer deps.TaskStore.Close()

	records, err := deps.TaskStore.LoadQueues(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load queues: %w", err)
	}
	return records, nil
}
