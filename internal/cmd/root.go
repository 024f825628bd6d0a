package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskfire",
	Short: "Persistent task scheduler with dependent tasks and per-queue worker pools",
	Long: `Taskfire runs tasks from named queues on bounded worker pools, retries failures,
releases dependent tasks when their dependencies finish and recovers interrupted work
after a crash.

Configuration is read from TASKFIRE_* environment variables and an optional .env file.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
