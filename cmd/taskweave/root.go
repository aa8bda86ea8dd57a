package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskweave",
	Short: "Task orchestration and approval workflow engine",
	Long: `Taskweave turns business objectives into a dependency-ordered plan of
analysis tasks, assigns them to the best-suited team members, executes them
on a worker pool, and routes results through quality gates, peer review,
and approval workflows.

Core capabilities:
- Expands objectives into a typed, acyclic task graph
- Assigns tasks by skill match and current workload
- Gates every result on confidence and insight quality
- Routes high-risk results to senior peer review
- Aggregates approved results into an executive report`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
