// Command application is the flowmesh dataflow runtime's single entry
// point: it hosts the coordinator, runs a worker process, submits a
// pipeline spec to a running coordinator, or renders a job's task status,
// selected by subcommand.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowmesh/dataflow/internal/config"
)

var cfgFile string //nolint:gochecknoglobals // CLI flag variable

func main() {
	rootCmd := &cobra.Command{
		Use:   "application",
		Short: "flowmesh dataflow runtime: coordinator, worker, and job CLI",
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults + environment)")

	rootCmd.AddCommand(coordinatorCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a top-level command error to the process exit code:
// 1 for a job/runtime failure, 2 for a configuration problem.
func exitCodeFor(err error) int {
	if errors.Is(err, config.ErrConfig) {
		return 2
	}
	return 1
}
