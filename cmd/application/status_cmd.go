package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowmesh/dataflow/internal/cli"
)

func statusCmd() *cobra.Command {
	var coordinatorAddr string

	cmd := &cobra.Command{
		Use:   "status <job_id>",
		Short: "render a submitted job's task health as a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runStatus(coordinatorAddr, args[0])
		},
	}
	cmd.Flags().StringVar(&coordinatorAddr, "coordinator", "localhost:7070", "coordinator address")
	return cmd
}

func runStatus(coordinatorAddr, jobID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tasks, err := cli.FetchStatus(ctx, coordinatorAddr, jobID)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	cli.RenderStatusTable(os.Stdout, tasks)
	for _, t := range tasks {
		if t.Unhealthy {
			return fmt.Errorf("status: job %s has unhealthy tasks", jobID)
		}
	}
	return nil
}
