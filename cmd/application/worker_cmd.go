package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flowmesh/dataflow/internal/config"
	"github.com/flowmesh/dataflow/internal/dag"
	"github.com/flowmesh/dataflow/internal/keyedstate"
	"github.com/flowmesh/dataflow/internal/transport"
	"github.com/flowmesh/dataflow/internal/worker"
	logging "github.com/flowmesh/dataflow/libs/go/core/logging"
	"github.com/flowmesh/dataflow/libs/go/core/otelinit"
)

func workerCmd() *cobra.Command {
	var jobID string
	var workerIndex, workerCount int

	cmd := &cobra.Command{
		Use:   "worker <worker_manager_id>",
		Short: "run a worker process hosting this job's assigned tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runWorker(args[0], jobID, workerIndex, workerCount)
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id to fetch the ApplicationDescriptor for (required)")
	cmd.Flags().IntVar(&workerIndex, "worker-index", 0, "this worker's shard index, for Standalone clusters with more than one worker process")
	cmd.Flags().IntVar(&workerCount, "worker-count", 1, "total worker process count for this job, for Standalone clusters")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func runWorker(workerManagerID, jobID string, workerIndex, workerCount int) error {
	role := "worker-" + workerManagerID
	logger := logging.Init(role)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTrace := otelinit.InitTracer(ctx, role)
	shutdownMetrics, _ := otelinit.InitMetrics(ctx, role)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	backend, err := buildCheckpointBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	store := keyedstate.NewMemoryStore()
	factory := wordcountFactory(workerIndex, workerCount, store)
	registry := transport.NewRegistry()

	w := worker.New(workerManagerID, jobID, cfg, factory, registry, backend, logger)

	runErr := w.Run(ctx, func(desc *dag.ApplicationDescriptor, managerID string) []dag.TaskDescriptor {
		return worker.AssignTasks(desc, managerID, workerIndex, workerCount)
	})

	ctxSd, cancelSd := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelSd()
	otelinit.Flush(ctxSd, shutdownTrace)
	_ = shutdownMetrics(ctxSd)

	return runErr
}
