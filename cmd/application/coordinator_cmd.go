package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/flowmesh/dataflow/internal/config"
	"github.com/flowmesh/dataflow/internal/coordinator"
	logging "github.com/flowmesh/dataflow/libs/go/core/logging"
	"github.com/flowmesh/dataflow/libs/go/core/otelinit"
)

func coordinatorCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "run the coordinator control plane",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCoordinator(dbPath)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "coordinator.db", "path to the coordinator's metadata store")
	return cmd
}

func runCoordinator(dbPath string) error {
	const role = "coordinator"
	logger := logging.Init(role)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTrace := otelinit.InitTracer(ctx, role)
	shutdownMetrics, _ := otelinit.InitMetrics(ctx, role)
	metricsHandler, err := otelinit.InitPrometheusBridge(role)
	if err != nil {
		logger.Warn("prometheus bridge init failed, /metrics disabled", "error", err)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}

	meter := otel.GetMeterProvider().Meter(role)
	c, err := coordinator.New(cfg, dbPath, meter, metricsHandler, logger)
	if err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}

	runErr := c.Run(ctx)

	ctxSd, cancelSd := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelSd()
	otelinit.Flush(ctxSd, shutdownTrace)
	_ = shutdownMetrics(ctxSd)

	return runErr
}
