package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowmesh/dataflow/internal/config"
	"github.com/flowmesh/dataflow/internal/cli"
)

func submitCmd() *cobra.Command {
	var coordinatorAddr string

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "submit a pipeline spec (YAML or JSON) to a running coordinator",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runSubmit(coordinatorAddr, args[0])
		},
	}
	cmd.Flags().StringVar(&coordinatorAddr, "coordinator", "localhost:7070", "coordinator address")
	return cmd
}

func runSubmit(coordinatorAddr, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("submit: read %s: %w", path, err)
	}

	format := "yaml"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = "json"
	case ".yaml", ".yml":
		format = "yaml"
	default:
		return fmt.Errorf("%w: submit: unrecognized spec extension %q (want .yaml, .yml, or .json)", config.ErrConfig, path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	jobID, err := cli.SubmitJob(ctx, coordinatorAddr, format, data)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	fmt.Printf("submitted job %s\n", jobID)
	return nil
}
