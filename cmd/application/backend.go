package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/flowmesh/dataflow/internal/checkpoint"
	"github.com/flowmesh/dataflow/internal/config"
)

// buildCheckpointBackend selects the checkpoint.Backend implementation
// named by cfg's operator/keyed state backend keys. Both keys must agree on
// the same named backend: a task can only snapshot against one store.
func buildCheckpointBackend(ctx context.Context, cfg *config.Descriptor) (checkpoint.Backend, error) {
	if cfg.OperatorStateBackend != cfg.KeyedStateBackend {
		return nil, fmt.Errorf("cmd/application: operator_state_backend %q and keyed_state_backend %q must match",
			cfg.OperatorStateBackend, cfg.KeyedStateBackend)
	}

	switch cfg.OperatorStateBackend {
	case "Memory", "":
		return checkpoint.NewMemoryBackend(), nil

	case "Bolt":
		path := cfg.ApplicationName + "-checkpoints.db"
		return checkpoint.NewBoltBackend(path)

	case "S3":
		if cfg.S3CheckpointBucket == "" {
			return nil, fmt.Errorf("cmd/application: s3_checkpoint_bucket is required when state backend is S3")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("cmd/application: load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		return checkpoint.NewS3Backend(client, cfg.S3CheckpointBucket, cfg.S3CheckpointPrefix)

	default:
		return nil, fmt.Errorf("cmd/application: unknown state backend %q (want Memory, Bolt, or S3)", cfg.OperatorStateBackend)
	}
}
