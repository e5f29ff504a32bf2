package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	nats "github.com/nats-io/nats.go"

	"github.com/flowmesh/dataflow/internal/config"
)

// ErrUnsupportedCluster is returned by the YARN resource manager: no YARN
// client library is wired into this runtime, so rather than faking one,
// YARN allocation is left an explicit stub.
var ErrUnsupportedCluster = errors.New("coordinator: unsupported cluster mode")

// ResourceManager allocates and stops workers for a job; the runtime
// never asks it for anything else. Selected by CLUSTER_MODE.
type ResourceManager interface {
	AllocateWorkers(ctx context.Context, jobID string, count int) error
	StopWorkers(ctx context.Context, jobID string) error
}

// NewResourceManager selects the ResourceManager implementation for mode.
func NewResourceManager(mode config.ClusterMode, selfAddr string, logger *slog.Logger) (ResourceManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch mode {
	case config.ClusterLocal:
		return &LocalResourceManager{SelfAddr: selfAddr, Logger: logger}, nil
	case config.ClusterStandalone:
		return &StandaloneResourceManager{SelfAddr: selfAddr, Logger: logger}, nil
	case config.ClusterYARN:
		return &yarnResourceManager{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCluster, mode)
	}
}

// LocalResourceManager is the resource manager for single-binary local
// development and tests. It starts neither goroutines nor an external
// worker process; allocation and stop only log,
// since the application binary's own "worker" subcommand is expected to
// be launched in-process by the caller (e.g. cmd/application's local
// mode) rather than by this type.
type LocalResourceManager struct {
	SelfAddr string
	Logger   *slog.Logger
}

func (m *LocalResourceManager) AllocateWorkers(_ context.Context, jobID string, count int) error {
	m.Logger.Info("local resource manager: workers expected in-process", "job_id", jobID, "count", count)
	return nil
}

func (m *LocalResourceManager) StopWorkers(_ context.Context, jobID string) error {
	m.Logger.Info("local resource manager: stop signalled in-process", "job_id", jobID)
	return nil
}

// StandaloneResourceManager assumes worker processes are already started
// out of band (e.g. by an operator or a process supervisor) and reachable
// over the shared NATS control subject; allocation publishes a start
// notice, stop publishes on flowmesh.job.{id}.cancel. No worker in this
// module subscribes to that subject, so running tasks are not ended by it.
type StandaloneResourceManager struct {
	SelfAddr string
	Logger   *slog.Logger
}

func (m *StandaloneResourceManager) AllocateWorkers(_ context.Context, jobID string, count int) error {
	nc, err := nats.Connect(natsURLFromEnv())
	if err != nil {
		m.Logger.Warn("standalone resource manager: nats unavailable, workers must self-discover via metadata poll", "error", err)
		return nil
	}
	defer nc.Close()
	return nc.Publish(fmt.Sprintf("flowmesh.job.%s.allocate", jobID), []byte(fmt.Sprintf("%d", count)))
}

func (m *StandaloneResourceManager) StopWorkers(_ context.Context, jobID string) error {
	nc, err := nats.Connect(natsURLFromEnv())
	if err != nil {
		m.Logger.Warn("standalone resource manager: nats unavailable, cannot broadcast stop", "error", err)
		return nil
	}
	defer nc.Close()
	return nc.Publish(fmt.Sprintf("flowmesh.job.%s.cancel", jobID), nil)
}

// yarnResourceManager is an intentional stub: every method fails with
// ErrUnsupportedCluster.
type yarnResourceManager struct{}

func (yarnResourceManager) AllocateWorkers(context.Context, string, int) error {
	return ErrUnsupportedCluster
}

func (yarnResourceManager) StopWorkers(context.Context, string) error {
	return ErrUnsupportedCluster
}
