// Package coordinator implements the control plane: job submission and
// compilation, worker resource allocation, checkpoint epoch issuance, and
// worker health tracking, served over a flat HTTP + JSON envelope surface,
// plus NATS for control-plane fan-out.
package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/metric"

	"github.com/flowmesh/dataflow/internal/config"
	"github.com/flowmesh/dataflow/internal/dag"
	"github.com/flowmesh/dataflow/libs/go/core/resilience"
)

// Coordinator wires together every control-plane component: the
// persistent job/snapshot Store, the checkpoint epoch driver, worker
// health tracking, the cluster ResourceManager, and the HTTP surface
// workers and operators talk to.
type Coordinator struct {
	Cfg             *config.Descriptor
	Store           *Store
	Checkpoints     *CheckpointDriver
	Health          *HealthTracker
	ResourceManager ResourceManager
	Logger          *slog.Logger

	nc             *nats.Conn
	metricsHandler http.Handler
	server         *http.Server
	submitLimiter  *resilience.RateLimiter

	completedMu   sync.Mutex
	completedJobs map[string]bool
}

// New builds a Coordinator from cfg, opening its BoltDB store at dbPath.
// meter/metricsHandler come from otelinit (the OTLP push path and the
// Prometheus scrape bridge respectively); metricsHandler may be nil to
// omit /metrics.
func New(cfg *config.Descriptor, dbPath string, meter metric.Meter, metricsHandler http.Handler, logger *slog.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	rm, err := NewResourceManager(cfg.ClusterMode, cfg.CoordinatorAddr, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	var nc *nats.Conn
	if conn, err := nats.Connect(natsURLFromEnv()); err == nil {
		nc = conn
	} else {
		logger.Warn("coordinator: nats unavailable, checkpoint barriers fall back to heartbeat-only delivery", "error", err)
	}

	driver := NewCheckpointDriver(store, nc, cfg.CheckpointIntervalMs, cfg.CheckpointTimeoutMs, meter, logger)

	c := &Coordinator{
		Cfg:             cfg,
		Store:           store,
		Checkpoints:     driver,
		ResourceManager: rm,
		Logger:          logger,
		nc:              nc,
		metricsHandler:  metricsHandler,
		// Graph compilation and worker allocation are expensive; cap
		// submissions at a small burst with a per-minute window so a
		// misbehaving client cannot wedge the control plane.
		submitLimiter: resilience.NewRateLimiter(5, 1, time.Minute, 30),
		completedJobs: make(map[string]bool),
	}
	c.Health = NewHealthTracker(2*time.Second, logger, c.onTaskUnhealthy)
	return c, nil
}

// Submit compiles a pipeline description (format "yaml" or "json"),
// persists its ApplicationDescriptor under a freshly assigned job id, and
// asks the ResourceManager to allocate workers for it.
func (c *Coordinator) Submit(ctx context.Context, format string, spec []byte) (jobID string, descriptor *dag.ApplicationDescriptor, err error) {
	var name string
	var sg *dag.StreamGraph
	switch format {
	case "yaml", "":
		name, sg, err = dag.LoadYAML(spec)
	case "json":
		name, sg, err = dag.LoadJSON(spec)
	default:
		return "", nil, fmt.Errorf("coordinator: unknown submission format %q", format)
	}
	if err != nil {
		return "", nil, err
	}

	descriptor, err = dag.Compile(name, sg)
	if err != nil {
		return "", nil, err
	}

	jobID = uuid.NewString()
	if err := c.Store.PutJob(jobID, descriptor); err != nil {
		return "", nil, err
	}
	for _, t := range descriptor.Tasks {
		c.Health.Track(jobID, t.TaskID.String())
	}

	if err := c.ResourceManager.AllocateWorkers(ctx, jobID, len(descriptor.Tasks)); err != nil {
		c.Logger.Warn("allocate workers", "job_id", jobID, "error", err)
	}
	return jobID, descriptor, nil
}

// onTaskUnhealthy stops the rest of the job's workers once any one task
// goes silent for missedHeartbeatsUnhealthy windows: the coordinator fails
// the whole job rather than limping on with a missing task.
func (c *Coordinator) onTaskUnhealthy(jobID, taskID string) {
	c.Logger.Error("job failing: task unhealthy", "job_id", jobID, "task_id", taskID)
	if err := c.ResourceManager.StopWorkers(context.Background(), jobID); err != nil {
		c.Logger.Warn("stop workers after task failure", "job_id", jobID, "error", err)
	}
}

// maybeCompleteJob checks whether every task of jobID has reported a
// Completed status and, the first time that holds, releases the job's
// workers. Completion is judged by task status alone; it does not check
// whether a checkpoint epoch of the job is still open.
func (c *Coordinator) maybeCompleteJob(jobID string) {
	descriptor, ok := c.Store.GetJob(jobID)
	if !ok {
		return
	}

	byTask := make(map[string]TaskStatus)
	for _, t := range c.Health.Snapshot() {
		if t.JobID == jobID {
			byTask[t.TaskID] = t
		}
	}
	for _, t := range descriptor.Tasks {
		if st, ok := byTask[t.TaskID.String()]; !ok || st.Status != "Completed" {
			return
		}
	}

	c.completedMu.Lock()
	if c.completedJobs == nil {
		c.completedJobs = make(map[string]bool)
	}
	already := c.completedJobs[jobID]
	c.completedJobs[jobID] = true
	c.completedMu.Unlock()
	if already {
		return
	}

	c.Logger.Info("job completed", "job_id", jobID)
	if err := c.ResourceManager.StopWorkers(context.Background(), jobID); err != nil {
		c.Logger.Warn("stop workers after completion", "job_id", jobID, "error", err)
	}
}

// activeJobIDs is the CheckpointDriver's activeJobs callback: every job
// the store knows about and has not yet seen complete is eligible for a
// new epoch.
func (c *Coordinator) activeJobIDs() []string {
	c.completedMu.Lock()
	defer c.completedMu.Unlock()
	var out []string
	for _, id := range c.Store.ListJobs() {
		if !c.completedJobs[id] {
			out = append(out, id)
		}
	}
	return out
}

// Run starts the HTTP server and the background checkpoint/health loops,
// blocking until ctx is cancelled, then shuts the server down gracefully.
func (c *Coordinator) Run(ctx context.Context) error {
	c.server = &http.Server{Addr: c.Cfg.CoordinatorAddr, Handler: c.mux()}

	stop := make(chan struct{})
	go c.Health.Run(stop)
	go c.Checkpoints.Run(ctx, c.activeJobIDs)

	errCh := make(chan error, 1)
	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	c.Logger.Info("coordinator started", "addr", c.Cfg.CoordinatorAddr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		close(stop)
		return fmt.Errorf("coordinator: http server: %w", err)
	}

	close(stop)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.server.Shutdown(shutdownCtx); err != nil {
		c.Logger.Warn("coordinator: shutdown", "error", err)
	}
	if c.nc != nil {
		c.nc.Close()
	}
	return c.Store.Close()
}

func natsURLFromEnv() string {
	if u := os.Getenv("NATS_URL"); u != "" {
		return u
	}
	return nats.DefaultURL
}
