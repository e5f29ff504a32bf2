package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/metric"

	"github.com/flowmesh/dataflow/internal/checkpoint"
	"github.com/flowmesh/dataflow/internal/dag"
	"github.com/flowmesh/dataflow/internal/element"
	"github.com/flowmesh/dataflow/libs/go/core/natsctx"
)

// epoch tracks one in-flight checkpoint for one job: which task ids still
// need to ack, and when the epoch was opened. A checkpoint is complete
// only when every task ack for its id arrives within the configured
// timeout; silence past that aborts it.
type epoch struct {
	id       element.CheckpointId
	opened   time.Time
	pending  map[string]bool // task id -> still awaiting ack
	handles  map[string]checkpoint.Handle
}

// CheckpointDriver issues new checkpoint epochs on a fixed interval,
// broadcasts the barrier to every source task of a job (in-band via NATS,
// as a latency optimization; workers also discover a pending epoch via
// their regular heartbeat poll), and aggregates task acks until the epoch
// completes or its timeout elapses.
type CheckpointDriver struct {
	store  *Store
	nc     *nats.Conn // nil when NATS is unavailable; barrier falls back to heartbeat-only pickup
	logger *slog.Logger

	intervalMs int
	timeoutMs  int

	completedCounter metric.Int64Counter
	abortedCounter   metric.Int64Counter

	mu     sync.Mutex
	nextID map[string]element.CheckpointId // jobID -> next checkpoint id
	active map[string]*epoch              // jobID -> in-flight epoch (nil if none)
}

// NewCheckpointDriver builds a driver for store using the configured
// checkpoint_interval_ms/checkpoint_timeout_ms values.
// nc may be nil, in which case barriers are never published in-band and
// workers only discover a pending epoch via their heartbeat poll.
func NewCheckpointDriver(store *Store, nc *nats.Conn, intervalMs, timeoutMs int, meter metric.Meter, logger *slog.Logger) *CheckpointDriver {
	if logger == nil {
		logger = slog.Default()
	}
	completed, _ := meter.Int64Counter("flowmesh_checkpoints_completed_total")
	aborted, _ := meter.Int64Counter("flowmesh_checkpoints_aborted_total")
	return &CheckpointDriver{
		store:            store,
		nc:               nc,
		logger:           logger,
		intervalMs:       intervalMs,
		timeoutMs:        timeoutMs,
		completedCounter: completed,
		abortedCounter:   aborted,
		nextID:           make(map[string]element.CheckpointId),
		active:           make(map[string]*epoch),
	}
}

// Run drives the checkpoint interval ticker until ctx is done, issuing a
// new epoch per active job whenever the previous one has completed or
// aborted.
func (d *CheckpointDriver) Run(ctx context.Context, activeJobs func() []string) {
	ticker := time.NewTicker(time.Duration(d.intervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, jobID := range activeJobs() {
				d.maybeIssue(ctx, jobID)
			}
		}
	}
}

func (d *CheckpointDriver) maybeIssue(ctx context.Context, jobID string) {
	d.mu.Lock()
	if d.active[jobID] != nil {
		if time.Since(d.active[jobID].opened) > time.Duration(d.timeoutMs)*time.Millisecond {
			d.abortLocked(jobID, "timeout")
		} else {
			d.mu.Unlock()
			return
		}
	}
	d.mu.Unlock()

	descriptor, ok := d.store.GetJob(jobID)
	if !ok {
		return
	}
	sourceTasks := sourceTaskIDs(descriptor)
	if len(sourceTasks) == 0 {
		return
	}

	d.mu.Lock()
	id := d.nextID[jobID] + 1
	d.nextID[jobID] = id
	pending := make(map[string]bool, len(descriptor.Tasks))
	for _, t := range descriptor.Tasks {
		pending[t.TaskID.String()] = true
	}
	d.active[jobID] = &epoch{id: id, opened: time.Now(), pending: pending, handles: make(map[string]checkpoint.Handle)}
	d.mu.Unlock()

	d.broadcastBarrier(ctx, jobID, id)
}

func (d *CheckpointDriver) broadcastBarrier(ctx context.Context, jobID string, id element.CheckpointId) {
	if d.nc == nil {
		return
	}
	payload, err := json.Marshal(struct {
		CheckpointID element.CheckpointId `json:"checkpoint_id"`
	}{id})
	if err != nil {
		d.logger.Error("marshal barrier message", "error", err)
		return
	}
	if err := natsctx.Publish(ctx, d.nc, fmt.Sprintf("flowmesh.job.%s.barrier", jobID), payload); err != nil {
		d.logger.Warn("barrier broadcast failed, workers will pick up the epoch via heartbeat", "job_id", jobID, "checkpoint_id", id, "error", err)
	}
}

// PendingEpoch returns the id of jobID's in-flight epoch, if one is open.
// The heartbeat handler reports it back to workers so a task that missed
// the in-band NATS broadcast still learns about the epoch on its next
// poll.
func (d *CheckpointDriver) PendingEpoch(jobID string) (element.CheckpointId, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ep := d.active[jobID]; ep != nil {
		return ep.id, true
	}
	return 0, false
}

// Ack records one task's checkpoint acknowledgement for operatorID with
// its snapshot handle, completing the epoch once every task has acked and
// retaining the handle in the store's per-operator table.
func (d *CheckpointDriver) Ack(jobID, operatorID, taskID string, id element.CheckpointId, handle checkpoint.Handle) {
	if handle != "" {
		if _, err := d.store.RetainSnapshot(operatorID, handle); err != nil {
			d.logger.Error("retain snapshot", "operator_id", operatorID, "error", err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ep := d.active[jobID]
	if ep == nil || ep.id != id {
		return // stale or unknown ack; epoch already completed/aborted
	}
	delete(ep.pending, taskID)
	ep.handles[taskID] = handle
	if len(ep.pending) == 0 {
		d.completedCounter.Add(context.Background(), 1)
		d.logger.Info("checkpoint completed", "job_id", jobID, "checkpoint_id", id)
		d.active[jobID] = nil
	}
}

func (d *CheckpointDriver) abortLocked(jobID, reason string) {
	ep := d.active[jobID]
	if ep == nil {
		return
	}
	d.abortedCounter.Add(context.Background(), 1)
	d.logger.Warn("checkpoint aborted", "job_id", jobID, "checkpoint_id", ep.id, "reason", reason, "missing_acks", len(ep.pending))
	d.active[jobID] = nil
}

// sourceTaskIDs returns every TaskId belonging to a job whose stream node
// kind is Source; maybeIssue opens no epoch for a descriptor that has none.
func sourceTaskIDs(d *dag.ApplicationDescriptor) []dag.TaskId {
	sourceJobs := make(map[string]bool)
	for _, jn := range d.Jobs {
		if len(jn.Operators) == 0 {
			continue
		}
		if kind, ok := d.NodeKind(jn.Operators[0]); ok && kind == dag.OpSource {
			sourceJobs[jn.ID] = true
		}
	}
	var ids []dag.TaskId
	for _, t := range d.Tasks {
		if sourceJobs[t.TaskID.JobID] {
			ids = append(ids, t.TaskID)
		}
	}
	return ids
}
