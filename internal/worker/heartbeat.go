package worker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/flowmesh/dataflow/internal/checkpoint"
	"github.com/flowmesh/dataflow/internal/element"
)

// HeartbeatInterval is how often a worker posts to /heartbeat.
const HeartbeatInterval = 2 * time.Second

// CheckpointAck reports one operator's snapshot handle for a completed
// barrier, carried on the task's next heartbeat tick instead of a
// separate ack round trip.
type CheckpointAck struct {
	OperatorID   string               `json:"operator_id"`
	CheckpointID element.CheckpointId `json:"checkpoint_id"`
	Handle       checkpoint.Handle    `json:"handle"`
}

type heartbeatRequest struct {
	TaskID         string          `json:"task_id"`
	Status         string          `json:"status"`
	CheckpointAcks []CheckpointAck `json:"checkpoint_acks"`
}

type heartbeatResponse struct {
	Code                int                   `json:"code"`
	PendingCheckpointID *element.CheckpointId `json:"pending_checkpoint_id,omitempty"`
}

// HeartbeatReporter posts periodic liveness reports for every task this
// worker runs, draining each task's pending checkpoint acks into the
// report body so the coordinator's epoch driver can aggregate them
// without a second round trip.
type HeartbeatReporter struct {
	Client          *http.Client
	CoordinatorAddr string
	Logger          *slog.Logger

	// OnPendingCheckpoint, when set, is invoked with the epoch id the
	// coordinator reports as still in flight: the poll-side fallback for
	// barrier delivery when the in-band broadcast was missed. The callee
	// is responsible for deduplicating repeats across ticks.
	OnPendingCheckpoint func(element.CheckpointId)

	mu    sync.Mutex
	tasks map[string]*taskHeartbeatState
}

type taskHeartbeatState struct {
	status string
	acks   []CheckpointAck
}

// NewHeartbeatReporter builds a reporter against coordinatorAddr.
func NewHeartbeatReporter(coordinatorAddr string, logger *slog.Logger) *HeartbeatReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HeartbeatReporter{
		Client:          &http.Client{Timeout: 5 * time.Second},
		CoordinatorAddr: coordinatorAddr,
		Logger:          logger,
		tasks:           make(map[string]*taskHeartbeatState),
	}
}

// Register adds taskID to the set of tasks reported every heartbeat tick.
func (r *HeartbeatReporter) Register(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[taskID] = &taskHeartbeatState{status: "Running"}
}

// Unregister removes taskID, e.g. once it has reached a terminal state.
func (r *HeartbeatReporter) Unregister(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, taskID)
}

// SetStatus updates the status string reported for taskID (e.g. "Running",
// "Completed", "Failed").
func (r *HeartbeatReporter) SetStatus(taskID, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.tasks[taskID]; ok {
		st.status = status
	}
}

// AckCheckpoint queues one operator's snapshot handle for checkpoint id to
// be reported on taskID's next heartbeat tick. handle may be "" for
// operators that hold no state to snapshot (e.g. Source, KeyBy).
func (r *HeartbeatReporter) AckCheckpoint(taskID, operatorID string, id element.CheckpointId, handle checkpoint.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.tasks[taskID]; ok {
		st.acks = append(st.acks, CheckpointAck{OperatorID: operatorID, CheckpointID: id, Handle: handle})
	}
}

// Run posts one heartbeat per registered task every HeartbeatInterval
// until ctx is done.
func (r *HeartbeatReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// Flush posts one immediate heartbeat for every registered task, outside
// the periodic schedule. Called once after the last task reaches a
// terminal state so its final status and acks are not lost to worker
// shutdown racing the next tick.
func (r *HeartbeatReporter) Flush(ctx context.Context) {
	r.tick(ctx)
}

func (r *HeartbeatReporter) tick(ctx context.Context) {
	r.mu.Lock()
	snapshot := make(map[string]heartbeatRequest, len(r.tasks))
	for id, st := range r.tasks {
		snapshot[id] = heartbeatRequest{TaskID: id, Status: st.status, CheckpointAcks: st.acks}
		st.acks = nil
	}
	r.mu.Unlock()

	for id, req := range snapshot {
		if err := r.post(ctx, req); err != nil {
			r.Logger.Warn("heartbeat post failed", "task_id", id, "error", err)
		}
	}
}

func (r *HeartbeatReporter) post(ctx context.Context, req heartbeatRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s/heartbeat", r.CoordinatorAddr)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := r.Client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env heartbeatResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode heartbeat response: %w", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("coordinator rejected heartbeat with code %d", env.Code)
	}
	if env.PendingCheckpointID != nil && r.OnPendingCheckpoint != nil {
		r.OnPendingCheckpoint(*env.PendingCheckpointID)
	}
	return nil
}
