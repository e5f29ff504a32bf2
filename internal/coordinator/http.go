package coordinator

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/flowmesh/dataflow/internal/checkpoint"
	"github.com/flowmesh/dataflow/internal/dag"
	"github.com/flowmesh/dataflow/internal/element"
)

// jobSubmission is the POST /v1/jobs request body: a StreamGraphSpec
// document plus the format it was encoded in.
type jobSubmission struct {
	Format string `json:"format"` // "yaml" or "json"; defaults to "yaml"
	Spec   string `json:"spec"`
}

type jobEnvelope struct {
	Code  int                        `json:"code"`
	JobID string                     `json:"job_id,omitempty"`
	Data  *dag.ApplicationDescriptor `json:"data,omitempty"`
	Error string                     `json:"error,omitempty"`
}

type heartbeatBody struct {
	TaskID         string              `json:"task_id"`
	Status         string              `json:"status"`
	CheckpointAcks []checkpointAckBody `json:"checkpoint_acks"`
}

type checkpointAckBody struct {
	OperatorID   string               `json:"operator_id"`
	CheckpointID element.CheckpointId `json:"checkpoint_id"`
	Handle       checkpoint.Handle    `json:"handle"`
}

type statusEnvelope struct {
	Code                int                   `json:"code"`
	PendingCheckpointID *element.CheckpointId `json:"pending_checkpoint_id,omitempty"`
}

// mux builds the coordinator's HTTP surface: job submission/lookup,
// worker metadata polling, heartbeats, and a health/metrics pair, all on
// one flat http.ServeMux with a shared JSON envelope shape.
func (c *Coordinator) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", c.handleHealth)
	mux.HandleFunc("/heartbeat", c.handleHeartbeat)
	mux.HandleFunc("/v1/jobs", c.handleJobsCollection)
	mux.HandleFunc("/v1/jobs/", c.handleJobByIDOrStatus)
	if c.metricsHandler != nil {
		mux.Handle("/metrics", c.metricsHandler)
	}
	return mux
}

func (c *Coordinator) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleJobsCollection serves POST /v1/jobs (submit a new pipeline).
func (c *Coordinator) handleJobsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if c.submitLimiter != nil && !c.submitLimiter.Allow() {
		writeJobError(w, http.StatusTooManyRequests, fmt.Errorf("submission rate limit exceeded"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJobError(w, http.StatusBadRequest, err)
		return
	}
	var sub jobSubmission
	if err := json.Unmarshal(body, &sub); err != nil {
		writeJobError(w, http.StatusBadRequest, fmt.Errorf("decode submission: %w", err))
		return
	}

	jobID, descriptor, err := c.Submit(r.Context(), sub.Format, []byte(sub.Spec))
	if err != nil {
		writeJobError(w, http.StatusBadRequest, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(jobEnvelope{Code: 0, JobID: jobID, Data: descriptor})
}

// handleJobByIDOrStatus serves GET /v1/jobs/{id} (the surface the
// worker's MetadataPoller calls) and GET /v1/jobs/{id}/status (the
// surface the CLI's status table reads).
func (c *Coordinator) handleJobByIDOrStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	if jobID, ok := strings.CutSuffix(rest, "/status"); ok {
		c.writeJobStatus(w, jobID)
		return
	}
	if rest == "" {
		writeJobError(w, http.StatusBadRequest, fmt.Errorf("missing job id"))
		return
	}
	descriptor, ok := c.Store.GetJob(rest)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jobEnvelope{Code: 0, Data: descriptor})
}

func (c *Coordinator) writeJobStatus(w http.ResponseWriter, jobID string) {
	var tasks []TaskStatus
	for _, t := range c.Health.Snapshot() {
		if t.JobID == jobID {
			tasks = append(tasks, t)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Code  int          `json:"code"`
		Tasks []TaskStatus `json:"tasks"`
	}{Code: 0, Tasks: tasks})
}

// handleHeartbeat serves POST /heartbeat: one task's liveness report plus
// any checkpoint acks accumulated since the last tick.
func (c *Coordinator) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body heartbeatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	c.Health.Observe(body.TaskID, body.Status)
	env := statusEnvelope{Code: 0}
	jobID, ok := c.Store.JobForTask(body.TaskID)
	if ok {
		for _, ack := range body.CheckpointAcks {
			c.Checkpoints.Ack(jobID, ack.OperatorID, body.TaskID, ack.CheckpointID, ack.Handle)
		}
		if id, open := c.Checkpoints.PendingEpoch(jobID); open {
			env.PendingCheckpointID = &id
		}
		if body.Status == "Completed" {
			c.maybeCompleteJob(jobID)
		}
	} else {
		c.Logger.Warn("heartbeat for unknown task", "task_id", body.TaskID)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(env)
}

func writeJobError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jobEnvelope{Code: status, Error: err.Error()})
	slog.Default().Warn("job request failed", "error", err)
}
