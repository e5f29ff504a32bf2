package coordinator

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"go.opentelemetry.io/otel"

	"github.com/flowmesh/dataflow/internal/config"
)

const testWordcountYAML = `
application_name: wordcount
nodes:
  - id: source
    kind: Source
    parallelism: 1
  - id: sink
    kind: Sink
    parallelism: 1
edges:
  - from: source
    to: sink
    kind: Forward
`

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	s := openTestStore(t)
	meter := otel.GetMeterProvider().Meter("test")
	driver := NewCheckpointDriver(s, nil, 1000, 5000, meter, nil)
	c := &Coordinator{
		Cfg:             &config.Descriptor{ApplicationName: "wordcount", ClusterMode: config.ClusterLocal},
		Store:           s,
		Checkpoints:     driver,
		ResourceManager: &LocalResourceManager{Logger: slog.Default()},
		Logger:          slog.Default(),
	}
	c.Health = NewHealthTracker(time.Hour, nil, c.onTaskUnhealthy)
	return c
}

func TestHandleJobsCollectionSubmitsAndPersists(t *testing.T) {
	c := newTestCoordinator(t)
	srv := httptest.NewServer(c.mux())
	defer srv.Close()

	body, _ := json.Marshal(jobSubmission{Format: "yaml", Spec: testWordcountYAML})
	resp, err := srv.Client().Post(srv.URL+"/v1/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/jobs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 201 {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var env jobEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.JobID == "" {
		t.Fatalf("expected a job id in the response")
	}
	if _, ok := c.Store.GetJob(env.JobID); !ok {
		t.Fatalf("job %s was not persisted", env.JobID)
	}
}

func TestHandleJobByIDNotFound(t *testing.T) {
	c := newTestCoordinator(t)
	srv := httptest.NewServer(c.mux())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/v1/jobs/does-not-exist")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleHeartbeatRoutesAckToJob(t *testing.T) {
	c := newTestCoordinator(t)
	srv := httptest.NewServer(c.mux())
	defer srv.Close()

	body, _ := json.Marshal(jobSubmission{Format: "yaml", Spec: testWordcountYAML})
	resp, err := srv.Client().Post(srv.URL+"/v1/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/jobs: %v", err)
	}
	var env jobEnvelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	resp.Body.Close()

	descriptor, _ := c.Store.GetJob(env.JobID)
	taskID := descriptor.Tasks[0].TaskID.String()

	c.Checkpoints.maybeIssue(context.Background(), env.JobID)
	c.Checkpoints.mu.Lock()
	ep := c.Checkpoints.active[env.JobID]
	c.Checkpoints.mu.Unlock()
	if ep == nil {
		t.Fatalf("expected an active checkpoint epoch")
	}

	hbBody, _ := json.Marshal(heartbeatBody{
		TaskID: taskID,
		Status: "Running",
		CheckpointAcks: []checkpointAckBody{
			{OperatorID: "sink", CheckpointID: ep.id, Handle: "h-1"},
		},
	})
	hbResp, err := srv.Client().Post(srv.URL+"/heartbeat", "application/json", bytes.NewReader(hbBody))
	if err != nil {
		t.Fatalf("POST /heartbeat: %v", err)
	}
	defer hbResp.Body.Close()
	if hbResp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", hbResp.StatusCode)
	}

	if retained := c.Store.RetainedSnapshots("sink"); len(retained) != 1 {
		t.Fatalf("expected the heartbeat's ack to retain a snapshot, got %v", retained)
	}

	statusResp, err := srv.Client().Get(srv.URL + "/v1/jobs/" + env.JobID + "/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer statusResp.Body.Close()
	if statusResp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", statusResp.StatusCode)
	}
}
