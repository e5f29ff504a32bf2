package coordinator

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/flowmesh/dataflow/internal/checkpoint"
	"github.com/flowmesh/dataflow/internal/dag"
)

func newTestDriver(t *testing.T) (*CheckpointDriver, *Store) {
	t.Helper()
	s := openTestStore(t)
	meter := otel.GetMeterProvider().Meter("test")
	d := NewCheckpointDriver(s, nil, 1000, 5000, meter, nil)
	return d, s
}

func TestCheckpointDriverAckRetainsHandleAndCompletesEpoch(t *testing.T) {
	d, s := newTestDriver(t)

	desc := &dag.ApplicationDescriptor{
		ApplicationName: "wordcount",
		StreamNodes:     []dag.StreamNode{{ID: "source", Kind: dag.OpSource, Parallelism: 1}},
		Jobs:            []dag.JobNode{{ID: "wordcount", Operators: []string{"source"}, Parallelism: 1}},
		Tasks: []dag.TaskDescriptor{
			{TaskID: dag.TaskId{JobID: "wordcount", TaskNumber: 0, NumTasks: 1}},
		},
	}
	if err := s.PutJob("job-1", desc); err != nil {
		t.Fatalf("PutJob: %v", err)
	}

	d.maybeIssue(context.Background(), "job-1")

	d.mu.Lock()
	ep := d.active["job-1"]
	d.mu.Unlock()
	if ep == nil {
		t.Fatalf("expected an active epoch after maybeIssue")
	}

	taskID := desc.Tasks[0].TaskID.String()
	d.Ack("job-1", "op1", taskID, ep.id, checkpoint.Handle("h-1"))

	d.mu.Lock()
	completed := d.active["job-1"] == nil
	d.mu.Unlock()
	if !completed {
		t.Fatalf("expected epoch to complete once every task acked")
	}

	retained := s.RetainedSnapshots("op1")
	if len(retained) != 1 || retained[0] != checkpoint.Handle("h-1") {
		t.Fatalf("RetainedSnapshots(op1) = %v, want [h-1]", retained)
	}
}

func TestCheckpointDriverAckIgnoresStaleEpoch(t *testing.T) {
	d, s := newTestDriver(t)
	desc := &dag.ApplicationDescriptor{
		ApplicationName: "wordcount",
		Tasks: []dag.TaskDescriptor{
			{TaskID: dag.TaskId{JobID: "wordcount", TaskNumber: 0, NumTasks: 1}},
		},
	}
	if err := s.PutJob("job-1", desc); err != nil {
		t.Fatalf("PutJob: %v", err)
	}

	taskID := desc.Tasks[0].TaskID.String()
	d.Ack("job-1", "op1", taskID, 999, checkpoint.Handle("stale"))

	d.mu.Lock()
	_, hasEpoch := d.active["job-1"]
	d.mu.Unlock()
	if hasEpoch {
		t.Fatalf("Ack should not create an epoch for an unknown checkpoint id")
	}
	if retained := s.RetainedSnapshots("op1"); len(retained) != 1 {
		t.Fatalf("stale ack should still retain the handle it carried, got %v", retained)
	}
}
