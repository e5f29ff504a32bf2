package coordinator

import (
	"path/filepath"
	"testing"

	"github.com/flowmesh/dataflow/internal/checkpoint"
	"github.com/flowmesh/dataflow/internal/dag"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coordinator.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorePutJobIndexesTasks(t *testing.T) {
	s := openTestStore(t)
	desc := &dag.ApplicationDescriptor{
		ApplicationName: "wordcount",
		Tasks: []dag.TaskDescriptor{
			{TaskID: dag.TaskId{JobID: "wordcount", TaskNumber: 0, NumTasks: 1}},
		},
	}
	if err := s.PutJob("job-1", desc); err != nil {
		t.Fatalf("PutJob: %v", err)
	}

	got, ok := s.GetJob("job-1")
	if !ok || got.ApplicationName != "wordcount" {
		t.Fatalf("GetJob = %+v, %v", got, ok)
	}

	taskID := desc.Tasks[0].TaskID.String()
	jobID, ok := s.JobForTask(taskID)
	if !ok || jobID != "job-1" {
		t.Fatalf("JobForTask(%q) = %q, %v; want job-1, true", taskID, jobID, ok)
	}

	if _, ok := s.JobForTask("unknown/0-of-1"); ok {
		t.Fatalf("JobForTask should miss for an unindexed task id")
	}
}

func TestStoreRetainSnapshotEvictsOldest(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		if _, err := s.RetainSnapshot("op1", handleFor(i)); err != nil {
			t.Fatalf("RetainSnapshot: %v", err)
		}
	}
	got := s.RetainedSnapshots("op1")
	if len(got) != retainedSnapshotsPerOperator {
		t.Fatalf("retained %d handles, want %d", len(got), retainedSnapshotsPerOperator)
	}
	if got[len(got)-1] != handleFor(4) {
		t.Fatalf("newest retained handle = %q, want %q", got[len(got)-1], handleFor(4))
	}
}

func handleFor(i int) checkpoint.Handle {
	return checkpoint.Handle(string(rune('a' + i)))
}
