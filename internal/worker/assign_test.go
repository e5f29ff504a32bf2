package worker

import (
	"testing"

	"github.com/flowmesh/dataflow/internal/dag"
)

func descriptorWithTasks(jobID string, n int) *dag.ApplicationDescriptor {
	desc := &dag.ApplicationDescriptor{ApplicationName: jobID}
	for i := 0; i < n; i++ {
		desc.Tasks = append(desc.Tasks, dag.TaskDescriptor{
			TaskID: dag.TaskId{JobID: jobID, TaskNumber: i, NumTasks: n},
		})
	}
	return desc
}

func TestAssignTasksSingleWorkerGetsEverything(t *testing.T) {
	desc := descriptorWithTasks("wordcount", 4)
	mine := AssignTasks(desc, "wm-0", 0, 1)
	if len(mine) != 4 {
		t.Fatalf("single-worker count = %d, want 4", len(mine))
	}
}

func TestAssignTasksPartitionsRoundRobin(t *testing.T) {
	desc := descriptorWithTasks("wordcount", 4)

	shard0 := AssignTasks(desc, "wm-0", 0, 2)
	shard1 := AssignTasks(desc, "wm-1", 1, 2)

	if len(shard0)+len(shard1) != len(desc.Tasks) {
		t.Fatalf("shards cover %d+%d tasks, want %d total", len(shard0), len(shard1), len(desc.Tasks))
	}
	seen := make(map[int]bool)
	for _, td := range shard0 {
		if td.TaskID.TaskNumber%2 != 0 {
			t.Fatalf("shard0 got odd task number %d", td.TaskID.TaskNumber)
		}
		seen[td.TaskID.TaskNumber] = true
	}
	for _, td := range shard1 {
		if td.TaskID.TaskNumber%2 != 1 {
			t.Fatalf("shard1 got even task number %d", td.TaskID.TaskNumber)
		}
		seen[td.TaskID.TaskNumber] = true
	}
	if len(seen) != len(desc.Tasks) {
		t.Fatalf("shards missed task numbers: saw %d distinct, want %d", len(seen), len(desc.Tasks))
	}
}
