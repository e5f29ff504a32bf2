package worker

import "github.com/flowmesh/dataflow/internal/dag"

// AssignTasks returns the tasks belonging to slot workerIndex out of
// workerCount, splitting each job's parallel task instances round-robin
// across the cluster's worker slots. Local mode always runs with
// workerCount 1 (every task lands on the single in-process worker);
// Standalone mode's worker count is fixed at submission time and passed
// to every worker process via the same CLI flag, so every worker computes
// an identical partition independently rather than the coordinator
// pushing per-worker assignments.
func AssignTasks(desc *dag.ApplicationDescriptor, workerManagerID string, workerIndex, workerCount int) []dag.TaskDescriptor {
	if workerCount <= 1 {
		return desc.Tasks
	}
	var mine []dag.TaskDescriptor
	for _, t := range desc.Tasks {
		if t.TaskID.TaskNumber%workerCount == workerIndex {
			mine = append(mine, t)
		}
	}
	return mine
}
