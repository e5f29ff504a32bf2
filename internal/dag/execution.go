package dag

import "fmt"

// TaskId identifies one physical task instance: job_id names the logical
// operator group, task_number is the parallel instance index, num_tasks is
// that job's parallelism (carried alongside so a task can reason about its
// own fan-out without a side lookup).
type TaskId struct {
	JobID      string
	TaskNumber int
	NumTasks   int
}

func (t TaskId) String() string {
	return fmt.Sprintf("%s/%d-of-%d", t.JobID, t.TaskNumber, t.NumTasks)
}

// ExecutionEdge is one task-to-task edge replica materialized from a
// JobEdge.
type ExecutionEdge struct {
	From        TaskId
	To          TaskId
	Kind        EdgeKind
	KeySelector string
}

// TaskDescriptor is everything a worker needs to instantiate and run one
// task locally.
type TaskDescriptor struct {
	TaskID    TaskId
	Operators []string // chained stream node ids, execution order
}

// ExecutionGraph is the physical plan: every job instantiated
// `parallelism` times, with task-to-task edges materialized per the job
// edge's kind.
type ExecutionGraph struct {
	Tasks []TaskDescriptor
	Edges []ExecutionEdge
}

// BuildExecutionGraph materializes a JobGraph into physical tasks and edge
// replicas. Forward edges require equal parallelism on both sides and fail
// fast with GraphError::IncompatibleParallelism otherwise.
func BuildExecutionGraph(jg *JobGraph) (*ExecutionGraph, error) {
	byID := make(map[string]*JobNode, len(jg.Nodes))
	for i := range jg.Nodes {
		byID[jg.Nodes[i].ID] = &jg.Nodes[i]
	}

	eg := &ExecutionGraph{}
	for _, jn := range jg.Nodes {
		for i := 0; i < jn.Parallelism; i++ {
			eg.Tasks = append(eg.Tasks, TaskDescriptor{
				TaskID:    TaskId{JobID: jn.ID, TaskNumber: i, NumTasks: jn.Parallelism},
				Operators: append([]string(nil), jn.Operators...),
			})
		}
	}

	for _, je := range jg.Edges {
		fromNode, ok := byID[je.From]
		if !ok {
			return nil, newGraphError(ErrMissingOperator, "job edge references unknown job %q", je.From)
		}
		toNode, ok := byID[je.To]
		if !ok {
			return nil, newGraphError(ErrMissingOperator, "job edge references unknown job %q", je.To)
		}

		switch je.Kind {
		case EdgeForward:
			if fromNode.Parallelism != toNode.Parallelism {
				return nil, newGraphError(ErrIncompatibleParallelism,
					"Forward edge %s -> %s requires equal parallelism, got %d and %d",
					je.From, je.To, fromNode.Parallelism, toNode.Parallelism)
			}
			for i := 0; i < fromNode.Parallelism; i++ {
				eg.Edges = append(eg.Edges, ExecutionEdge{
					From: TaskId{JobID: je.From, TaskNumber: i, NumTasks: fromNode.Parallelism},
					To:   TaskId{JobID: je.To, TaskNumber: i, NumTasks: toNode.Parallelism},
					Kind: EdgeForward,
				})
			}
		case EdgeHashBy:
			for i := 0; i < fromNode.Parallelism; i++ {
				for j := 0; j < toNode.Parallelism; j++ {
					eg.Edges = append(eg.Edges, ExecutionEdge{
						From:        TaskId{JobID: je.From, TaskNumber: i, NumTasks: fromNode.Parallelism},
						To:          TaskId{JobID: je.To, TaskNumber: j, NumTasks: toNode.Parallelism},
						Kind:        EdgeHashBy,
						KeySelector: je.KeySelector,
					})
				}
			}
		case EdgeBroadcast:
			for i := 0; i < fromNode.Parallelism; i++ {
				for j := 0; j < toNode.Parallelism; j++ {
					eg.Edges = append(eg.Edges, ExecutionEdge{
						From: TaskId{JobID: je.From, TaskNumber: i, NumTasks: fromNode.Parallelism},
						To:   TaskId{JobID: je.To, TaskNumber: j, NumTasks: toNode.Parallelism},
						Kind: EdgeBroadcast,
					})
				}
			}
		default:
			return nil, newGraphError(ErrMissingOperator, "job edge %s -> %s has unknown kind %q", je.From, je.To, je.Kind)
		}
	}

	return eg, nil
}

// ApplicationDescriptor is the coordinator's authoritative, flattened
// execution plan: served at GET /v1/jobs/{id}, polled by every worker (the
// coordinator has no /metadata route).
type ApplicationDescriptor struct {
	ApplicationName  string           `json:"application_name" yaml:"application_name"`
	StreamNodes      []StreamNode     `json:"stream_nodes" yaml:"stream_nodes"`
	Jobs             []JobNode        `json:"jobs" yaml:"jobs"`
	Tasks            []TaskDescriptor `json:"tasks" yaml:"tasks"`
	Edges            []ExecutionEdge  `json:"edges" yaml:"edges"`
	InputSplits      map[string][]int `json:"input_splits" yaml:"input_splits"` // task id string -> assigned split indices
	CheckpointHandle string           `json:"checkpoint_handle,omitempty" yaml:"checkpoint_handle,omitempty"`
}

// NodeKind looks up the operator kind a task's chained operator id was
// compiled from, so a worker can tell (for example) whether the head of a
// TaskDescriptor.Operators chain is a Source without re-parsing the
// pipeline description itself.
func (d *ApplicationDescriptor) NodeKind(id string) (OperatorKind, bool) {
	for _, n := range d.StreamNodes {
		if n.ID == id {
			return n.Kind, true
		}
	}
	return "", false
}

// Compile runs the full stream -> job -> execution pipeline and wraps the
// result in an ApplicationDescriptor.
func Compile(name string, sg *StreamGraph) (*ApplicationDescriptor, error) {
	jg, err := BuildJobGraph(sg)
	if err != nil {
		return nil, err
	}
	eg, err := BuildExecutionGraph(jg)
	if err != nil {
		return nil, err
	}
	return &ApplicationDescriptor{
		ApplicationName: name,
		StreamNodes:     append([]StreamNode(nil), sg.Nodes...),
		Jobs:            jg.Nodes,
		Tasks:           eg.Tasks,
		Edges:           eg.Edges,
		InputSplits:     make(map[string][]int),
	}, nil
}
