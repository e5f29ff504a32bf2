package dag

import "testing"

// linearGraph builds source -> map -> keyBy -> reduce -> sink, all Forward
// except the KeyBy -> Reduce edge, which is HashBy (a shuffle boundary).
func linearGraph() *StreamGraph {
	return &StreamGraph{
		Nodes: []StreamNode{
			{ID: "source", Kind: OpSource, Parallelism: 2},
			{ID: "map", Kind: OpFlatMap, Parallelism: 2},
			{ID: "keyby", Kind: OpKeyBy, Parallelism: 2},
			{ID: "reduce", Kind: OpReduce, Parallelism: 3},
			{ID: "sink", Kind: OpSink, Parallelism: 3},
		},
		Edges: []StreamEdge{
			{From: "source", To: "map", Kind: EdgeForward},
			{From: "map", To: "keyby", Kind: EdgeForward},
			{From: "keyby", To: "reduce", Kind: EdgeHashBy, KeySelector: "k"},
			{From: "reduce", To: "sink", Kind: EdgeForward},
		},
	}
}

func TestBuildJobGraphChainsForwardSameParallelism(t *testing.T) {
	jg, err := BuildJobGraph(linearGraph())
	if err != nil {
		t.Fatalf("BuildJobGraph: %v", err)
	}
	// source/map/keyby all parallelism=2, chained Forward -> one job.
	// reduce/sink both parallelism=3, chained Forward -> one job.
	if len(jg.Nodes) != 2 {
		t.Fatalf("got %d job nodes, want 2: %+v", len(jg.Nodes), jg.Nodes)
	}
	first := jg.Nodes[0]
	if len(first.Operators) != 3 || first.Operators[0] != "source" || first.Operators[2] != "keyby" {
		t.Fatalf("first job should chain source,map,keyby: %+v", first)
	}
	second := jg.Nodes[1]
	if len(second.Operators) != 2 || second.Operators[0] != "reduce" || second.Operators[1] != "sink" {
		t.Fatalf("second job should chain reduce,sink: %+v", second)
	}
	if len(jg.Edges) != 1 || jg.Edges[0].Kind != EdgeHashBy {
		t.Fatalf("expected exactly one HashBy job edge, got %+v", jg.Edges)
	}
}

func TestBuildJobGraphDoesNotChainAcrossMismatchedParallelism(t *testing.T) {
	sg := &StreamGraph{
		Nodes: []StreamNode{
			{ID: "a", Kind: OpSource, Parallelism: 2},
			{ID: "b", Kind: OpFlatMap, Parallelism: 4},
		},
		Edges: []StreamEdge{{From: "a", To: "b", Kind: EdgeForward}},
	}
	jg, err := BuildJobGraph(sg)
	if err != nil {
		t.Fatalf("BuildJobGraph: %v", err)
	}
	if len(jg.Nodes) != 2 {
		t.Fatalf("mismatched parallelism must not chain, got %+v", jg.Nodes)
	}
}

func TestBuildJobGraphDoesNotChainFanOut(t *testing.T) {
	sg := &StreamGraph{
		Nodes: []StreamNode{
			{ID: "a", Kind: OpSource, Parallelism: 2},
			{ID: "b", Kind: OpFlatMap, Parallelism: 2},
			{ID: "c", Kind: OpFlatMap, Parallelism: 2},
		},
		Edges: []StreamEdge{
			{From: "a", To: "b", Kind: EdgeForward},
			{From: "a", To: "c", Kind: EdgeForward},
		},
	}
	jg, err := BuildJobGraph(sg)
	if err != nil {
		t.Fatalf("BuildJobGraph: %v", err)
	}
	// a has two out-edges, so neither b nor c can chain onto it.
	if len(jg.Nodes) != 3 {
		t.Fatalf("fan-out must not chain, got %+v", jg.Nodes)
	}
}

func TestStreamGraphRejectsCycle(t *testing.T) {
	sg := &StreamGraph{
		Nodes: []StreamNode{
			{ID: "a", Kind: OpFlatMap, Parallelism: 1},
			{ID: "b", Kind: OpFlatMap, Parallelism: 1},
		},
		Edges: []StreamEdge{
			{From: "a", To: "b", Kind: EdgeForward},
			{From: "b", To: "a", Kind: EdgeForward},
		},
	}
	if _, err := BuildJobGraph(sg); err == nil {
		t.Fatalf("expected cycle to be rejected")
	}
}

func TestBuildExecutionGraphMaterializesEdges(t *testing.T) {
	jg, err := BuildJobGraph(linearGraph())
	if err != nil {
		t.Fatalf("BuildJobGraph: %v", err)
	}
	eg, err := BuildExecutionGraph(jg)
	if err != nil {
		t.Fatalf("BuildExecutionGraph: %v", err)
	}
	if len(eg.Tasks) != 5 { // 2 + 3
		t.Fatalf("got %d tasks, want 5: %+v", len(eg.Tasks), eg.Tasks)
	}
	// HashBy is all-to-all: 2 upstream * 3 downstream = 6 edges.
	if len(eg.Edges) != 6 {
		t.Fatalf("got %d edges, want 6: %+v", len(eg.Edges), eg.Edges)
	}
}

func TestBuildExecutionGraphRejectsIncompatibleForward(t *testing.T) {
	jg := &JobGraph{
		Nodes: []JobNode{
			{ID: "a", Operators: []string{"a"}, Parallelism: 2},
			{ID: "b", Operators: []string{"b"}, Parallelism: 3},
		},
		Edges: []JobEdge{{From: "a", To: "b", Kind: EdgeForward}},
	}
	_, err := BuildExecutionGraph(jg)
	if err == nil {
		t.Fatalf("expected GraphError for mismatched Forward parallelism")
	}
	var ge *GraphError
	if !asGraphError(err, &ge) || ge.Kind != ErrIncompatibleParallelism {
		t.Fatalf("expected IncompatibleParallelism, got %v", err)
	}
}

func asGraphError(err error, target **GraphError) bool {
	ge, ok := err.(*GraphError)
	if !ok {
		return false
	}
	*target = ge
	return true
}
