package dag

// JobNode is one or more chained StreamNodes that execute in a single
// task without inter-thread transport between them.
type JobNode struct {
	ID          string
	Operators   []string // chained stream node ids, execution order
	Parallelism int
}

// JobEdge connects two JobNodes; it is the unit the execution graph
// materializes into task-to-task edge replicas.
type JobEdge struct {
	From        string
	To          string
	Kind        EdgeKind
	KeySelector string
}

// JobGraph is the chained graph: adjacent stream nodes are fused into one
// job when all of: same parallelism, single in/single out, edge kind
// Forward, and the edge doesn't cross a shuffle boundary already decided
// for another fan-out of the same upstream node.
type JobGraph struct {
	Nodes []JobNode
	Edges []JobEdge
}

// BuildJobGraph performs the greedy, left-to-right, leaf-first chaining
// pass over a validated StreamGraph. Traversal order is the stream graph's
// topological order; ties (multiple ready nodes) are broken by the
// nodes' original insertion order, matching the chaining algorithm's
// stable-order contract.
func BuildJobGraph(sg *StreamGraph) (*JobGraph, error) {
	if err := sg.Validate(); err != nil {
		return nil, err
	}

	order, err := stableTopologicalOrder(sg)
	if err != nil {
		return nil, err
	}

	jobOf := make(map[string]string, len(sg.Nodes))
	jobNodes := make(map[string]*JobNode)
	var jobOrder []string

	for _, id := range order {
		node, _ := sg.nodeByID(id)
		in := sg.inEdges(id)

		if len(in) == 1 {
			edge := in[0]
			upstream, _ := sg.nodeByID(edge.From)
			upstreamOut := sg.outEdges(edge.From)
			upstreamJobID, chained := jobOf[edge.From]

			if chained && edge.Kind == EdgeForward &&
				len(upstreamOut) == 1 &&
				upstream.Parallelism == node.Parallelism {
				jobOf[id] = upstreamJobID
				jn := jobNodes[upstreamJobID]
				jn.Operators = append(jn.Operators, id)
				continue
			}
		}

		jobID := "job-" + id
		jobOf[id] = jobID
		jobNodes[jobID] = &JobNode{ID: jobID, Operators: []string{id}, Parallelism: node.Parallelism}
		jobOrder = append(jobOrder, jobID)
	}

	jg := &JobGraph{Nodes: make([]JobNode, 0, len(jobOrder))}
	for _, jobID := range jobOrder {
		jg.Nodes = append(jg.Nodes, *jobNodes[jobID])
	}

	type edgeKey struct {
		from, to, selector string
		kind               EdgeKind
	}
	seen := make(map[edgeKey]bool)
	for _, e := range sg.Edges {
		fromJob, toJob := jobOf[e.From], jobOf[e.To]
		if fromJob == toJob {
			continue // absorbed by chaining
		}
		k := edgeKey{fromJob, toJob, e.KeySelector, e.Kind}
		if seen[k] {
			continue
		}
		seen[k] = true
		jg.Edges = append(jg.Edges, JobEdge{From: fromJob, To: toJob, Kind: e.Kind, KeySelector: e.KeySelector})
	}

	return jg, nil
}

// stableTopologicalOrder is Kahn's algorithm with the ready queue scanned
// in the stream graph's original node order each round, so ties are
// always broken by insertion order rather than queue/map iteration order.
func stableTopologicalOrder(g *StreamGraph) ([]string, error) {
	indegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range g.Edges {
		indegree[e.To]++
	}

	done := make(map[string]bool, len(g.Nodes))
	order := make([]string, 0, len(g.Nodes))

	for len(order) < len(g.Nodes) {
		progressed := false
		for _, n := range g.Nodes {
			if done[n.ID] || indegree[n.ID] != 0 {
				continue
			}
			order = append(order, n.ID)
			done[n.ID] = true
			progressed = true
			for _, e := range g.outEdges(n.ID) {
				indegree[e.To]--
			}
		}
		if !progressed {
			return nil, newGraphError(ErrCycle, "stream graph contains a cycle")
		}
	}
	return order, nil
}
