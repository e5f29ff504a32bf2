package transport

import (
	"errors"
	"fmt"
)

// ErrTooManySplits is returned when a source's CreateInputSplits produces
// more splits than the coordinator asked for: the overshoot is rejected
// rather than silently assigned.
var ErrTooManySplits = errors.New("transport: input format produced more splits than requested")

// InputSplit is one opaque, source-defined unit of external partitioning
// (e.g. one Kafka partition, one file range).
type InputSplit struct {
	ID       int
	Metadata []byte
}

// TaskSplitAssignment is what one source task instance is assigned:
// either a list of splits it owns, or Follower=true meaning it has none of
// its own and may share a handover with a split-owning sibling task via
// the Registry.
type TaskSplitAssignment struct {
	TaskNumber int
	Splits     []InputSplit
	Follower   bool
}

// AssignSplits distributes the given splits round-robin across numTasks
// source task instances. More than minNumSplits splits is an
// ErrTooManySplits error; fewer are accepted. When splits are
// fewer than tasks, the surplus tasks are marked Follower.
func AssignSplits(splits []InputSplit, minNumSplits, numTasks int) ([]TaskSplitAssignment, error) {
	if len(splits) > minNumSplits {
		return nil, fmt.Errorf("%w: got %d, requested %d", ErrTooManySplits, len(splits), minNumSplits)
	}

	assignments := make([]TaskSplitAssignment, numTasks)
	for i := range assignments {
		assignments[i] = TaskSplitAssignment{TaskNumber: i, Follower: true}
	}
	for i, split := range splits {
		task := i % numTasks
		assignments[task].Splits = append(assignments[task].Splits, split)
		assignments[task].Follower = false
	}
	return assignments, nil
}
