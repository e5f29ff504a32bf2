package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/flowmesh/dataflow/internal/connector"
	"github.com/flowmesh/dataflow/internal/dag"
	"github.com/flowmesh/dataflow/internal/element"
	"github.com/flowmesh/dataflow/internal/keyedstate"
	"github.com/flowmesh/dataflow/internal/runnable"
	"github.com/flowmesh/dataflow/internal/window"
)

// sequentialTimestampAssigner stamps each record with a monotonically
// increasing synthetic event time, for the bundled demo pipeline's
// in-memory text lines which carry no timestamp column of their own.
type sequentialTimestampAssigner struct{ next int64 }

func (a *sequentialTimestampAssigner) ExtractTimestamp(_ *element.Record, previous int64) (int64, error) {
	if a.next <= previous {
		a.next = previous + 1
	}
	ts := a.next
	a.next++
	return ts, nil
}

// bundledPipelineLines seeds the sample "wordcount" pipeline's Source.
var bundledPipelineLines = []string{
	"the quick brown fox",
	"the lazy dog",
	"the fox jumps over the dog",
}

// wordcountFactory builds the runnable chain for the bundled demo
// pipeline: a node's Kind selects which built-in
// implementation backs it, standing in for the pluggable user code a
// real deployment would supply.
func wordcountFactory(taskNumber, numTasks int, store keyedstate.Store) func(node dag.StreamNode) (runnable.Runnable, error) {
	return func(node dag.StreamNode) (runnable.Runnable, error) {
		switch node.Kind {
		case dag.OpSource:
			buffers := make([]element.Buffer, len(bundledPipelineLines))
			for i, line := range bundledPipelineLines {
				buffers[i] = element.NewBuffer([]byte(line))
			}
			return &runnable.Source{
				OperatorID: node.ID,
				Format:     &connector.CollectionSource{Buffers: buffers},
				MinSplits:  numTasks,
				TaskNumber: taskNumber,
				NumTasks:   numTasks,
			}, nil

		case dag.OpWatermarkAssigner:
			return &runnable.WatermarkAssigner{
				OperatorID:  node.ID,
				TimestampFn: &sequentialTimestampAssigner{},
				Delay:       1000,
			}, nil

		case dag.OpFlatMap:
			return &runnable.FlatMap{
				OperatorID: node.ID,
				Fn:         splitWordsFn,
			}, nil

		case dag.OpFilter:
			return &runnable.Filter{
				OperatorID: node.ID,
				Fn:         nonEmptyFn,
			}, nil

		case dag.OpKeyBy:
			return &runnable.KeyBy{
				OperatorID:  node.ID,
				Selector:    wordKeySelector,
				Parallelism: node.Parallelism,
			}, nil

		case dag.OpWindowAssigner:
			return &runnable.WindowAssigner{
				OperatorID: node.ID,
				Assigner:   window.NewTumblingAssigner(60_000),
			}, nil

		case dag.OpReduce:
			return &runnable.Reduce{
				OperatorID:  node.ID,
				KeySelector: wordKeySelector,
				Fold:        countFoldFn,
				Store:       store,
			}, nil

		case dag.OpSink:
			return runnable.NewSink(node.ID, &connector.PrintSink{W: os.Stdout}), nil

		default:
			return nil, fmt.Errorf("cmd/application: no builtin operator for kind %q (node %q)", node.Kind, node.ID)
		}
	}
}

func splitWordsFn(r element.Record) ([]element.Record, error) {
	words := strings.Fields(string(r.Values.Bytes()))
	out := make([]element.Record, 0, len(words))
	for _, w := range words {
		rec := r
		rec.Values = element.NewBuffer([]byte(w))
		out = append(out, rec)
	}
	return out, nil
}

func nonEmptyFn(r element.Record) (bool, error) {
	return len(r.Values.Bytes()) > 0, nil
}

func wordKeySelector(r element.Record) ([]byte, error) {
	return r.Values.Bytes(), nil
}

func countFoldFn(acc []byte, _ element.Record) ([]byte, error) {
	n := 0
	if len(acc) > 0 {
		n, _ = strconv.Atoi(string(acc))
	}
	n++
	return []byte(strconv.Itoa(n)), nil
}
