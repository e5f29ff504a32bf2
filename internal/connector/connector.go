// Package connector defines the InputFormat/OutputFormat contracts a
// Source/Sink runnable drives, plus small reference implementations
// (collection source, print sink) used by tests and example pipelines.
// Real external connectors (Kafka, etc.) are out of scope for this core;
// only the interface shape is specified here.
package connector

import (
	"context"

	"github.com/flowmesh/dataflow/internal/element"
	"github.com/flowmesh/dataflow/internal/transport"
)

// InputFormat is implemented by a source connector. CreateInputSplits is
// called once by the coordinator; RecordIter is called once per source
// task with that task's assigned splits.
type InputFormat interface {
	CreateInputSplits(minNumSplits int) ([]transport.InputSplit, error)
	RecordIter(splits []transport.InputSplit, checkpointID *element.CheckpointId) (RecordIterator, error)
}

// RecordIterator yields raw column values for one Buffer per Next call.
// checkpointID in RecordIter is nil for follower tasks that own no split
// and therefore have nothing to checkpoint; the iterator must not assume
// one always exists.
type RecordIterator interface {
	Next(ctx context.Context) (element.Buffer, bool, error)
	Close() error
}

// OutputFormat is implemented by a sink connector.
type OutputFormat interface {
	WriteRecord(ctx context.Context, r element.Record) error
	// Flush is called before a barrier snapshot so the sink's external
	// state (e.g. an open file, a network batch) reaches a consistent
	// point before Snapshot is invoked.
	Flush(ctx context.Context) error
	// Snapshot returns an opaque offset/handle capturing the sink's
	// current position, persisted alongside the operator's checkpoint.
	Snapshot(ctx context.Context) ([]byte, error)
	Close() error
}
