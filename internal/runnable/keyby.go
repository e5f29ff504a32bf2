package runnable

import (
	"github.com/flowmesh/dataflow/internal/dag"
	"github.com/flowmesh/dataflow/internal/element"
)

// KeySelector extracts the raw key bytes a record is partitioned on. The
// key itself is never serialized onto the wire; every keyed operator
// downstream re-derives it from the record's payload via its own
// selector.
type KeySelector func(r element.Record) ([]byte, error)

// KeyBy computes a record's partition via a fixed 64-bit hash of the
// selector's key bytes and sets PartitionNum accordingly.
type KeyBy struct {
	chain
	OperatorID  string
	Selector    KeySelector
	Parallelism int
}

func (o *KeyBy) Open(*Context) error { return nil }

func (o *KeyBy) Run(ctx *Context, channel int, el element.Element) error {
	if el.IsBarrier() {
		return forwardBarrier(ctx, o, &o.chain, channel, el)
	}
	if !el.IsRecord() {
		return o.forward(ctx, channel, el)
	}
	key, err := o.Selector(*el.Record)
	if err != nil {
		return handleUserError(ctx, o.OperatorID, err)
	}
	rec := *el.Record
	rec.PartitionNum = uint16(dag.PartitionForKey(key, o.Parallelism))
	return o.forward(ctx, channel, element.NewRecord(rec))
}

func (o *KeyBy) Checkpoint(*Context, element.CheckpointId) error { return nil }
func (o *KeyBy) Close(*Context) error                            { return nil }
