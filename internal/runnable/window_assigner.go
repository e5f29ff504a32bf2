package runnable

import (
	"github.com/flowmesh/dataflow/internal/element"
	"github.com/flowmesh/dataflow/internal/window"
)

// WindowAssigner computes every window a record's (already-set) event-time
// timestamp falls into and emits one output record per assigned window,
// each carrying the same payload but a different LocationWindows entry.
type WindowAssigner struct {
	chain
	OperatorID string
	Assigner   window.SlidingAssigner
}

func (o *WindowAssigner) Open(*Context) error { return nil }

func (o *WindowAssigner) Run(ctx *Context, channel int, el element.Element) error {
	if el.IsBarrier() {
		return forwardBarrier(ctx, o, &o.chain, channel, el)
	}
	if !el.IsRecord() {
		return o.forward(ctx, channel, el)
	}

	windows := o.Assigner.AssignWindows(int64(el.Record.Timestamp))
	for _, w := range windows {
		rec := *el.Record
		rec.LocationWindows = []element.WindowRef{{Start: w.Start, End: w.End}}
		if err := o.forward(ctx, channel, element.NewRecord(rec)); err != nil {
			return err
		}
	}
	return nil
}

func (o *WindowAssigner) Checkpoint(*Context, element.CheckpointId) error { return nil }
func (o *WindowAssigner) Close(*Context) error                            { return nil }
