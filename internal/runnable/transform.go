package runnable

import "github.com/flowmesh/dataflow/internal/element"

// FlatMapFunc transforms one record into zero or more output records.
type FlatMapFunc func(r element.Record) ([]element.Record, error)

// FlatMap applies a user function to each record, forwarding 0+ outputs
// per input; watermarks, stream-status, and barriers pass through
// unchanged.
type FlatMap struct {
	chain
	OperatorID string
	Fn         FlatMapFunc
}

func (o *FlatMap) Open(*Context) error { return nil }

func (o *FlatMap) Run(ctx *Context, channel int, el element.Element) error {
	if el.IsBarrier() {
		return forwardBarrier(ctx, o, &o.chain, channel, el)
	}
	if !el.IsRecord() {
		return o.forward(ctx, channel, el)
	}
	outs, err := o.Fn(*el.Record)
	if err != nil {
		return handleUserError(ctx, o.OperatorID, err)
	}
	for _, r := range outs {
		if err := o.forward(ctx, channel, element.NewRecord(r)); err != nil {
			return err
		}
	}
	return nil
}

func (o *FlatMap) Checkpoint(*Context, element.CheckpointId) error { return nil }
func (o *FlatMap) Close(*Context) error                            { return nil }

// FilterFunc reports whether a record should be kept.
type FilterFunc func(r element.Record) (bool, error)

// Filter drops records the user function rejects; watermarks,
// stream-status, and barriers pass through unchanged.
type Filter struct {
	chain
	OperatorID string
	Fn         FilterFunc
}

func (o *Filter) Open(*Context) error { return nil }

func (o *Filter) Run(ctx *Context, channel int, el element.Element) error {
	if el.IsBarrier() {
		return forwardBarrier(ctx, o, &o.chain, channel, el)
	}
	if !el.IsRecord() {
		return o.forward(ctx, channel, el)
	}
	keep, err := o.Fn(*el.Record)
	if err != nil {
		return handleUserError(ctx, o.OperatorID, err)
	}
	if !keep {
		return nil
	}
	return o.forward(ctx, channel, el)
}

func (o *Filter) Checkpoint(*Context, element.CheckpointId) error { return nil }
func (o *Filter) Close(*Context) error                            { return nil }
