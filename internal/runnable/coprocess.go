package runnable

import (
	"strconv"

	"github.com/flowmesh/dataflow/internal/checkpoint"
	"github.com/flowmesh/dataflow/internal/element"
	"github.com/flowmesh/dataflow/internal/watermark"
)

// CoProcessFunc handles one record arriving on one of CoProcess's two
// logical inputs, forwarding 0+ output records.
type CoProcessFunc func(r element.Record) ([]element.Record, error)

// CoProcess is the two-input operator kind: two independent per-input
// record handlers sharing one keyed context, with barrier alignment
// across both inputs before either handler's state is snapshotted.
// Channel 0 is the first logical input, channel 1 the second; which
// upstream job maps to which channel is decided by the task wiring, not
// by this operator.
type CoProcess struct {
	chain
	OperatorID  string
	HandleLeft  CoProcessFunc
	HandleRight CoProcessFunc
	Tracker     *watermark.Tracker

	align *checkpoint.Aligner
	ended int
}

func (o *CoProcess) Open(*Context) error {
	o.align = checkpoint.NewAligner(2)
	if o.Tracker == nil {
		o.Tracker = watermark.NewTracker()
	}
	return nil
}

func (o *CoProcess) Run(ctx *Context, channel int, el element.Element) error {
	res, err := o.align.OnElement(channel, el)
	if err != nil {
		return err
	}
	for _, fel := range res.Forward {
		if err := o.process(ctx, channel, fel); err != nil {
			return err
		}
	}
	if res.EpochReached {
		if err := o.Checkpoint(ctx, res.EpochReady); err != nil {
			return err
		}
		return o.forward(ctx, channel, element.NewBarrier(element.Barrier{CheckpointID: res.EpochReady}))
	}
	return nil
}

func (o *CoProcess) process(ctx *Context, channel int, el element.Element) error {
	switch {
	case el.IsRecord():
		handler := o.HandleLeft
		if channel == 1 {
			handler = o.HandleRight
		}
		outs, err := handler(*el.Record)
		if err != nil {
			return handleUserError(ctx, o.OperatorID, err)
		}
		for _, r := range outs {
			if err := o.forward(ctx, channel, element.NewRecord(r)); err != nil {
				return err
			}
		}
		return nil
	case el.IsWatermark():
		aligned, changed := o.Tracker.Update(strconv.Itoa(channel), clampWatermark(*el.Watermark))
		if !changed {
			return nil
		}
		return o.forward(ctx, channel, element.NewWatermark(element.Watermark{Timestamp: watermarkWire(aligned)}))
	case el.IsStreamStatus():
		if !el.StreamStatus.End {
			return o.forward(ctx, channel, el)
		}
		o.Tracker.RemoveChannel(strconv.Itoa(channel))
		o.ended++
		if o.ended < 2 {
			return nil
		}
		if err := o.forward(ctx, channel, element.NewWatermark(element.Watermark{Timestamp: element.MaxWatermark})); err != nil {
			return err
		}
		return o.forward(ctx, channel, el)
	default:
		return nil
	}
}

func (o *CoProcess) Checkpoint(*Context, element.CheckpointId) error { return nil }
func (o *CoProcess) Close(*Context) error                            { return nil }
