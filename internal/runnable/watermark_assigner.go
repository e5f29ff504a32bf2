package runnable

import (
	"time"

	"github.com/flowmesh/dataflow/internal/element"
	"github.com/flowmesh/dataflow/internal/watermark"
)

// DefaultWatermarkEmitInterval is how often a WatermarkAssigner re-checks
// whether to emit, absent a record-count trigger: every 200ms or every N
// records, whichever comes first.
const DefaultWatermarkEmitInterval = 200 * time.Millisecond

// DefaultWatermarkEmitRecords is the record-count trigger.
const DefaultWatermarkEmitRecords = 1000

// WatermarkAssigner extracts an event-time timestamp from each record via
// TimestampAssigner, sets it on the record, folds it into a bounded
// out-of-orderness tracker, and emits a Watermark element whenever the
// tracker's current watermark changes (on a record-count trigger, a timer
// trigger evaluated from Run, or on StreamStatus).
type WatermarkAssigner struct {
	chain
	OperatorID    string
	TimestampFn   watermark.TimestampAssigner
	Delay         int64
	EmitInterval  time.Duration
	EmitEvery     int
	PartitionNum  uint16

	assigner     *watermark.BoundedOutOfOrdernessAssigner
	lastEmit     time.Time
	lastEmitted  int64
	sinceEmit    int
}

func (o *WatermarkAssigner) Open(*Context) error {
	o.assigner = watermark.NewBoundedOutOfOrdernessAssigner(o.Delay)
	if o.EmitInterval <= 0 {
		o.EmitInterval = DefaultWatermarkEmitInterval
	}
	if o.EmitEvery <= 0 {
		o.EmitEvery = DefaultWatermarkEmitRecords
	}
	o.lastEmitted = -1
	return nil
}

func (o *WatermarkAssigner) Run(ctx *Context, channel int, el element.Element) error {
	if el.IsBarrier() {
		return forwardBarrier(ctx, o, &o.chain, channel, el)
	}
	if el.IsStreamStatus() {
		// The sentinel goes out ahead of the end status so downstream
		// channel trackers still count this channel when it arrives.
		if el.StreamStatus.End {
			if err := o.emitFinal(ctx); err != nil {
				return err
			}
			return o.forward(ctx, channel, el)
		}
		if err := o.forward(ctx, channel, el); err != nil {
			return err
		}
		return o.maybeEmit(ctx, true)
	}
	if !el.IsRecord() {
		return o.forward(ctx, channel, el)
	}

	rec := *el.Record
	ts, err := o.TimestampFn.ExtractTimestamp(&rec, o.lastEmitted)
	if err != nil {
		return handleUserError(ctx, o.OperatorID, err)
	}
	rec.Timestamp = uint64(ts)
	o.assigner.Observe(ts)
	if err := o.forward(ctx, channel, element.NewRecord(rec)); err != nil {
		return err
	}

	o.sinceEmit++
	countTrigger := o.sinceEmit >= o.EmitEvery
	timeTrigger := time.Since(o.lastEmit) >= o.EmitInterval
	return o.maybeEmit(ctx, countTrigger || timeTrigger)
}

func (o *WatermarkAssigner) maybeEmit(ctx *Context, trigger bool) error {
	if !trigger {
		return nil
	}
	wm, ok := o.assigner.CurrentWatermark()
	if !ok || wm == o.lastEmitted {
		o.lastEmit = time.Now()
		o.sinceEmit = 0
		return nil
	}
	o.lastEmitted = wm
	o.lastEmit = time.Now()
	o.sinceEmit = 0
	return o.forward(ctx, 0, element.NewWatermark(element.Watermark{
		PartitionNum: o.PartitionNum,
		Timestamp:    uint64(wm),
	}))
}

// emitFinal issues the sentinel MaxWatermark once the upstream channel
// has fully drained.
func (o *WatermarkAssigner) emitFinal(ctx *Context) error {
	return o.forward(ctx, 0, element.NewWatermark(element.Watermark{
		PartitionNum: o.PartitionNum,
		Timestamp:    element.MaxWatermark,
	}))
}

func (o *WatermarkAssigner) Checkpoint(*Context, element.CheckpointId) error { return nil }
func (o *WatermarkAssigner) Close(*Context) error                           { return nil }
