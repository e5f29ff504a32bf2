package runnable

import (
	"math"
	"strconv"

	"github.com/flowmesh/dataflow/internal/checkpoint"
	"github.com/flowmesh/dataflow/internal/element"
	"github.com/flowmesh/dataflow/internal/keyedstate"
	"github.com/flowmesh/dataflow/internal/watermark"
	"github.com/flowmesh/dataflow/internal/window"
)

// AccumulatorFunc folds one record into an existing (possibly nil)
// accumulator, returning the new accumulator bytes.
type AccumulatorFunc func(acc []byte, r element.Record) ([]byte, error)

// Reduce maintains keyed, windowed accumulator state: on a record it folds
// into the (key, window) accumulator; on a watermark it fires and evicts
// every window whose end is at or before the newly aligned watermark,
// emitting one output record per fired window with TriggerWindow set.
// Reduce commonly fans in from a HashBy shuffle with more than one
// upstream channel, so it owns its own barrier Aligner exactly as
// CoProcess does.
type Reduce struct {
	chain
	OperatorID  string
	NumInputs   int
	KeySelector KeySelector
	Fold        AccumulatorFunc
	Store       keyedstate.Store
	Tracker     *watermark.Tracker

	align *checkpoint.Aligner
	ended int
}

func (o *Reduce) Open(*Context) error {
	if o.NumInputs < 1 {
		o.NumInputs = 1
	}
	o.align = checkpoint.NewAligner(o.NumInputs)
	if o.Tracker == nil {
		o.Tracker = watermark.NewTracker()
	}
	if o.Store == nil {
		o.Store = keyedstate.NewMemoryStore()
	}
	return nil
}

func (o *Reduce) Run(ctx *Context, channel int, el element.Element) error {
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

func (o *Reduce) process(ctx *Context, channel int, el element.Element) error {
	switch {
	case el.IsRecord():
		return o.fold(ctx, *el.Record)
	case el.IsWatermark():
		aligned, changed := o.Tracker.Update(strconv.Itoa(channel), clampWatermark(*el.Watermark))
		if !changed {
			return nil
		}
		if err := o.fireWindows(ctx, aligned); err != nil {
			return err
		}
		return o.forward(ctx, channel, element.NewWatermark(element.Watermark{Timestamp: watermarkWire(aligned)}))
	case el.IsStreamStatus():
		if !el.StreamStatus.End {
			return o.forward(ctx, channel, el)
		}
		// One channel drained. The end status is forwarded exactly once,
		// after every input has drained; until then it only narrows the
		// alignment set.
		o.Tracker.RemoveChannel(strconv.Itoa(channel))
		o.ended++
		if o.ended < o.NumInputs {
			return nil
		}
		if err := o.fireWindows(ctx, math.MaxInt64); err != nil {
			return err
		}
		if err := o.forward(ctx, channel, element.NewWatermark(element.Watermark{Timestamp: element.MaxWatermark})); err != nil {
			return err
		}
		return o.forward(ctx, channel, el)
	default:
		return nil
	}
}

// clampWatermark maps the wire timestamp onto the tracker's signed domain,
// pinning the u64 MAX sentinel to MaxInt64 instead of letting it wrap
// negative.
func clampWatermark(w element.Watermark) int64 {
	if w.Timestamp >= element.MaxWatermark || w.Timestamp > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(w.Timestamp)
}

// watermarkWire is the inverse: an aligned MaxInt64 goes back out as the
// u64 MAX sentinel.
func watermarkWire(aligned int64) uint64 {
	if aligned == math.MaxInt64 {
		return element.MaxWatermark
	}
	return uint64(aligned)
}

func (o *Reduce) fold(ctx *Context, rec element.Record) error {
	key, err := o.KeySelector(rec)
	if err != nil {
		return handleUserError(ctx, o.OperatorID, err)
	}
	keyStr := string(key)
	for _, wr := range rec.LocationWindows {
		w := window.Window{Start: wr.Start, End: wr.End}
		k := keyedstate.EntryKey{OperatorID: o.OperatorID, Key: keyStr, Window: w}
		acc, _ := o.Store.Get(k)
		next, err := o.Fold(acc, rec)
		if err != nil {
			return handleUserError(ctx, o.OperatorID, err)
		}
		o.Store.Put(k, next)
	}
	return nil
}

// fireWindows emits and evicts every (key, window) whose window has ended
// at or before the given watermark, across every key this operator holds
// state for.
func (o *Reduce) fireWindows(ctx *Context, watermarkTs int64) error {
	for _, key := range o.Store.Keys(o.OperatorID) {
		for _, w := range o.Store.WindowsFor(o.OperatorID, key) {
			if w.End > watermarkTs {
				continue
			}
			k := keyedstate.EntryKey{OperatorID: o.OperatorID, Key: key, Window: w}
			acc, ok := o.Store.Get(k)
			if !ok {
				continue
			}
			o.Store.Delete(k)
			wr := element.WindowRef{Start: w.Start, End: w.End}
			rec := element.Record{
				Timestamp:     uint64(w.End),
				TriggerWindow: &wr,
				Values:        element.NewBuffer(acc),
			}
			if err := o.forward(ctx, 0, element.NewRecord(rec)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Reduce) Checkpoint(ctx *Context, id element.CheckpointId) error {
	data, err := o.Store.Snapshot()
	if err != nil {
		return err
	}
	_, err = saveSnapshot(ctx, o.OperatorID, id, data)
	return err
}

func (o *Reduce) Close(*Context) error { return nil }
