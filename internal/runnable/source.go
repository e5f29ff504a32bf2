package runnable

import (
	"fmt"
	"time"

	"github.com/flowmesh/dataflow/internal/connector"
	"github.com/flowmesh/dataflow/internal/element"
	"github.com/flowmesh/dataflow/internal/transport"
)

// DefaultSourceHeartbeatInterval is the minimum gap between a Source's
// non-final StreamStatus heartbeats. A heartbeat is checked for only after
// a record is forwarded, so none is sent while the iterator's Next blocks.
const DefaultSourceHeartbeatInterval = 5 * time.Second

// Source drains an InputFormat's RecordIterator, tags each record with this
// task's number (PartitionNum) and task id (ChannelKey.SourceTaskID),
// injects StreamStatus heartbeats (see DefaultSourceHeartbeatInterval),
// and propagates barriers the coordinator signals in-band via Run. It
// owns no upstream channel of its own; Drive is called in a loop by the
// task runtime rather than by an upstream Run.
type Source struct {
	chain
	OperatorID        string
	Format            connector.InputFormat
	MinSplits         int
	TaskNumber        int
	NumTasks          int
	RestoreCheckpoint *element.CheckpointId
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	HeartbeatInterval time.Duration

	iter          connector.RecordIterator
	lastHeartbeat time.Time
	drained       bool
}

func (o *Source) Open(*Context) error {
	splits, err := o.Format.CreateInputSplits(o.MinSplits)
	if err != nil {
		return fmt.Errorf("runnable: source %s create splits: %w", o.OperatorID, err)
	}
	assignments, err := transport.AssignSplits(splits, o.MinSplits, o.NumTasks)
	if err != nil {
		return fmt.Errorf("runnable: source %s assign splits: %w", o.OperatorID, err)
	}
	if o.TaskNumber < 0 || o.TaskNumber >= len(assignments) {
		return fmt.Errorf("runnable: source %s task number %d out of range [0,%d)", o.OperatorID, o.TaskNumber, len(assignments))
	}
	mine := assignments[o.TaskNumber]

	var ckpt *element.CheckpointId
	if !mine.Follower {
		ckpt = o.RestoreCheckpoint
	}
	iter, err := o.Format.RecordIter(mine.Splits, ckpt)
	if err != nil {
		return fmt.Errorf("runnable: source %s record iter: %w", o.OperatorID, err)
	}
	o.iter = iter

	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultSourceHeartbeatInterval
	}
	o.lastHeartbeat = time.Now()
	return nil
}

// Run accepts only coordinator-injected barriers; Source has no real
// upstream, so any other kind reaching Run is a task-runtime wiring bug.
func (o *Source) Run(ctx *Context, channel int, el element.Element) error {
	if el.IsBarrier() {
		return forwardBarrier(ctx, o, &o.chain, channel, el)
	}
	return fmt.Errorf("runnable: source %s received unexpected element kind %s", o.OperatorID, el.Kind)
}

// Drive reads one record (with retry/backoff) from the iterator and
// forwards it, or forwards an end-of-stream StreamStatus once the
// iterator is exhausted; after forwarding a record it also emits a
// heartbeat once the configured interval has passed. The task runtime calls Drive in a loop until it reports
// drained.
func (o *Source) Drive(ctx *Context) (drained bool, err error) {
	if o.drained {
		return true, nil
	}

	buf, ok, err := connector.NextWithRetry(ctx.Ctx, o.iter, o.RetryAttempts, o.RetryBaseDelay)
	if err != nil {
		return false, err
	}
	if !ok {
		o.drained = true
		return true, o.forward(ctx, 0, element.NewStreamStatus(element.StreamStatus{
			PartitionNum: uint16(o.TaskNumber),
			Timestamp:    uint64(time.Now().UnixMilli()),
			End:          true,
		}))
	}

	rec := element.Record{
		PartitionNum: uint16(o.TaskNumber),
		ChannelKey:   element.ChannelKey{SourceTaskID: ctx.TaskID},
		Values:       buf,
	}
	if err := o.forward(ctx, 0, element.NewRecord(rec)); err != nil {
		return false, err
	}

	if time.Since(o.lastHeartbeat) >= o.HeartbeatInterval {
		o.lastHeartbeat = time.Now()
		if err := o.forward(ctx, 0, element.NewStreamStatus(element.StreamStatus{
			PartitionNum: uint16(o.TaskNumber),
			Timestamp:    uint64(o.lastHeartbeat.UnixMilli()),
		})); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (o *Source) Checkpoint(*Context, element.CheckpointId) error { return nil }

func (o *Source) Close(*Context) error {
	if o.iter == nil {
		return nil
	}
	return o.iter.Close()
}
