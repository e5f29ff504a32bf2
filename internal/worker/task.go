// Package worker implements the per-process task runtime: polling the
// coordinator for an ApplicationDescriptor, instantiating the runnable
// chains assigned to this worker, driving them to completion, and
// reporting heartbeats/checkpoint acks back to the coordinator.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowmesh/dataflow/internal/dag"
	"github.com/flowmesh/dataflow/internal/element"
	"github.com/flowmesh/dataflow/internal/runnable"
	"github.com/flowmesh/dataflow/internal/transport"
)

// OperatorFactory builds the Runnable instance for one stream node. The
// actual FlatMap/Filter/KeyBy/... user logic is supplied by whoever embeds
// this runtime (the connector contracts already treat user code this way;
// the operator chain follows the same pattern); the factory is how a
// concrete pipeline's functions reach the generic task runtime.
type OperatorFactory func(node dag.StreamNode) (runnable.Runnable, error)

// nextSetter is satisfied by every operator embedding the runnable
// package's private chain type; SetNext is promoted from that embedding.
type nextSetter interface {
	SetNext(runnable.Runnable)
}

// BuildChain wires one TaskDescriptor's chained operator ids into a linked
// Runnable chain using factory to instantiate each stream node, returning
// the head of the chain.
func BuildChain(desc dag.TaskDescriptor, nodes map[string]dag.StreamNode, factory OperatorFactory) (runnable.Runnable, error) {
	if len(desc.Operators) == 0 {
		return nil, fmt.Errorf("worker: task %s has no operators", desc.TaskID)
	}
	ops := make([]runnable.Runnable, 0, len(desc.Operators))
	for _, id := range desc.Operators {
		node, ok := nodes[id]
		if !ok {
			return nil, fmt.Errorf("worker: task %s references unknown stream node %q", desc.TaskID, id)
		}
		op, err := factory(node)
		if err != nil {
			return nil, fmt.Errorf("worker: build operator %q: %w", id, err)
		}
		ops = append(ops, op)
	}
	for i := 0; i < len(ops)-1; i++ {
		ns, ok := ops[i].(nextSetter)
		if !ok {
			return nil, fmt.Errorf("worker: operator %q cannot own a downstream link", desc.Operators[i])
		}
		ns.SetNext(ops[i+1])
	}
	return ops[0], nil
}

// inputEvent is one element multiplexed in from an input channel,
// tagged with the channel index the chain's head operator should see it
// arrive on (needed for CoProcess/Reduce barrier alignment across inputs).
type inputEvent struct {
	channel int
	el      element.Element
}

// TaskRunner drives one task's runnable chain to completion: for a
// Source-headed chain it calls Drive in a loop; for any other chain it
// multiplexes its input Handovers (one per upstream edge replica feeding
// this task) and calls Run for every element that arrives, preserving
// each handover's own FIFO order; interleaving across handovers is
// intentionally unspecified.
type TaskRunner struct {
	TaskID  string
	Chain   runnable.Runnable
	Context *runnable.Context
	Source  *runnable.Source // non-nil iff Chain's head is a Source

	Inputs []*transport.Handover // ignored when Source != nil

	Heartbeat *HeartbeatReporter
	Logger    *slog.Logger

	barriers chan element.CheckpointId
}

// NewTaskRunner builds a runner; if chain's head is *runnable.Source it is
// captured separately so Run can drive it instead of reading from Inputs.
func NewTaskRunner(taskID string, chain runnable.Runnable, ctx *runnable.Context, inputs []*transport.Handover, hb *HeartbeatReporter, logger *slog.Logger) *TaskRunner {
	if logger == nil {
		logger = slog.Default()
	}
	src, _ := chain.(*runnable.Source)
	return &TaskRunner{
		TaskID:    taskID,
		Chain:     chain,
		Context:   ctx,
		Source:    src,
		Inputs:    inputs,
		Heartbeat: hb,
		Logger:    logger,
		barriers:  make(chan element.CheckpointId, 8),
	}
}

// InjectBarrier queues a coordinator-issued barrier for delivery into this
// task's Source on the next Drive iteration (non-Source tasks receive
// their barriers in-band from upstream instead).
func (r *TaskRunner) InjectBarrier(id element.CheckpointId) {
	select {
	case r.barriers <- id:
	default:
		r.Logger.Warn("task barrier queue full, dropping injection", "task_id", r.TaskID, "checkpoint_id", id)
	}
}

// Run drives the chain until it drains, ctx is cancelled, or a fatal
// error occurs.
func (r *TaskRunner) Run(ctx context.Context) error {
	// The task stays registered after it reaches a terminal state so the
	// reporter keeps posting that state (and any final acks) until the
	// worker flushes and exits; unregistering here would drop them.
	if r.Heartbeat != nil {
		r.Heartbeat.Register(r.TaskID)
	}

	var err error
	if r.Source != nil {
		err = r.runSource(ctx)
	} else {
		err = r.runChained(ctx)
	}

	closeErr := r.Chain.Close(r.Context)
	if err != nil {
		if r.Heartbeat != nil {
			r.Heartbeat.SetStatus(r.TaskID, "Failed")
		}
		return err
	}
	if closeErr != nil {
		return fmt.Errorf("worker: task %s close: %w", r.TaskID, closeErr)
	}
	if r.Heartbeat != nil {
		r.Heartbeat.SetStatus(r.TaskID, "Completed")
	}
	return nil
}

func (r *TaskRunner) runSource(ctx context.Context) error {
	if err := r.Chain.Open(r.Context); err != nil {
		return fmt.Errorf("worker: task %s open: %w", r.TaskID, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-r.barriers:
			el := element.NewBarrier(element.Barrier{CheckpointID: id})
			if err := r.Chain.Run(r.Context, 0, el); err != nil {
				return fmt.Errorf("worker: task %s barrier: %w", r.TaskID, err)
			}
			r.ackBarrier(id)
		default:
		}

		drained, err := r.Source.Drive(r.Context)
		if err != nil {
			return fmt.Errorf("worker: task %s drive: %w", r.TaskID, err)
		}
		if drained {
			return nil
		}
	}
}

func (r *TaskRunner) runChained(ctx context.Context) error {
	if err := r.Chain.Open(r.Context); err != nil {
		return fmt.Errorf("worker: task %s open: %w", r.TaskID, err)
	}

	events := multiplexInputs(ctx, r.Inputs)
	// A task's epoch is complete only when the barrier has arrived on
	// every input channel; acking on the first arrival would tell the
	// coordinator the snapshot exists before an aligned head (Reduce,
	// CoProcess) has taken it.
	pendingBarriers := make(map[element.CheckpointId]int)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.Chain.Run(r.Context, ev.channel, ev.el); err != nil {
				return fmt.Errorf("worker: task %s run: %w", r.TaskID, err)
			}
			if ev.el.IsBarrier() {
				id := ev.el.Barrier.CheckpointID
				pendingBarriers[id]++
				if pendingBarriers[id] >= len(r.Inputs) {
					delete(pendingBarriers, id)
					r.ackBarrier(id)
				}
			}
		}
	}
}

// ackBarrier reports every operator snapshot handle the chain recorded
// while processing checkpoint id, plus a bare task-level ack when the
// chain holds no state at all, so the coordinator always observes this
// task completing the epoch.
func (r *TaskRunner) ackBarrier(id element.CheckpointId) {
	if r.Heartbeat == nil {
		return
	}
	handles := r.Context.DrainHandles()
	if len(handles) == 0 {
		r.Heartbeat.AckCheckpoint(r.TaskID, "", id, "")
		return
	}
	for operatorID, handle := range handles {
		r.Heartbeat.AckCheckpoint(r.TaskID, operatorID, id, handle)
	}
}

// multiplexInputs spawns one goroutine per handover forwarding its
// elements, tagged with that handover's index, onto a single shared
// channel; it closes the shared channel once every handover has drained.
func multiplexInputs(ctx context.Context, inputs []*transport.Handover) <-chan inputEvent {
	out := make(chan inputEvent, len(inputs)*8+1)
	if len(inputs) == 0 {
		close(out)
		return out
	}

	done := make(chan struct{}, len(inputs))
	for i, h := range inputs {
		go func(channel int, h *transport.Handover) {
			defer func() { done <- struct{}{} }()
			for {
				el, ok := h.Get()
				if !ok {
					return
				}
				select {
				case out <- inputEvent{channel: channel, el: el}:
				case <-ctx.Done():
					return
				}
			}
		}(i, h)
	}

	go func() {
		for range inputs {
			<-done
		}
		close(out)
	}()
	return out
}
