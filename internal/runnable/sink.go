package runnable

import (
	"errors"
	"fmt"
	"time"

	"github.com/flowmesh/dataflow/internal/connector"
	"github.com/flowmesh/dataflow/internal/element"
	"github.com/flowmesh/dataflow/libs/go/core/resilience"
)

// ErrSinkCircuitOpen is returned when the Sink's circuit breaker has
// tripped open, rejecting writes until the cool-down elapses.
var ErrSinkCircuitOpen = errors.New("runnable: sink circuit breaker open")

// Sink is the terminal operator kind: it has no owned next and instead
// writes every record to a user-supplied OutputFormat; on barrier it
// flushes then snapshots the offset/handle. Writes are
// guarded by a circuit breaker so a persistently failing external sink
// trips open rather than retrying every record into a dead downstream.
type Sink struct {
	OperatorID string
	Format     connector.OutputFormat
	Breaker    *resilience.CircuitBreaker
}

// NewSink builds a Sink with a default adaptive circuit breaker: a 30s
// rolling window, 6 buckets, 5-sample minimum, 50% failure-rate threshold,
// 10s half-open cool-down, 1 probe at a time.
func NewSink(operatorID string, format connector.OutputFormat) *Sink {
	return &Sink{
		OperatorID: operatorID,
		Format:     format,
		Breaker:    resilience.NewCircuitBreakerAdaptive(30*time.Second, 6, 5, 0.5, 10*time.Second, 1),
	}
}

func (o *Sink) Open(*Context) error { return nil }

func (o *Sink) Run(ctx *Context, channel int, el element.Element) error {
	switch {
	case el.IsRecord():
		return o.write(ctx, *el.Record)
	case el.IsBarrier():
		return o.Checkpoint(ctx, el.Barrier.CheckpointID)
	default:
		return nil
	}
}

func (o *Sink) write(ctx *Context, rec element.Record) error {
	if !o.Breaker.Allow() {
		return fmt.Errorf("%w: operator %s", ErrSinkCircuitOpen, o.OperatorID)
	}
	err := o.Format.WriteRecord(ctx.Ctx, rec)
	o.Breaker.RecordResult(err == nil)
	return err
}

func (o *Sink) Checkpoint(ctx *Context, id element.CheckpointId) error {
	if err := o.Format.Flush(ctx.Ctx); err != nil {
		return err
	}
	handle, err := o.Format.Snapshot(ctx.Ctx)
	if err != nil {
		return err
	}
	_, err = saveSnapshot(ctx, o.OperatorID, id, handle)
	return err
}

func (o *Sink) Close(*Context) error { return o.Format.Close() }
