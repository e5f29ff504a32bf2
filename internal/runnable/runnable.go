// Package runnable implements the task execution pipeline: a chain of
// operator instances that each transform or forward the Elements flowing
// through one task. Every operator kind named in the stream graph (Source,
// FlatMap, Filter, WatermarkAssigner, KeyBy, WindowAssigner, Reduce,
// CoProcess, Sink) has one Runnable implementation here, linked
// next-to-next into a single-threaded pipeline per task.
package runnable

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flowmesh/dataflow/internal/checkpoint"
	"github.com/flowmesh/dataflow/internal/element"
)

// Runnable is one operator instance in a task's chain.
type Runnable interface {
	Open(ctx *Context) error
	Run(ctx *Context, channel int, el element.Element) error
	Checkpoint(ctx *Context, id element.CheckpointId) error
	Close(ctx *Context) error
}

// ErrorPolicy selects what a UserFunctionError does to the owning task.
type ErrorPolicy int

const (
	// ErrorPolicyFailTask fails the task on any user-function error
	// (the default).
	ErrorPolicyFailTask ErrorPolicy = iota
	// ErrorPolicyLogAndSkip logs the error and drops the offending
	// record instead of failing the task.
	ErrorPolicyLogAndSkip
)

// Context carries per-task dependencies shared by every operator in the
// chain: identity for logging/checkpoint handles, the error policy, and
// the checkpoint backend operators persist snapshots to.
type Context struct {
	Ctx         context.Context
	TaskID      string
	ErrorPolicy ErrorPolicy
	Backend     checkpoint.Backend
	Logger      *slog.Logger

	handlesMu sync.Mutex
	handles   map[string]checkpoint.Handle // operatorID -> most recent snapshot handle this barrier
}

// NewContext builds a Context with sane defaults (background context,
// fail-task policy, slog.Default() as the logger if none given).
func NewContext(taskID string, backend checkpoint.Backend, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{Ctx: context.Background(), TaskID: taskID, Backend: backend, Logger: logger, handles: make(map[string]checkpoint.Handle)}
}

// DrainHandles returns every operator snapshot handle recorded since the
// last drain and clears them, so a TaskRunner can attach them to the
// checkpoint ack for the barrier that triggered the saves.
func (c *Context) DrainHandles() map[string]checkpoint.Handle {
	c.handlesMu.Lock()
	defer c.handlesMu.Unlock()
	out := c.handles
	c.handles = make(map[string]checkpoint.Handle)
	return out
}

// UserFunctionError wraps an error returned by a user-supplied FlatMap,
// Filter, Reduce fold, or KeyBy/WindowAssigner selector. By default it
// fails the owning task; ErrorPolicyLogAndSkip downgrades it to a logged,
// skipped record instead.
type UserFunctionError struct {
	Operator string
	Err      error
}

func (e *UserFunctionError) Error() string {
	return fmt.Sprintf("runnable: %s user function: %v", e.Operator, e.Err)
}

func (e *UserFunctionError) Unwrap() error { return e.Err }

// handleUserError applies ctx.ErrorPolicy to an error from a user function,
// returning the error to fail the task or nil after logging to skip it.
func handleUserError(ctx *Context, operator string, err error) error {
	uerr := &UserFunctionError{Operator: operator, Err: err}
	if ctx.ErrorPolicy == ErrorPolicyLogAndSkip {
		ctx.Logger.Warn("user function error, skipping record", "operator", operator, "error", err)
		return nil
	}
	return uerr
}

// chain is embedded by every concrete operator to hold its owned
// downstream link; terminal sinks leave next nil.
type chain struct {
	next Runnable
}

// SetNext wires the owned downstream runnable.
func (c *chain) SetNext(r Runnable) { c.next = r }

func (c *chain) forward(ctx *Context, channel int, el element.Element) error {
	if c.next == nil {
		return nil
	}
	return c.next.Run(ctx, channel, el)
}

// saveSnapshot persists one operator's checkpoint bytes to ctx.Backend
// under (operatorID, ctx.TaskID, id), returning the resulting handle.
func saveSnapshot(ctx *Context, operatorID string, id element.CheckpointId, data []byte) (checkpoint.Handle, error) {
	if ctx.Backend == nil {
		return "", nil
	}
	handle, err := ctx.Backend.Save(ctx.Ctx, operatorID, ctx.TaskID, id, data)
	if err != nil {
		return "", err
	}
	ctx.handlesMu.Lock()
	ctx.handles[operatorID] = handle
	ctx.handlesMu.Unlock()
	return handle, nil
}

// forwardBarrier checkpoints a single-input operator then forwards the
// barrier unchanged: a single input has nothing to align, so the
// snapshot happens immediately and the barrier passes straight through.
func forwardBarrier(ctx *Context, self Runnable, c *chain, channel int, el element.Element) error {
	if err := self.Checkpoint(ctx, el.Barrier.CheckpointID); err != nil {
		return err
	}
	return c.forward(ctx, channel, el)
}
