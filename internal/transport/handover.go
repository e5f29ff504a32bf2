// Package transport implements inter-task element movement: the
// in-process handover queue, the process-wide handover registry, the
// length-prefixed TCP framing used between worker processes, and
// input-split assignment to source task instances.
package transport

import (
	"errors"
	"sync"

	"github.com/flowmesh/dataflow/internal/element"
)

// DefaultHandoverCapacity is the default per-edge-replica handover
// capacity (config key pub_sub_channel_size).
const DefaultHandoverCapacity = 1024

// ErrHandoverClosed is returned by Put/Get once Close has been called.
var ErrHandoverClosed = errors.New("transport: handover closed")

// Handover is a bounded multi-producer single-consumer queue between a
// source consumer thread (or network receiver) and the task thread that
// owns it. Put blocks when full; this blocking is the runtime's sole
// backpressure mechanism.
type Handover struct {
	ch     chan element.Element
	once   sync.Once
	closed chan struct{}
}

// NewHandover builds a Handover with the given bounded capacity.
func NewHandover(capacity int) *Handover {
	if capacity <= 0 {
		capacity = DefaultHandoverCapacity
	}
	return &Handover{ch: make(chan element.Element, capacity), closed: make(chan struct{})}
}

// Put blocks until there is room for el, or the handover is closed.
func (h *Handover) Put(el element.Element) error {
	select {
	case <-h.closed:
		return ErrHandoverClosed
	default:
	}
	select {
	case h.ch <- el:
		return nil
	case <-h.closed:
		return ErrHandoverClosed
	}
}

// Get blocks until an element is available, or the handover is closed and
// fully drained (ok is then false). Buffered elements are always
// delivered first, even after Close.
func (h *Handover) Get() (element.Element, bool) {
	select {
	case el := <-h.ch:
		return el, true
	default:
	}
	select {
	case el := <-h.ch:
		return el, true
	case <-h.closed:
		select {
		case el := <-h.ch:
			return el, true
		default:
			return element.Element{}, false
		}
	}
}

// Close stops accepting new Puts. The underlying channel is never closed
// directly (a concurrent Put could otherwise send on a closed channel);
// Get observes closure via the separate closed signal instead.
func (h *Handover) Close() {
	h.once.Do(func() {
		close(h.closed)
	})
}

// Len reports the number of currently buffered elements (for metrics).
func (h *Handover) Len() int {
	return len(h.ch)
}
