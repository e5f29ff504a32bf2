// Package checkpoint implements the barrier alignment protocol that gives
// operators with more than one input channel a consistent snapshot point,
// plus the pluggable backends that persist the resulting state blobs.
package checkpoint

import (
	"errors"
	"fmt"

	"github.com/flowmesh/dataflow/internal/element"
)

// ErrOutOfOrderBarrier is returned when a barrier for an epoch less than
// the one currently being aligned arrives on a channel, or a channel
// reports a barrier for a later epoch while an earlier one is still
// aligning. Both break the protocol: no barrier with a lower id may
// follow one with a higher id on the same channel.
var ErrOutOfOrderBarrier = errors.New("checkpoint: out-of-order barrier")

// ErrAlignmentBufferExceeded is returned when a channel's buffered,
// not-yet-released elements exceed the configured cap (default 10 MiB
// per channel) while waiting for the rest of the channels to align.
var ErrAlignmentBufferExceeded = errors.New("checkpoint: alignment buffer exceeded")

const defaultMaxBufferBytes = 10 << 20

// Aligner implements barrier alignment for one multi-input operator
// instance (e.g. CoProcess): it buffers elements arriving on channels that
// have already reported the current epoch's barrier, until every channel
// has reported it, then releases the buffered elements in channel order
// behind the barrier.
type Aligner struct {
	numInputs      int
	maxBufferBytes int

	currentEpoch element.CheckpointId
	aligning     bool
	aligned      map[int]bool
	buffered     map[int][]element.Element
	bufferedSize map[int]int
}

// NewAligner builds an Aligner for an operator with numInputs input
// channels (indices 0..numInputs-1).
func NewAligner(numInputs int) *Aligner {
	return &Aligner{
		numInputs:      numInputs,
		maxBufferBytes: defaultMaxBufferBytes,
		aligned:        make(map[int]bool, numInputs),
		buffered:       make(map[int][]element.Element),
		bufferedSize:   make(map[int]int),
	}
}

// WithMaxBufferBytes overrides the per-channel alignment buffer cap.
func (a *Aligner) WithMaxBufferBytes(n int) *Aligner {
	a.maxBufferBytes = n
	return a
}

// Result describes what an Aligner wants forwarded, and whether the epoch
// just completed (all channels aligned) so the caller should invoke its
// checkpoint function and report an ack.
type Result struct {
	Forward      []element.Element
	EpochReady   element.CheckpointId
	EpochReached bool
}

// OnElement feeds one element arriving on channel into the aligner.
func (a *Aligner) OnElement(channel int, el element.Element) (Result, error) {
	if el.IsBarrier() {
		return a.onBarrier(channel, el)
	}

	if a.aligning && a.aligned[channel] {
		size := estimateSize(el)
		if a.bufferedSize[channel]+size > a.maxBufferBytes {
			return Result{}, fmt.Errorf("%w: channel %d exceeded %d bytes", ErrAlignmentBufferExceeded, channel, a.maxBufferBytes)
		}
		a.buffered[channel] = append(a.buffered[channel], el)
		a.bufferedSize[channel] += size
		return Result{}, nil
	}
	return Result{Forward: []element.Element{el}}, nil
}

func (a *Aligner) onBarrier(channel int, el element.Element) (Result, error) {
	id := el.Barrier.CheckpointID

	if !a.aligning {
		a.aligning = true
		a.currentEpoch = id
		a.aligned = make(map[int]bool, a.numInputs)
	} else if id != a.currentEpoch {
		return Result{}, fmt.Errorf("%w: channel %d reported epoch %d while aligning epoch %d", ErrOutOfOrderBarrier, channel, id, a.currentEpoch)
	}

	if a.aligned[channel] {
		return Result{}, fmt.Errorf("%w: channel %d reported epoch %d twice", ErrOutOfOrderBarrier, channel, id)
	}
	a.aligned[channel] = true

	if len(a.aligned) < a.numInputs {
		return Result{}, nil
	}

	forward := []element.Element{el}
	for ch := 0; ch < a.numInputs; ch++ {
		forward = append(forward, a.buffered[ch]...)
	}

	epoch := a.currentEpoch
	a.aligning = false
	a.aligned = make(map[int]bool, a.numInputs)
	a.buffered = make(map[int][]element.Element)
	a.bufferedSize = make(map[int]int)

	return Result{Forward: forward, EpochReady: epoch, EpochReached: true}, nil
}

func estimateSize(el element.Element) int {
	switch el.Kind {
	case element.KindRecord:
		return len(el.Record.Values.Bytes()) + 16
	default:
		return 32
	}
}
