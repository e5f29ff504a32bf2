// Package watermark implements event-time progress tracking: per-channel
// watermark bookkeeping, the aligned (minimum) watermark an operator with
// multiple input channels observes, and timestamp assignment.
package watermark

import (
	"math"
	"sync"

	"github.com/flowmesh/dataflow/internal/element"
)

// TimestampAssigner extracts an event-time timestamp from a Record.
type TimestampAssigner interface {
	ExtractTimestamp(r *element.Record, previousTimestamp int64) (int64, error)
}

// SchemaBaseTimestampAssigner reads the timestamp from a fixed U64 column
// of the record's Buffer, identified by ordinal against an external
// schema, the common case for structured sources.
type SchemaBaseTimestampAssigner struct {
	Schema element.Schema
	Column int
}

func (a SchemaBaseTimestampAssigner) ExtractTimestamp(r *element.Record, _ int64) (int64, error) {
	reader, err := element.NewReader(a.Schema, r.Values)
	if err != nil {
		return 0, err
	}
	ts, err := reader.GetU64(a.Column)
	if err != nil {
		return 0, err
	}
	return int64(ts), nil
}

// BoundedOutOfOrdernessAssigner tracks the maximum timestamp observed so far
// and reports a watermark trailing it by a fixed delay, once enough data has
// been seen to produce a meaningful bound: no watermark is reported
// until maxTsSeen exceeds delay, and once reported it never decreases.
type BoundedOutOfOrdernessAssigner struct {
	delay     int64
	maxTsSeen int64
}

// NewBoundedOutOfOrdernessAssigner builds an assigner with the given
// max-out-of-orderness delay, in the same units as record timestamps
// (milliseconds).
func NewBoundedOutOfOrdernessAssigner(delay int64) *BoundedOutOfOrdernessAssigner {
	return &BoundedOutOfOrdernessAssigner{delay: delay, maxTsSeen: math.MinInt64}
}

// Observe folds ts into the running maximum.
func (a *BoundedOutOfOrdernessAssigner) Observe(ts int64) {
	if ts > a.maxTsSeen {
		a.maxTsSeen = ts
	}
}

// CurrentWatermark returns the current watermark and true, or (-1, false) if
// not enough data has been observed yet to emit one.
func (a *BoundedOutOfOrdernessAssigner) CurrentWatermark() (int64, bool) {
	if a.maxTsSeen == math.MinInt64 || a.maxTsSeen <= a.delay {
		return -1, false
	}
	return a.maxTsSeen - a.delay, true
}

// Tracker maintains the latest watermark per upstream channel and computes
// the aligned watermark: the minimum across all channels that have
// reported at least once.
type Tracker struct {
	mu      sync.Mutex
	latest  map[string]int64
	aligned int64
	hasAny  bool
}

// NewTracker returns an empty channel watermark tracker.
func NewTracker() *Tracker {
	return &Tracker{latest: make(map[string]int64)}
}

// Update records a new watermark observed on channel. Per-channel
// watermarks must be monotone non-decreasing, so a regressing value is
// ignored. Returns the new aligned watermark and whether it changed (it
// can drop when a new channel reports a lower value).
func (t *Tracker) Update(channel string, wm int64) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.latest[channel]; ok && wm < prev {
		return t.currentAligned()
	}
	t.latest[channel] = wm
	return t.recompute()
}

// RemoveChannel drops a channel from alignment (its upstream has fully
// drained via StreamStatus{End: true}); the aligned watermark is
// recomputed over the remaining channels.
func (t *Tracker) RemoveChannel(channel string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.latest, channel)
	return t.recompute()
}

func (t *Tracker) recompute() (int64, bool) {
	if len(t.latest) == 0 {
		changed := t.hasAny
		t.hasAny = false
		return t.aligned, changed
	}
	min := int64(math.MaxInt64)
	for _, wm := range t.latest {
		if wm < min {
			min = wm
		}
	}
	changed := !t.hasAny || min != t.aligned
	t.aligned = min
	t.hasAny = true
	return t.aligned, changed
}

func (t *Tracker) currentAligned() (int64, bool) {
	return t.aligned, false
}

// Aligned returns the current aligned watermark and whether any channel has
// reported yet.
func (t *Tracker) Aligned() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aligned, t.hasAny
}
