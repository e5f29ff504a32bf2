// Package window implements event-time window assignment: half-open
// [Start, End) intervals and the sliding-window assigner used by the
// WindowAssigner runnable.
package window

import "sort"

// Window is a half-open event-time interval [Start, End).
type Window struct {
	Start int64
	End   int64
}

// Contains reports whether ts falls in [Start, End).
func (w Window) Contains(ts int64) bool {
	return ts >= w.Start && ts < w.End
}

// Before reports whether w sorts strictly before o (by Start, then End).
func (w Window) Before(o Window) bool {
	if w.Start != o.Start {
		return w.Start < o.Start
	}
	return w.End < o.End
}

// MaxEnd returns the largest End across ws; ws must be non-empty.
func MaxEnd(ws []Window) int64 {
	max := ws[0].End
	for _, w := range ws[1:] {
		if w.End > max {
			max = w.End
		}
	}
	return max
}

// Sort orders ws in place by Start then End.
func Sort(ws []Window) {
	sort.Slice(ws, func(i, j int) bool { return ws[i].Before(ws[j]) })
}

// SlidingAssigner assigns each event-time timestamp to every sliding
// window that contains it: a record with timestamp t gets at most
// ceil(Size/Slide) windows (exactly Size/Slide when Slide divides Size),
// with starts floor((t-Offset)/Slide)*Slide + Offset - i*Slide for i in
// [0, ceil(Size/Slide)), keeping only those that contain t.
type SlidingAssigner struct {
	Size   int64
	Slide  int64
	Offset int64
}

// NewTumblingAssigner builds a SlidingAssigner whose slide equals its size,
// i.e. non-overlapping fixed windows, the common case.
func NewTumblingAssigner(size int64) SlidingAssigner {
	return SlidingAssigner{Size: size, Slide: size}
}

// AssignWindows returns every window ts is assigned to, earliest first.
func (a SlidingAssigner) AssignWindows(ts int64) []Window {
	if a.Slide <= 0 || a.Size <= 0 {
		return nil
	}
	lastStart := floorDiv(ts-a.Offset, a.Slide)*a.Slide + a.Offset
	numWindows := ceilDiv(a.Size, a.Slide)

	windows := make([]Window, 0, numWindows)
	for i := int64(0); i < numWindows; i++ {
		start := lastStart - i*a.Slide
		end := start + a.Size
		if ts >= start && ts < end {
			windows = append(windows, Window{Start: start, End: end})
		}
	}
	Sort(windows)
	return windows
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
