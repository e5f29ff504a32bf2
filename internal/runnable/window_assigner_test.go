package runnable

import (
	"testing"

	"github.com/flowmesh/dataflow/internal/element"
	"github.com/flowmesh/dataflow/internal/window"
)

func TestWindowAssignerEmitsOneRecordPerAssignedWindow(t *testing.T) {
	out := &recorder{}
	o := &WindowAssigner{OperatorID: "w", Assigner: window.SlidingAssigner{Size: 60, Slide: 20}}
	o.SetNext(out)

	rec := element.Record{Timestamp: 50}
	if err := o.Run(&Context{}, 0, element.NewRecord(rec)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.got) != 3 {
		t.Fatalf("expected 3 assigned windows (60/20), got %d", len(out.got))
	}
	for _, el := range out.got {
		if len(el.Record.LocationWindows) != 1 {
			t.Fatalf("expected exactly one LocationWindows entry per emitted record, got %+v", el.Record.LocationWindows)
		}
		w := el.Record.LocationWindows[0]
		if int64(rec.Timestamp) < w.Start || int64(rec.Timestamp) >= w.End {
			t.Fatalf("window %+v does not contain record timestamp %d", w, rec.Timestamp)
		}
	}
}

func TestWindowAssignerForwardsNonRecordUnchanged(t *testing.T) {
	out := &recorder{}
	o := &WindowAssigner{OperatorID: "w", Assigner: window.NewTumblingAssigner(60)}
	o.SetNext(out)

	wm := element.NewWatermark(element.Watermark{Timestamp: 10})
	if err := o.Run(&Context{}, 0, wm); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.got) != 1 || out.got[0].Watermark.Timestamp != 10 {
		t.Fatalf("watermark should pass through unchanged, got %+v", out.got)
	}
}

func TestWindowAssignerForwardsBarrierAfterCheckpoint(t *testing.T) {
	out := &recorder{}
	o := &WindowAssigner{OperatorID: "w", Assigner: window.NewTumblingAssigner(60)}
	o.SetNext(out)

	b := element.NewBarrier(element.Barrier{CheckpointID: 7})
	if err := o.Run(&Context{}, 0, b); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.got) != 1 || !out.got[0].IsBarrier() || out.got[0].Barrier.CheckpointID != 7 {
		t.Fatalf("expected barrier forwarded unchanged, got %+v", out.got)
	}
}
