package runnable

import (
	"testing"

	"github.com/flowmesh/dataflow/internal/element"
	"github.com/flowmesh/dataflow/internal/watermark"
)

func TestWatermarkAssignerEmitsOnlyOnChangeWithPerRecordTrigger(t *testing.T) {
	out := &recorder{}
	o := &WatermarkAssigner{
		OperatorID:  "wm",
		TimestampFn: watermark.SchemaBaseTimestampAssigner{Schema: schemaU64, Column: 0},
		Delay:       1000,
		EmitEvery:   1,
	}
	if err := o.Open(&Context{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	o.SetNext(out)

	ctx := &Context{}
	for _, in := range []uint64{1000, 500, 2000, 1800} {
		rec := element.Record{Values: ts64(in)}
		if err := o.Run(ctx, 0, element.NewRecord(rec)); err != nil {
			t.Fatalf("Run(%d): %v", in, err)
		}
	}

	var emitted []uint64
	for _, el := range out.got {
		if el.IsWatermark() {
			emitted = append(emitted, el.Watermark.Timestamp)
		}
	}
	// Emitted only when changed: the watermark becomes 1000 once
	// maxTsSeen (2000) exceeds delay (1000), and the following 1800 input
	// doesn't move it, so it is reported exactly once.
	if len(emitted) != 1 || emitted[0] != 1000 {
		t.Fatalf("emitted watermarks = %v, want exactly one 1000", emitted)
	}
}

func TestWatermarkAssignerEmitsSentinelOnEndOfStream(t *testing.T) {
	out := &recorder{}
	o := &WatermarkAssigner{
		OperatorID:  "wm",
		TimestampFn: watermark.SchemaBaseTimestampAssigner{Schema: schemaU64, Column: 0},
		Delay:       1000,
	}
	if err := o.Open(&Context{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	o.SetNext(out)

	end := element.NewStreamStatus(element.StreamStatus{End: true})
	if err := o.Run(&Context{}, 0, end); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var last element.Element
	for _, el := range out.got {
		if el.IsWatermark() {
			last = el
		}
	}
	if !last.IsWatermark() || last.Watermark.Timestamp != element.MaxWatermark {
		t.Fatalf("expected a final MaxWatermark watermark, got %+v", out.got)
	}
}
