package element

import (
	"reflect"
	"testing"
)

func buildSampleSchema() Schema {
	return Schema{ColU32, ColU64, ColI32, ColI64, ColBytes}
}

func buildSampleBuffer(t *testing.T) Buffer {
	t.Helper()
	w := NewWriter(buildSampleSchema())
	must(t, w.SetU32(10))
	must(t, w.SetU64(20))
	must(t, w.SetI32(30))
	must(t, w.SetI64(40))
	must(t, w.SetBytes([]byte("abc")))
	buf, err := w.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return buf
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestRecordRoundTrip builds a Record with mixed column types,
// serializes, deserializes, and confirms the reader yields exactly the
// original values.
func TestRecordRoundTrip(t *testing.T) {
	schema := buildSampleSchema()
	rec := NewRecord(Record{
		PartitionNum: 2,
		Timestamp:    3,
		Values:       buildSampleBuffer(t),
	})

	wire, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !decoded.IsRecord() {
		t.Fatalf("decoded element is not a Record: %v", decoded.Kind)
	}
	if decoded.Record.PartitionNum != 2 || decoded.Record.Timestamp != 3 {
		t.Fatalf("header mismatch: %+v", decoded.Record)
	}

	reader, err := NewReader(schema, decoded.Record.Values)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if v, err := reader.GetU32(0); err != nil || v != 10 {
		t.Fatalf("GetU32(0) = %v, %v", v, err)
	}
	if v, err := reader.GetU64(1); err != nil || v != 20 {
		t.Fatalf("GetU64(1) = %v, %v", v, err)
	}
	if v, err := reader.GetI32(2); err != nil || v != 30 {
		t.Fatalf("GetI32(2) = %v, %v", v, err)
	}
	if v, err := reader.GetI64(3); err != nil || v != 40 {
		t.Fatalf("GetI64(3) = %v, %v", v, err)
	}
	if v, err := reader.GetBytes(4); err != nil || string(v) != "abc" {
		t.Fatalf("GetBytes(4) = %q, %v", v, err)
	}
}

func TestRecordRoundTripDropsTransientFields(t *testing.T) {
	rec := NewRecord(Record{
		PartitionNum: 1,
		Timestamp:    5,
		ChannelKey:   ChannelKey{SourceTaskID: "t1", TargetTaskID: "t2"},
		LocationWindows: []WindowRef{{Start: 0, End: 60000}},
		Values:          NewBuffer(nil),
	})
	wire, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Record.ChannelKey != (ChannelKey{}) {
		t.Fatalf("ChannelKey should not survive the wire, got %+v", decoded.Record.ChannelKey)
	}
	if decoded.Record.LocationWindows != nil {
		t.Fatalf("LocationWindows should not survive the wire, got %+v", decoded.Record.LocationWindows)
	}
}

func TestWatermarkRoundTrip(t *testing.T) {
	wm := NewWatermark(Watermark{
		PartitionNum:    4,
		TaskNumber:      1,
		NumTasks:        3,
		StatusTimestamp: 100,
		Timestamp:       1000,
	})
	wire, err := Encode(wm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(*decoded.Watermark, *wm.Watermark) {
		t.Fatalf("watermark mismatch: got %+v, want %+v", *decoded.Watermark, *wm.Watermark)
	}
}

func TestStreamStatusRoundTrip(t *testing.T) {
	ss := NewStreamStatus(StreamStatus{End: true, Timestamp: 42})
	wire, err := Encode(ss)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !decoded.StreamStatus.End || decoded.StreamStatus.Timestamp != 42 {
		t.Fatalf("mismatch: %+v", decoded.StreamStatus)
	}
}

func TestBarrierRoundTrip(t *testing.T) {
	b := NewBarrier(Barrier{PartitionNum: 7, CheckpointID: 99})
	wire, err := Encode(b)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Barrier.PartitionNum != 7 || decoded.Barrier.CheckpointID != 99 {
		t.Fatalf("mismatch: %+v", decoded.Barrier)
	}
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	if _, err := Decode([]byte{0xFF, 0, 0}); err == nil {
		t.Fatalf("expected error for unknown wire tag")
	}
}

func TestWriterRejectsOutOfOrderColumn(t *testing.T) {
	w := NewWriter(Schema{ColU32, ColU64})
	if err := w.SetU64(1); err == nil {
		t.Fatalf("expected error setting column 0 as U64 when schema says U32")
	}
}

func TestWriterRejectsIncompleteBuffer(t *testing.T) {
	w := NewWriter(Schema{ColU32, ColU64})
	must(t, w.SetU32(1))
	if _, err := w.Finish(); err == nil {
		t.Fatalf("expected error finishing before all columns set")
	}
}
