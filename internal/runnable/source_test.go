package runnable

import (
	"context"
	"testing"
	"time"

	"github.com/flowmesh/dataflow/internal/connector"
	"github.com/flowmesh/dataflow/internal/element"
)

func TestSourceDrivesAllRecordsThenEndOfStream(t *testing.T) {
	src := &connector.CollectionSource{Buffers: []element.Buffer{
		element.NewBuffer([]byte("a")),
		element.NewBuffer([]byte("b")),
		element.NewBuffer([]byte("c")),
	}}
	out := &recorder{}
	o := &Source{
		OperatorID:        "src",
		Format:            src,
		MinSplits:         1,
		TaskNumber:        0,
		NumTasks:          1,
		HeartbeatInterval: time.Hour,
	}
	if err := o.Open(&Context{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	o.SetNext(out)

	ctx := &Context{Ctx: context.Background(), TaskID: "t0"}
	var drained bool
	var err error
	for i := 0; i < 10 && !drained; i++ {
		drained, err = o.Drive(ctx)
		if err != nil {
			t.Fatalf("Drive: %v", err)
		}
	}
	if !drained {
		t.Fatalf("source did not drain within bound")
	}

	var records, statuses int
	for _, el := range out.got {
		if el.IsRecord() {
			records++
		}
		if el.IsStreamStatus() {
			statuses++
			if !el.StreamStatus.End {
				t.Fatalf("unexpected non-final StreamStatus given a huge heartbeat interval: %+v", el)
			}
		}
	}
	if records != 3 {
		t.Fatalf("expected 3 records forwarded, got %d", records)
	}
	if statuses != 1 {
		t.Fatalf("expected exactly one end-of-stream StreamStatus, got %d", statuses)
	}
}

func TestSourceFollowerTaskGetsNoSplitsButStillOpens(t *testing.T) {
	src := &connector.CollectionSource{Buffers: []element.Buffer{element.NewBuffer([]byte("only"))}}
	o := &Source{
		OperatorID: "src",
		Format:     src,
		MinSplits:  1,
		TaskNumber: 1,
		NumTasks:   2,
	}
	if err := o.Open(&Context{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	o.SetNext(&recorder{})

	ctx := &Context{Ctx: context.Background(), TaskID: "t1"}
	drained, err := o.Drive(ctx)
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if !drained {
		t.Fatalf("follower task with no splits should drain immediately")
	}
}
