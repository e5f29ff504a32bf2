package connector

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowmesh/dataflow/internal/element"
)

func TestCollectionSourceSplitsCoverAllBuffers(t *testing.T) {
	src := &CollectionSource{Buffers: []element.Buffer{
		element.NewBuffer([]byte("a")),
		element.NewBuffer([]byte("b")),
		element.NewBuffer([]byte("c")),
		element.NewBuffer([]byte("d")),
		element.NewBuffer([]byte("e")),
	}}

	splits, err := src.CreateInputSplits(2)
	if err != nil {
		t.Fatalf("CreateInputSplits: %v", err)
	}
	if len(splits) != 2 {
		t.Fatalf("expected 2 splits, got %d", len(splits))
	}

	it, err := src.RecordIter(splits, nil)
	if err != nil {
		t.Fatalf("RecordIter: %v", err)
	}
	defer it.Close()

	var got []string
	for {
		buf, ok, err := it.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, string(buf.Bytes()))
	}
	if len(got) != 5 {
		t.Fatalf("expected all 5 buffers back, got %v", got)
	}
}

func TestCollectionSourceNilCheckpointIDForFollower(t *testing.T) {
	src := &CollectionSource{Buffers: []element.Buffer{element.NewBuffer([]byte("x"))}}
	splits, _ := src.CreateInputSplits(1)
	if _, err := src.RecordIter(nil, nil); err != nil {
		t.Fatalf("RecordIter with no splits (follower) should not error: %v", err)
	}
	if _, err := src.RecordIter(splits, nil); err != nil {
		t.Fatalf("RecordIter with nil checkpoint id should not error: %v", err)
	}
}

func TestCollectionSinkAccumulatesRecords(t *testing.T) {
	sink := &CollectionSink{}
	for i := 0; i < 3; i++ {
		r := element.Record{Timestamp: uint64(i)}
		if err := sink.WriteRecord(context.Background(), r); err != nil {
			t.Fatalf("WriteRecord: %v", err)
		}
	}
	if len(sink.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(sink.Records))
	}
	snap, err := sink.Snapshot(context.Background())
	if err != nil || len(snap) != 1 || snap[0] != 3 {
		t.Fatalf("Snapshot() = %v, %v", snap, err)
	}
}

func TestPrintSinkWritesLine(t *testing.T) {
	var buf bytes.Buffer
	sink := &PrintSink{W: &buf}
	r := element.Record{Timestamp: 42, Values: element.NewBuffer([]byte{0xAB})}
	if err := sink.WriteRecord(context.Background(), r); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if buf.String() != "42\tab\n" {
		t.Fatalf("got %q", buf.String())
	}
}

type flakyIter struct {
	failures int
	called   int
}

func (f *flakyIter) Next(_ context.Context) (element.Buffer, bool, error) {
	f.called++
	if f.called <= f.failures {
		return element.Buffer{}, false, errors.New("transient read error")
	}
	return element.NewBuffer([]byte("ok")), true, nil
}

func (f *flakyIter) Close() error { return nil }

func TestNextWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	it := &flakyIter{failures: 2}
	buf, ok, err := NextWithRetry(context.Background(), it, 5, time.Millisecond)
	if err != nil || !ok || string(buf.Bytes()) != "ok" {
		t.Fatalf("NextWithRetry() = %v, %v, %v", buf, ok, err)
	}
	if it.called != 3 {
		t.Fatalf("expected 3 calls (2 failures + success), got %d", it.called)
	}
}

func TestNextWithRetryBubblesSourceErrorAfterExhaustion(t *testing.T) {
	it := &flakyIter{failures: 10}
	_, _, err := NextWithRetry(context.Background(), it, 3, time.Millisecond)
	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("expected *SourceError, got %v", err)
	}
	if srcErr.Attempts != 3 {
		t.Fatalf("expected Attempts=3, got %d", srcErr.Attempts)
	}
}
