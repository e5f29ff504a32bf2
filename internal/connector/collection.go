package connector

import (
	"context"
	"sync"

	"github.com/flowmesh/dataflow/internal/element"
	"github.com/flowmesh/dataflow/internal/transport"
)

// CollectionSource is an in-memory InputFormat over a fixed slice of
// buffers, useful for tests and the bundled example pipelines. Each call
// to CreateInputSplits produces at most minNumSplits splits (never more
// than there are buffers, and fewer when the buffers do not divide into
// minNumSplits equal chunks), each wrapping a contiguous slice of the
// collection.
type CollectionSource struct {
	Buffers []element.Buffer
}

func (s *CollectionSource) CreateInputSplits(minNumSplits int) ([]transport.InputSplit, error) {
	if minNumSplits <= 0 {
		minNumSplits = 1
	}
	n := len(s.Buffers)
	if minNumSplits > n {
		minNumSplits = n
	}
	if minNumSplits == 0 {
		return nil, nil
	}

	splits := make([]transport.InputSplit, 0, minNumSplits)
	chunk := (n + minNumSplits - 1) / minNumSplits
	for i := 0; i < n; i += chunk {
		end := i + chunk
		if end > n {
			end = n
		}
		splits = append(splits, transport.InputSplit{ID: len(splits), Metadata: encodeRange(i, end)})
	}
	return splits, nil
}

func (s *CollectionSource) RecordIter(splits []transport.InputSplit, _ *element.CheckpointId) (RecordIterator, error) {
	var buffers []element.Buffer
	for _, sp := range splits {
		start, end := decodeRange(sp.Metadata)
		buffers = append(buffers, s.Buffers[start:end]...)
	}
	return &collectionIter{buffers: buffers}, nil
}

type collectionIter struct {
	buffers []element.Buffer
	pos     int
}

func (it *collectionIter) Next(_ context.Context) (element.Buffer, bool, error) {
	if it.pos >= len(it.buffers) {
		return element.Buffer{}, false, nil
	}
	b := it.buffers[it.pos]
	it.pos++
	return b, true, nil
}

func (it *collectionIter) Close() error { return nil }

func encodeRange(start, end int) []byte {
	return []byte{byte(start >> 24), byte(start >> 16), byte(start >> 8), byte(start),
		byte(end >> 24), byte(end >> 16), byte(end >> 8), byte(end)}
}

func decodeRange(b []byte) (int, int) {
	start := int(b[0])<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3])
	end := int(b[4])<<24 | int(b[5])<<16 | int(b[6])<<8 | int(b[7])
	return start, end
}

// CollectionSink appends every written record to an in-memory slice,
// guarded by a mutex since Flush/WriteRecord may be called from
// concurrent tasks sharing one process-level sink (the bundled example
// pipelines run all tasks in one test process).
type CollectionSink struct {
	mu      sync.Mutex
	Records []element.Record
}

func (s *CollectionSink) WriteRecord(_ context.Context, r element.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records = append(s.Records, r)
	return nil
}

func (s *CollectionSink) Flush(_ context.Context) error { return nil }

func (s *CollectionSink) Snapshot(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []byte{byte(len(s.Records))}, nil
}

func (s *CollectionSink) Close() error { return nil }
