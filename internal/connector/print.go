package connector

import (
	"context"
	"fmt"
	"io"

	"github.com/flowmesh/dataflow/internal/element"
)

// PrintSink writes each record's timestamp and hex-encoded value bytes,
// tab-separated, to an io.Writer, one line per record. It has no external
// offset to snapshot, so
// Snapshot always returns nil.
type PrintSink struct {
	W io.Writer
}

func (s *PrintSink) WriteRecord(_ context.Context, r element.Record) error {
	_, err := fmt.Fprintf(s.W, "%d\t%x\n", r.Timestamp, r.Values.Bytes())
	return err
}

func (s *PrintSink) Flush(_ context.Context) error { return nil }

func (s *PrintSink) Snapshot(_ context.Context) ([]byte, error) { return nil, nil }

func (s *PrintSink) Close() error { return nil }
