package runnable

import (
	"io"
	"log/slog"

	"github.com/flowmesh/dataflow/internal/element"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is a terminal test double that appends every element it
// receives, used as the `next` of whichever operator is under test.
type recorder struct {
	got []element.Element
}

func (r *recorder) Open(*Context) error { return nil }

func (r *recorder) Run(_ *Context, _ int, el element.Element) error {
	r.got = append(r.got, el)
	return nil
}

func (r *recorder) Checkpoint(*Context, element.CheckpointId) error { return nil }
func (r *recorder) Close(*Context) error                            { return nil }

func ts64(ts uint64) element.Buffer {
	w := element.NewWriter(schemaU64)
	_ = w.SetU64(ts)
	buf, err := w.Finish()
	if err != nil {
		panic(err)
	}
	return buf
}

var schemaU64 = element.Schema{element.ColU64}
