package transport

import "fmt"

// TransportError wraps a channel disconnect or framing failure on an
// inter-process edge. The task observing it fails; the coordinator
// decides restart vs abort (no per-task restart in this core).
type TransportError struct {
	Edge string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: edge %s: %v", e.Edge, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err with the edge identifier that observed it.
func NewTransportError(edge string, err error) *TransportError {
	return &TransportError{Edge: edge, Err: err}
}
