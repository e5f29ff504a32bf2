package dag

import "fmt"

// GraphErrorKind classifies graph-construction failures: inconsistent
// parallelism, cycles, or missing operators.
type GraphErrorKind string

const (
	ErrIncompatibleParallelism GraphErrorKind = "IncompatibleParallelism"
	ErrCycle                   GraphErrorKind = "Cycle"
	ErrMissingOperator         GraphErrorKind = "MissingOperator"
	ErrDuplicateNode           GraphErrorKind = "DuplicateNode"
)

// GraphError is fatal at graph build time; the coordinator must refuse to
// schedule the job rather than start it in a broken state.
type GraphError struct {
	Kind   GraphErrorKind
	Detail string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("dag: %s: %s", e.Kind, e.Detail)
}

func newGraphError(kind GraphErrorKind, format string, args ...any) *GraphError {
	return &GraphError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
