package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmesh/dataflow/internal/element"
	"github.com/flowmesh/dataflow/libs/go/core/resilience"
)

// SourceError wraps an external read failure from a RecordIterator. A
// source task retries the failing Next call with backoff before
// bubbling the error up as a task failure.
type SourceError struct {
	Attempts int
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("connector: source read failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// DefaultSourceRetryAttempts is how many times a source task retries a
// failing Next call before surfacing a SourceError.
const DefaultSourceRetryAttempts = 5

// DefaultSourceRetryBaseDelay is the initial backoff between retries.
const DefaultSourceRetryBaseDelay = 100 * time.Millisecond

type nextResult struct {
	buf element.Buffer
	ok  bool
}

// NextWithRetry calls it.Next, retrying transient failures with
// exponential backoff + jitter, surfacing a *SourceError once attempts
// are exhausted.
func NextWithRetry(ctx context.Context, it RecordIterator, attempts int, baseDelay time.Duration) (element.Buffer, bool, error) {
	if attempts <= 0 {
		attempts = DefaultSourceRetryAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultSourceRetryBaseDelay
	}

	res, err := resilience.Retry(ctx, attempts, baseDelay, func() (nextResult, error) {
		buf, ok, err := it.Next(ctx)
		if err != nil {
			return nextResult{}, err
		}
		return nextResult{buf: buf, ok: ok}, nil
	})
	if err != nil {
		return element.Buffer{}, false, &SourceError{Attempts: attempts, Err: err}
	}
	return res.buf, res.ok, nil
}
