package workers

import (
	"errors"
	"fmt"
)

// FaultKind classifies a batch failure.
type FaultKind string

const (
	FaultMalformedResult FaultKind = "malformed_result"
	FaultRuntime         FaultKind = "runtime_fault"
)

// ErrMalformedResult is wrapped by results that do not match the batch shape.
var ErrMalformedResult = errors.New("malformed worker result")

// BatchError reports which worker and batch failed.
type BatchError struct {
	WorkerID int
	Batch    Batch
	Kind     FaultKind
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("worker %d batch %d [%d,%d): %s: %v",
		e.WorkerID, e.Batch.Index, e.Batch.Start, e.Batch.End, e.Kind, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// PanicError represents a recovered panic
type PanicError struct {
	Recovered interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.Recovered)
}
