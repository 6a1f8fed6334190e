package montecarlo

import (
	"context"
	"errors"
	"fmt"

	"github.com/atlas-desktop/risk-sim/internal/workers"
)

// ErrorKind classifies a failed simulation.
type ErrorKind string

const (
	KindMalformedWorkerResult ErrorKind = "malformed_worker_result"
	KindWorkerRuntimeFault    ErrorKind = "worker_runtime_fault"
	KindChartSamplingFailure  ErrorKind = "chart_sampling_failure"
	KindCancelled             ErrorKind = "cancelled"
)

var kindMessages = map[ErrorKind]string{
	KindMalformedWorkerResult: "simulation aborted: a worker returned a malformed result",
	KindWorkerRuntimeFault:    "simulation aborted: a worker failed",
	KindChartSamplingFailure:  "chart sampling failed",
	KindCancelled:             "simulation cancelled",
}

// SimulationError is the single error surfaced for an aborted run.
type SimulationError struct {
	Kind ErrorKind
	Err  error
}

func (e *SimulationError) Error() string {
	msg, ok := kindMessages[e.Kind]
	if !ok {
		msg = "simulation failed"
	}
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *SimulationError) Unwrap() error { return e.Err }

// KindOf returns the kind of a SimulationError, or "" for other errors.
func KindOf(err error) ErrorKind {
	var simErr *SimulationError
	if errors.As(err, &simErr) {
		return simErr.Kind
	}
	return ""
}

// classifyRunError maps a scheduler failure to a SimulationError.
func classifyRunError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &SimulationError{Kind: KindCancelled, Err: err}
	}

	var bErr *workers.BatchError
	if errors.As(err, &bErr) && bErr.Kind == workers.FaultMalformedResult {
		return &SimulationError{Kind: KindMalformedWorkerResult, Err: err}
	}
	return &SimulationError{Kind: KindWorkerRuntimeFault, Err: err}
}
