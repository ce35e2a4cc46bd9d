package multicall

import (
	"errors"
	"fmt"
)

// ErrValueRejected signals a native-value transfer aimed at the entrypoint
// itself, which is never accepted outside a batched call.
var ErrValueRejected = errors.New("native value not accepted")

// ErrShellTerminated is returned when Run is called on a shell that has
// already emitted its result. Shells are single-use.
var ErrShellTerminated = errors.New("shell already terminated")

// InvalidTagError reports an envelope discriminant outside the closed
// OperationKind set. It is raised before any payload parsing.
type InvalidTagError struct {
	Tag uint8
}

func (e *InvalidTagError) Error() string {
	return fmt.Sprintf("invalid operation tag %d", e.Tag)
}

// IsInvalidTag checks whether err is an InvalidTagError and returns it.
func IsInvalidTag(err error) (*InvalidTagError, bool) {
	var e *InvalidTagError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// PerCallFailureError aborts a strict batch. It carries the offending index
// only; no partial results survive the abort.
type PerCallFailureError struct {
	Index int
}

func (e *PerCallFailureError) Error() string {
	return fmt.Sprintf("call %d failed", e.Index)
}

// IsPerCallFailure checks whether err is a PerCallFailureError and returns it.
func IsPerCallFailure(err error) (*PerCallFailureError, bool) {
	var e *PerCallFailureError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// SimulationReport is not a true failure: it is the deliberate terminal
// result of a Simulate batch, routed through the error channel so the
// environment discards every state change while the outcomes still reach
// the caller. It always holds one entry per simulated call.
type SimulationReport struct {
	Outcomes []SimulatedOutcome
}

func (e *SimulationReport) Error() string {
	return fmt.Sprintf("simulation report: %d outcomes", len(e.Outcomes))
}

// AsSimulationReport checks whether err carries a SimulationReport.
func AsSimulationReport(err error) (*SimulationReport, bool) {
	var e *SimulationReport
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
