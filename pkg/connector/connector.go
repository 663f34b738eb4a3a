// Package connector drives diagnostic command execution against a vehicle.
//
// A Connector executes exactly one command and reports progress through a
// Sink callback, one invocation per response chunk. Sequence numbers start
// at 1 and increase strictly; the last invocation, and only the last,
// carries final=true. The caller owns the wall-clock budget through ctx.
package connector

import (
	"context"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
)

// Job identifies one command execution.
type Job struct {
	CommandID   string
	VehicleID   string
	CommandName string
	Params      models.JSONMap
}

// Sink receives one response chunk. A non-nil return aborts the execution;
// the connector stops emitting and reports failure.
type Sink func(payload models.JSONMap, sequence int, final bool) error

// Result is the terminal outcome of one execution.
type Result struct {
	Status       models.CommandStatus // StatusCompleted or StatusFailed
	ErrorMessage string               // set when Status is StatusFailed
}

// Connector executes one command against a target vehicle. Implementations
// must stop emitting once ctx is done and must never invoke the sink after
// returning. Connector substitution is the supported extension point for
// real vehicle transports.
type Connector interface {
	Execute(ctx context.Context, job Job, emit Sink) Result
}

func completed() Result {
	return Result{Status: models.StatusCompleted}
}

func failed(msg string) Result {
	return Result{Status: models.StatusFailed, ErrorMessage: msg}
}
