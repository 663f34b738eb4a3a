// Package services is the persistence gateway: every other component reaches
// the persistent rows through the services defined here.
package services

import "errors"

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrVehicleNotConnected is returned when a command targets a vehicle
	// whose connection_status is not "connected".
	ErrVehicleNotConnected = errors.New("vehicle not connected")

	// ErrIllegalTransition is returned when a status update violates the
	// command state machine (including any transition out of a terminal state).
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrSequenceConflict is returned when a (command_id, sequence_number)
	// pair already exists.
	ErrSequenceConflict = errors.New("duplicate sequence number")

	// ErrNoPendingCommands is returned by ClaimNext when the queue is empty.
	ErrNoPendingCommands = errors.New("no pending commands")
)
