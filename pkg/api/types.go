package api

import (
	"context"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/auth"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/services"
)

// CommandOperations is the command service surface the handlers consume.
// Narrow interfaces keep the handlers testable against fakes.
type CommandOperations interface {
	Submit(ctx context.Context, in services.SubmitCommandInput) (*models.Command, error)
	Get(ctx context.Context, commandID string) (*models.Command, error)
	List(ctx context.Context, filter models.CommandFilter) (*models.CommandPage, error)
}

// VehicleOperations covers the vehicle reads.
type VehicleOperations interface {
	Get(ctx context.Context, vehicleID string) (*models.Vehicle, error)
	List(ctx context.Context) ([]models.Vehicle, error)
}

// ResponseOperations covers persisted response reads.
type ResponseOperations interface {
	List(ctx context.Context, commandID string) ([]models.Response, error)
}

// Waker nudges the worker pool after a submission.
type Waker interface {
	Wake()
}

// Streamer owns an accepted WebSocket for one command's response stream.
type Streamer interface {
	Serve(ctx context.Context, conn *websocket.Conn, commandID string)
}

// TokenVerifier validates the query-parameter token on the stream endpoint.
type TokenVerifier interface {
	Verify(raw string) (auth.Identity, error)
}

// validUUID reports whether s is a well-formed UUID. Ids and id filters are
// checked before they reach a uuid-typed column so malformed input surfaces
// as a client error instead of a database cast failure.
func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
