// Package queue runs the command execution worker pool: workers claim
// pending commands from storage, drive the vehicle connector, persist each
// response chunk, and publish events for live subscribers.
package queue

import (
	"context"
	"time"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/events"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
)

// CommandStore is the command persistence surface the pool depends on.
// SetTerminal returns the completed_at it stamped so the terminal status
// event carries the row's timestamp, not a second reading of the clock.
type CommandStore interface {
	ClaimNext(ctx context.Context, claimant string) (*models.Command, error)
	SetTerminal(ctx context.Context, commandID string, status models.CommandStatus, errorMessage string) (time.Time, error)
	Get(ctx context.Context, commandID string) (*models.Command, error)
	FailOrphans(ctx context.Context, cutoff time.Time) ([]string, error)
}

// VehicleStore records successful vehicle communication. A completed
// execution is proof the vehicle was reachable, so the worker bumps
// last_seen there.
type VehicleStore interface {
	TouchLastSeen(ctx context.Context, vehicleID string) error
}

// ResponseStore persists response chunks.
type ResponseStore interface {
	Insert(ctx context.Context, commandID string, payload models.JSONMap, sequenceNumber int, isFinal bool) (*models.Response, error)
}

// EventSink publishes events for live stream subscribers. Publishing is
// best-effort: the row is already committed when these are called.
type EventSink interface {
	PublishResponse(ctx context.Context, commandID string, ev events.ResponseEvent) error
	PublishStatus(ctx context.Context, commandID string, ev events.StatusEvent) error
	PublishError(ctx context.Context, commandID string, ev events.ErrorEvent) error
}

// Auditor records execution outcomes on the audit trail.
type Auditor interface {
	Log(ctx context.Context, actorID *string, action, entityType, entityID string, details models.JSONMap)
}

// Config tunes the worker pool.
type Config struct {
	// Workers is the number of concurrent executions this instance runs.
	Workers int

	// CommandTimeout bounds a single vehicle execution.
	CommandTimeout time.Duration

	// PollInterval is the fallback claim cadence when no wake signal
	// arrives, which is how commands submitted on other instances get
	// picked up.
	PollInterval time.Duration

	// OrphanScanInterval is how often the pool sweeps for executions whose
	// owning instance died.
	OrphanScanInterval time.Duration

	// OrphanAge is how long an in-progress claim may stand before the sweep
	// declares it abandoned. Must comfortably exceed CommandTimeout.
	OrphanAge time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.OrphanScanInterval <= 0 {
		c.OrphanScanInterval = time.Minute
	}
	if c.OrphanAge <= 0 {
		c.OrphanAge = 5 * time.Minute
	}
	return c
}
