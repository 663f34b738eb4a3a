package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/sovd"
)

// DefaultChunkDelay spaces out mock chunk emissions so subscribers observe
// actual streaming rather than a single burst.
const DefaultChunkDelay = 100 * time.Millisecond

// Mock is a deterministic in-process connector keyed on command name. It
// produces a small, realistic chunk sequence per command and honors ctx
// cancellation between emissions.
type Mock struct {
	// ChunkDelay is the pause before each chunk. Zero means DefaultChunkDelay;
	// negative means no delay (tests).
	ChunkDelay time.Duration
}

// NewMock creates a mock connector with the default chunk delay.
func NewMock() *Mock {
	return &Mock{}
}

// Execute emits the canned chunk sequence for job's command.
func (m *Mock) Execute(ctx context.Context, job Job, emit Sink) Result {
	chunks := m.chunksFor(job)

	for i, chunk := range chunks {
		if err := m.pause(ctx); err != nil {
			return failed(fmt.Sprintf("connector timeout executing %s: %v", job.CommandName, err))
		}
		final := i == len(chunks)-1
		if err := emit(chunk, i+1, final); err != nil {
			return failed(fmt.Sprintf("delivering chunk %d: %v", i+1, err))
		}
	}

	return completed()
}

func (m *Mock) pause(ctx context.Context) error {
	delay := m.ChunkDelay
	if delay == 0 {
		delay = DefaultChunkDelay
	}
	if delay < 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// chunksFor returns the canned payload sequence for a command. Unknown
// commands never reach the connector (the validator rejects them at
// submission), but a defaulted sequence keeps the contract total.
func (m *Mock) chunksFor(job Job) []models.JSONMap {
	ecu, _ := job.Params["ecuAddress"].(string)

	switch job.CommandName {
	case sovd.CommandReadDTC:
		return []models.JSONMap{
			{"ecuAddress": ecu, "dtcCode": "P0420", "description": "Catalyst System Efficiency Below Threshold", "status": "confirmed"},
			{"ecuAddress": ecu, "dtcCode": "P0171", "description": "System Too Lean (Bank 1)", "status": "pending"},
			{"ecuAddress": ecu, "status": "complete", "dtcCount": 2},
		}
	case sovd.CommandClearDTC:
		cleared := "all"
		if code, ok := job.Params["dtcCode"].(string); ok {
			cleared = code
		}
		return []models.JSONMap{
			{"ecuAddress": ecu, "cleared": cleared, "status": "in_progress"},
			{"ecuAddress": ecu, "status": "complete", "clearedCount": 1},
		}
	case sovd.CommandReadDataByID:
		dataID, _ := job.Params["dataId"].(string)
		return []models.JSONMap{
			{"ecuAddress": ecu, "dataId": dataID, "value": "0x1A2F", "unit": "raw"},
			{"ecuAddress": ecu, "dataId": dataID, "status": "complete"},
		}
	default:
		return []models.JSONMap{
			{"status": "complete", "note": fmt.Sprintf("no mock data for %s", job.CommandName)},
		}
	}
}
