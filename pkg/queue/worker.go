package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/connector"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/events"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
)

// worker executes one claimed command at a time.
type worker struct {
	id        int
	commands  CommandStore
	responses ResponseStore
	vehicles  VehicleStore
	sink      EventSink
	audit     Auditor
	conn      connector.Connector
	timeout   time.Duration
}

// execute drives one claimed command to a terminal state. The ctx passed in
// is the pool's lifecycle context; the per-command timeout is layered on top
// for the connector call only, so bookkeeping still completes after a
// timeout fires.
func (w *worker) execute(ctx context.Context, cmd *models.Command) {
	logger := slog.With("worker", w.id, "command_id", cmd.CommandID, "command", cmd.CommandName)
	logger.Info("Executing command")

	if err := w.sink.PublishStatus(ctx, cmd.CommandID, events.NewStatusEvent(models.StatusInProgress, nil)); err != nil {
		logger.Warn("Status publish failed", "error", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	job := connector.Job{
		CommandID:   cmd.CommandID,
		VehicleID:   cmd.VehicleID,
		CommandName: cmd.CommandName,
		Params:      cmd.CommandParams,
	}

	result := w.conn.Execute(execCtx, job, func(payload models.JSONMap, sequence int, final bool) error {
		// Persist first; the live event only announces a committed row.
		resp, err := w.responses.Insert(ctx, cmd.CommandID, payload, sequence, final)
		if err != nil {
			return err
		}
		if err := w.sink.PublishResponse(ctx, cmd.CommandID, events.NewResponseEvent(resp)); err != nil {
			logger.Warn("Response publish failed", "sequence", sequence, "error", err)
		}
		return nil
	})

	w.finish(ctx, cmd, result, logger)
}

func (w *worker) finish(ctx context.Context, cmd *models.Command, result connector.Result, logger *slog.Logger) {
	completedAt, err := w.commands.SetTerminal(ctx, cmd.CommandID, result.Status, result.ErrorMessage)
	if err != nil {
		logger.Error("Terminal status update failed", "status", result.Status, "error", err)
		return
	}

	switch result.Status {
	case models.StatusCompleted:
		// The round trip succeeded, so the vehicle was demonstrably reachable.
		if err := w.vehicles.TouchLastSeen(ctx, cmd.VehicleID); err != nil {
			logger.Warn("last_seen update failed", "vehicle_id", cmd.VehicleID, "error", err)
		}
		if err := w.sink.PublishStatus(ctx, cmd.CommandID, events.NewStatusEvent(models.StatusCompleted, &completedAt)); err != nil {
			logger.Warn("Status publish failed", "error", err)
		}
		w.audit.Log(ctx, nil, models.AuditCommandCompleted, "command", cmd.CommandID, models.JSONMap{
			"command_name": cmd.CommandName,
			"vehicle_id":   cmd.VehicleID,
		})
		logger.Info("Command completed")

	case models.StatusFailed:
		if err := w.sink.PublishError(ctx, cmd.CommandID, events.ErrorEvent{ErrorMessage: result.ErrorMessage}); err != nil {
			logger.Warn("Error publish failed", "error", err)
		}
		w.audit.Log(ctx, nil, models.AuditCommandFailed, "command", cmd.CommandID, models.JSONMap{
			"command_name": cmd.CommandName,
			"vehicle_id":   cmd.VehicleID,
			"error":        result.ErrorMessage,
		})
		logger.Warn("Command failed", "error", result.ErrorMessage)

	default:
		logger.Error("Connector returned non-terminal status", "status", result.Status)
	}
}
