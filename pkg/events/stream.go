package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
)

// DefaultWriteTimeout bounds each socket write so one stalled client cannot
// wedge its stream goroutine.
const DefaultWriteTimeout = 10 * time.Second

// CommandSource provides command status lookups for the stream gateway.
type CommandSource interface {
	Get(ctx context.Context, commandID string) (*models.Command, error)
}

// ResponseSource provides persisted response chunks for catch-up and for
// re-hydrating truncated notifications.
type ResponseSource interface {
	List(ctx context.Context, commandID string) ([]models.Response, error)
	Get(ctx context.Context, responseID string) (*models.Response, error)
}

// StreamGateway drives one WebSocket per subscribed command: historical
// catch-up from storage, then live events from the hub, deduplicated by
// sequence number, closing the socket when the command reaches a terminal
// status.
type StreamGateway struct {
	hub          *Hub
	commands     CommandSource
	responses    ResponseSource
	writeTimeout time.Duration
}

func NewStreamGateway(hub *Hub, commands CommandSource, responses ResponseSource, writeTimeout time.Duration) *StreamGateway {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &StreamGateway{
		hub:          hub,
		commands:     commands,
		responses:    responses,
		writeTimeout: writeTimeout,
	}
}

// Serve owns the accepted connection until the stream ends and always closes
// it. Subscription happens before the catch-up read, so an event committed
// between the two phases is seen either in catch-up or live, never lost;
// the duplicate case is handled by sequence-number dedupe.
func (g *StreamGateway) Serve(ctx context.Context, conn *websocket.Conn, commandID string) {
	logger := slog.With("command_id", commandID)

	sub, err := g.hub.Subscribe(ctx, Channel(commandID))
	if err != nil {
		logger.Error("Stream subscribe failed", "error", err)
		conn.Close(websocket.StatusTryAgainLater, "event stream unavailable")
		return
	}
	defer g.hub.Unsubscribe(context.WithoutCancel(ctx), sub)

	// CloseRead discards inbound frames and cancels the context when the
	// client goes away.
	ctx = conn.CloseRead(ctx)

	highestSeq, ok := g.catchUp(ctx, conn, commandID, logger)
	if !ok {
		conn.Close(websocket.StatusInternalError, "catch-up failed")
		return
	}

	// The command may already have finished before this subscriber arrived.
	cmd, err := g.commands.Get(ctx, commandID)
	if err != nil {
		logger.Error("Stream command lookup failed", "error", err)
		conn.Close(websocket.StatusInternalError, "command lookup failed")
		return
	}
	if cmd.Status.Terminal() {
		g.writeTerminal(ctx, conn, cmd)
		conn.Close(websocket.StatusNormalClosure, "command "+string(cmd.Status))
		return
	}

	g.liveLoop(ctx, conn, sub, commandID, highestSeq, logger)
}

// catchUp replays persisted chunks in sequence order and returns the highest
// sequence number written.
func (g *StreamGateway) catchUp(ctx context.Context, conn *websocket.Conn, commandID string, logger *slog.Logger) (int, bool) {
	rows, err := g.responses.List(ctx, commandID)
	if err != nil {
		logger.Error("Stream catch-up read failed", "error", err)
		return 0, false
	}

	highest := 0
	for i := range rows {
		ev := NewResponseEvent(&rows[i])
		if err := g.writeJSON(ctx, conn, ev); err != nil {
			logger.Debug("Stream write failed during catch-up", "error", err)
			return 0, false
		}
		if ev.SequenceNumber > highest {
			highest = ev.SequenceNumber
		}
	}
	return highest, true
}

func (g *StreamGateway) liveLoop(ctx context.Context, conn *websocket.Conn, sub *Subscriber, commandID string, highestSeq int, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case payload, open := <-sub.Events():
			if !open {
				if sub.Overflowed() {
					logger.Warn("Stream dropped: subscriber overflow")
					conn.Close(websocket.StatusTryAgainLater, "stream backlog exceeded")
				} else {
					conn.Close(websocket.StatusNormalClosure, "")
				}
				return
			}

			env, err := parseEnvelope(payload)
			if err != nil {
				logger.Warn("Discarding malformed stream payload", "error", err)
				continue
			}

			switch env.Event {
			case EventResponse:
				// Catch-up already delivered anything at or below highestSeq.
				if env.SequenceNumber <= highestSeq {
					continue
				}
				out := payload
				if env.Truncated {
					out, err = g.rehydrate(ctx, env.ResponseID)
					if err != nil {
						logger.Error("Re-hydrating truncated response failed", "response_id", env.ResponseID, "error", err)
						continue
					}
				}
				if err := g.writeRaw(ctx, conn, out); err != nil {
					logger.Debug("Stream write failed", "error", err)
					conn.Close(websocket.StatusNormalClosure, "")
					return
				}
				highestSeq = env.SequenceNumber

			case EventStatus, EventError:
				if err := g.writeRaw(ctx, conn, payload); err != nil {
					logger.Debug("Stream write failed", "error", err)
					conn.Close(websocket.StatusNormalClosure, "")
					return
				}
				if env.Event == EventError || models.CommandStatus(env.Status).Terminal() {
					conn.Close(websocket.StatusNormalClosure, "command finished")
					return
				}

			default:
				logger.Warn("Unknown stream event", "event", env.Event)
			}
		}
	}
}

// rehydrate re-reads an oversized chunk from storage so the client receives
// the full payload the NOTIFY envelope could not carry.
func (g *StreamGateway) rehydrate(ctx context.Context, responseID string) ([]byte, error) {
	resp, err := g.responses.Get(ctx, responseID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(NewResponseEvent(resp))
}

// writeTerminal emits the closing event for an already-finished command.
func (g *StreamGateway) writeTerminal(ctx context.Context, conn *websocket.Conn, cmd *models.Command) {
	if cmd.Status == models.StatusFailed {
		msg := ""
		if cmd.ErrorMessage != nil {
			msg = *cmd.ErrorMessage
		}
		_ = g.writeJSON(ctx, conn, ErrorEvent{Event: EventError, ErrorMessage: msg})
		return
	}
	_ = g.writeJSON(ctx, conn, NewStatusEvent(cmd.Status, cmd.CompletedAt))
}

func (g *StreamGateway) writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return g.writeRaw(ctx, conn, data)
}

func (g *StreamGateway) writeRaw(ctx context.Context, conn *websocket.Conn, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, g.writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
