package api

import (
	"errors"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/services"
)

// StreamHandler upgrades response-stream connections. Browsers cannot set
// headers on WebSocket handshakes, so the token rides in the query string
// and policy failures are reported as close frames after the upgrade.
type StreamHandler struct {
	verifier TokenVerifier
	commands CommandOperations
	streamer Streamer
}

func NewStreamHandler(verifier TokenVerifier, commands CommandOperations, streamer Streamer) *StreamHandler {
	return &StreamHandler{verifier: verifier, commands: commands, streamer: streamer}
}

func (h *StreamHandler) Register(e *echo.Echo) {
	e.GET("/ws/responses/:id", h.Stream)
}

func (h *StreamHandler) Stream(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}

	ctx := c.Request().Context()
	commandID := c.Param("id")

	caller, err := h.verifier.Verify(c.QueryParam("token"))
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "authentication failed")
		return nil
	}

	if !validUUID(commandID) {
		conn.Close(websocket.StatusPolicyViolation, "unknown command")
		return nil
	}

	cmd, err := h.commands.Get(ctx, commandID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			conn.Close(websocket.StatusPolicyViolation, "unknown command")
		} else {
			conn.Close(websocket.StatusInternalError, "command lookup failed")
		}
		return nil
	}
	if !caller.IsAdmin() && cmd.UserID != caller.UserID {
		conn.Close(websocket.StatusPolicyViolation, "not your command")
		return nil
	}

	h.streamer.Serve(ctx, conn, commandID)
	return nil
}
