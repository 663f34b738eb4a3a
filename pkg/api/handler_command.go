package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/services"
)

// CommandHandler serves command submission, lookup, history, and persisted
// responses.
type CommandHandler struct {
	commands  CommandOperations
	responses ResponseOperations
	waker     Waker
	baseURL   string
}

func NewCommandHandler(commands CommandOperations, responses ResponseOperations, waker Waker, baseURL string) *CommandHandler {
	return &CommandHandler{commands: commands, responses: responses, waker: waker, baseURL: baseURL}
}

func (h *CommandHandler) Register(g *echo.Group) {
	g.POST("/commands", h.Submit)
	g.GET("/commands", h.List)
	g.GET("/commands/:id", h.Get)
	g.GET("/commands/:id/responses", h.Responses)
}

// SubmitCommandRequest is the submission body.
type SubmitCommandRequest struct {
	VehicleID     string         `json:"vehicle_id"`
	CommandName   string         `json:"command_name"`
	CommandParams models.JSONMap `json:"command_params"`
}

// SubmitCommandResponse is the 202 acceptance body.
type SubmitCommandResponse struct {
	CommandID   string `json:"command_id"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
	StreamURL   string `json:"stream_url"`
}

// Submit accepts a command for asynchronous execution. Acceptance means
// the pending row is committed; execution progress arrives on the stream.
func (h *CommandHandler) Submit(c echo.Context) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}

	var req SubmitCommandRequest
	if err := c.Bind(&req); err != nil {
		return apiError(http.StatusBadRequest, CodeBadFormat, "Malformed request body")
	}
	if req.VehicleID == "" {
		return apiError(http.StatusBadRequest, CodeMissingField, "vehicle_id is required")
	}
	if !validUUID(req.VehicleID) {
		return apiError(http.StatusNotFound, CodeVehicleNotFound, "Vehicle not found")
	}

	cmd, err := h.commands.Submit(c.Request().Context(), services.SubmitCommandInput{
		UserID:        caller.UserID,
		VehicleID:     req.VehicleID,
		CommandName:   req.CommandName,
		CommandParams: req.CommandParams,
	})
	if err != nil {
		return mapDomainError(err, CodeVehicleNotFound)
	}

	h.waker.Wake()

	return c.JSON(http.StatusAccepted, SubmitCommandResponse{
		CommandID:   cmd.CommandID,
		Status:      string(cmd.Status),
		SubmittedAt: cmd.SubmittedAt.Format(time.RFC3339Nano),
		StreamURL:   streamURL(h.baseURL, cmd.CommandID),
	})
}

// Get returns one command. Engineers see only their own commands.
func (h *CommandHandler) Get(c echo.Context) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}

	commandID := c.Param("id")
	if !validUUID(commandID) {
		return apiError(http.StatusNotFound, CodeCommandNotFound, "Command not found")
	}

	cmd, err := h.commands.Get(c.Request().Context(), commandID)
	if err != nil {
		return mapDomainError(err, CodeCommandNotFound)
	}
	if !caller.IsAdmin() && cmd.UserID != caller.UserID {
		return apiError(http.StatusForbidden, CodeForbidden, "Insufficient permissions")
	}
	return c.JSON(http.StatusOK, cmd)
}

// Responses returns the persisted response chunks in sequence order.
func (h *CommandHandler) Responses(c echo.Context) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}

	commandID := c.Param("id")
	if !validUUID(commandID) {
		return apiError(http.StatusNotFound, CodeCommandNotFound, "Command not found")
	}

	cmd, err := h.commands.Get(c.Request().Context(), commandID)
	if err != nil {
		return mapDomainError(err, CodeCommandNotFound)
	}
	if !caller.IsAdmin() && cmd.UserID != caller.UserID {
		return apiError(http.StatusForbidden, CodeForbidden, "Insufficient permissions")
	}

	rows, err := h.responses.List(c.Request().Context(), commandID)
	if err != nil {
		return mapDomainError(err, CodeCommandNotFound)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"command_id": commandID,
		"status":     cmd.Status,
		"responses":  rows,
		"count":      len(rows),
	})
}

// listQueryKeys are the accepted history filters; anything else is a 400.
var listQueryKeys = map[string]bool{
	"vehicle_id": true,
	"user_id":    true,
	"status":     true,
	"start_date": true,
	"end_date":   true,
	"limit":      true,
	"offset":     true,
}

// List returns the caller's command history, newest first. Admins may
// filter across users; engineers are pinned to their own commands.
func (h *CommandHandler) List(c echo.Context) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}

	for key := range c.QueryParams() {
		if !listQueryKeys[key] {
			return apiError(http.StatusBadRequest, CodeBadFormat, "Unknown query parameter: "+key)
		}
	}

	filter, err := parseCommandFilter(c)
	if err != nil {
		return err
	}

	if caller.IsAdmin() {
		if v := c.QueryParam("user_id"); v != "" {
			if !validUUID(v) {
				return apiError(http.StatusBadRequest, CodeBadFormat, "user_id must be a UUID")
			}
			filter.UserID = v
		}
	} else {
		filter.UserID = caller.UserID
	}

	page, err := h.commands.List(c.Request().Context(), *filter)
	if err != nil {
		return mapDomainError(err, CodeCommandNotFound)
	}
	return c.JSON(http.StatusOK, page)
}

func parseCommandFilter(c echo.Context) (*models.CommandFilter, error) {
	filter := &models.CommandFilter{}

	if v := c.QueryParam("vehicle_id"); v != "" {
		if !validUUID(v) {
			return nil, apiError(http.StatusBadRequest, CodeBadFormat, "vehicle_id must be a UUID")
		}
		filter.VehicleID = v
	}
	if v := c.QueryParam("status"); v != "" {
		status := models.CommandStatus(v)
		if !status.Valid() {
			return nil, apiError(http.StatusBadRequest, CodeBadFormat, "Invalid status filter: "+v)
		}
		filter.Status = status
	}
	if v := c.QueryParam("start_date"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, apiError(http.StatusBadRequest, CodeBadFormat, "start_date must be RFC3339")
		}
		filter.StartDate = &ts
	}
	if v := c.QueryParam("end_date"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, apiError(http.StatusBadRequest, CodeBadFormat, "end_date must be RFC3339")
		}
		filter.EndDate = &ts
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return nil, apiError(http.StatusBadRequest, CodeBadFormat, "limit must be an integer in [1,100]")
		}
		filter.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, apiError(http.StatusBadRequest, CodeBadFormat, "offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}

// streamURL derives the WebSocket stream address from the public base URL.
func streamURL(baseURL, commandID string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "/ws/responses/" + commandID
	}
	scheme := "ws"
	if u.Scheme == "https" || u.Scheme == "wss" {
		scheme = "wss"
	}
	return scheme + "://" + u.Host + strings.TrimSuffix(u.Path, "/") + "/ws/responses/" + commandID
}
