// Package api exposes the REST and WebSocket surface: command submission
// and history, vehicle reads, the health endpoint, and the per-command
// response stream.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/services"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/sovd"
)

// Stable machine-readable error codes carried in the error envelope.
const (
	CodeVehicleNotFound  = "VAL_001"
	CodeInvalidCommand   = "VAL_002"
	CodeMissingField     = "VAL_003"
	CodeBadFormat        = "VAL_004"
	CodeCommandNotFound  = "VAL_005"
	CodeVehicleOffline   = "VEH_001"
	CodeVehicleTimeout   = "VEH_002"
	CodeRateLimited      = "RATE_001"
	CodeUnauthenticated  = "AUTH_001"
	CodeForbidden        = "AUTH_002"
	CodeInternal         = "SYS_001"
	CodeUpstreamDegraded = "SYS_002"
)

// APIError is a handler-raised error carrying its HTTP status and envelope
// code. The central error handler renders it; handlers never write error
// bodies themselves.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string { return e.Message }

func apiError(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

// errorBody is the envelope shape for every 4xx/5xx response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id"`
	Timestamp     string `json:"timestamp"`
	Path          string `json:"path"`
}

// mapDomainError translates service-layer sentinels into API errors.
// kind distinguishes which resource a not-found refers to.
func mapDomainError(err error, notFoundCode string) *APIError {
	var verr *sovd.ValidationError
	switch {
	case errors.As(err, &verr):
		return validationError(verr)
	case errors.Is(err, services.ErrNotFound):
		msg := "Vehicle not found"
		if notFoundCode == CodeCommandNotFound {
			msg = "Command not found"
		}
		return apiError(http.StatusNotFound, notFoundCode, msg)
	case errors.Is(err, services.ErrVehicleNotConnected):
		return apiError(http.StatusConflict, CodeVehicleOffline, "Vehicle is not connected")
	default:
		return apiError(http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}

func validationError(verr *sovd.ValidationError) *APIError {
	code := CodeBadFormat
	switch verr.Reason {
	case sovd.ReasonUnknownCommand:
		code = CodeInvalidCommand
	case sovd.ReasonMissingField:
		code = CodeMissingField
	}
	return apiError(http.StatusBadRequest, code, verr.Message)
}

// httpErrorHandler renders every error through the single envelope. It is
// installed as the echo HTTPErrorHandler so middleware errors (JWT, rate
// limiter, routing) take the same shape as handler errors.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	code := CodeInternal
	message := "Internal server error"

	var apiErr *APIError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
		status, code, message = apiErr.Status, apiErr.Code, apiErr.Message
	case errors.As(err, &echoErr):
		status = echoErr.Code
		message = http.StatusText(status)
		if s, ok := echoErr.Message.(string); ok {
			message = s
		}
		switch status {
		case http.StatusUnauthorized:
			code, message = CodeUnauthenticated, "Missing or invalid token"
		case http.StatusForbidden:
			code, message = CodeForbidden, "Insufficient permissions"
		case http.StatusTooManyRequests:
			code, message = CodeRateLimited, "Rate limit exceeded"
		case http.StatusNotFound:
			code = CodeCommandNotFound
		case http.StatusBadRequest:
			code = CodeBadFormat
		case http.StatusServiceUnavailable:
			code = CodeUpstreamDegraded
		}
	}

	if status >= http.StatusInternalServerError {
		slog.Error("Request failed",
			"status", status,
			"path", c.Request().URL.Path,
			"correlation_id", correlationID(c),
			"error", err)
	}

	body := errorBody{Error: errorDetail{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID(c),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Path:          c.Request().URL.Path,
	}}
	if writeErr := c.JSON(status, body); writeErr != nil {
		slog.Error("Writing error response failed", "error", writeErr)
	}
}
