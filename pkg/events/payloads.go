// Package events provides real-time response delivery: transactional
// PostgreSQL NOTIFY publishing, a dedicated LISTEN connection for cross-
// instance fan-in, and per-socket WebSocket streaming with catch-up.
//
// Every payload published on a channel corresponds to a row already
// committed in storage; the live channel is a latency optimisation, and the
// database is the transport of record. Subscribers reconstruct anything they
// missed by reading the responses table on (re)subscription.
package events

import (
	"encoding/json"
	"time"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
)

// Event discriminator values carried in the "event" field.
const (
	EventResponse = "response"
	EventStatus   = "status"
	EventError    = "error"
)

// Channel returns the pub/sub channel for a command's response stream.
// Format: "response:{command_id}"
func Channel(commandID string) string {
	return "response:" + commandID
}

// ResponseEvent is one streamed response chunk. Truncated is set when the
// payload exceeded the NOTIFY size limit; the stream gateway re-reads the
// row by ResponseID before forwarding.
type ResponseEvent struct {
	Event           string         `json:"event"` // always EventResponse
	ResponseID      string         `json:"response_id"`
	ResponsePayload models.JSONMap `json:"response_payload,omitempty"`
	SequenceNumber  int            `json:"sequence_number"`
	IsFinal         bool           `json:"is_final"`
	ReceivedAt      string         `json:"received_at"` // RFC3339Nano
	Truncated       bool           `json:"truncated,omitempty"`
}

// NewResponseEvent builds a ResponseEvent from a persisted row.
func NewResponseEvent(resp *models.Response) ResponseEvent {
	return ResponseEvent{
		Event:           EventResponse,
		ResponseID:      resp.ResponseID,
		ResponsePayload: resp.ResponsePayload,
		SequenceNumber:  resp.SequenceNumber,
		IsFinal:         resp.IsFinal,
		ReceivedAt:      resp.ReceivedAt.Format(time.RFC3339Nano),
	}
}

// StatusEvent reports a command status transition.
type StatusEvent struct {
	Event       string  `json:"event"` // always EventStatus
	Status      string  `json:"status"`
	CompletedAt *string `json:"completed_at,omitempty"` // RFC3339Nano, terminal only
}

// NewStatusEvent builds a StatusEvent.
func NewStatusEvent(status models.CommandStatus, completedAt *time.Time) StatusEvent {
	ev := StatusEvent{Event: EventStatus, Status: string(status)}
	if completedAt != nil {
		ts := completedAt.Format(time.RFC3339Nano)
		ev.CompletedAt = &ts
	}
	return ev
}

// ErrorEvent reports a failed execution to subscribers.
type ErrorEvent struct {
	Event        string `json:"event"` // always EventError
	ErrorMessage string `json:"error_message"`
}

// envelope is the minimal view the stream gateway needs to route a raw
// channel payload without fully decoding it.
type envelope struct {
	Event          string `json:"event"`
	ResponseID     string `json:"response_id"`
	SequenceNumber int    `json:"sequence_number"`
	Truncated      bool   `json:"truncated"`
	Status         string `json:"status"`
}

func parseEnvelope(payload []byte) (envelope, error) {
	var env envelope
	err := json.Unmarshal(payload, &env)
	return env, err
}
