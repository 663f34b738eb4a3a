package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// notifyLimit stays under PostgreSQL's 8000-byte NOTIFY payload cap with
// headroom for quoting overhead.
const notifyLimit = 7900

// Publisher broadcasts events over PostgreSQL NOTIFY. Publishing is
// best-effort and at-most-once: callers persist their rows first, then
// publish, and treat publish errors as log-only; the catch-up path serves
// anything a live subscriber missed.
type Publisher struct {
	db *sql.DB
}

// NewPublisher creates a Publisher on the shared connection pool.
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

// PublishResponse broadcasts a persisted response chunk on the command's
// channel. Call only after the row has committed.
func (p *Publisher) PublishResponse(ctx context.Context, commandID string, ev ResponseEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling response event: %w", err)
	}
	if len(payload) > notifyLimit {
		payload, err = json.Marshal(truncateResponseEvent(ev))
		if err != nil {
			return fmt.Errorf("marshaling truncated response event: %w", err)
		}
	}
	return p.notify(ctx, Channel(commandID), payload)
}

// PublishStatus broadcasts a command status transition.
func (p *Publisher) PublishStatus(ctx context.Context, commandID string, ev StatusEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling status event: %w", err)
	}
	return p.notify(ctx, Channel(commandID), payload)
}

// PublishError broadcasts a terminal execution failure.
func (p *Publisher) PublishError(ctx context.Context, commandID string, ev ErrorEvent) error {
	ev.Event = EventError
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling error event: %w", err)
	}
	return p.notify(ctx, Channel(commandID), payload)
}

func (p *Publisher) notify(ctx context.Context, channel string, payload []byte) error {
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, string(payload)); err != nil {
		return fmt.Errorf("pg_notify on %s: %w", channel, err)
	}
	return nil
}

// truncateResponseEvent strips the payload body from an oversized event,
// keeping the routing fields a subscriber needs to re-read the full row.
func truncateResponseEvent(ev ResponseEvent) ResponseEvent {
	return ResponseEvent{
		Event:          EventResponse,
		ResponseID:     ev.ResponseID,
		SequenceNumber: ev.SequenceNumber,
		IsFinal:        ev.IsFinal,
		ReceivedAt:     ev.ReceivedAt,
		Truncated:      true,
	}
}
