package models

import "time"

// Response is one streamed result chunk for a command. Rows are append-only
// and cascade-delete with their command. Sequence numbers are unique per
// command and strictly increasing in insertion order; exactly one response
// per command carries IsFinal, and it is the highest-numbered one.
type Response struct {
	ResponseID      string    `gorm:"column:response_id;type:uuid;primaryKey" json:"response_id"`
	CommandID       string    `gorm:"column:command_id;type:uuid" json:"command_id"`
	ResponsePayload JSONMap   `gorm:"column:response_payload;type:jsonb" json:"response_payload"`
	SequenceNumber  int       `gorm:"column:sequence_number" json:"sequence_number"`
	IsFinal         bool      `gorm:"column:is_final" json:"is_final"`
	ReceivedAt      time.Time `gorm:"column:received_at" json:"received_at"`
}

// TableName implements gorm's Tabler.
func (Response) TableName() string { return "responses" }
