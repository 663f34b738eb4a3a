package models

import "time"

// Audit actions recorded by the core pipeline.
const (
	AuditCommandSubmitted = "command.submitted"
	AuditCommandCompleted = "command.completed"
	AuditCommandFailed    = "command.failed"
)

// AuditEvent is an immutable log entry tying actor, entity, action and time
// together. The actor foreign key is nullable so history survives user
// deletion.
type AuditEvent struct {
	AuditID    int64     `gorm:"column:audit_id;primaryKey;autoIncrement" json:"audit_id"`
	ActorID    *string   `gorm:"column:actor_id;type:uuid" json:"actor_id,omitempty"`
	Action     string    `gorm:"column:action" json:"action"`
	EntityType string    `gorm:"column:entity_type" json:"entity_type"`
	EntityID   string    `gorm:"column:entity_id" json:"entity_id"`
	Details    JSONMap   `gorm:"column:details;type:jsonb" json:"details,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName implements gorm's Tabler.
func (AuditEvent) TableName() string { return "audit_events" }
