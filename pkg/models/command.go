package models

import "time"

// CommandStatus is the lifecycle state of a Command.
type CommandStatus string

// Command lifecycle states. Terminal states have no outbound transitions.
const (
	StatusPending    CommandStatus = "pending"
	StatusInProgress CommandStatus = "in_progress"
	StatusCompleted  CommandStatus = "completed"
	StatusFailed     CommandStatus = "failed"
)

// Valid reports whether s is a known command status.
func (s CommandStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state.
func (s CommandStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Command is one user intent to invoke a diagnostic action on one vehicle.
// ClaimedBy/ClaimedAt record the instance holding the execution lease and
// exist for orphan recovery; they are not part of the public contract.
type Command struct {
	CommandID     string        `gorm:"column:command_id;type:uuid;primaryKey" json:"command_id"`
	UserID        string        `gorm:"column:user_id;type:uuid" json:"user_id"`
	VehicleID     string        `gorm:"column:vehicle_id;type:uuid" json:"vehicle_id"`
	CommandName   string        `gorm:"column:command_name" json:"command_name"`
	CommandParams JSONMap       `gorm:"column:command_params;type:jsonb" json:"command_params"`
	Status        CommandStatus `gorm:"column:status" json:"status"`
	ErrorMessage  *string       `gorm:"column:error_message" json:"error_message,omitempty"`
	SubmittedAt   time.Time     `gorm:"column:submitted_at" json:"submitted_at"`
	CompletedAt   *time.Time    `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ClaimedBy     *string       `gorm:"column:claimed_by" json:"-"`
	ClaimedAt     *time.Time    `gorm:"column:claimed_at" json:"-"`
}

// TableName implements gorm's Tabler.
func (Command) TableName() string { return "commands" }

// CommandFilter selects commands for history listing. The result order is
// total on (submitted_at desc, command_id desc).
type CommandFilter struct {
	UserID    string
	VehicleID string
	Status    CommandStatus
	StartDate *time.Time // inclusive lower bound on submitted_at
	EndDate   *time.Time // inclusive upper bound on submitted_at
	Limit     int        // 1..100
	Offset    int        // >= 0
}

// CommandPage is one page of a time-descending command listing.
type CommandPage struct {
	Commands []Command `json:"commands"`
	Total    int64     `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}
