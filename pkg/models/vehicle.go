package models

import "time"

// Vehicle connection states.
const (
	VehicleConnected    = "connected"
	VehicleDisconnected = "disconnected"
	VehicleError        = "error"
)

// Vehicle is a diagnostic target. Only vehicles with ConnectionStatus
// "connected" accept new commands; that policy is enforced at submission,
// not in storage.
type Vehicle struct {
	VehicleID        string     `gorm:"column:vehicle_id;type:uuid;primaryKey" json:"vehicle_id"`
	VIN              string     `gorm:"column:vin;uniqueIndex" json:"vin"`
	Make             string     `gorm:"column:make" json:"make"`
	Model            string     `gorm:"column:model" json:"model"`
	Year             int        `gorm:"column:year" json:"year"`
	ConnectionStatus string     `gorm:"column:connection_status" json:"connection_status"`
	LastSeenAt       *time.Time `gorm:"column:last_seen_at" json:"last_seen_at,omitempty"`
	Metadata         JSONMap    `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
}

// TableName implements gorm's Tabler.
func (Vehicle) TableName() string { return "vehicles" }

// IsConnected reports whether the vehicle can be targeted by a new command.
func (v *Vehicle) IsConnected() bool {
	return v.ConnectionStatus == VehicleConnected
}
