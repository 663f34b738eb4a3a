package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
)

// VehicleService serves vehicle reads and connectivity bookkeeping.
type VehicleService struct {
	db *gorm.DB
}

// NewVehicleService creates a VehicleService.
func NewVehicleService(db *gorm.DB) *VehicleService {
	if db == nil {
		panic("NewVehicleService: db must not be nil")
	}
	return &VehicleService{db: db}
}

// Get returns a vehicle by ID.
func (s *VehicleService) Get(ctx context.Context, vehicleID string) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := s.db.WithContext(ctx).First(&vehicle, "vehicle_id = ?", vehicleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying vehicle %s: %w", vehicleID, err)
	}
	return &vehicle, nil
}

// List returns all vehicles ordered by VIN.
func (s *VehicleService) List(ctx context.Context) ([]models.Vehicle, error) {
	var vehicles []models.Vehicle
	if err := s.db.WithContext(ctx).Order("vin asc").Find(&vehicles).Error; err != nil {
		return nil, fmt.Errorf("listing vehicles: %w", err)
	}
	return vehicles, nil
}

// TouchLastSeen records successful communication with a vehicle. Failures
// are reported but callers treat them as advisory.
func (s *VehicleService) TouchLastSeen(ctx context.Context, vehicleID string) error {
	err := s.db.WithContext(ctx).
		Model(&models.Vehicle{}).
		Where("vehicle_id = ?", vehicleID).
		Update("last_seen_at", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("updating last_seen_at for vehicle %s: %w", vehicleID, err)
	}
	return nil
}
