package services

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
)

// AuditService appends immutable audit events. Log is fire-and-forget from
// the caller's perspective: storage failures are logged, never surfaced.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService creates an AuditService.
func NewAuditService(db *gorm.DB) *AuditService {
	if db == nil {
		panic("NewAuditService: db must not be nil")
	}
	return &AuditService{db: db}
}

// Log records one audit event.
func (s *AuditService) Log(ctx context.Context, actorID *string, action, entityType, entityID string, details models.JSONMap) {
	evt := &models.AuditEvent{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(evt).Error; err != nil {
		slog.Error("Failed to write audit event",
			"action", action, "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}

// Recent returns the newest audit events, most recent first.
func (s *AuditService) Recent(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var events []models.AuditEvent
	err := s.db.WithContext(ctx).
		Order("audit_id desc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
