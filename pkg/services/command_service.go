package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/sovd"
)

// legalTransitions is the command state machine. Terminal states have no
// entry, so any transition out of them fails the lookup.
var legalTransitions = map[models.CommandStatus][]models.CommandStatus{
	models.StatusPending:    {models.StatusInProgress, models.StatusFailed},
	models.StatusInProgress: {models.StatusCompleted, models.StatusFailed},
}

func transitionAllowed(from, to models.CommandStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SubmitCommandInput is the domain-level submission, assembled from the HTTP
// request and the caller's resolved identity.
type SubmitCommandInput struct {
	UserID        string
	VehicleID     string
	CommandName   string
	CommandParams models.JSONMap
}

// CommandService owns the command rows and the state machine over them.
type CommandService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewCommandService creates a CommandService.
func NewCommandService(db *gorm.DB, audit *AuditService) *CommandService {
	if db == nil {
		panic("NewCommandService: db must not be nil")
	}
	return &CommandService{db: db, audit: audit}
}

// Submit validates and persists a new command in "pending" state.
//
// Order of checks is part of the contract: vehicle existence (ErrNotFound)
// before validation (*sovd.ValidationError) before connectivity
// (ErrVehicleNotConnected). No row is created on any rejection.
func (s *CommandService) Submit(ctx context.Context, in SubmitCommandInput) (*models.Command, error) {
	var vehicle models.Vehicle
	err := s.db.WithContext(ctx).First(&vehicle, "vehicle_id = ?", in.VehicleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying vehicle %s: %w", in.VehicleID, err)
	}

	if err := sovd.Validate(in.CommandName, in.CommandParams); err != nil {
		return nil, err
	}

	if !vehicle.IsConnected() {
		return nil, ErrVehicleNotConnected
	}

	cmd := &models.Command{
		CommandID:     uuid.New().String(),
		UserID:        in.UserID,
		VehicleID:     in.VehicleID,
		CommandName:   in.CommandName,
		CommandParams: in.CommandParams,
		Status:        models.StatusPending,
		SubmittedAt:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(cmd).Error; err != nil {
		return nil, fmt.Errorf("creating command: %w", err)
	}

	if s.audit != nil {
		s.audit.Log(ctx, &in.UserID, models.AuditCommandSubmitted, "command", cmd.CommandID, models.JSONMap{
			"vehicle_id":   in.VehicleID,
			"command_name": in.CommandName,
		})
	}

	return cmd, nil
}

// Get returns a single command row. Transient read failures are retried once.
func (s *CommandService) Get(ctx context.Context, commandID string) (*models.Command, error) {
	var cmd models.Command
	err := s.db.WithContext(ctx).First(&cmd, "command_id = ?", commandID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && ctx.Err() == nil {
		err = s.db.WithContext(ctx).First(&cmd, "command_id = ?", commandID).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying command %s: %w", commandID, err)
	}
	return &cmd, nil
}

// List returns one page of command history, newest first. The order is total
// on (submitted_at desc, command_id desc) so pagination never skips or
// repeats rows.
func (s *CommandService) List(ctx context.Context, filter models.CommandFilter) (*models.CommandPage, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	q := s.db.WithContext(ctx).Model(&models.Command{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.VehicleID != "" {
		q = q.Where("vehicle_id = ?", filter.VehicleID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.StartDate != nil {
		q = q.Where("submitted_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		q = q.Where("submitted_at <= ?", *filter.EndDate)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting commands: %w", err)
	}

	var commands []models.Command
	err := q.Order("submitted_at DESC, command_id DESC").
		Limit(limit).
		Offset(offset).
		Find(&commands).Error
	if err != nil {
		return nil, fmt.Errorf("listing commands: %w", err)
	}

	return &models.CommandPage{
		Commands: commands,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// UpdateStatus applies one state-machine transition. The row is locked for
// the duration of the transaction, so concurrent updates are serialised and
// the later one observes the earlier state.
func (s *CommandService) UpdateStatus(ctx context.Context, commandID string, newStatus models.CommandStatus, errorMessage *string, completedAt *time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cmd models.Command
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&cmd, "command_id = ?", commandID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking command %s: %w", commandID, err)
		}

		if !transitionAllowed(cmd.Status, newStatus) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cmd.Status, newStatus)
		}

		updates := map[string]any{"status": newStatus}
		if errorMessage != nil {
			updates["error_message"] = *errorMessage
		}
		if completedAt != nil {
			updates["completed_at"] = *completedAt
		}
		if err := tx.Model(&cmd).Updates(updates).Error; err != nil {
			return fmt.Errorf("updating command %s status: %w", commandID, err)
		}
		return nil
	})
}

// SetTerminal moves a command into completed or failed, stamping completed_at.
// The stamped time is returned so callers publish the same timestamp the row
// carries.
func (s *CommandService) SetTerminal(ctx context.Context, commandID string, status models.CommandStatus, errorMessage string) (time.Time, error) {
	if !status.Terminal() {
		return time.Time{}, fmt.Errorf("%w: %s is not terminal", ErrIllegalTransition, status)
	}
	now := time.Now().UTC()
	var msg *string
	if status == models.StatusFailed {
		msg = &errorMessage
	}
	if err := s.UpdateStatus(ctx, commandID, status, msg, &now); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// ClaimNext atomically claims the oldest pending command for claimant.
// FOR UPDATE SKIP LOCKED lets concurrent workers (on any instance) claim
// disjoint rows without blocking each other, which is what guarantees a
// single execution task per command.
func (s *CommandService) ClaimNext(ctx context.Context, claimant string) (*models.Command, error) {
	var claimed models.Command
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cmd models.Command
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", models.StatusPending).
			Order("submitted_at asc").
			Limit(1).
			First(&cmd).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoPendingCommands
		}
		if err != nil {
			return fmt.Errorf("querying pending commands: %w", err)
		}

		now := time.Now().UTC()
		err = tx.Model(&cmd).Updates(map[string]any{
			"status":     models.StatusInProgress,
			"claimed_by": claimant,
			"claimed_at": now,
		}).Error
		if err != nil {
			return fmt.Errorf("claiming command %s: %w", cmd.CommandID, err)
		}

		cmd.Status = models.StatusInProgress
		cmd.ClaimedBy = &claimant
		cmd.ClaimedAt = &now
		claimed = cmd
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

// OrphanErrorMessage is the error recorded on commands failed by the orphan
// sweep.
const OrphanErrorMessage = "command orphaned: executing instance terminated before completion"

// FailOrphans fails in_progress commands whose lease is older than cutoff,
// meaning their executing instance died without reaching a terminal
// transition. Returns the IDs of the commands it failed.
func (s *CommandService) FailOrphans(ctx context.Context, cutoff time.Time) ([]string, error) {
	var orphans []models.Command
	err := s.db.WithContext(ctx).
		Where("status = ? AND claimed_at < ?", models.StatusInProgress, cutoff).
		Find(&orphans).Error
	if err != nil {
		return nil, fmt.Errorf("querying orphaned commands: %w", err)
	}

	var failed []string
	for _, cmd := range orphans {
		if _, err := s.SetTerminal(ctx, cmd.CommandID, models.StatusFailed, OrphanErrorMessage); err != nil {
			// Raced with the original worker finishing late; skip.
			if errors.Is(err, ErrIllegalTransition) {
				continue
			}
			return failed, err
		}
		failed = append(failed, cmd.CommandID)
	}
	return failed, nil
}
