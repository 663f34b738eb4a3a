package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
)

// PostgreSQL error codes surfaced as domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// ResponseService owns the append-only response chunk rows.
type ResponseService struct {
	db *gorm.DB
}

// NewResponseService creates a ResponseService.
func NewResponseService(db *gorm.DB) *ResponseService {
	if db == nil {
		panic("NewResponseService: db must not be nil")
	}
	return &ResponseService{db: db}
}

// Insert appends one response chunk. The (command_id, sequence_number)
// unique constraint turns duplicate emissions into ErrSequenceConflict; a
// missing parent command surfaces as ErrNotFound.
func (s *ResponseService) Insert(ctx context.Context, commandID string, payload models.JSONMap, sequenceNumber int, isFinal bool) (*models.Response, error) {
	if sequenceNumber < 1 {
		return nil, fmt.Errorf("sequence number must be positive, got %d", sequenceNumber)
	}

	resp := &models.Response{
		ResponseID:      uuid.New().String(),
		CommandID:       commandID,
		ResponsePayload: payload,
		SequenceNumber:  sequenceNumber,
		IsFinal:         isFinal,
		ReceivedAt:      time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(resp).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return nil, fmt.Errorf("%w: command %s sequence %d", ErrSequenceConflict, commandID, sequenceNumber)
			case pgForeignKeyViolation:
				return nil, ErrNotFound
			}
		}
		return nil, fmt.Errorf("inserting response for command %s: %w", commandID, err)
	}
	return resp, nil
}

// Get returns a single response row by ID.
func (s *ResponseService) Get(ctx context.Context, responseID string) (*models.Response, error) {
	var resp models.Response
	err := s.db.WithContext(ctx).First(&resp, "response_id = ?", responseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying response %s: %w", responseID, err)
	}
	return &resp, nil
}

// List returns all responses of a command in ascending sequence order, from
// a single query snapshot.
func (s *ResponseService) List(ctx context.Context, commandID string) ([]models.Response, error) {
	var responses []models.Response
	err := s.db.WithContext(ctx).
		Where("command_id = ?", commandID).
		Order("sequence_number asc").
		Find(&responses).Error
	if err != nil {
		return nil, fmt.Errorf("listing responses for command %s: %w", commandID, err)
	}
	return responses, nil
}
