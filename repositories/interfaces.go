package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/bedrock-failover-router/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("dispatch record not found")

// DispatchRepository persists dispatch outcomes
type DispatchRepository interface {
	// Insert stores a new dispatch record
	Insert(ctx context.Context, record *models.DispatchRecord) error

	// GetByID retrieves a dispatch record by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.DispatchRecord, error)

	// ListRecent returns the newest records first
	ListRecent(ctx context.Context, limit int) ([]*models.DispatchRecord, error)
}
