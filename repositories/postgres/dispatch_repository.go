package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/bedrock-failover-router/models"
	"github.com/upb/bedrock-failover-router/repositories"
	"go.uber.org/zap"
)

// maxListLimit caps ListRecent
const maxListLimit = 500

const dispatchColumns = `id, request_id, status, model_id, region, attempts, rate_limited_attempts,
	latency_ms, input_tokens, output_tokens, error_message, trail, created_at`

// DispatchRepository implements the repositories.DispatchRepository interface
type DispatchRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDispatchRepository creates a new dispatch repository
func NewDispatchRepository(db *DB, logger *zap.Logger) repositories.DispatchRepository {
	return &DispatchRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new dispatch record
func (r *DispatchRepository) Insert(ctx context.Context, rec *models.DispatchRecord) error {
	query := `
		INSERT INTO dispatch_records (` + dispatchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	var trail interface{}
	if len(rec.Trail) > 0 {
		trail = []byte(rec.Trail)
	}

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		rec.ID,
		rec.RequestID,
		rec.Status,
		rec.ModelID,
		rec.Region,
		rec.Attempts,
		rec.RateLimitedAttempts,
		rec.LatencyMs,
		rec.InputTokens,
		rec.OutputTokens,
		rec.ErrorMessage,
		trail,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dispatch record: %w", err)
	}

	r.logger.Debug("dispatch record inserted",
		zap.String("id", rec.ID.String()),
		zap.String("status", string(rec.Status)))
	return nil
}

// GetByID retrieves a dispatch record by ID
func (r *DispatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DispatchRecord, error) {
	query := `SELECT ` + dispatchColumns + ` FROM dispatch_records WHERE id = $1`

	rec, err := scanDispatch(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", repositories.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get dispatch record: %w", err)
	}
	return rec, nil
}

// ListRecent returns up to limit records ordered newest first
func (r *DispatchRepository) ListRecent(ctx context.Context, limit int) ([]*models.DispatchRecord, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	query := `SELECT ` + dispatchColumns + ` FROM dispatch_records ORDER BY created_at DESC LIMIT $1`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatch records: %w", err)
	}
	defer rows.Close()

	records := make([]*models.DispatchRecord, 0, limit)
	for rows.Next() {
		rec, err := scanDispatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dispatch record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dispatch records: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDispatch(row rowScanner) (*models.DispatchRecord, error) {
	rec := &models.DispatchRecord{}
	var trail []byte
	err := row.Scan(
		&rec.ID,
		&rec.RequestID,
		&rec.Status,
		&rec.ModelID,
		&rec.Region,
		&rec.Attempts,
		&rec.RateLimitedAttempts,
		&rec.LatencyMs,
		&rec.InputTokens,
		&rec.OutputTokens,
		&rec.ErrorMessage,
		&trail,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(trail) > 0 {
		rec.Trail = trail
	}
	return rec, nil
}
