package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/freelance-escrow/internal/worker/domain"
	"github.com/jmoiron/sqlx"
)

// eligibleClause is the auto-publish predicate. $1 is the PENDING status,
// $2 the sweep time. It must stay equivalent to Request.EligibleForAutoPublish.
const eligibleClause = `
		status = $1
		AND is_public = FALSE
		AND enable_auto_publish = TRUE
		AND target_provider_id IS NOT NULL
		AND response_deadline < $2`

const requestColumns = `id, client_id, title, status, is_public, enable_auto_publish, target_provider_id, response_deadline, updated_at`

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ListAutoPublishEligible returns requests whose response deadline passed
// without the targeted provider answering
func (s *Storage) ListAutoPublishEligible(ctx context.Context, now time.Time) ([]domain.Request, error) {
	query := `SELECT ` + requestColumns + `
		FROM requests
		WHERE` + eligibleClause + `
		ORDER BY response_deadline ASC`

	var requests []domain.Request
	if err := s.db.SelectContext(ctx, &requests, query, domain.RequestStatusPending, now); err != nil {
		return nil, fmt.Errorf("failed to list auto-publish candidates: %w", err)
	}

	return requests, nil
}

// PublishRequest flips a request to PUBLIC if it is still eligible.
// The predicate is re-checked in the UPDATE so a concurrent sweep or a
// provider response between query and update leaves the row untouched.
func (s *Storage) PublishRequest(ctx context.Context, id string, now time.Time) (*domain.Request, error) {
	query := `
		UPDATE requests
		SET status = $3,
		    is_public = TRUE,
		    updated_at = $2
		WHERE id = $4 AND` + eligibleClause + `
		RETURNING ` + requestColumns

	var req domain.Request
	err := s.db.QueryRowxContext(ctx, query,
		domain.RequestStatusPending, now, domain.RequestStatusPublic, id,
	).StructScan(&req)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRequestNotEligible
		}
		return nil, fmt.Errorf("failed to publish request: %w", err)
	}

	return &req, nil
}

// InsertNotification stores a notification. Redelivered messages carry the
// same ID, so a duplicate insert is reported as inserted=false.
func (s *Storage) InsertNotification(ctx context.Context, n *domain.Notification) (bool, error) {
	query := `
		INSERT INTO notifications (id, user_id, type, title, message, data, is_read, created_at)
		VALUES (:id, :user_id, :type, :title, :message, CAST(NULLIF(:data, '') AS jsonb), :is_read, :created_at)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := s.db.NamedExecContext(ctx, query, n)
	if err != nil {
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Debug("Notification already stored",
			slog.String("notification_id", n.ID),
		)
		return false, nil
	}

	return true, nil
}
