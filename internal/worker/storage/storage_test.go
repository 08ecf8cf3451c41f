package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/freelance-escrow/internal/worker/domain"
	"github.com/cuongbtq/freelance-escrow/shared/logger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eligibleWhere = `status = $1 AND is_public = FALSE AND enable_auto_publish = TRUE AND target_provider_id IS NOT NULL AND response_deadline < $2`

	listEligibleQuery = `SELECT ` + requestColumns + ` FROM requests WHERE ` + eligibleWhere + ` ORDER BY response_deadline ASC`

	publishQuery = `UPDATE requests SET status = $3, is_public = TRUE, updated_at = $2 WHERE id = $4 AND ` + eligibleWhere + ` RETURNING ` + requestColumns

	insertNotificationQuery = `INSERT INTO notifications (id, user_id, type, title, message, data, is_read, created_at) VALUES ($1, $2, $3, $4, $5, CAST(NULLIF($6, '') AS jsonb), $7, $8) ON CONFLICT (id) DO NOTHING`
)

var sweepTime = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStorage(sqlx.NewDb(db, "postgres"), logger.NewNop()), mock
}

func requestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "client_id", "title", "status", "is_public", "enable_auto_publish",
		"target_provider_id", "response_deadline", "updated_at",
	})
}

func TestStorage_ListAutoPublishEligible(t *testing.T) {
	s, mock := newMockStorage(t)
	deadline := sweepTime.Add(-time.Hour)

	mock.ExpectQuery(listEligibleQuery).
		WithArgs(domain.RequestStatusPending, sweepTime).
		WillReturnRows(requestRows().
			AddRow("r1", "c1", "Logo", domain.RequestStatusPending, false, true, "prov-1", deadline, deadline))

	requests, err := s.ListAutoPublishEligible(context.Background(), sweepTime)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	require.NotNil(t, requests[0].TargetProviderID)
	assert.Equal(t, "prov-1", *requests[0].TargetProviderID)
	assert.True(t, requests[0].EligibleForAutoPublish(sweepTime))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_ListAutoPublishEligible_QueryError(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(listEligibleQuery).WillReturnError(errors.New("connection refused"))

	_, err := s.ListAutoPublishEligible(context.Background(), sweepTime)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_PublishRequest(t *testing.T) {
	s, mock := newMockStorage(t)
	deadline := sweepTime.Add(-time.Hour)

	// $1 and $2 feed the shared eligibility clause, $3 and $4 the SET and id
	mock.ExpectQuery(publishQuery).
		WithArgs(domain.RequestStatusPending, sweepTime, domain.RequestStatusPublic, "r1").
		WillReturnRows(requestRows().
			AddRow("r1", "c1", "Logo", domain.RequestStatusPublic, true, true, "prov-1", deadline, sweepTime))

	req, err := s.PublishRequest(context.Background(), "r1", sweepTime)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusPublic, req.Status)
	assert.True(t, req.IsPublic)
	assert.Equal(t, sweepTime, req.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_PublishRequest_NoLongerEligible(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(publishQuery).
		WithArgs(domain.RequestStatusPending, sweepTime, domain.RequestStatusPublic, "r1").
		WillReturnRows(requestRows())

	_, err := s.PublishRequest(context.Background(), "r1", sweepTime)
	require.ErrorIs(t, err, domain.ErrRequestNotEligible)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_InsertNotification(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		wantInserted bool
	}{
		{"new notification", 1, true},
		{"redelivered duplicate", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStorage(t)
			n := &domain.Notification{
				ID:        "7b0c4a4e-2a57-4f53-9d1e-6f0f3f3c9a11",
				UserID:    "c1",
				Type:      "REQUEST_AUTO_PUBLISHED",
				Title:     "Request published",
				Message:   "Your request is now public",
				Data:      `{"request_id":"r1"}`,
				CreatedAt: sweepTime,
			}

			mock.ExpectExec(insertNotificationQuery).
				WithArgs(n.ID, n.UserID, n.Type, n.Title, n.Message, n.Data, false, sweepTime).
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			inserted, err := s.InsertNotification(context.Background(), n)
			require.NoError(t, err)
			assert.Equal(t, tt.wantInserted, inserted)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
