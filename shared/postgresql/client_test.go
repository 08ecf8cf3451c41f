package postgresql

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{Host: "db", Port: 5432, User: "app", Password: "pw", Database: "marketplace_db"}
	assert.Equal(t, "host=db port=5432 user=app password=pw dbname=marketplace_db sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", &pq.Error{Code: "23505"}, true},
		{"wrapped unique violation", fmt.Errorf("insert escrow: %w", &pq.Error{Code: "23505"}), true},
		{"check violation", &pq.Error{Code: "23514"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}

func newMockClient(t *testing.T, logs *bytes.Buffer) (*Client, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewFromDB(sqlx.NewDb(db, "postgres"), logger), mock
}

func TestClient_WithTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		client, mock := newMockClient(t, &bytes.Buffer{})
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM escrows").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := client.WithTx(context.Background(), nil, func(tx *sqlx.Tx) error {
			_, err := tx.Exec("DELETE FROM escrows")
			return err
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back and returns fn error unchanged", func(t *testing.T) {
		client, mock := newMockClient(t, &bytes.Buffer{})
		mock.ExpectBegin()
		mock.ExpectRollback()

		sentinel := errors.New("not allowed")
		err := client.WithTx(context.Background(), nil, func(*sqlx.Tx) error { return sentinel })
		require.Equal(t, sentinel, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit failure is reported", func(t *testing.T) {
		client, mock := newMockClient(t, &bytes.Buffer{})
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		err := client.WithTx(context.Background(), nil, func(*sqlx.Tx) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to commit transaction")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestClient_CloseLogsPoolStats(t *testing.T) {
	var logs bytes.Buffer
	client, mock := newMockClient(t, &logs)
	mock.ExpectClose()

	require.NoError(t, client.Close())
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, logs.String(), "OpenConns:")
	assert.Contains(t, logs.String(), "PostgreSQL connection closed successfully")
}
