package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/freelance-escrow/internal/api/domain"
	"github.com/cuongbtq/freelance-escrow/internal/api/model"
	"github.com/cuongbtq/freelance-escrow/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

// lockedUpdateTimeout bounds a locked update once it runs detached from the
// caller, since the mutation may already have moved money at the gateway
const lockedUpdateTimeout = 30 * time.Second

const escrowColumns = `
	id, project_id, amount, released_amount, currency, status,
	payment_reference, created_by, created_at, updated_at`

// MutateFunc inspects a row-locked escrow and mutates it in place. It returns
// the ledger entry to append, or nil when nothing changed. A returned error
// rolls the transaction back and is passed through unchanged. ctx is not
// cancelled by the caller going away; external calls made from fn use it.
type MutateFunc func(ctx context.Context, escrow *model.Escrow) (*model.EscrowTransaction, error)

type Storage struct {
	pg *postgresql.Client
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		pg: pg,
		db: pg.GetDB(),
	}
}

// CreateEscrow inserts the escrow and its HOLD ledger entry atomically
func (s *Storage) CreateEscrow(ctx context.Context, escrow *model.Escrow, hold *model.EscrowTransaction) error {
	err := s.pg.WithTx(ctx, nil, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO escrows (
				id, project_id, amount, released_amount, currency, status,
				payment_reference, created_by, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6,
				$7, $8, $9, $10
			)
		`

		_, err := tx.ExecContext(
			ctx,
			query,
			escrow.ID,
			escrow.ProjectID,
			escrow.Amount,
			escrow.ReleasedAmount,
			escrow.Currency,
			escrow.Status,
			escrow.PaymentReference,
			escrow.CreatedBy,
			escrow.CreatedAt,
			escrow.UpdatedAt,
		)
		if err != nil {
			if postgresql.IsUniqueViolation(err) {
				return domain.ErrEscrowExists
			}
			return fmt.Errorf("%w: failed to create escrow: %v", domain.ErrStoreFailure, err)
		}

		return insertTransaction(ctx, tx, hold)
	})

	return asStoreFailure(err)
}

func (s *Storage) GetEscrowByID(ctx context.Context, id string) (*model.Escrow, error) {
	return s.getEscrow(ctx, "id", id)
}

func (s *Storage) GetEscrowByProjectID(ctx context.Context, projectID string) (*model.Escrow, error) {
	return s.getEscrow(ctx, "project_id", projectID)
}

func (s *Storage) getEscrow(ctx context.Context, column, value string) (*model.Escrow, error) {
	var escrow model.Escrow
	query := fmt.Sprintf(`SELECT %s FROM escrows WHERE %s = $1`, escrowColumns, column)

	err := s.db.GetContext(ctx, &escrow, query, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEscrowNotFound
		}
		return nil, fmt.Errorf("%w: failed to get escrow: %v", domain.ErrStoreFailure, err)
	}

	return &escrow, nil
}

type EscrowFilter struct {
	ProjectID string
	Status    string
	PageSize  int
	Cursor    *EscrowCursor
}

type EscrowCursor struct {
	CreatedAt time.Time
	EscrowID  string
}

// ListEscrows returns up to PageSize+1 rows so the caller can tell whether
// another page exists
func (s *Storage) ListEscrows(ctx context.Context, filter EscrowFilter) ([]model.Escrow, error) {
	query := fmt.Sprintf(`
        SELECT %s
        FROM escrows
        WHERE 1=1
    `, escrowColumns)
	args := []interface{}{}
	argIdx := 1

	if filter.ProjectID != "" {
		query += fmt.Sprintf(" AND project_id = $%d", argIdx)
		args = append(args, filter.ProjectID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.EscrowID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var escrows []model.Escrow
	err := s.db.SelectContext(ctx, &escrows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list escrows: %v", domain.ErrStoreFailure, err)
	}

	return escrows, nil
}

// UpdateEscrow runs fn against the escrow row locked with SELECT ... FOR UPDATE
// and persists the result in the same transaction. If the caller has gone away
// by the time the row is locked, fn is not called. Once fn runs, the
// transaction finishes under lockedUpdateTimeout regardless of the caller.
func (s *Storage) UpdateEscrow(ctx context.Context, id string, fn MutateFunc) (*model.Escrow, error) {
	return s.updateLocked(ctx, "id", id, fn)
}

// UpdateEscrowByPaymentReference is UpdateEscrow keyed by the gateway hold id
func (s *Storage) UpdateEscrowByPaymentReference(ctx context.Context, ref string, fn MutateFunc) (*model.Escrow, error) {
	return s.updateLocked(ctx, "payment_reference", ref, fn)
}

func (s *Storage) updateLocked(ctx context.Context, column, value string, fn MutateFunc) (*model.Escrow, error) {
	var result *model.Escrow

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockedUpdateTimeout)
	defer cancel()

	err := s.pg.WithTx(txCtx, nil, func(tx *sqlx.Tx) error {
		var escrow model.Escrow
		query := fmt.Sprintf(`SELECT %s FROM escrows WHERE %s = $1 FOR UPDATE`, escrowColumns, column)

		if err := tx.GetContext(txCtx, &escrow, query, value); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrEscrowNotFound
			}
			return fmt.Errorf("%w: failed to lock escrow: %v", domain.ErrStoreFailure, err)
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: request ended before update: %v", domain.ErrStoreFailure, err)
		}

		entry, err := fn(txCtx, &escrow)
		if err != nil {
			return err
		}
		if entry == nil {
			result = &escrow
			return nil
		}

		update := `
			UPDATE escrows
			SET released_amount = $1,
			    status = $2,
			    updated_at = NOW()
			WHERE id = $3
			RETURNING updated_at
		`
		if err := tx.QueryRowxContext(txCtx, update, escrow.ReleasedAmount, escrow.Status, escrow.ID).Scan(&escrow.UpdatedAt); err != nil {
			return fmt.Errorf("%w: failed to update escrow: %v", domain.ErrStoreFailure, err)
		}

		entry.EscrowID = escrow.ID
		if err := insertTransaction(txCtx, tx, entry); err != nil {
			return err
		}

		result = &escrow
		return nil
	})
	if err != nil {
		return nil, asStoreFailure(err)
	}

	return result, nil
}

// ListTransactions returns the ledger of one escrow, oldest first
func (s *Storage) ListTransactions(ctx context.Context, escrowID string) ([]model.EscrowTransaction, error) {
	query := `
		SELECT id, escrow_id, type, amount, created_at
		FROM escrow_transactions
		WHERE escrow_id = $1
		ORDER BY created_at ASC, id ASC
	`

	var entries []model.EscrowTransaction
	if err := s.db.SelectContext(ctx, &entries, query, escrowID); err != nil {
		return nil, fmt.Errorf("%w: failed to list escrow transactions: %v", domain.ErrStoreFailure, err)
	}

	return entries, nil
}

func insertTransaction(ctx context.Context, tx *sqlx.Tx, entry *model.EscrowTransaction) error {
	query := `
		INSERT INTO escrow_transactions (id, escrow_id, type, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, query, entry.ID, entry.EscrowID, entry.Type, entry.Amount, createdAt); err != nil {
		return fmt.Errorf("%w: failed to record %s transaction: %v", domain.ErrStoreFailure, entry.Type, err)
	}
	return nil
}

// asStoreFailure tags begin/commit errors, which carry no kind yet
func asStoreFailure(err error) error {
	if err == nil || domain.Kind(err) != domain.KindInternal {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
}
