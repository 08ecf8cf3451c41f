package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/freelance-escrow/internal/api/domain"
	"github.com/cuongbtq/freelance-escrow/internal/api/model"
	"github.com/cuongbtq/freelance-escrow/internal/api/storage"
	"github.com/cuongbtq/freelance-escrow/shared/notification"
	"github.com/cuongbtq/freelance-escrow/shared/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const notifyTimeout = 5 * time.Second

// EscrowStore is the ledger the state machine reads and writes
type EscrowStore interface {
	CreateEscrow(ctx context.Context, escrow *model.Escrow, hold *model.EscrowTransaction) error
	GetEscrowByID(ctx context.Context, id string) (*model.Escrow, error)
	GetEscrowByProjectID(ctx context.Context, projectID string) (*model.Escrow, error)
	ListEscrows(ctx context.Context, filter storage.EscrowFilter) ([]model.Escrow, error)
	ListTransactions(ctx context.Context, escrowID string) ([]model.EscrowTransaction, error)
	UpdateEscrow(ctx context.Context, id string, fn storage.MutateFunc) (*model.Escrow, error)
	UpdateEscrowByPaymentReference(ctx context.Context, ref string, fn storage.MutateFunc) (*model.Escrow, error)
}

// PaymentGateway holds, captures and voids funds
type PaymentGateway interface {
	CreateHold(ctx context.Context, amountMinor int64, currency, idempotencyKey string) (*payment.Hold, error)
	Capture(ctx context.Context, holdID string, amountMinor int64, final bool, idempotencyKey string) error
	Void(ctx context.Context, holdID string) error
}

// Notifier delivers user notifications. Failures never fail an escrow operation.
type Notifier interface {
	Notify(ctx context.Context, msg notification.Message) error
}

// Config holds EscrowService dependencies
type Config struct {
	Store           EscrowStore
	Gateway         PaymentGateway
	Notifier        Notifier
	Logger          *slog.Logger
	DefaultCurrency string
}

// EscrowService owns the escrow lifecycle:
// PENDING -> ACTIVE -> COMPLETED, and CANCELLED from any non-terminal state.
type EscrowService struct {
	store           EscrowStore
	gateway         PaymentGateway
	notifier        Notifier
	logger          *slog.Logger
	defaultCurrency string
	nowFn           func() time.Time
	newID           func() string
}

// NewEscrowService creates a new EscrowService
func NewEscrowService(cfg Config) *EscrowService {
	currency := strings.ToLower(cfg.DefaultCurrency)
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	return &EscrowService{
		store:           cfg.Store,
		gateway:         cfg.Gateway,
		notifier:        cfg.Notifier,
		logger:          cfg.Logger,
		defaultCurrency: currency,
		nowFn:           time.Now,
		newID:           uuid.NewString,
	}
}

type CreateEscrowInput struct {
	ProjectID      string
	Amount         decimal.Decimal
	Currency       string
	CreatedBy      string
	IdempotencyKey string
}

type CreateEscrowResult struct {
	Escrow       *model.Escrow
	ClientSecret string
}

// CreateEscrow places a manual-capture hold for the amount and records a
// PENDING escrow bound to it. Nothing is persisted if the hold fails.
func (s *EscrowService) CreateEscrow(ctx context.Context, in CreateEscrowInput) (*CreateEscrowResult, error) {
	projectID := strings.TrimSpace(in.ProjectID)
	if projectID == "" {
		return nil, fmt.Errorf("%w: project_id is required", domain.ErrInvalidInput)
	}

	amount := domain.NormalizeAmount(in.Amount)
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	amountMinor, err := domain.ToMinorUnits(amount)
	if err != nil {
		return nil, err
	}

	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	if _, err := s.store.GetEscrowByProjectID(ctx, projectID); err == nil {
		return nil, domain.ErrEscrowExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	escrowID := s.newID()
	idemKey := "escrow-hold-" + escrowID
	if in.IdempotencyKey != "" {
		idemKey = "escrow-hold-" + in.IdempotencyKey
	}

	hold, err := s.gateway.CreateHold(ctx, amountMinor, currency, idemKey)
	if err != nil {
		s.logger.Error("Failed to create payment hold",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayFailure, err)
	}

	now := s.nowFn().UTC()
	escrow := &model.Escrow{
		ID:               escrowID,
		ProjectID:        projectID,
		Amount:           amount,
		ReleasedAmount:   decimal.Zero,
		Currency:         currency,
		Status:           domain.EscrowStatusPending,
		PaymentReference: hold.ID,
		CreatedBy:        in.CreatedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	entry := &model.EscrowTransaction{
		ID:        s.newID(),
		EscrowID:  escrowID,
		Type:      domain.TransactionTypeHold,
		Amount:    amount,
		CreatedAt: now,
	}

	if err := s.store.CreateEscrow(ctx, escrow, entry); err != nil {
		s.compensateHold(ctx, projectID, hold.ID, err)
		return nil, err
	}

	s.logger.Info("Escrow created",
		slog.String("escrow_id", escrow.ID),
		slog.String("project_id", projectID),
		slog.String("amount", amount.StringFixed(2)),
		slog.String("currency", currency),
		slog.String("hold_id", hold.ID),
	)

	return &CreateEscrowResult{Escrow: escrow, ClientSecret: hold.ClientSecret}, nil
}

// compensateHold voids a hold whose escrow could not be persisted, unless the
// hold already backs an existing escrow (replayed idempotency key)
func (s *EscrowService) compensateHold(ctx context.Context, projectID, holdID string, cause error) {
	ctx = context.WithoutCancel(ctx)

	if existing, err := s.store.GetEscrowByProjectID(ctx, projectID); err == nil && existing.PaymentReference == holdID {
		return
	}

	if err := s.gateway.Void(ctx, holdID); err != nil {
		s.logger.Error("Failed to void orphaned payment hold",
			slog.String("project_id", projectID),
			slog.String("hold_id", holdID),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Warn("Voided payment hold after failed escrow insert",
		slog.String("project_id", projectID),
		slog.String("hold_id", holdID),
		slog.String("cause", cause.Error()),
	)
}

func (s *EscrowService) GetEscrow(ctx context.Context, id string) (*model.Escrow, error) {
	return s.store.GetEscrowByID(ctx, id)
}

func (s *EscrowService) GetEscrowByProjectID(ctx context.Context, projectID string) (*model.Escrow, error) {
	return s.store.GetEscrowByProjectID(ctx, projectID)
}

// ListEscrows returns one page; see storage.ListEscrows for the extra row
func (s *EscrowService) ListEscrows(ctx context.Context, filter storage.EscrowFilter) ([]model.Escrow, error) {
	if filter.Status != "" && !domain.IsValidEscrowStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, filter.Status)
	}
	return s.store.ListEscrows(ctx, filter)
}

// ListTransactions returns the ledger entries of an escrow
func (s *EscrowService) ListTransactions(ctx context.Context, escrowID string) ([]model.EscrowTransaction, error) {
	if _, err := s.store.GetEscrowByID(ctx, escrowID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, escrowID)
}

type ReleaseFundsInput struct {
	EscrowID       string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// ReleaseFunds captures amount from the hold. The escrow stays ACTIVE until
// the released total reaches the held amount, then becomes COMPLETED.
func (s *EscrowService) ReleaseFunds(ctx context.Context, in ReleaseFundsInput) (*model.Escrow, error) {
	amount := domain.NormalizeAmount(in.Amount)
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	amountMinor, err := domain.ToMinorUnits(amount)
	if err != nil {
		return nil, err
	}

	captured := false
	escrow, err := s.store.UpdateEscrow(ctx, in.EscrowID, func(ctx context.Context, e *model.Escrow) (*model.EscrowTransaction, error) {
		if e.Status != domain.EscrowStatusActive {
			return nil, domain.ErrEscrowNotActive
		}

		released := e.ReleasedAmount.Add(amount)
		if released.GreaterThan(e.Amount) {
			return nil, domain.ErrExceedsBalance
		}
		final := released.GreaterThanOrEqual(e.Amount)

		if err := s.gateway.Capture(ctx, e.PaymentReference, amountMinor, final, releaseIdempotencyKey(e, amount, in.IdempotencyKey)); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrGatewayFailure, err)
		}
		captured = true

		e.ReleasedAmount = released
		if final {
			e.Status = domain.EscrowStatusCompleted
		}

		return &model.EscrowTransaction{
			ID:        s.newID(),
			Type:      domain.TransactionTypeRelease,
			Amount:    amount,
			CreatedAt: s.nowFn().UTC(),
		}, nil
	})
	if err != nil {
		if captured {
			s.logger.Error("Funds captured but ledger write failed",
				slog.String("escrow_id", in.EscrowID),
				slog.String("amount", amount.StringFixed(2)),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	s.logger.Info("Escrow funds released",
		slog.String("escrow_id", escrow.ID),
		slog.String("amount", amount.StringFixed(2)),
		slog.String("released_amount", escrow.ReleasedAmount.StringFixed(2)),
		slog.String("status", escrow.Status),
	)

	if escrow.Status == domain.EscrowStatusCompleted {
		s.notify(ctx, escrow, notification.TypeEscrowCompleted, "Escrow completed",
			fmt.Sprintf("All %s %s held for project %s has been released", escrow.Amount.StringFixed(2), strings.ToUpper(escrow.Currency), escrow.ProjectID))
	} else {
		s.notify(ctx, escrow, notification.TypeEscrowFundsReleased, "Escrow funds released",
			fmt.Sprintf("%s %s was released for project %s", amount.StringFixed(2), strings.ToUpper(escrow.Currency), escrow.ProjectID))
	}

	return escrow, nil
}

// releaseIdempotencyKey is the client's key when given. Otherwise it is
// derived from the escrow, its released total before this capture and the
// captured amount.
func releaseIdempotencyKey(e *model.Escrow, amount decimal.Decimal, clientKey string) string {
	if clientKey != "" {
		return "escrow-release-" + clientKey
	}
	return fmt.Sprintf("escrow-release-%s-%s-%s", e.ID, e.ReleasedAmount.StringFixed(2), amount.StringFixed(2))
}

// CancelEscrow voids the hold and marks the escrow CANCELLED. Cancelling a
// cancelled escrow returns it unchanged; a completed escrow cannot be cancelled.
func (s *EscrowService) CancelEscrow(ctx context.Context, id string) (*model.Escrow, error) {
	voided := false
	escrow, err := s.store.UpdateEscrow(ctx, id, func(ctx context.Context, e *model.Escrow) (*model.EscrowTransaction, error) {
		if domain.IsTerminalEscrowStatus(e.Status) {
			if e.Status == domain.EscrowStatusCancelled {
				return nil, nil
			}
			return nil, domain.ErrEscrowCompleted
		}

		if err := s.gateway.Void(ctx, e.PaymentReference); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrGatewayFailure, err)
		}
		voided = true

		e.Status = domain.EscrowStatusCancelled

		return &model.EscrowTransaction{
			ID:        s.newID(),
			Type:      domain.TransactionTypeCancel,
			Amount:    e.Remaining(),
			CreatedAt: s.nowFn().UTC(),
		}, nil
	})
	if err != nil {
		if voided {
			s.logger.Error("Hold voided but ledger write failed",
				slog.String("escrow_id", id),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	if !voided {
		s.logger.Debug("Escrow already cancelled",
			slog.String("escrow_id", escrow.ID),
		)
		return escrow, nil
	}

	s.logger.Info("Escrow cancelled",
		slog.String("escrow_id", escrow.ID),
		slog.String("released_amount", escrow.ReleasedAmount.StringFixed(2)),
	)

	s.notify(ctx, escrow, notification.TypeEscrowCancelled, "Escrow cancelled",
		fmt.Sprintf("The escrow for project %s was cancelled and the remaining hold released", escrow.ProjectID))

	return escrow, nil
}

// ConfirmHold moves a PENDING escrow to ACTIVE once the gateway reports the
// hold as capturable. Repeated confirmations are no-ops.
func (s *EscrowService) ConfirmHold(ctx context.Context, paymentReference string) (*model.Escrow, error) {
	confirmed := false
	escrow, err := s.store.UpdateEscrowByPaymentReference(ctx, paymentReference, func(_ context.Context, e *model.Escrow) (*model.EscrowTransaction, error) {
		if e.Status == domain.EscrowStatusActive {
			return nil, nil
		}
		if domain.IsTerminalEscrowStatus(e.Status) {
			return nil, domain.ErrEscrowNotConfirmable
		}

		e.Status = domain.EscrowStatusActive
		confirmed = true

		return &model.EscrowTransaction{
			ID:        s.newID(),
			Type:      domain.TransactionTypeConfirm,
			Amount:    e.Amount,
			CreatedAt: s.nowFn().UTC(),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	if confirmed {
		s.logger.Info("Escrow hold confirmed",
			slog.String("escrow_id", escrow.ID),
			slog.String("hold_id", paymentReference),
		)
	}

	return escrow, nil
}

func (s *EscrowService) notify(ctx context.Context, escrow *model.Escrow, kind, title, message string) {
	if s.notifier == nil || escrow.CreatedBy == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	err := s.notifier.Notify(ctx, notification.Message{
		Type:    kind,
		UserID:  escrow.CreatedBy,
		Title:   title,
		Message: message,
		Data: map[string]string{
			"escrow_id":  escrow.ID,
			"project_id": escrow.ProjectID,
			"status":     escrow.Status,
		},
	})
	if err != nil {
		s.logger.Warn("Failed to send escrow notification",
			slog.String("escrow_id", escrow.ID),
			slog.String("type", kind),
			slog.String("error", err.Error()),
		)
	}
}
