package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/freelance-escrow/internal/api/model"
	"github.com/cuongbtq/freelance-escrow/internal/api/service"
	"github.com/cuongbtq/freelance-escrow/internal/api/storage"
	"github.com/cuongbtq/freelance-escrow/shared/payment"
)

// ContextUserIDKey is the gin context key holding the authenticated caller
const ContextUserIDKey = "user_id"

// EscrowService is the escrow state machine as seen by the HTTP layer
type EscrowService interface {
	CreateEscrow(ctx context.Context, in service.CreateEscrowInput) (*service.CreateEscrowResult, error)
	GetEscrow(ctx context.Context, id string) (*model.Escrow, error)
	GetEscrowByProjectID(ctx context.Context, projectID string) (*model.Escrow, error)
	ListEscrows(ctx context.Context, filter storage.EscrowFilter) ([]model.Escrow, error)
	ListTransactions(ctx context.Context, escrowID string) ([]model.EscrowTransaction, error)
	ReleaseFunds(ctx context.Context, in service.ReleaseFundsInput) (*model.Escrow, error)
	CancelEscrow(ctx context.Context, id string) (*model.Escrow, error)
	ConfirmHold(ctx context.Context, paymentReference string) (*model.Escrow, error)
}

// WebhookParser verifies and decodes gateway webhooks
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error)
}

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Escrows      EscrowService
	Webhooks     WebhookParser
	DB           HealthChecker
	ServiceName  string
	JWTSecret    string
	AuthDisabled bool
}

// EscrowHandler handles escrow-related HTTP requests
type EscrowHandler struct {
	logger  *slog.Logger
	escrows EscrowService
}

// NewEscrowHandler creates a new EscrowHandler instance
func NewEscrowHandler(deps *Dependencies) *EscrowHandler {
	return &EscrowHandler{
		logger:  deps.Logger,
		escrows: deps.Escrows,
	}
}

// WebhookHandler handles payment gateway callbacks
type WebhookHandler struct {
	logger   *slog.Logger
	escrows  EscrowService
	webhooks WebhookParser
}

// NewWebhookHandler creates a new WebhookHandler instance
func NewWebhookHandler(deps *Dependencies) *WebhookHandler {
	return &WebhookHandler{
		logger:   deps.Logger,
		escrows:  deps.Escrows,
		webhooks: deps.Webhooks,
	}
}
