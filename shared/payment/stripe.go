package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// EventHoldConfirmed fires once a manual-capture intent has funds authorized
const EventHoldConfirmed = "payment_intent.amount_capturable_updated"

// ErrInvalidSignature is returned for webhook payloads that fail verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Config holds Stripe client settings
type Config struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	// APIBase overrides the Stripe API URL (stripe-mock, tests)
	APIBase string
}

// Hold is an authorized, not yet captured, payment intent
type Hold struct {
	ID           string
	ClientSecret string
}

// WebhookEvent is the part of a Stripe event the escrow flow acts on
type WebhookEvent struct {
	ID               string
	Type             string
	HoldID           string
	AmountCapturable int64
}

// StripeGateway implements the escrow payment gateway over payment intents
// with manual capture
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	logger        *slog.Logger
}

// NewStripeGateway creates a gateway with its own backend so timeouts and
// logging are not shared with the package-level stripe client
func NewStripeGateway(cfg Config, logger *slog.Logger) *StripeGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		LeveledLogger:     &leveledLogger{logger: logger},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.APIBase != "" {
		backendCfg.URL = stripe.String(cfg.APIBase)
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	return &StripeGateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
}

// CreateHold authorizes amountMinor without capturing it
func (g *StripeGateway) CreateHold(ctx context.Context, amountMinor int64, currency, idempotencyKey string) (*Hold, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amountMinor),
		Currency:      stripe.String(strings.ToLower(currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	g.logger.Info("Payment hold created",
		slog.String("hold_id", pi.ID),
		slog.Int64("amount_minor", amountMinor),
		slog.String("currency", currency),
	)

	return &Hold{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// Capture transfers amountMinor of the held funds. final=false keeps the
// remaining authorization open for later captures.
func (g *StripeGateway) Capture(ctx context.Context, holdID string, amountMinor int64, final bool, idempotencyKey string) error {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(amountMinor),
		FinalCapture:    stripe.Bool(final),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	if _, err := g.api.PaymentIntents.Capture(holdID, params); err != nil {
		return fmt.Errorf("capture payment intent %s: %w", holdID, err)
	}

	g.logger.Info("Payment hold captured",
		slog.String("hold_id", holdID),
		slog.Int64("amount_minor", amountMinor),
		slog.Bool("final", final),
	)
	return nil
}

// Void releases whatever is still authorized on the hold
func (g *StripeGateway) Void(ctx context.Context, holdID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := g.api.PaymentIntents.Cancel(holdID, params); err != nil {
		return fmt.Errorf("cancel payment intent %s: %w", holdID, err)
	}

	g.logger.Info("Payment hold voided",
		slog.String("hold_id", holdID),
	)
	return nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the payment
// intent the event refers to. Events for other objects come back with an
// empty HoldID.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	if !strings.HasPrefix(out.Type, "payment_intent.") || event.Data == nil {
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	out.HoldID = pi.ID
	out.AmountCapturable = pi.AmountCapturable

	return out, nil
}

// leveledLogger routes stripe-go's internal logging through slog
type leveledLogger struct {
	logger *slog.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}
