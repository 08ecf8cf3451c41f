package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/freelance-escrow/internal/api/domain"
	"github.com/cuongbtq/freelance-escrow/internal/api/dto"
	"github.com/cuongbtq/freelance-escrow/shared/payment"
	"github.com/gin-gonic/gin"
)

const (
	// StripeSignatureHeader carries the webhook HMAC
	StripeSignatureHeader = "Stripe-Signature"

	// MaxWebhookBodyBytes caps a webhook payload. Larger bodies get 413
	// instead of being truncated into a signature mismatch.
	MaxWebhookBodyBytes = 256 << 10
)

// HandleStripe handles POST /api/v1/webhooks/stripe
// A confirmed hold moves its escrow from PENDING to ACTIVE. Events that can
// never succeed are acknowledged so the gateway stops redelivering them.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Error("Webhook payload too large",
				slog.Int64("limit_bytes", tooLarge.Limit),
			)
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{
				Error: dto.ErrorBody{Kind: domain.KindInvalidInput, Message: "payload too large"},
			})
			return
		}
		respondInvalidInput(c, "unreadable body")
		return
	}

	event, err := h.webhooks.ParseWebhook(payload, c.GetHeader(StripeSignatureHeader))
	if err != nil {
		h.logger.Warn("Rejected webhook", slog.String("error", err.Error()))
		respondInvalidInput(c, "invalid webhook")
		return
	}

	if event.Type != payment.EventHoldConfirmed || event.HoldID == "" {
		h.logger.Debug("Ignoring webhook event",
			slog.String("event_id", event.ID),
			slog.String("type", event.Type),
		)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	escrow, err := h.escrows.ConfirmHold(c.Request.Context(), event.HoldID)
	switch {
	case err == nil:
		h.logger.Info("Hold confirmation processed",
			slog.String("event_id", event.ID),
			slog.String("escrow_id", escrow.ID),
			slog.String("status", escrow.Status),
		)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidState):
		h.logger.Warn("Hold confirmation not applied",
			slog.String("event_id", event.ID),
			slog.String("hold_id", event.HoldID),
			slog.String("error", err.Error()),
		)
	default:
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
