package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/freelance-escrow/shared/rabbitmq"
	"github.com/google/uuid"
)

// Notification types emitted by the escrow flow and the auto-publish sweep
const (
	TypeEscrowFundsReleased  = "escrow.funds_released"
	TypeEscrowCompleted      = "escrow.completed"
	TypeEscrowCancelled      = "escrow.cancelled"
	TypeRequestAutoPublished = "request.auto_published"
)

// Message is the JSON body carried on the notifications queue
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	UserID    string            `json:"user_id"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Sender is the transport the Publisher writes to
type Sender interface {
	Publish(ctx context.Context, msg rabbitmq.Message) error
}

// Publisher sends notifications to the worker-service over RabbitMQ
type Publisher struct {
	sender Sender
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewPublisher creates a Publisher
func NewPublisher(sender Sender, logger *slog.Logger) *Publisher {
	return &Publisher{
		sender: sender,
		logger: logger,
		nowFn:  time.Now,
	}
}

// Notify fills in id and timestamp when missing and publishes msg
func (p *Publisher) Notify(ctx context.Context, msg Message) error {
	if msg.UserID == "" {
		return fmt.Errorf("notification %s has no recipient", msg.Type)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = p.nowFn().UTC()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := p.sender.Publish(ctx, rabbitmq.Message{
		MessageID: msg.ID,
		Type:      msg.Type,
		Body:      body,
	}); err != nil {
		return fmt.Errorf("publish notification %s: %w", msg.Type, err)
	}

	p.logger.Debug("Notification published",
		slog.String("notification_id", msg.ID),
		slog.String("type", msg.Type),
		slog.String("user_id", msg.UserID),
	)
	return nil
}
