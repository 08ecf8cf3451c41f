package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/freelance-escrow/internal/worker/domain"
	"github.com/cuongbtq/freelance-escrow/shared/notification"
	"github.com/google/uuid"
)

// processNotification validates msg and stores it under its own id, so a
// redelivered message is stored once
func (w *Worker) processNotification(ctx context.Context, msg *notification.Message) error {
	if err := validateNotification(msg); err != nil {
		return err
	}

	var data string
	if len(msg.Data) > 0 {
		raw, err := json.Marshal(msg.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		data = string(raw)
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	inserted, err := w.store.InsertNotification(ctx, &domain.Notification{
		ID:        msg.ID,
		UserID:    msg.UserID,
		Type:      msg.Type,
		Title:     msg.Title,
		Message:   msg.Message,
		Data:      data,
		CreatedAt: createdAt,
	})
	if err != nil {
		return domain.NewRetryableError(err)
	}

	if inserted {
		w.logger.Info("Notification stored",
			slog.String("notification_id", msg.ID),
			slog.String("type", msg.Type),
			slog.String("user_id", msg.UserID),
		)
	}

	return nil
}

func validateNotification(msg *notification.Message) error {
	if _, err := uuid.Parse(msg.ID); err != nil {
		return fmt.Errorf("%w: id %q is not a UUID", domain.ErrInvalidPayload, msg.ID)
	}
	if msg.UserID == "" {
		return fmt.Errorf("%w: user_id is required", domain.ErrInvalidPayload)
	}
	if msg.Type == "" {
		return fmt.Errorf("%w: type is required", domain.ErrInvalidPayload)
	}
	return nil
}
