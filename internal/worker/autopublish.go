package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/freelance-escrow/internal/worker/domain"
	"github.com/cuongbtq/freelance-escrow/shared/notification"
)

const notifyTimeout = 5 * time.Second

// RequestStore is the subset of storage the sweep needs
type RequestStore interface {
	ListAutoPublishEligible(ctx context.Context, now time.Time) ([]domain.Request, error)
	PublishRequest(ctx context.Context, id string, now time.Time) (*domain.Request, error)
}

// Notifier delivers user notifications
type Notifier interface {
	Notify(ctx context.Context, msg notification.Message) error
}

// AutoPublisher makes privately targeted requests public once their
// response deadline passes
type AutoPublisher struct {
	store    RequestStore
	notifier Notifier
	logger   *slog.Logger
	nowFn    func() time.Time
}

// NewAutoPublisher creates an AutoPublisher. notifier may be nil.
func NewAutoPublisher(store RequestStore, notifier Notifier, logger *slog.Logger) *AutoPublisher {
	return &AutoPublisher{
		store:    store,
		notifier: notifier,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// Sweep publishes every eligible request and returns how many transitioned.
// A failed query aborts the sweep. A failed update only skips that request.
// An idle sweep logs nothing.
func (p *AutoPublisher) Sweep(ctx context.Context) (int, error) {
	now := p.nowFn().UTC()

	requests, err := p.store.ListAutoPublishEligible(ctx, now)
	if err != nil {
		p.logger.Error("Auto-publish sweep aborted",
			slog.String("error", err.Error()),
		)
		return 0, err
	}

	if len(requests) == 0 {
		return 0, nil
	}

	var transitioned, failed, skipped int
	for i := range requests {
		req := &requests[i]

		if ctx.Err() != nil {
			failed += len(requests) - i
			p.logger.Warn("Auto-publish sweep interrupted",
				slog.Int("remaining", len(requests)-i),
				slog.String("error", ctx.Err().Error()),
			)
			break
		}

		published, err := p.store.PublishRequest(ctx, req.ID, now)
		if err != nil {
			if errors.Is(err, domain.ErrRequestNotEligible) {
				skipped++
				p.logger.Debug("Request changed before publish",
					slog.String("request_id", req.ID),
				)
				continue
			}
			failed++
			p.logger.Error("Failed to auto-publish request",
				slog.String("request_id", req.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		transitioned++
		p.notifyPublished(ctx, published)
	}

	p.logger.Info("Auto-publish sweep completed",
		slog.Int("transitioned", transitioned),
		slog.Int("failed", failed),
		slog.Int("skipped", skipped),
	)

	return transitioned, nil
}

type recipient struct {
	userID  string
	message string
}

func (p *AutoPublisher) notifyPublished(ctx context.Context, req *domain.Request) {
	if p.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	data := map[string]string{"request_id": req.ID}

	recipients := []recipient{
		{req.ClientID, fmt.Sprintf("Your request %q received no response in time and is now public", req.Title)},
	}
	if req.TargetProviderID != nil {
		recipients = append(recipients, recipient{
			*req.TargetProviderID,
			fmt.Sprintf("The request %q you were invited to is now open to all providers", req.Title),
		})
	}

	for _, r := range recipients {
		if r.userID == "" {
			continue
		}
		err := p.notifier.Notify(ctx, notification.Message{
			Type:    notification.TypeRequestAutoPublished,
			UserID:  r.userID,
			Title:   "Request published",
			Message: r.message,
			Data:    data,
		})
		if err != nil {
			p.logger.Warn("Failed to send auto-publish notification",
				slog.String("request_id", req.ID),
				slog.String("user_id", r.userID),
				slog.String("error", err.Error()),
			)
		}
	}
}
