package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/freelance-escrow/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeliverySource is the queue the worker consumes notifications from
type DeliverySource interface {
	Consume(consumerTag string, prefetchCount int) (<-chan amqp.Delivery, error)
}

// NotificationStore persists delivered notifications
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *domain.Notification) (bool, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Store         NotificationStore
	Source        DeliverySource
	WorkerID      string
	QueueName     string
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
}

// Worker consumes notification messages and stores them
type Worker struct {
	logger        *slog.Logger
	store         NotificationStore
	source        DeliverySource
	workerID      string
	queueName     string
	concurrency   int
	prefetchCount int
	jobTimeout    time.Duration
	tasks         chan *task
	wg            sync.WaitGroup
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = cfg.Concurrency
	}

	return &Worker{
		logger:        cfg.Logger,
		store:         cfg.Store,
		source:        cfg.Source,
		workerID:      cfg.WorkerID,
		queueName:     cfg.QueueName,
		concurrency:   cfg.Concurrency,
		prefetchCount: prefetch,
		jobTimeout:    cfg.JobTimeout,
		tasks:         make(chan *task, cfg.Concurrency),
		stopChan:      make(chan struct{}),
	}
}

// Start consumes until ctx is cancelled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.startMessageDispatcher(ctx, deliveries)
	}()

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
