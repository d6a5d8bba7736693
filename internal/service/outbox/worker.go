// Package outbox публикует события из transactional outbox во внешний брокер.
package outbox

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Результаты попыток публикации для метрик.
const (
	ResultSent       = "sent"
	ResultRetryError = "retry_error"
	ResultFailed     = "failed"
	ResultDLQFailed  = "dlq_failed"
)

const maxDelay = time.Duration(1<<63 - 1)

// Metrics реализуется *metrics.OutboxMetrics.
type Metrics interface {
	RecordPublishAttempt(result string)
	SetBacklog(pending int, oldestAge time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordPublishAttempt(string)   {}
func (noopMetrics) SetBacklog(int, time.Duration) {}

// Worker периодически забирает pending-сообщения и публикует их.
// Сообщение, не ушедшее за maxAttempts попыток, помечается failed и уходит в DLQ.
type Worker struct {
	settings

	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	now       func() time.Time
}

// CycleResult содержит итог одного цикла ProcessOnce.
type CycleResult struct {
	Sent   int
	Failed int
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	return &Worker{
		settings:  newSettings(options),
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
	}
}

// Run обрабатывает outbox сразу и затем раз в pollInterval, пока ctx не отменён.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	w.logger.WithFields(log.Fields{
		"poll_interval": w.pollInterval.String(),
		"batch_size":    w.batchSize,
	}).Info("outbox worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует одну пачку pending-сообщений.
// При отмене ctx необработанные сообщения остаются pending.
func (w *Worker) ProcessOnce(ctx context.Context) CycleResult {
	var result CycleResult
	if ctx.Err() != nil {
		return result
	}

	w.refreshBacklogMetrics(ctx)
	defer w.refreshBacklogMetrics(ctx)

	batch, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return result
	}

	for _, event := range batch {
		if ctx.Err() != nil {
			return result
		}
		err := w.publishWithRetry(ctx, event)
		switch {
		case err != nil && ctx.Err() != nil:
			return result
		case err != nil:
			w.handleExhausted(ctx, event, err)
			result.Failed++
		default:
			if err := w.repo.MarkSent(ctx, event.ID); err != nil {
				w.logger.WithError(err).WithField("outbox_id", event.ID).Warn("failed to mark outbox as sent")
			}
			result.Sent++
		}
	}
	return result
}

func (w *Worker) handleExhausted(ctx context.Context, event domain.OutboxMessage, cause error) {
	entry := w.logger.WithFields(log.Fields{"outbox_id": event.ID, "event_type": event.EventType})
	entry.WithError(cause).Error("outbox publish failed after retries")
	w.metrics.RecordPublishAttempt(ResultFailed)

	if err := w.publishToDLQ(event, cause); err != nil {
		entry.WithError(err).Warn("failed to publish to DLQ")
		w.metrics.RecordPublishAttempt(ResultDLQFailed)
	}
	if err := w.repo.MarkFailed(ctx, event.ID); err != nil {
		entry.WithError(err).Warn("failed to mark outbox as failed")
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, event domain.OutboxMessage) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = w.publisher.Publish(event); err == nil {
			w.metrics.RecordPublishAttempt(ResultSent)
			return nil
		}
		w.metrics.RecordPublishAttempt(ResultRetryError)
		if attempt == w.maxAttempts {
			return fmt.Errorf("publish failed after %d attempts: %w", attempt, err)
		}

		if delay := retryBackoff(w.retryBaseDelay, attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

func (w *Worker) refreshBacklogMetrics(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetBacklog(stats.PendingCount, age)
}

// retryBackoff возвращает base * 2^(attempt-1), насыщаясь на максимальной длительности.
func retryBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	shift := max(attempt-1, 0)
	if shift >= 63 || base > maxDelay>>shift {
		return maxDelay
	}
	return base << shift
}
