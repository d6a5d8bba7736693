package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// dlqEnvelope описывает payload сообщения в dead letter queue.
// cmd/dlq-reprocess читает его обратно, поэтому теги полей менять нельзя.
type dlqEnvelope struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt string          `json:"dlq_published_at"`
}

// deadLetter заворачивает event вместе с причиной отказа в новое outbox-сообщение.
func deadLetter(event domain.OutboxMessage, cause error, at time.Time) (domain.OutboxMessage, error) {
	envelope := dlqEnvelope{
		OutboxID:       event.ID,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		EventType:      event.EventType,
		PublishError:   cause.Error(),
		DLQPublishedAt: at.UTC().Format(time.RFC3339Nano),
	}
	if json.Valid(event.Payload) {
		envelope.Payload = event.Payload
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("encode dead letter %s: %w", event.ID, err)
	}

	letter := event
	letter.Payload = payload
	return letter, nil
}

func (w *Worker) publishToDLQ(event domain.OutboxMessage, cause error) error {
	if w.dlq == nil {
		return nil
	}
	letter, err := deadLetter(event, cause, w.now())
	if err != nil {
		return err
	}
	if err := w.dlq.Publish(letter); err != nil {
		return fmt.Errorf("publish dead letter %s: %w", event.ID, err)
	}
	return nil
}
