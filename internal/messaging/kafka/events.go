package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "ordering.order.events"
	TopicDeadLetterQueue = "ordering.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderReplayedAt    = "x-replayed-at"
)

// Envelope — формат сообщения outbox в топике событий заказа.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// DLQRecord — сообщение, которое не удалось опубликовать после всех попыток.
type DLQRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	FailedAt      time.Time       `json:"failed_at"`
}

// NewEnvelope оборачивает outbox-сообщение для публикации.
func NewEnvelope(msg domain.OutboxMessage, now time.Time) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       rawJSON(msg.Payload),
		PublishedAt:   now.UTC(),
	}
}

// NewDLQRecord описывает сообщение, ушедшее в DLQ.
func NewDLQRecord(msg domain.OutboxMessage, publishErr error, now time.Time) DLQRecord {
	record := DLQRecord{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       rawJSON(msg.Payload),
		FailedAt:      now.UTC(),
	}
	if publishErr != nil {
		record.PublishError = publishErr.Error()
	}
	return record
}

// OutboxMessage восстанавливает исходное outbox-сообщение из записи DLQ.
func (r DLQRecord) OutboxMessage() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            r.OutboxID,
		AggregateType: r.AggregateType,
		AggregateID:   r.AggregateID,
		EventType:     r.EventType,
		Payload:       []byte(r.Payload),
	}
}

// ParseDLQRecord разбирает значение сообщения из DLQ.
func ParseDLQRecord(value []byte) (DLQRecord, error) {
	var record DLQRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return DLQRecord{}, fmt.Errorf("failed to unmarshal dlq record: %w", err)
	}
	if record.OutboxID == "" || record.EventType == "" {
		return DLQRecord{}, fmt.Errorf("dlq record is missing outbox_id or event_type")
	}
	return record, nil
}

// ParseEnvelope разбирает значение сообщения из топика событий.
func ParseEnvelope(value []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return envelope, nil
}

// rawJSON не даёт невалидному payload сломать маршалинг конверта.
func rawJSON(payload []byte) json.RawMessage {
	if len(payload) == 0 {
		return json.RawMessage("null")
	}
	if !json.Valid(payload) {
		quoted, _ := json.Marshal(string(payload))
		return quoted
	}
	return json.RawMessage(payload)
}
