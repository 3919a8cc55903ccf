package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      time.Now,
	}
}

// Publish отправляет сообщение в виде Envelope; ключ — id агрегата,
// чтобы события одного заказа попадали в одну партицию.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	return p.producer.PublishJSON(ctx, p.topic, messageKey(event), NewEnvelope(event, p.now()), map[string]string{
		HeaderEventType: event.EventType,
	})
}

// DLQPublisher отправляет сообщения, исчерпавшие попытки, в dead letter topic.
type DLQPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewDLQPublisher создаёт паблишер DLQ.
func NewDLQPublisher(producer *Producer, topic string) *DLQPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	return &DLQPublisher{producer: producer, topic: topic, now: time.Now}
}

// PublishFailed публикует DLQRecord с текстом ошибки публикации.
func (p *DLQPublisher) PublishFailed(ctx context.Context, event domain.OutboxMessage, publishErr error) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}

	headers := map[string]string{HeaderEventType: event.EventType}
	if publishErr != nil {
		headers[HeaderErrorMessage] = publishErr.Error()
	}
	return p.producer.PublishJSON(ctx, p.topic, messageKey(event), NewDLQRecord(event, publishErr, p.now()), headers)
}

func messageKey(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	return event.ID
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
