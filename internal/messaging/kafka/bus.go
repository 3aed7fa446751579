package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Bus реализует domain.EventBus поверх Kafka: публикации идут через
// sync producer, подписки обслуживает один consumer group с
// маршрутизацией по топику. Подписки регистрируются до Start.
type Bus struct {
	brokers  []string
	groupID  string
	producer *Producer
	logger   *log.Entry

	mu       sync.Mutex
	handlers map[string]domain.EventHandler
	consumer *Consumer
	started  bool
}

// NewBus создаёт Kafka-шину и её producer.
func NewBus(brokers []string, groupID string) (*Bus, error) {
	producer, err := NewProducer(brokers)
	if err != nil {
		return nil, err
	}

	return &Bus{
		brokers:  brokers,
		groupID:  groupID,
		producer: producer,
		logger:   log.WithField("component", "kafka-bus"),
		handlers: make(map[string]domain.EventHandler),
	}, nil
}

// Publish отправляет payload в топик через producer.
func (b *Bus) Publish(_ context.Context, topic, key string, payload []byte) error {
	return b.producer.Publish(topic, key, payload)
}

// Subscribe регистрирует обработчик топика. После Start подписки закрыты.
func (b *Bus) Subscribe(topic string, handler domain.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return fmt.Errorf("subscribe %s: bus already started", topic)
	}
	if _, exists := b.handlers[topic]; exists {
		return fmt.Errorf("subscribe %s: handler already registered", topic)
	}
	b.handlers[topic] = handler
	return nil
}

// Start поднимает consumer group по всем подписанным топикам.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return fmt.Errorf("bus already started")
	}
	if len(b.handlers) == 0 {
		b.logger.Warn("no subscriptions registered, consumer not started")
		b.started = true
		return nil
	}

	topics := make([]string, 0, len(b.handlers))
	for topic := range b.handlers {
		topics = append(topics, topic)
	}

	consumer, err := NewConsumerWithDLQ(b.brokers, b.groupID, topics, b.dispatch, b.producer, 3)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	b.consumer = consumer
	b.started = true
	return nil
}

// dispatch маршрутизирует сообщение consumer'а в обработчик его топика.
func (b *Bus) dispatch(ctx context.Context, message *sarama.ConsumerMessage) error {
	b.mu.Lock()
	handler, ok := b.handlers[message.Topic]
	b.mu.Unlock()

	if !ok {
		b.logger.WithField("topic", message.Topic).Warn("no handler for topic, message skipped")
		return nil
	}
	return handler(ctx, message.Value)
}

// Close останавливает consumer и закрывает producer.
func (b *Bus) Close() error {
	b.mu.Lock()
	consumer := b.consumer
	b.mu.Unlock()

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			b.logger.WithError(err).Warn("failed to stop consumer")
		}
	}
	return b.producer.Close()
}

var _ domain.EventBus = (*Bus)(nil)
