package domain

import "context"

// EventHandler обрабатывает одно сообщение из шины. Доставка —
// at-least-once: обработчик обязан быть идемпотентным.
type EventHandler func(ctx context.Context, payload []byte) error

// EventBus описывает транспорт интеграционных событий между сервисами.
type EventBus interface {
	// Publish отправляет сообщение в топик. key задаёт partition key
	// (orderID), чтобы события одной саги сохраняли порядок.
	Publish(ctx context.Context, topic, key string, payload []byte) error
	// Subscribe регистрирует обработчик топика. Вызывается до Start/Run
	// конкретной реализации шины.
	Subscribe(topic string, handler EventHandler) error
}
