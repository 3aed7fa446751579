package domain

import "time"

// EventType перечисляет типы доменных событий агрегата заказа.
type EventType string

const (
	// EventOrderCreated — заказ создан в статусе pending.
	EventOrderCreated EventType = "OrderCreated"
	// EventOrderStatusChanged — статус заказа изменился.
	EventOrderStatusChanged EventType = "OrderStatusChanged"
	// EventOrderCompleted — заказ успешно завершён.
	EventOrderCompleted EventType = "OrderCompleted"
	// EventOrderCancelled — заказ отменён.
	EventOrderCancelled EventType = "OrderCancelled"
	// EventOrderFailed — заказ завершился ошибкой.
	EventOrderFailed EventType = "OrderFailed"
)

// Event — неизменяемая запись о доменном событии агрегата.
// Поля From/Reason заполняются только для соответствующих типов.
type Event struct {
	Type     EventType
	OrderID  string
	From     OrderStatus
	To       OrderStatus
	Reason   string
	Occurred time.Time
}
