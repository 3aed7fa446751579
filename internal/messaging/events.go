package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Топики интеграционных событий. Имя топика совпадает с именем события.
const (
	// Входящие (consumed).
	TopicInventoryReserved   = "inventory.reserved"
	TopicInventoryOutOfStock = "inventory.out_of_stock"
	TopicPaymentSucceeded    = "payments.succeeded"
	TopicPaymentFailed       = "payments.failed"

	// Исходящие (published).
	TopicOrderCreated            = "orders.created"
	TopicPaymentProcessRequest   = "payments.process_request"
	TopicOrderConfirmed          = "orders.confirmed"
	TopicOrderCancelled          = "orders.cancelled"
	TopicOrderFailed             = "orders.failed"
	TopicInventoryReleaseRequest = "inventory.release_request"

	// TopicDeadLetterQueue — сообщения, не обработанные после всех retry.
	TopicDeadLetterQueue = "fulfillment.dlq"
)

// Kafka headers для retry-логики consumer'а.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// Amount — денежная сумма в минимальных единицах валюты.
type Amount struct {
	ValueMinor int64  `json:"value"`
	Currency   string `json:"currency"`
}

// Item — позиция заказа в составе интеграционного события.
type Item struct {
	ProductID  string `json:"product_id"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
	Currency   string `json:"currency"`
}

// UnavailableItem описывает позицию, которую склад не смог зарезервировать.
type UnavailableItem struct {
	ProductID    string `json:"product_id"`
	RequestedQty int32  `json:"requested_qty"`
	AvailableQty int32  `json:"available_qty"`
}

// InventoryReserved — склад зарезервировал товары под заказ.
type InventoryReserved struct {
	EventID       string    `json:"event_id"`
	OrderID       string    `json:"order_id"`
	ReservationID string    `json:"reservation_id"`
	Items         []Item    `json:"items"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// InventoryOutOfStock — склад не смог зарезервировать часть позиций.
type InventoryOutOfStock struct {
	EventID          string            `json:"event_id"`
	OrderID          string            `json:"order_id"`
	UnavailableItems []UnavailableItem `json:"unavailable_items"`
	OccurredAt       time.Time         `json:"occurred_at"`
}

// PaymentSucceeded — провайдер подтвердил оплату заказа.
type PaymentSucceeded struct {
	EventID    string    `json:"event_id"`
	OrderID    string    `json:"order_id"`
	PaymentID  string    `json:"payment_id"`
	Amount     Amount    `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PaymentFailed — провайдер отклонил оплату заказа.
type PaymentFailed struct {
	EventID    string    `json:"event_id"`
	OrderID    string    `json:"order_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OrderCreated — заказ создан, сага запущена.
type OrderCreated struct {
	EventID    string    `json:"event_id"`
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	Items      []Item    `json:"items"`
	Amount     Amount    `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PaymentProcessRequest — запрос на списание средств по заказу.
type PaymentProcessRequest struct {
	EventID    string    `json:"event_id"`
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	Amount     Amount    `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OrderConfirmed — заказ полностью оплачен и завершён.
type OrderConfirmed struct {
	EventID    string    `json:"event_id"`
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	PaymentID  string    `json:"payment_id"`
	Amount     Amount    `json:"amount"`
	Items      []Item    `json:"items"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OrderCancelled — заказ отменён в ходе компенсации.
type OrderCancelled struct {
	EventID    string    `json:"event_id"`
	OrderID    string    `json:"order_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OrderFailed — сага провалена; CompensationRequired сообщает,
// существовал ли резерв склада на момент провала.
type OrderFailed struct {
	EventID              string    `json:"event_id"`
	OrderID              string    `json:"order_id"`
	CustomerID           string    `json:"customer_id"`
	Reason               string    `json:"reason"`
	Stage                string    `json:"stage"`
	CompensationRequired bool      `json:"compensation_required"`
	OccurredAt           time.Time `json:"occurred_at"`
}

// InventoryReleaseRequest — запрос на снятие резерва. Снятие уже
// отсутствующего резерва на стороне склада не считается ошибкой.
type InventoryReleaseRequest struct {
	EventID       string    `json:"event_id"`
	OrderID       string    `json:"order_id"`
	ReservationID string    `json:"reservation_id"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// newEventID выдаёт уникальный идентификатор события для дедупликации
// на принимающей стороне (доставка at-least-once).
func newEventID() string {
	return uuid.NewString()
}

// now возвращает момент создания события.
func now() time.Time {
	return time.Now().UTC()
}

// NewOrderCreated собирает событие orders.created.
func NewOrderCreated(orderID, customerID string, items []Item, amount Amount) OrderCreated {
	return OrderCreated{
		EventID:    newEventID(),
		OrderID:    orderID,
		CustomerID: customerID,
		Items:      items,
		Amount:     amount,
		OccurredAt: now(),
	}
}

// NewPaymentProcessRequest собирает событие payments.process_request.
func NewPaymentProcessRequest(orderID, customerID string, amount Amount) PaymentProcessRequest {
	return PaymentProcessRequest{
		EventID:    newEventID(),
		OrderID:    orderID,
		CustomerID: customerID,
		Amount:     amount,
		OccurredAt: now(),
	}
}

// NewOrderConfirmed собирает событие orders.confirmed.
func NewOrderConfirmed(orderID, customerID, paymentID string, amount Amount, items []Item) OrderConfirmed {
	return OrderConfirmed{
		EventID:    newEventID(),
		OrderID:    orderID,
		CustomerID: customerID,
		PaymentID:  paymentID,
		Amount:     amount,
		Items:      items,
		OccurredAt: now(),
	}
}

// NewOrderCancelled собирает событие orders.cancelled.
func NewOrderCancelled(orderID, reason string) OrderCancelled {
	return OrderCancelled{
		EventID:    newEventID(),
		OrderID:    orderID,
		Reason:     reason,
		OccurredAt: now(),
	}
}

// NewOrderFailed собирает событие orders.failed.
func NewOrderFailed(orderID, customerID, reason, stage string, compensationRequired bool) OrderFailed {
	return OrderFailed{
		EventID:              newEventID(),
		OrderID:              orderID,
		CustomerID:           customerID,
		Reason:               reason,
		Stage:                stage,
		CompensationRequired: compensationRequired,
		OccurredAt:           now(),
	}
}

// NewInventoryReleaseRequest собирает событие inventory.release_request.
func NewInventoryReleaseRequest(orderID, reservationID, reason string) InventoryReleaseRequest {
	return InventoryReleaseRequest{
		EventID:       newEventID(),
		OrderID:       orderID,
		ReservationID: reservationID,
		Reason:        reason,
		OccurredAt:    now(),
	}
}

// NewInventoryReserved собирает событие inventory.reserved (сторона склада).
func NewInventoryReserved(orderID, reservationID string, items []Item) InventoryReserved {
	return InventoryReserved{
		EventID:       newEventID(),
		OrderID:       orderID,
		ReservationID: reservationID,
		Items:         items,
		OccurredAt:    now(),
	}
}

// NewInventoryOutOfStock собирает событие inventory.out_of_stock (сторона склада).
func NewInventoryOutOfStock(orderID string, unavailable []UnavailableItem) InventoryOutOfStock {
	return InventoryOutOfStock{
		EventID:          newEventID(),
		OrderID:          orderID,
		UnavailableItems: unavailable,
		OccurredAt:       now(),
	}
}

// NewPaymentSucceeded собирает событие payments.succeeded (сторона провайдера).
func NewPaymentSucceeded(orderID, paymentID string, amount Amount) PaymentSucceeded {
	return PaymentSucceeded{
		EventID:    newEventID(),
		OrderID:    orderID,
		PaymentID:  paymentID,
		Amount:     amount,
		OccurredAt: now(),
	}
}

// NewPaymentFailed собирает событие payments.failed (сторона провайдера).
func NewPaymentFailed(orderID, reason string) PaymentFailed {
	return PaymentFailed{
		EventID:    newEventID(),
		OrderID:    orderID,
		Reason:     reason,
		OccurredAt: now(),
	}
}

// Encode сериализует событие для публикации в шину.
func Encode(event interface{}) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal integration event: %w", err)
	}
	return data, nil
}

// DecodeInventoryReserved разбирает и валидирует inventory.reserved.
func DecodeInventoryReserved(payload []byte) (InventoryReserved, error) {
	var event InventoryReserved
	if err := json.Unmarshal(payload, &event); err != nil {
		return InventoryReserved{}, fmt.Errorf("unmarshal inventory.reserved: %w", err)
	}
	if event.OrderID == "" {
		return InventoryReserved{}, fmt.Errorf("inventory.reserved: %w", ErrOrderIDMissing)
	}
	if event.ReservationID == "" {
		return InventoryReserved{}, fmt.Errorf("inventory.reserved: %w", ErrReservationIDMissing)
	}
	return event, nil
}

// DecodeInventoryOutOfStock разбирает и валидирует inventory.out_of_stock.
func DecodeInventoryOutOfStock(payload []byte) (InventoryOutOfStock, error) {
	var event InventoryOutOfStock
	if err := json.Unmarshal(payload, &event); err != nil {
		return InventoryOutOfStock{}, fmt.Errorf("unmarshal inventory.out_of_stock: %w", err)
	}
	if event.OrderID == "" {
		return InventoryOutOfStock{}, fmt.Errorf("inventory.out_of_stock: %w", ErrOrderIDMissing)
	}
	return event, nil
}

// DecodePaymentSucceeded разбирает и валидирует payments.succeeded.
func DecodePaymentSucceeded(payload []byte) (PaymentSucceeded, error) {
	var event PaymentSucceeded
	if err := json.Unmarshal(payload, &event); err != nil {
		return PaymentSucceeded{}, fmt.Errorf("unmarshal payments.succeeded: %w", err)
	}
	if event.OrderID == "" {
		return PaymentSucceeded{}, fmt.Errorf("payments.succeeded: %w", ErrOrderIDMissing)
	}
	if event.PaymentID == "" {
		return PaymentSucceeded{}, fmt.Errorf("payments.succeeded: %w", ErrPaymentIDMissing)
	}
	return event, nil
}

// DecodePaymentFailed разбирает и валидирует payments.failed.
func DecodePaymentFailed(payload []byte) (PaymentFailed, error) {
	var event PaymentFailed
	if err := json.Unmarshal(payload, &event); err != nil {
		return PaymentFailed{}, fmt.Errorf("unmarshal payments.failed: %w", err)
	}
	if event.OrderID == "" {
		return PaymentFailed{}, fmt.Errorf("payments.failed: %w", ErrOrderIDMissing)
	}
	return event, nil
}
