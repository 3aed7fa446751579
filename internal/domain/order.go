package domain

import (
	"fmt"
	"time"
)

// OrderStatus описывает жизненный цикл заказа в процессе fulfillment.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, резервирование и оплата ещё не выполнены.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusInventoryReserved — товары зарезервированы на складе.
	OrderStatusInventoryReserved OrderStatus = "inventory_reserved"
	// OrderStatusPaymentConfirmed — оплата подтверждена платёжным провайдером.
	OrderStatusPaymentConfirmed OrderStatus = "payment_confirmed"
	// OrderStatusCompleted — заказ успешно завершён; терминальный статус.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled — заказ отменён (компенсация); терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusFailed — заказ завершился ошибкой; терминальный статус.
	OrderStatusFailed OrderStatus = "failed"
)

// orderTransitions — единственный источник правды о допустимых переходах.
// Проверка легальности перехода — один lookup по таблице, без
// разбросанных по методам условий.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:           {OrderStatusInventoryReserved, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusInventoryReserved: {OrderStatusPaymentConfirmed, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusPaymentConfirmed:  {OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusCompleted:         {},
	OrderStatusCancelled:         {},
	OrderStatusFailed:            {},
}

// CanTransition сообщает, допустим ли переход из from в to по таблице переходов.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalOrderStatus сообщает, имеет ли статус исходящие переходы.
func IsTerminalOrderStatus(status OrderStatus) bool {
	return len(orderTransitions[status]) == 0
}

// OrderItem представляет одну позицию заказа. Позиции — неизменяемые
// value-записи: заменяются целиком при add/remove, никогда не мутируются.
type OrderItem struct {
	// ProductID — внешний идентификатор товара.
	ProductID string
	// Qty — количество единиц товара.
	Qty int32
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	// Currency — трёхбуквенный код валюты позиции.
	Currency string
}

// Order агрегирует состояние заказа, его позиции и непрочитанные доменные события.
type Order struct {
	ID              string
	CustomerID      string
	Status          OrderStatus
	Currency        string
	AmountMinor     int64
	Items           []OrderItem
	CancelledAt     *time.Time
	CancelledReason string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// events накапливает доменные события до вызова DrainEvents.
	events []Event
}

const minCustomerIDLen = 3

// NewOrder создаёт заказ в статусе pending и валидирует его инварианты.
func NewOrder(id, customerID string, items []OrderItem) (*Order, error) {
	if id == "" {
		return nil, ErrOrderIDRequired
	}
	if customerID == "" {
		return nil, ErrCustomerRequired
	}
	if len(customerID) < minCustomerIDLen {
		return nil, ErrCustomerIDTooShort
	}
	if len(items) == 0 {
		return nil, ErrItemsRequired
	}
	for _, item := range items {
		if err := validateItem(item); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	order := &Order{
		ID:         id,
		CustomerID: customerID,
		Status:     OrderStatusPending,
		// Валюта заказа берётся из первой позиции.
		Currency:  items[0].Currency,
		Items:     append([]OrderItem(nil), items...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	order.recalculateAmount()

	order.record(Event{
		Type:     EventOrderCreated,
		OrderID:  order.ID,
		To:       OrderStatusPending,
		Occurred: now,
	})
	return order, nil
}

func validateItem(item OrderItem) error {
	if item.ProductID == "" {
		return ErrProductIDRequired
	}
	if item.Qty <= 0 {
		return ErrItemQtyInvalid
	}
	if item.PriceMinor < 0 {
		return ErrItemPriceInvalid
	}
	if item.Currency == "" {
		return ErrCurrencyRequired
	}
	return nil
}

// recalculateAmount пересчитывает сумму заказа с нуля по текущим позициям.
func (o *Order) recalculateAmount() {
	var total int64
	for _, item := range o.Items {
		total += int64(item.Qty) * item.PriceMinor
	}
	o.AmountMinor = total
}

// transition переводит заказ в новый статус. При недопустимом переходе
// возвращает ErrInvalidTransition и не меняет состояние.
func (o *Order) transition(to OrderStatus) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	from := o.Status
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	o.record(Event{
		Type:     EventOrderStatusChanged,
		OrderID:  o.ID,
		From:     from,
		To:       to,
		Occurred: o.UpdatedAt,
	})
	return nil
}

// ReserveInventory фиксирует успешное резервирование товаров на складе.
// Допустим только из статуса pending.
func (o *Order) ReserveInventory() error {
	return o.transition(OrderStatusInventoryReserved)
}

// ConfirmPayment фиксирует подтверждение оплаты.
// Допустим только после резервирования склада.
func (o *Order) ConfirmPayment() error {
	return o.transition(OrderStatusPaymentConfirmed)
}

// Complete завершает заказ. Помимо события о смене статуса эмитит
// отдельное событие о завершении заказа.
func (o *Order) Complete() error {
	if err := o.transition(OrderStatusCompleted); err != nil {
		return err
	}
	o.record(Event{
		Type:     EventOrderCompleted,
		OrderID:  o.ID,
		To:       OrderStatusCompleted,
		Occurred: o.UpdatedAt,
	})
	return nil
}

// Cancel отменяет заказ с обязательной причиной.
func (o *Order) Cancel(reason string) error {
	if reason == "" {
		return ErrReasonRequired
	}
	if err := o.transition(OrderStatusCancelled); err != nil {
		return err
	}
	cancelledAt := o.UpdatedAt
	o.CancelledAt = &cancelledAt
	o.CancelledReason = reason
	o.record(Event{
		Type:     EventOrderCancelled,
		OrderID:  o.ID,
		To:       OrderStatusCancelled,
		Reason:   reason,
		Occurred: cancelledAt,
	})
	return nil
}

// MarkAsFailed переводит заказ в failed с обязательной причиной.
func (o *Order) MarkAsFailed(reason string) error {
	if reason == "" {
		return ErrReasonRequired
	}
	if err := o.transition(OrderStatusFailed); err != nil {
		return err
	}
	o.record(Event{
		Type:     EventOrderFailed,
		OrderID:  o.ID,
		To:       OrderStatusFailed,
		Reason:   reason,
		Occurred: o.UpdatedAt,
	})
	return nil
}

// AddItem добавляет позицию, пока заказ находится в pending,
// и пересчитывает сумму заказа с нуля.
func (o *Order) AddItem(item OrderItem) error {
	if o.Status != OrderStatusPending {
		return fmt.Errorf("%w: status %s", ErrOrderNotPending, o.Status)
	}
	if err := validateItem(item); err != nil {
		return err
	}
	o.Items = append(append([]OrderItem(nil), o.Items...), item)
	o.recalculateAmount()
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// RemoveItem удаляет позицию по productID, пока заказ находится в pending.
func (o *Order) RemoveItem(productID string) error {
	if o.Status != OrderStatusPending {
		return fmt.Errorf("%w: status %s", ErrOrderNotPending, o.Status)
	}

	remaining := make([]OrderItem, 0, len(o.Items))
	found := false
	for _, item := range o.Items {
		if item.ProductID == productID {
			found = true
			continue
		}
		remaining = append(remaining, item)
	}
	if !found {
		return fmt.Errorf("%w: product %s", ErrItemNotFound, productID)
	}
	// Заказ без позиций невалиден с момента создания; удаление
	// последней позиции оставило бы pending-заказ с нулевой суммой.
	if len(remaining) == 0 {
		return ErrItemsRequired
	}

	o.Items = remaining
	o.recalculateAmount()
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (o *Order) record(event Event) {
	o.events = append(o.events, event)
}

// DrainEvents возвращает накопленные доменные события и очищает буфер.
// События читаются ровно один раз, чтобы не публиковаться повторно.
func (o *Order) DrainEvents() []Event {
	events := o.events
	o.events = nil
	return events
}
