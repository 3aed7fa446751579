package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка слишком короткого идентификатора клиента.
	ErrCustomerIDTooShort = errors.New("customer_id must be at least 3 characters")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отсутствующего идентификатора товара в позиции.
	ErrProductIDRequired = errors.New("item product_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// ErrInvalidTransition — запрошенный переход отсутствует в таблице переходов.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrReasonRequired — причина отмены/провала не может быть пустой.
	ErrReasonRequired = errors.New("reason is required")
	// ErrOrderNotPending — позиции можно менять только в статусе pending.
	ErrOrderNotPending = errors.New("order items can only be modified while pending")
	// ErrItemNotFound — удаляемая позиция отсутствует в заказе.
	ErrItemNotFound = errors.New("order item not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists возвращается при попытке создать заказ с занятым ID.
	ErrOrderExists = errors.New("order already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrSagaNotFound возвращается, если сага отсутствует в хранилище.
	ErrSagaNotFound = errors.New("saga not found")
	// ErrSagaExists возвращается при повторном создании саги для заказа.
	ErrSagaExists = errors.New("saga already exists")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
