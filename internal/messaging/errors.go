package messaging

import "errors"

var (
	// Ошибка входящего события без идентификатора заказа.
	ErrOrderIDMissing = errors.New("event order_id is missing")
	// Ошибка inventory.reserved без идентификатора резерва.
	ErrReservationIDMissing = errors.New("event reservation_id is missing")
	// Ошибка payments.succeeded без идентификатора платежа.
	ErrPaymentIDMissing = errors.New("event payment_id is missing")
)
