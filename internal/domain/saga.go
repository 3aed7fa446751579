package domain

import "time"

// SagaStatus описывает прогресс оркестрации: отдельную машину состояний,
// независимую от статуса самого заказа.
type SagaStatus string

const (
	// SagaStatusStarted — сага создана, заказ сохранён, ждём резерв склада.
	SagaStatusStarted SagaStatus = "started"
	// SagaStatusInventoryReserved — склад подтвердил резерв.
	SagaStatusInventoryReserved SagaStatus = "inventory_reserved"
	// SagaStatusPaymentProcessing — запрос на оплату отправлен провайдеру.
	SagaStatusPaymentProcessing SagaStatus = "payment_processing"
	// SagaStatusPaymentSucceeded — провайдер подтвердил оплату.
	SagaStatusPaymentSucceeded SagaStatus = "payment_succeeded"
	// SagaStatusCompleted — сага успешно завершена; терминальный статус.
	SagaStatusCompleted SagaStatus = "completed"
	// SagaStatusFailed — сага провалена без компенсации.
	SagaStatusFailed SagaStatus = "failed"
	// SagaStatusCompensating — откат выполняется; застрявшая здесь сага
	// требует повторной компенсации или вмешательства оператора.
	SagaStatusCompensating SagaStatus = "compensating"
	// SagaStatusCompensated — откат выполнен; терминальный статус.
	SagaStatusCompensated SagaStatus = "compensated"
)

// IsTerminal сообщает, закончила ли сага работу. Терминальные саги
// не учитываются timeout sweep'ом и удаляются по retention-окну.
func (s SagaStatus) IsTerminal() bool {
	return s == SagaStatusCompleted || s == SagaStatusCompensated
}

// SagaIDPrefix — префикс детерминированного идентификатора саги.
const SagaIDPrefix = "saga-"

// SagaIDForOrder строит идентификатор саги из идентификатора заказа,
// чтобы lookup не требовал вторичного индекса.
func SagaIDForOrder(orderID string) string {
	return SagaIDPrefix + orderID
}

// SagaRecord хранит orchestration-метаданные одной саги. Запись
// принадлежит исключительно оркестратору и не видна коллабораторам.
type SagaRecord struct {
	ID         string
	OrderID    string
	CustomerID string
	Status     SagaStatus
	// ReservationID заполняется один раз после резервирования склада.
	ReservationID string
	// PaymentID заполняется один раз после успешной оплаты.
	PaymentID string
	StartedAt time.Time
	// CompletedAt заполняется при достижении терминального статуса или провале.
	CompletedAt *time.Time
	// Error хранит причину провала либо последнюю ошибку компенсации.
	Error string
	// CompensationReason — причина, по которой запущен откат.
	CompensationReason string
	// CompensationAttempts считает попытки отката для bounded retry.
	CompensationAttempts int
	// ExpiresAt — момент, после которого терминальная сага удаляется sweep'ом.
	ExpiresAt *time.Time
}

// NewSagaRecord создаёт сагу в статусе started.
func NewSagaRecord(orderID, customerID string) SagaRecord {
	return SagaRecord{
		ID:         SagaIDForOrder(orderID),
		OrderID:    orderID,
		CustomerID: customerID,
		Status:     SagaStatusStarted,
		StartedAt:  time.Now().UTC(),
	}
}
