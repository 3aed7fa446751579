package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging"
)

// MockService — событийная заглушка платёжного провайдера. Слушает
// payments.process_request и отвечает payments.succeeded либо
// payments.failed по настроенным правилам.
type MockService struct {
	bus    domain.EventBus
	logger *log.Entry

	mu sync.Mutex
	// DeclineAboveMinor — заявки на сумму строго больше лимита отклоняются.
	// Ноль отключает лимит.
	declineAboveMinor int64
	// declineOrders — заказы, для которых оплата всегда отклоняется.
	declineOrders map[string]string
	payments      map[string]string // orderID -> paymentID, для идемпотентности
}

// NewMockService возвращает заглушку провайдера с успешным сценарием по умолчанию.
func NewMockService(bus domain.EventBus, logger *log.Entry) *MockService {
	if logger == nil {
		logger = log.WithField("component", "payment-mock")
	}
	return &MockService{
		bus:           bus,
		logger:        logger,
		declineOrders: make(map[string]string),
		payments:      make(map[string]string),
	}
}

// DeclineAbove включает отклонение заявок на сумму больше лимита.
func (m *MockService) DeclineAbove(amountMinor int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.declineAboveMinor = amountMinor
}

// DeclineOrder настраивает отказ для конкретного заказа с причиной.
func (m *MockService) DeclineOrder(orderID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.declineOrders[orderID] = reason
}

// Subscribe регистрирует обработчик провайдера на шине.
func (m *MockService) Subscribe(bus domain.EventBus) error {
	return bus.Subscribe(messaging.TopicPaymentProcessRequest, m.handleProcessRequest)
}

func (m *MockService) handleProcessRequest(ctx context.Context, payload []byte) error {
	var event messaging.PaymentProcessRequest
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	m.mu.Lock()
	if reason, declined := m.declineOrders[event.OrderID]; declined {
		m.mu.Unlock()
		failed := messaging.NewPaymentFailed(event.OrderID, reason)
		return m.publish(ctx, messaging.TopicPaymentFailed, event.OrderID, failed)
	}
	if m.declineAboveMinor > 0 && event.Amount.ValueMinor > m.declineAboveMinor {
		m.mu.Unlock()
		failed := messaging.NewPaymentFailed(event.OrderID, "amount exceeds provider limit")
		return m.publish(ctx, messaging.TopicPaymentFailed, event.OrderID, failed)
	}
	// Повторная заявка по тому же заказу получает тот же paymentID.
	paymentID, ok := m.payments[event.OrderID]
	if !ok {
		paymentID = uuid.NewString()
		m.payments[event.OrderID] = paymentID
	}
	m.mu.Unlock()

	succeeded := messaging.NewPaymentSucceeded(event.OrderID, paymentID, event.Amount)
	return m.publish(ctx, messaging.TopicPaymentSucceeded, event.OrderID, succeeded)
}

func (m *MockService) publish(ctx context.Context, topic, key string, event interface{}) error {
	payload, err := messaging.Encode(event)
	if err != nil {
		return err
	}
	return m.bus.Publish(ctx, topic, key, payload)
}
