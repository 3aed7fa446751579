package inventory

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

// MockService — событийная заглушка склада для локальной разработки и
// тестов. Слушает orders.created, резервирует товары из настроенного
// стока и отвечает inventory.reserved либо inventory.out_of_stock.
// Снятие резерва идемпотентно: release несуществующего резерва — no-op.
type MockService struct {
	bus    domain.EventBus
	logger *log.Entry

	mu           sync.Mutex
	stock        map[string]int32
	reservations map[string][]messaging.Item // по reservationID
}

// NewMockService возвращает заглушку склада. Если stock равен nil,
// любой запрошенный товар считается доступным без ограничений.
func NewMockService(bus domain.EventBus, stock map[string]int32, logger *log.Entry) *MockService {
	if logger == nil {
		logger = log.WithField("component", "inventory-mock")
	}
	return &MockService{
		bus:          bus,
		logger:       logger,
		stock:        stock,
		reservations: make(map[string][]messaging.Item),
	}
}

// Subscribe регистрирует обработчики склада на шине.
func (m *MockService) Subscribe(bus domain.EventBus) error {
	if err := bus.Subscribe(messaging.TopicOrderCreated, m.handleOrderCreated); err != nil {
		return err
	}
	return bus.Subscribe(messaging.TopicInventoryReleaseRequest, m.handleReleaseRequest)
}

func (m *MockService) handleOrderCreated(ctx context.Context, payload []byte) error {
	var event messaging.OrderCreated
	if err := decode(payload, &event); err != nil {
		return err
	}

	m.mu.Lock()
	unavailable := m.checkAvailability(event.Items)
	if len(unavailable) == 0 {
		m.takeStock(event.Items)
	}
	m.mu.Unlock()

	if len(unavailable) > 0 {
		out := messaging.NewInventoryOutOfStock(event.OrderID, unavailable)
		return m.publish(ctx, messaging.TopicInventoryOutOfStock, event.OrderID, out)
	}

	reservationID := uuid.NewString()
	m.mu.Lock()
	m.reservations[reservationID] = event.Items
	m.mu.Unlock()

	reserved := messaging.NewInventoryReserved(event.OrderID, reservationID, event.Items)
	return m.publish(ctx, messaging.TopicInventoryReserved, event.OrderID, reserved)
}

func (m *MockService) handleReleaseRequest(_ context.Context, payload []byte) error {
	var event messaging.InventoryReleaseRequest
	if err := decode(payload, &event); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	items, ok := m.reservations[event.ReservationID]
	if !ok {
		// Резерв уже снят или не существовал: по контракту не ошибка.
		m.logger.WithField("reservation_id", event.ReservationID).Debug("release of unknown reservation skipped")
		return nil
	}
	delete(m.reservations, event.ReservationID)
	m.returnStock(items)

	m.logger.WithFields(log.Fields{
		"order_id":       event.OrderID,
		"reservation_id": event.ReservationID,
	}).Info("reservation released")
	return nil
}

// checkAvailability вызывается под mu.
func (m *MockService) checkAvailability(items []messaging.Item) []messaging.UnavailableItem {
	if m.stock == nil {
		return nil
	}
	var unavailable []messaging.UnavailableItem
	for _, item := range items {
		available := m.stock[item.ProductID]
		if item.Qty > available {
			unavailable = append(unavailable, messaging.UnavailableItem{
				ProductID:    item.ProductID,
				RequestedQty: item.Qty,
				AvailableQty: available,
			})
		}
	}
	return unavailable
}

// takeStock вызывается под mu.
func (m *MockService) takeStock(items []messaging.Item) {
	if m.stock == nil {
		return
	}
	for _, item := range items {
		m.stock[item.ProductID] -= item.Qty
	}
}

// returnStock вызывается под mu.
func (m *MockService) returnStock(items []messaging.Item) {
	if m.stock == nil {
		return
	}
	for _, item := range items {
		m.stock[item.ProductID] += item.Qty
	}
}

func decode(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}

func (m *MockService) publish(ctx context.Context, topic, key string, event interface{}) error {
	payload, err := messaging.Encode(event)
	if err != nil {
		return err
	}
	return m.bus.Publish(ctx, topic, key, payload)
}
