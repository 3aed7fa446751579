package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// timelineRepositoryInMemory — in-memory реализация TimelineRepository.
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.Event
}

// NewTimelineRepository возвращает in-memory хронологию для локальной разработки и тестов.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{
		events: make(map[string][]domain.Event),
	}
}

// Append добавляет событие в хронологию заказа.
func (r *timelineRepositoryInMemory) Append(event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[event.OrderID] = append(r.events[event.OrderID], event)
	return nil
}

// List возвращает копию событий заказа, отсортированную по времени возникновения.
func (r *timelineRepositoryInMemory) List(orderID string) ([]domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.events[orderID]
	result := append([]domain.Event(nil), stored...)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Occurred.Before(result[j].Occurred)
	})
	return result, nil
}
