package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// sagaStoreInMemory — реестр саг на конкурентно-безопасной map с
// отдельным мьютексом на каждую сагу. Блокировка по ключу сериализует
// обработчики и timeout sweep в рамках одной саги, не мешая остальным.
type sagaStoreInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.SagaRecord
	locks map[string]*sync.Mutex
}

// NewSagaStore возвращает in-memory реализацию SagaStore.
func NewSagaStore() domain.SagaStore {
	return &sagaStoreInMemory{
		items: make(map[string]domain.SagaRecord),
		locks: make(map[string]*sync.Mutex),
	}
}

// Get возвращает сагу или ErrSagaNotFound, если её нет.
func (s *sagaStoreInMemory) Get(sagaID string) (domain.SagaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	saga, ok := s.items[sagaID]
	if !ok {
		return domain.SagaRecord{}, domain.ErrSagaNotFound
	}
	return saga, nil
}

// Put создаёт или перезаписывает запись саги.
func (s *sagaStoreInMemory) Put(saga domain.SagaRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[saga.ID] = saga
	return nil
}

// Delete удаляет сагу вместе с её per-key мьютексом.
func (s *sagaStoreInMemory) Delete(sagaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, sagaID)
	delete(s.locks, sagaID)
	return nil
}

// ListActive возвращает снимок всех саг для timeout sweep. Sweep
// работает по копиям, поэтому конкурентные мутации store безопасны.
func (s *sagaStoreInMemory) ListActive() ([]domain.SagaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SagaRecord, 0, len(s.items))
	for _, saga := range s.items {
		result = append(result, saga)
	}
	return result, nil
}

// WithLock выполняет fn под мьютексом конкретной саги.
func (s *sagaStoreInMemory) WithLock(sagaID string, fn func() error) error {
	lock := s.lockFor(sagaID)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

func (s *sagaStoreInMemory) lockFor(sagaID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[sagaID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sagaID] = lock
	}
	return lock
}

var _ domain.SagaStore = (*sagaStoreInMemory)(nil)
