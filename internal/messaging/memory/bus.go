package memory

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Bus — реализация EventBus для локальной разработки и тестов.
// По умолчанию каждая доставка выполняется в отдельной горутине, как и
// у настоящей шины; синхронный режим включается для детерминированных
// тестов. Шина хранит журнал публикаций по топикам.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[string][]domain.EventHandler
	history     map[string][][]byte
	synchronous bool
	wg          sync.WaitGroup
}

// NewBus возвращает in-memory шину с асинхронной доставкой.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]domain.EventHandler),
		history:  make(map[string][][]byte),
	}
}

// NewSynchronousBus возвращает шину, доставляющую события в горутине
// публикующего. Удобна в тестах: после Publish все side effects видны.
func NewSynchronousBus() *Bus {
	bus := NewBus()
	bus.synchronous = true
	return bus
}

// Publish записывает payload в журнал и доставляет его подписчикам топика.
func (b *Bus) Publish(ctx context.Context, topic, _ string, payload []byte) error {
	b.mu.Lock()
	// Копия payload: вызывающий может переиспользовать буфер.
	stored := append([]byte(nil), payload...)
	b.history[topic] = append(b.history[topic], stored)
	handlers := append([]domain.EventHandler(nil), b.handlers[topic]...)
	b.mu.Unlock()

	for _, handler := range handlers {
		if b.synchronous {
			// Ошибки обработчиков не возвращаются публикующему: шина
			// асинхронная по контракту, обработчик сам логирует провал.
			_ = handler(ctx, stored)
			continue
		}
		b.wg.Add(1)
		go func(h domain.EventHandler) {
			defer b.wg.Done()
			if err := h(ctx, stored); err != nil {
				log.WithError(err).WithField("topic", topic).Warn("in-memory handler failed")
			}
		}(handler)
	}
	return nil
}

// Subscribe регистрирует обработчик топика.
func (b *Bus) Subscribe(topic string, handler domain.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

// History возвращает копию журнала публикаций топика.
func (b *Bus) History(topic string) [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return append([][]byte(nil), b.history[topic]...)
}

// Wait дожидается завершения всех асинхронных доставок.
func (b *Bus) Wait() {
	b.wg.Wait()
}

var _ domain.EventBus = (*Bus)(nil)
