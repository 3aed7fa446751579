package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Orders   domain.OrderRepository
	Sagas    domain.SagaStore
	Timeline domain.TimelineRepository
	Bus      domain.EventBus
	Logger   *log.Entry

	storage  *storageSet
	kafkaBus *kafka.Bus
}

// NewDependencies создаёт и инициализирует все зависимости приложения.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	storage, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	bus, kafkaBus, err := initBus(cfg, logger)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	return &Dependencies{
		Orders:   storage.orders,
		Sagas:    storage.sagas,
		Timeline: storage.timeline,
		Bus:      bus,
		Logger:   logger,
		storage:  storage,
		kafkaBus: kafkaBus,
	}, nil
}

// Close освобождает ресурсы в порядке, обратном созданию.
func (d *Dependencies) Close() {
	closeKafka(d.kafkaBus, d.Logger)
	if err := d.storage.Close(); err != nil {
		d.Logger.WithError(err).Warn("failed to close storage")
	}
}
