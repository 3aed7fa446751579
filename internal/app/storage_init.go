package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/postgres"
)

// storageSet объединяет репозитории одного storage-бэкенда.
type storageSet struct {
	orders   domain.OrderRepository
	sagas    domain.SagaStore
	timeline domain.TimelineRepository

	// store не nil только для postgres: им владеет приложение
	// и закрывает при остановке.
	store *postgres.Store
}

func (s *storageSet) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// initStorage создаёт репозитории согласно конфигурации.
func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*storageSet, error) {
	switch cfg.StorageDriver {
	case driverMemory:
		logger.Info("using in-memory storage")
		return &storageSet{
			orders:   memory.NewOrderRepository(),
			sagas:    memory.NewSagaStore(),
			timeline: memory.NewTimelineRepository(),
		}, nil

	case driverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		logger.Info("using postgres storage")
		return &storageSet{
			orders:   postgres.NewOrderRepository(store),
			sagas:    postgres.NewSagaStore(store),
			timeline: postgres.NewTimelineRepository(store),
			store:    store,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
