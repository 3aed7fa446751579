package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	membus "github.com/vladislavdragonenkov/fulfillment/internal/messaging/memory"
)

// initBus подключает шину событий: Kafka при наличии брокеров,
// иначе шину в памяти. Второе возвращаемое значение не nil только
// для Kafka: его нужно запустить после регистрации подписок и
// закрыть при остановке.
func initBus(cfg Config, logger *log.Entry) (domain.EventBus, *kafka.Bus, error) {
	if cfg.KafkaBrokers == "" {
		logger.Info("kafka brokers not configured, using in-memory event bus")
		return membus.NewBus(), nil, nil
	}

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	bus, err := kafka.NewBus(brokers, cfg.KafkaGroupID)
	if err != nil {
		return nil, nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka event bus initialized")
	return bus, bus, nil
}

// closeKafka закрывает Kafka-шину если она была создана.
func closeKafka(bus *kafka.Bus, logger *log.Entry) {
	if bus == nil {
		return
	}
	if err := bus.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka event bus")
	} else {
		logger.Info("kafka event bus closed")
	}
}
